package services

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/store"
	"github.com/vikasavnish/botbridge/internal/validation"
)

const spotAddsField = "spot_adds"

// spotLedger manages the spot_adds array of pending orders and running
// trades. The array is one hash field, so every change is a read-modify-write
// and runs under WATCH on the parent hash.
type spotLedger struct {
	store    *store.Store
	queue    *deletionQueue
	validate *validation.Validator
	logger   *zap.Logger
	entity   string
}

func parseSpots(raw string) ([]models.SpotAdd, error) {
	spots := []models.SpotAdd{}
	if raw == "" || raw == "null" {
		return spots, nil
	}
	if err := json.Unmarshal([]byte(raw), &spots); err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "decode spot_adds"), "stored spot_adds are corrupt")
	}
	if spots == nil {
		spots = []models.SpotAdd{}
	}
	return spots, nil
}

func (l *spotLedger) notFound(parentID string) error {
	return apperr.NotFound("%s %s not found", l.entity, parentID)
}

// add appends a new, not yet executed spot add and returns the stored array.
func (l *spotLedger) add(ctx context.Context, ns keyspace.Namespace, key, parentID string, in models.SpotAddInput) ([]models.SpotAdd, error) {
	if err := l.validate.Struct(in); err != nil {
		return nil, err
	}

	var stored []models.SpotAdd
	err := l.store.MutateField(ctx, key, spotAddsField, func(current string, exists bool) (string, error) {
		if !exists {
			return "", l.notFound(parentID)
		}
		spots, err := parseSpots(current)
		if err != nil {
			return "", err
		}
		spots = append(spots, in.SpotAdd())
		stored = spots
		return store.EncodeValue(spots)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("spot add attached",
		zap.String("ns", ns.String()), zap.String("parent", parentID), zap.Int("index", len(stored)-1))
	l.store.Notify(ctx, ns.Events())
	return stored, nil
}

// update merges patch into the spot add at index. Executed spot adds are
// immutable.
func (l *spotLedger) update(ctx context.Context, ns keyspace.Namespace, key, parentID string, index int, patch models.SpotAddPatch) (models.SpotAdd, error) {
	if err := l.validate.Struct(patch); err != nil {
		return models.SpotAdd{}, err
	}
	if patch.Empty() {
		return models.SpotAdd{}, apperr.Validation("no spot add fields to update")
	}

	var updated models.SpotAdd
	err := l.store.MutateField(ctx, key, spotAddsField, func(current string, exists bool) (string, error) {
		if !exists {
			return "", l.notFound(parentID)
		}
		spots, err := parseSpots(current)
		if err != nil {
			return "", err
		}
		if index < 0 || index >= len(spots) {
			return "", apperr.NotFound("spot add %d not found on %s %s", index, l.entity, parentID)
		}
		if spots[index].Executed() {
			return "", apperr.ErrImmutable
		}
		spots[index] = patch.Apply(spots[index])
		updated = spots[index]
		return store.EncodeValue(spots)
	})
	if err != nil {
		return models.SpotAdd{}, err
	}

	l.store.Notify(ctx, ns.Events())
	return updated, nil
}

// queueDeletion places a "{parentId}:{index}" ticket for the worker. The
// array itself is left untouched so that indexes of other tickets stay
// valid.
func (l *spotLedger) queueDeletion(ctx context.Context, ns keyspace.Namespace, key, parentID string, index int) error {
	err := l.store.Optimistic(ctx, "spot_delete", func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return l.notFound(parentID)
		}
		raw, err := tx.HGet(ctx, key, spotAddsField).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		spots, err := parseSpots(raw)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(spots) {
			return apperr.NotFound("spot add %d not found on %s %s", index, l.entity, parentID)
		}
		if spots[index].Executed() {
			return apperr.ErrImmutable
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			l.queue.queueSpot(ctx, pipe, ns, parentID, index)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return err
	}

	l.logger.Info("spot add queued for deletion",
		zap.String("ns", ns.String()), zap.String("parent", parentID), zap.Int("index", index))
	l.store.Notify(ctx, ns.Events())
	return nil
}
