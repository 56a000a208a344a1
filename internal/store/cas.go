package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/metrics"
)

const maxConflictBackoff = 50 * time.Millisecond

// TxFunc reads the watched keys through tx and queues its writes with
// tx.TxPipelined. Returning an error aborts without writing.
type TxFunc func(tx *redis.Tx) error

// Optimistic runs fn under WATCH on keys. When another client modifies a
// watched key before EXEC, the transaction is discarded and fn runs again on
// fresh data, up to the store's attempt limit. op labels the conflict metric
// and must be a small fixed name.
func (s *Store) Optimistic(ctx context.Context, op string, fn TxFunc, keys ...string) error {
	if err := s.Check(); err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Millisecond
	bo.MaxInterval = maxConflictBackoff

	for attempt := 1; ; attempt++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return s.classify(err, op)
		}

		metrics.CASConflicts.WithLabelValues(op).Inc()
		if attempt >= s.maxAttempts {
			s.logger.Warn("giving up on contended keys",
				zap.String("op", op), zap.Strings("keys", keys), zap.Int("attempts", attempt))
			return apperr.Internal(err, "too many concurrent updates ("+op+")")
		}

		sleep := bo.NextBackOff()
		if sleep == backoff.Stop {
			sleep = maxConflictBackoff
		}
		select {
		case <-ctx.Done():
			return s.classify(ctx.Err(), op)
		case <-time.After(sleep):
		}
	}
}

// MutateFunc receives the current value of the field ("" when unset) and
// whether the hash exists, and returns the value to store. Returning an error
// aborts the mutation without writing.
type MutateFunc func(current string, exists bool) (string, error)

// MutateField performs a read-modify-write of one hash field under
// WATCH/MULTI/EXEC, so concurrent writers never lose each other's updates.
func (s *Store) MutateField(ctx context.Context, key, field string, fn MutateFunc) error {
	return s.Optimistic(ctx, field, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		current, err := tx.HGet(ctx, key, field).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		next, err := fn(current, exists > 0)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, next)
			return nil
		})
		return err
	}, key)
}

// ReadEntityTx is ReadEntity inside an Optimistic callback.
func (s *Store) ReadEntityTx(ctx context.Context, tx *redis.Tx, key string, out interface{}) (bool, error) {
	data, err := tx.HGetAll(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := s.decode(key, data, out); err != nil {
		return false, err
	}
	return true, nil
}
