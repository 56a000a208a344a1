package tasks

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/config"
	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/metrics"
	"github.com/vikasavnish/botbridge/internal/store"
)

// QueueReconcileTask walks every deletion queue, drops enqueue stamps the
// worker has already consumed, and reports tickets older than the stale
// threshold.
type QueueReconcileTask struct {
	*ticker
	store      *store.Store
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger

	// afterRead runs between reading a queue and pruning it.
	afterRead func(stampKey string)
}

func NewQueueReconcileTask(st *store.Store, cfg config.QueueConfig, logger *zap.Logger) *QueueReconcileTask {
	t := &QueueReconcileTask{
		store:      st,
		staleAfter: cfg.StaleAfter,
		now:        time.Now,
		logger:     logger,
	}
	t.ticker = &ticker{name: "queue-reconcile", interval: cfg.ReconcileInterval, logger: logger, fn: t.run}
	return t
}

func (t *QueueReconcileTask) run(ctx context.Context) {
	if !t.store.Ready() {
		return
	}
	stale, err := t.Reconcile(ctx)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn("queue reconcile failed", zap.Error(err))
		}
		return
	}
	metrics.StaleTickets.Set(float64(stale))
}

// Reconcile runs one pass and returns the number of stale tickets.
func (t *QueueReconcileTask) Reconcile(ctx context.Context) (int, error) {
	cutoff := t.now().Add(-t.staleAfter).Unix()
	stampKeys, err := t.store.Members(ctx, keyspace.QueueRegistry)
	if err != nil {
		return 0, err
	}

	stale := 0
	for _, stampKey := range stampKeys {
		if !keyspace.IsStampKey(stampKey) {
			t.logger.Warn("ignoring foreign key in queue registry", zap.String("key", stampKey))
			continue
		}
		n, err := t.reconcileQueue(ctx, stampKey, cutoff)
		if err != nil {
			return 0, err
		}
		stale += n
	}
	return stale, nil
}

// reconcileQueue prunes the stamps of consumed tickets under WATCH on both
// the queue and its stamps, so a ticket re-queued mid-pass keeps its stamp.
func (t *QueueReconcileTask) reconcileQueue(ctx context.Context, stampKey string, cutoff int64) (int, error) {
	queueKey := keyspace.QueueForStamp(stampKey)

	var stale, pruned int
	err := t.store.Optimistic(ctx, "reconcile queue", func(tx *redis.Tx) error {
		stale, pruned = 0, 0

		stamps, err := tx.HGetAll(ctx, stampKey).Result()
		if err != nil {
			return err
		}
		members, err := tx.SMembers(ctx, queueKey).Result()
		if err != nil {
			return err
		}
		queued := make(map[string]bool, len(members))
		for _, m := range members {
			queued[m] = true
		}

		var consumed []string
		for ticket, at := range stamps {
			if !queued[ticket] {
				consumed = append(consumed, ticket)
				continue
			}
			if ts, err := strconv.ParseInt(at, 10, 64); err == nil && ts <= cutoff {
				stale++
			}
		}

		if t.afterRead != nil {
			t.afterRead(stampKey)
		}

		drained := len(consumed) == len(stamps) && len(members) == 0
		if len(consumed) == 0 && !drained {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(consumed) > 0 {
				pipe.HDel(ctx, stampKey, consumed...)
			}
			if drained {
				pipe.SRem(ctx, keyspace.QueueRegistry, stampKey)
			}
			return nil
		})
		pruned = len(consumed)
		return err
	}, queueKey, stampKey)
	if err != nil {
		return 0, err
	}

	if pruned > 0 {
		t.logger.Debug("pruned consumed tickets", zap.String("queue", queueKey), zap.Int("count", pruned))
	}
	if stale > 0 {
		t.logger.Warn("stale tickets in queue", zap.String("queue", queueKey), zap.Int("count", stale), zap.Duration("older_than", t.staleAfter))
	}
	return stale, nil
}
