package tasks

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/config"
	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/store"
)

func newReconciler(t *testing.T) (*QueueReconcileTask, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.New(rdb, zap.NewNop())
	task := NewQueueReconcileTask(st, config.QueueConfig{StaleAfter: time.Hour, ReconcileInterval: time.Hour}, zap.NewNop())
	return task, mr
}

func stamp(mr *miniredis.Miniredis, stampKey, ticket, at string) {
	mr.HSet(stampKey, ticket, at)
	mr.SAdd(keyspace.QueueRegistry, stampKey)
}

func TestReconcileCountsStaleAndPrunesConsumed(t *testing.T) {
	task, mr := newReconciler(t)
	now := time.Unix(1_700_000_000, 0)
	task.now = func() time.Time { return now }

	a, err := keyspace.New(1, "5001")
	require.NoError(t, err)
	b, err := keyspace.New(2, "7001")
	require.NoError(t, err)

	old := strconv.FormatInt(now.Add(-2*time.Hour).Unix(), 10)
	fresh := strconv.FormatInt(now.Add(-time.Minute).Unix(), 10)

	mr.SAdd(a.OrdersToDelete(), "111", "222")
	stamp(mr, a.OrdersToDeleteAt(), "111", old)
	stamp(mr, a.OrdersToDeleteAt(), "222", fresh)
	stamp(mr, a.OrdersToDeleteAt(), "333", old) // consumed by the worker

	mr.SAdd(b.SpotsToDelete(), "order-1:0")
	stamp(mr, b.SpotsToDeleteAt(), "order-1:0", old)

	stale, err := task.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stale)

	assert.Empty(t, mr.HGet(a.OrdersToDeleteAt(), "333"))
	assert.Equal(t, old, mr.HGet(a.OrdersToDeleteAt(), "111"))
	assert.Equal(t, fresh, mr.HGet(a.OrdersToDeleteAt(), "222"))
}

func TestReconcileForgetsDrainedQueues(t *testing.T) {
	task, mr := newReconciler(t)
	ns, err := keyspace.New(1, "5001")
	require.NoError(t, err)

	stamp(mr, ns.OrdersToDeleteAt(), "111", "1")

	stale, err := task.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stale)
	assert.False(t, mr.Exists(ns.OrdersToDeleteAt()))
	assert.False(t, mr.Exists(keyspace.QueueRegistry))
}

func TestReconcileLeavesEntityHashesAlone(t *testing.T) {
	task, mr := newReconciler(t)
	ns, err := keyspace.New(7, "5001")
	require.NoError(t, err)

	// Entity ids may equal a stamp suffix; such hashes are never queue stamps.
	for _, key := range []string{ns.Order("orders_to_delete_at"), ns.RunningTrade("spots_to_delete_at")} {
		mr.HSet(key, "symbol", `"EURUSD"`)
		mr.HSet(key, "volume", "0.1")
		mr.SAdd(keyspace.QueueRegistry, key)
	}
	mr.SAdd(ns.OrderIDs(), "orders_to_delete_at")

	stale, err := task.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stale)

	assert.Equal(t, `"EURUSD"`, mr.HGet(ns.Order("orders_to_delete_at"), "symbol"))
	assert.Equal(t, "0.1", mr.HGet(ns.RunningTrade("spots_to_delete_at"), "volume"))
	ok, err := mr.SIsMember(ns.OrderIDs(), "orders_to_delete_at")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReconcileKeepsStampOfRequeuedTicket(t *testing.T) {
	task, mr := newReconciler(t)
	now := time.Unix(1_700_000_000, 0)
	task.now = func() time.Time { return now }

	ns, err := keyspace.New(1, "5001")
	require.NoError(t, err)
	old := strconv.FormatInt(now.Add(-2*time.Hour).Unix(), 10)
	stamp(mr, ns.OrdersToDeleteAt(), "111", old) // consumed before the pass

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = other.Close() })

	requeued := false
	task.afterRead = func(string) {
		if requeued {
			return
		}
		requeued = true
		ctx := context.Background()
		require.NoError(t, other.SAdd(ctx, ns.OrdersToDelete(), "111").Err())
		require.NoError(t, other.HSetNX(ctx, ns.OrdersToDeleteAt(), "111", now.Unix()).Err())
	}

	stale, err := task.Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, requeued)
	assert.Equal(t, 1, stale)
	assert.Equal(t, old, mr.HGet(ns.OrdersToDeleteAt(), "111"))
}

func TestReconcileEmptyKeyspace(t *testing.T) {
	task, _ := newReconciler(t)

	stale, err := task.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stale)
}

func TestTickerStartStop(t *testing.T) {
	runs := make(chan struct{}, 8)
	tk := &ticker{name: "test", interval: 10 * time.Millisecond, logger: zap.NewNop(), fn: func(context.Context) {
		select {
		case runs <- struct{}{}:
		default:
		}
	}}

	tk.Start()
	tk.Start()
	for i := 0; i < 2; i++ {
		select {
		case <-runs:
		case <-time.After(time.Second):
			t.Fatal("task did not run")
		}
	}
	tk.Stop()
	tk.Stop()
}
