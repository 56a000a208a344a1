// Package store wraps the shared Redis backend that the web tier and the
// per-account execution workers exchange commands through.
//
// It provides the primitives the entity stores are built on: one JSON value
// per hash field, index sets, MULTI/EXEC batches, and an optimistic-lock
// read-modify-write for whole-value fields. Every error leaving this package
// is an *apperr.Error.
package store

import (
	"context"
	"io"
	"net"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/metrics"
)

const defaultMaxAttempts = 16

// Store is safe for concurrent use; one instance is shared by every handler
// of the process.
type Store struct {
	rdb         *redis.Client
	logger      *zap.Logger
	ready       atomic.Bool
	maxAttempts int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts bounds the WATCH/EXEC retries of MutateField.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New wraps an already connected client. The store starts out ready; Monitor
// keeps the flag current afterwards.
func New(rdb *redis.Client, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		rdb:         rdb,
		logger:      logger.Named("store"),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setReady(true)
	return s
}

// Client exposes the underlying client for commands not wrapped here.
func (s *Store) Client() *redis.Client { return s.rdb }

// Ready reports whether the backend answered its last health check.
func (s *Store) Ready() bool { return s.ready.Load() }

func (s *Store) setReady(v bool) {
	if s.ready.Swap(v) != v {
		if v {
			s.logger.Info("redis ready")
		} else {
			s.logger.Warn("redis not ready")
		}
	}
	if v {
		metrics.StoreReady.Set(1)
	} else {
		metrics.StoreReady.Set(0)
	}
}

// Check fails fast with StoreUnavailable while the backend is down.
func (s *Store) Check() error {
	if !s.Ready() {
		return apperr.ErrNotReady
	}
	return nil
}

// Monitor pings the backend every interval until ctx is done.
func (s *Store) Monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.ping(ctx, interval)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Store) ping(ctx context.Context, timeout time.Duration) {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.rdb.Ping(pingCtx).Err(); err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("redis ping failed", zap.Error(err))
			s.setReady(false)
		}
		return
	}
	s.setReady(true)
}

func isConnError(err error) bool {
	var netErr net.Error
	switch {
	case errors.Is(err, redis.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return true
	}
	return err.Error() == "redis: connection pool timeout"
}

// classify turns a backend error into the apperr taxonomy. Errors that are
// already typed pass through unchanged.
func (s *Store) classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		metrics.StoreErrors.WithLabelValues(string(apperr.KindUnavailable)).Inc()
		return apperr.Unavailable(errors.Wrap(err, op))
	}
	if isConnError(err) {
		s.setReady(false)
		metrics.StoreErrors.WithLabelValues(string(apperr.KindUnavailable)).Inc()
		return apperr.Unavailable(errors.Wrap(err, op))
	}
	metrics.StoreErrors.WithLabelValues(string(apperr.KindInternal)).Inc()
	s.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return apperr.Internal(errors.Wrap(err, op), op+" failed")
}

// ReadEntity loads the hash at key into out. It reports false when the hash
// does not exist.
func (s *Store) ReadEntity(ctx context.Context, key string, out interface{}) (bool, error) {
	if err := s.Check(); err != nil {
		return false, err
	}
	data, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return false, s.classify(err, "read "+key)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := s.decode(key, data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) decode(key string, data map[string]string, out interface{}) error {
	skipped, err := DecodeFields(data, out)
	if err != nil {
		return apperr.Internal(err, "decode "+key)
	}
	if len(skipped) > 0 {
		s.logger.Warn("skipped unparseable fields", zap.String("key", key), zap.Strings("fields", skipped))
	}
	return nil
}

// ReadHashes fetches several hashes in one round trip. Missing hashes come
// back as empty maps, in the order of keys.
func (s *Store) ReadHashes(ctx context.Context, keys []string) ([]map[string]string, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.StringStringMapCmd, len(keys))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, s.classify(err, "read hashes")
	}
	out := make([]map[string]string, len(keys))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}

// ReadIndexed returns the decoded entities listed in the index set. Ids whose
// hash no longer exists are dropped from the result and removed from the
// index. decodeInto must allocate a fresh value per call.
func (s *Store) ReadIndexed(ctx context.Context, indexKey string, keyFor func(id string) string, decodeInto func(id string, data map[string]string) error) error {
	ids, err := s.Members(ctx, indexKey)
	if err != nil {
		return err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyFor(id)
	}
	hashes, err := s.ReadHashes(ctx, keys)
	if err != nil {
		return err
	}
	var evicted []interface{}
	for i, data := range hashes {
		if len(data) == 0 {
			evicted = append(evicted, ids[i])
			continue
		}
		if err := decodeInto(ids[i], data); err != nil {
			return err
		}
	}
	if len(evicted) > 0 {
		// the index is repaired best effort; the read already succeeded
		if err := s.rdb.SRem(ctx, indexKey, evicted...).Err(); err != nil {
			s.logger.Warn("prune evicted ids failed", zap.String("index", indexKey), zap.Error(err))
		} else {
			s.logger.Info("pruned evicted ids", zap.String("index", indexKey), zap.Int("count", len(evicted)))
		}
	}
	return nil
}

// Decode is the store's tolerant hash decoder, exposed for ReadIndexed users.
func (s *Store) Decode(key string, data map[string]string, out interface{}) error {
	return s.decode(key, data, out)
}

// Members returns a set's members sorted for determinism.
func (s *Store) Members(ctx context.Context, key string) ([]string, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, s.classify(err, "members "+key)
	}
	sort.Strings(members)
	return members, nil
}

// IsMember reports set membership.
func (s *Store) IsMember(ctx context.Context, key, member string) (bool, error) {
	if err := s.Check(); err != nil {
		return false, err
	}
	ok, err := s.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, s.classify(err, "ismember "+key)
	}
	return ok, nil
}

// Batch runs fn inside MULTI/EXEC so that every queued command applies
// together.
func (s *Store) Batch(ctx context.Context, op string, fn func(pipe redis.Pipeliner) error) ([]redis.Cmder, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	cmds, err := s.rdb.TxPipelined(ctx, fn)
	if err != nil {
		return cmds, s.classify(err, op)
	}
	return cmds, nil
}

// WriteFields sets the given JSON-encoded fields on one hash atomically.
func (s *Store) WriteFields(ctx context.Context, key string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	_, err := s.Batch(ctx, "write "+key, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		return nil
	})
	return err
}

// Run executes a single command through the store's error handling.
func (s *Store) Run(ctx context.Context, op string, fn func(rdb *redis.Client) error) error {
	if err := s.Check(); err != nil {
		return err
	}
	if err := fn(s.rdb); err != nil && err != redis.Nil {
		return s.classify(err, op)
	}
	return nil
}

// Notify publishes a change notification on channel. Failures are logged and
// never fail the write that triggered them.
func (s *Store) Notify(ctx context.Context, channel string) {
	if err := s.rdb.Publish(ctx, channel, time.Now().UnixMilli()).Err(); err != nil {
		s.logger.Debug("publish change notification failed", zap.String("channel", channel), zap.Error(err))
	}
}

// Subscribe opens a pub/sub subscription on channel.
func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, channel)
}
