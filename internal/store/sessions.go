package store

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vikasavnish/botbridge/internal/keyspace"
)

// SessionRegistry records which namespaces currently have a live session.
// Each session is a member of a per-namespace sorted set scored by its
// expiry, so the registry survives restarts and is shared by every process.
type SessionRegistry struct {
	store *Store
	now   func() time.Time
}

func NewSessionRegistry(s *Store) *SessionRegistry {
	return &SessionRegistry{store: s, now: time.Now}
}

// Mark registers or refreshes session on ns for ttl.
func (r *SessionRegistry) Mark(ctx context.Context, ns keyspace.Namespace, session string, ttl time.Duration) error {
	key := ns.Sessions()
	now := r.now()
	expiry := now.Add(ttl).UnixMilli()
	_, err := r.store.Batch(ctx, "mark session", func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UnixMilli(), 10))
		pipe.ZAdd(ctx, key, &redis.Z{Score: float64(expiry), Member: session})
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	return err
}

// Clear removes one session.
func (r *SessionRegistry) Clear(ctx context.Context, ns keyspace.Namespace, session string) error {
	return r.store.Run(ctx, "clear session", func(rdb *redis.Client) error {
		return rdb.ZRem(ctx, ns.Sessions(), session).Err()
	})
}

// Active reports how many unexpired sessions ns has.
func (r *SessionRegistry) Active(ctx context.Context, ns keyspace.Namespace) (int64, error) {
	var n int64
	err := r.store.Run(ctx, "count sessions", func(rdb *redis.Client) error {
		var err error
		n, err = rdb.ZCount(ctx, ns.Sessions(), strconv.FormatInt(r.now().UnixMilli(), 10), "+inf").Result()
		return err
	})
	return n, err
}
