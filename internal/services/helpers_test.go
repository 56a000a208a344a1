package services

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/store"
	"github.com/vikasavnish/botbridge/internal/validation"
)

// fakeDirectory maps user ids to the accounts they own.
type fakeDirectory map[uint][]string

func (d fakeDirectory) Owns(_ context.Context, userID uint, account string) (bool, error) {
	for _, a := range d[userID] {
		if a == account {
			return true, nil
		}
	}
	return false, nil
}

type testEnv struct {
	mr    *miniredis.Miniredis
	store *store.Store
	v     *validation.Validator
	ns    keyspace.Namespace
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ns, err := keyspace.New(7, "5001")
	require.NoError(t, err)
	return &testEnv{
		mr:    mr,
		store: store.New(rdb, zap.NewNop(), store.WithMaxAttempts(64)),
		v:     validation.New(),
		ns:    ns,
	}
}

func fp(v float64) *float64 { return &v }
