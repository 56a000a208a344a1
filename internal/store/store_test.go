package store

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/keyspace"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, zap.NewNop(), WithMaxAttempts(64)), mr
}

type sample struct {
	ID      string   `json:"id"`
	Price   *float64 `json:"price,omitempty"`
	Volume  *float64 `json:"volume"`
	Tags    []string `json:"tags"`
	Enabled bool     `json:"enabled"`
}

func TestFieldRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	price := 1.2345
	in := sample{ID: "a", Price: &price, Tags: []string{"1h", "4h"}, Enabled: true}
	fields, err := EncodeFields(in)
	require.NoError(t, err)
	assert.Equal(t, "1.2345", fields["price"])
	assert.Equal(t, "null", fields["volume"])

	require.NoError(t, s.WriteFields(ctx, "k", fields))

	var out sample
	found, err := s.ReadEntity(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestDecodeToleratesRawAndMismatchedFields(t *testing.T) {
	var out sample
	skipped, err := DecodeFields(map[string]string{
		"id":      "plain text id",
		"volume":  "not-a-number",
		"enabled": "true",
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, "plain text id", out.ID)
	assert.True(t, out.Enabled)
	assert.Nil(t, out.Volume)
	assert.Equal(t, []string{"volume"}, skipped)

	generic := DecodeMap(map[string]string{"balance": "1000.5", "currency": "USD"})
	assert.Equal(t, 1000.5, generic["balance"])
	assert.Equal(t, "USD", generic["currency"])
}

func TestReadEntityMissing(t *testing.T) {
	s, _ := newTestStore(t)

	var out sample
	found, err := s.ReadEntity(context.Background(), "nope", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReadIndexedDropsEvictedIDs(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		fields, err := EncodeFields(sample{ID: id})
		require.NoError(t, err)
		require.NoError(t, s.WriteFields(ctx, "item:"+id, fields))
		_, err = mr.SAdd("ids", id)
		require.NoError(t, err)
	}
	mr.Del("item:b")

	var got []string
	err := s.ReadIndexed(ctx, "ids", func(id string) string { return "item:" + id }, func(id string, data map[string]string) error {
		var v sample
		if err := s.Decode(id, data, &v); err != nil {
			return err
		}
		got = append(got, v.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, got)

	members, err := mr.Members("ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, members)
}

func TestMutateFieldSerializesConcurrentWriters(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	mr.HSet("counter", "exists", "1")

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.MutateField(ctx, "counter", "value", func(current string, exists bool) (string, error) {
				v, _ := strconv.Atoi(current)
				return strconv.Itoa(v + 1), nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, strconv.Itoa(n), mr.HGet("counter", "value"))
}

func TestMutateFieldPassesTypedErrors(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.MutateField(context.Background(), "missing", "value", func(current string, exists bool) (string, error) {
		if !exists {
			return "", apperr.NotFound("parent not found")
		}
		return "x", nil
	})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestUnavailableWhenBackendGone(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.Members(context.Background(), "ids")
	assert.True(t, apperr.IsKind(err, apperr.KindUnavailable))
	assert.False(t, s.Ready())

	_, err = s.Members(context.Background(), "ids")
	assert.ErrorIs(t, err, apperr.ErrNotReady)
}

func TestMonitorRestoresReadiness(t *testing.T) {
	s, _ := newTestStore(t)
	s.setReady(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Monitor(ctx, 10*time.Millisecond)

	assert.Eventually(t, s.Ready, time.Second, 5*time.Millisecond)
}

func TestSessionRegistry(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	reg := NewSessionRegistry(s)

	now := time.Now()
	reg.now = func() time.Time { return now }

	ns, err := keyspace.New(1, "5001")
	require.NoError(t, err)

	require.NoError(t, reg.Mark(ctx, ns, "conn-1", time.Minute))
	require.NoError(t, reg.Mark(ctx, ns, "conn-2", time.Minute))

	n, err := reg.Active(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, reg.Clear(ctx, ns, "conn-1"))
	n, err = reg.Active(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	reg.now = func() time.Time { return now.Add(2 * time.Minute) }
	n, err = reg.Active(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSessionRegistrySeparatesUsers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	reg := NewSessionRegistry(s)

	alice, err := keyspace.New(1, "1001")
	require.NoError(t, err)
	bob, err := keyspace.New(2, "1001")
	require.NoError(t, err)

	require.NoError(t, reg.Mark(ctx, alice, "s1", time.Minute))

	n, err := reg.Active(ctx, bob)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = reg.Active(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
