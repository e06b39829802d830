package persistence

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tlahtinen/governor/pkg/api"
)

// newTestRedisStore connects to the Redis named by GOVERNOR_REDIS_ADDR, or
// skips the test. Example: GOVERNOR_REDIS_ADDR=localhost:6379 go test ./...
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	addr := os.Getenv("GOVERNOR_REDIS_ADDR")
	if addr == "" {
		t.Skip("GOVERNOR_REDIS_ADDR not set; skipping Redis store test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() {
		_ = client.Close()
	})

	require.NoError(t, client.Ping(context.Background()).Err())

	// Distinct prefix per test so runs don't interfere.
	return NewRedisStore(client, "governor-test:"+t.Name()+":")
}

func TestRedisStoreSaveGetUpdate(t *testing.T) {
	store := newTestRedisStore(t)

	rec := &Record{
		ID:       "proc-1",
		Kind:     "SWITCH_THROTTLE",
		Status:   api.StatusPending,
		Snapshot: []byte("snap"),
	}
	require.NoError(t, store.Save(rec))
	t.Cleanup(func() { _ = store.Delete("proc-1") })

	got, err := store.Get("proc-1")
	require.NoError(t, err)
	require.Equal(t, rec.Kind, got.Kind)
	require.Equal(t, rec.Snapshot, got.Snapshot)

	rec.Status = api.StatusWaiting
	require.NoError(t, store.Update(rec))

	got, err = store.Get("proc-1")
	require.NoError(t, err)
	require.Equal(t, api.StatusWaiting, got.Status)
}

func TestRedisStoreMissing(t *testing.T) {
	store := newTestRedisStore(t)

	_, err := store.Get("nope")
	require.True(t, errors.Is(err, ErrRecordNotFound))

	err = store.Update(&Record{ID: "nope", Kind: "K", Status: api.StatusPending})
	require.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestRedisStoreListByStatus(t *testing.T) {
	store := newTestRedisStore(t)

	recs := []*Record{
		{ID: "a", Kind: "SWITCH_THROTTLE", Status: api.StatusPending},
		{ID: "b", Kind: "SWITCH_THROTTLE", Status: api.StatusWaiting},
	}
	for _, rec := range recs {
		require.NoError(t, store.Save(rec))
	}
	t.Cleanup(func() {
		for _, rec := range recs {
			_ = store.Delete(rec.ID)
		}
	})

	waiting, err := store.List(Filter{Status: api.StatusWaiting})
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	require.Equal(t, "b", waiting[0].ID)
}
