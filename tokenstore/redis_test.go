package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStoreTest(t *testing.T, refreshTTL time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "miniredis start")
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "wet", refreshTTL), mr
}

func TestRedisStoreContract(t *testing.T) {
	store, _ := newRedisStoreTest(t, 0)
	runStoreContract(t, store)
}

func TestRedisStoreKeyLayout(t *testing.T) {
	store, mr := newRedisStoreTest(t, time.Hour)
	require.NoError(t, store.SetPair(context.Background(), "A1", "R1"))

	got, err := mr.Get("wet:tok:refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "R1", got)
	assert.Equal(t, time.Hour, mr.TTL("wet:tok:refresh_token"))
	assert.Zero(t, mr.TTL("wet:tok:access_token"))
}

func TestRedisStoreUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer rdb.Close()
	store := NewRedisStore(rdb, "", 0)

	_, _, err := store.Get(context.Background(), KeyAccess)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRedisStoreLockExcludesSecondHolder(t *testing.T) {
	first, mr := newRedisStoreTest(t, 0)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	second := NewRedisStore(rdb, "wet", 0)

	unlock, err := first.Lock(context.Background())
	require.NoError(t, err)
	assert.True(t, mr.Exists("wet:lock"))

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_, err = second.Lock(ctx)
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock()
	assert.False(t, mr.Exists("wet:lock"))

	unlockSecond, err := second.Lock(context.Background())
	require.NoError(t, err)
	unlockSecond()
}

func TestRedisStoreUnlockLeavesForeignLock(t *testing.T) {
	store, mr := newRedisStoreTest(t, 0)
	store.WithLockTTL(time.Second)

	unlock, err := store.Lock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Second, mr.TTL("wet:lock"))

	// The lock expired and another process took it over.
	require.NoError(t, mr.Set("wet:lock", "someone-else"))
	unlock()

	got, err := mr.Get("wet:lock")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
