package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/tartampluch/smart-village/internal/store"
)

func TestRedisLocker(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb, err := store.NewRedisClient(context.Background(), srv.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	locker := store.NewRedisLocker(rdb)
	key := records.Key{Mandal: "M", Village: "V", Name: "Ravi", Phone: "1"}.String()

	unlock, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, srv.Exists(config.LockKeyPrefix+key))
	assert.Equal(t, config.LockTTL, srv.TTL(config.LockKeyPrefix+key))

	// A second holder waits and gives up with its context.
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.False(t, srv.Exists(config.LockKeyPrefix+key))

	unlock2, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_DoesNotReleaseForeignLock(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	locker := store.NewRedisLocker(rdb)
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	// The lock expired and another process took it.
	require.NoError(t, srv.Set(config.LockKeyPrefix+"k", "someone-else"))
	unlock()

	got, err := srv.Get(config.LockKeyPrefix + "k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := store.NewRedisClient(ctx, addr, "")
	assert.Error(t, err)
}

func TestLocalLocker(t *testing.T) {
	locker := store.NewLocalLocker()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "same-key")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())

	// Different keys do not block each other.
	u1, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	u2, err := locker.Lock(context.Background(), "b")
	require.NoError(t, err)
	u1()
	u2()
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	locker := store.NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock2()
}
