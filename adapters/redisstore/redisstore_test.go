package redisstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	auth "github.com/goliatone/go-growth-auth"
	"github.com/goliatone/go-growth-auth/adapters/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := redisstore.New(context.Background(), mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	addr := mr.Addr()
	mr.Close()
	_, err = redisstore.New(context.Background(), addr)
	assert.Error(t, err)
}

func TestLocker_LockUnlock(t *testing.T) {
	mr, client := setupRedis(t)
	locker := redisstore.NewLocker(client, redisstore.WithLockRetry(time.Millisecond))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "subject-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("growth:lock:subject-1"))

	unlock()
	assert.False(t, mr.Exists("growth:lock:subject-1"))
}

func TestLocker_WaitsForHolder(t *testing.T) {
	_, client := setupRedis(t)
	locker := redisstore.NewLocker(client, redisstore.WithLockRetry(time.Millisecond))
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "subject-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
}

func TestLocker_ContextCancelled(t *testing.T) {
	_, client := setupRedis(t)
	locker := redisstore.NewLocker(client, redisstore.WithLockRetry(time.Millisecond))

	unlock, err := locker.Lock(context.Background(), "subject-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "subject-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocker_StaleUnlockKeepsNewHolder(t *testing.T) {
	mr, client := setupRedis(t)
	locker := redisstore.NewLocker(client,
		redisstore.WithLockTTL(time.Second),
		redisstore.WithLockRetry(time.Millisecond),
	)
	ctx := context.Background()

	first, err := locker.Lock(ctx, "subject-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	second, err := locker.Lock(ctx, "subject-1")
	require.NoError(t, err)

	first()
	assert.True(t, mr.Exists("growth:lock:subject-1"), "expired holder must not release the new lease")

	second()
	assert.False(t, mr.Exists("growth:lock:subject-1"))
}

func TestRevocations(t *testing.T) {
	mr, client := setupRedis(t)
	store := redisstore.NewRevocations(client, time.Hour)
	ctx := context.Background()

	_, ok, err := store.RevokedBefore(ctx, "subject-1")
	require.NoError(t, err)
	assert.False(t, ok)

	mark := time.Date(2026, 3, 1, 12, 0, 30, 500, time.UTC)
	require.NoError(t, store.RevokeAll(ctx, "subject-1", mark))
	require.NoError(t, store.RevokeAll(ctx, "subject-1", mark.Add(-time.Minute)))

	at, ok, err := store.RevokedBefore(ctx, "subject-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(mark.Truncate(time.Second)), "earlier marks never move the cutoff back")

	assert.Greater(t, mr.TTL("growth:revoked:subject-1"), time.Duration(0))

	revoked, err := auth.IsRevoked(ctx, store, "subject-1", mark.Add(-time.Second))
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = auth.IsRevoked(ctx, store, "subject-1", mark)
	require.NoError(t, err)
	assert.True(t, revoked, "the revocation second itself is revoked")

	revoked, err = auth.IsRevoked(ctx, store, "subject-1", mark.Truncate(time.Second).Add(time.Second))
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevocations_NoRetention(t *testing.T) {
	mr, client := setupRedis(t)
	store := redisstore.NewRevocations(client, 0)

	require.NoError(t, store.RevokeAll(context.Background(), "subject-1", time.Now()))
	assert.Equal(t, time.Duration(0), mr.TTL("growth:revoked:subject-1"))
}

func TestRevocations_Unreachable(t *testing.T) {
	mr, client := setupRedis(t)
	store := redisstore.NewRevocations(client, time.Hour)
	mr.Close()

	_, _, err := store.RevokedBefore(context.Background(), "subject-1")
	assert.Error(t, err)
}
