package lock

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
)

func TestInMemorySerializesSameKey(t *testing.T) {
	l := NewInMemory()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "a@x.edu")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	l.mu.Lock()
	assert.Empty(t, l.locks)
	l.mu.Unlock()
}

func TestInMemoryDistinctKeysDoNotBlock(t *testing.T) {
	l := NewInMemory()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestInMemoryHonoursContext(t *testing.T) {
	l := NewInMemory()
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op

	again, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	again()
}

func TestRedisLockSurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	l := NewRedis(client, "", time.Second)
	_, err := l.Lock(context.Background(), "a@x.edu")
	assert.Error(t, err)
}

func newMiniRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "", ttl), mr
}

func TestRedisLockBlocksUntilUnlock(t *testing.T) {
	l, mr := newMiniRedis(t, 5*time.Second)

	unlock, err := l.Lock(context.Background(), "a@x.edu")
	require.NoError(t, err)
	assert.True(t, mr.Exists("smartscan:lock:a@x.edu"))

	acquired := make(chan Unlock, 1)
	go func() {
		second, err := l.Lock(context.Background(), "a@x.edu")
		if assert.NoError(t, err) {
			acquired <- second
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(100 * time.Millisecond):
	}

	unlock()
	select {
	case second := <-acquired:
		second()
	case <-time.After(2 * time.Second):
		t.Fatal("second holder never acquired the released lock")
	}
	assert.False(t, mr.Exists("smartscan:lock:a@x.edu"))
}

func TestRedisLockTimesOut(t *testing.T) {
	l, _ := newMiniRedis(t, time.Minute)
	l.wait = 100 * time.Millisecond

	unlock, err := l.Lock(context.Background(), "a@x.edu")
	require.NoError(t, err)
	defer unlock()

	start := time.Now()
	_, err = l.Lock(context.Background(), "a@x.edu")
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), l.wait)

	_, err = l.Lock(context.Background(), "b@x.edu")
	assert.NoError(t, err, "other keys are unaffected")
}

func TestRedisStaleUnlockKeepsNewHolder(t *testing.T) {
	l, mr := newMiniRedis(t, 5*time.Second)
	const key = "smartscan:lock:a@x.edu"

	first, err := l.Lock(context.Background(), "a@x.edu")
	require.NoError(t, err)
	firstToken, err := mr.Get(key)
	require.NoError(t, err)

	// the first holder stalls past the ttl and the key expires
	mr.FastForward(6 * time.Second)
	require.False(t, mr.Exists(key))

	second, err := l.Lock(context.Background(), "a@x.edu")
	require.NoError(t, err)
	secondToken, err := mr.Get(key)
	require.NoError(t, err)
	require.NotEqual(t, firstToken, secondToken)

	first()
	got, err := mr.Get(key)
	require.NoError(t, err, "stale unlock removed the new holder's key")
	assert.Equal(t, secondToken, got)

	second()
	assert.False(t, mr.Exists(key))
}
