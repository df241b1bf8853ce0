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

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/pkg/logger"
)

var fastOpts = Options{TTL: time.Second, Wait: 100 * time.Millisecond, RetryInterval: 5 * time.Millisecond}

func lockers(t *testing.T) map[string]Locker {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Locker{
		"redis": NewRedisLocker(client, fastOpts, logger.NewNop()),
		"local": NewLocalLocker(fastOpts),
	}
}

func TestLocker_ExclusiveByKey(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			unlock, err := l.Lock(ctx, SessionKey(1))
			require.NoError(t, err)

			_, err = l.Lock(ctx, SessionKey(1))
			require.ErrorIs(t, err, domain.ErrSessionLocked)

			other, err := l.Lock(ctx, SessionKey(2))
			require.NoError(t, err, "different keys do not contend")
			other()

			unlock()
			again, err := l.Lock(ctx, SessionKey(1))
			require.NoError(t, err)
			again()
		})
	}
}

func TestLocker_WaitsForRelease(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			unlock, err := l.Lock(ctx, "k")
			require.NoError(t, err)

			go func() {
				time.Sleep(20 * time.Millisecond)
				unlock()
			}()

			next, err := l.Lock(ctx, "k")
			require.NoError(t, err)
			next()
		})
	}
}

func TestLocker_SerializesCriticalSection(t *testing.T) {
	opts := Options{Wait: 5 * time.Second, RetryInterval: time.Millisecond}
	l := NewLocalLocker(opts)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "s")
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
	assert.Empty(t, l.keys, "entries are dropped once unused")
}

func TestRedisLocker_ForeignTokenIsKept(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLocker(client, fastOpts, logger.NewNop())
	unlock, err := l.Lock(context.Background(), "x")
	require.NoError(t, err)

	// Блокировка истекла и перехвачена другим процессом
	require.NoError(t, mr.Set("lock:x", "someone-else"))
	unlock()

	v, err := mr.Get("lock:x")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestRedisLocker_ExtendsLeaseWhileHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ttl := 300 * time.Millisecond
	l := NewRedisLocker(client, Options{TTL: ttl, Wait: 50 * time.Millisecond, RetryInterval: 5 * time.Millisecond}, logger.NewNop())
	key := "lock:" + SessionKey(7)

	unlock, err := l.Lock(context.Background(), SessionKey(7))
	require.NoError(t, err)

	// Работа под блокировкой длится дольше TTL
	for i := 0; i < 3; i++ {
		mr.FastForward(2 * ttl / 3)
		require.True(t, mr.Exists(key))
		require.Eventually(t, func() bool { return mr.TTL(key) > ttl/2 }, time.Second, 5*time.Millisecond)
	}

	_, err = l.Lock(context.Background(), SessionKey(7))
	require.ErrorIs(t, err, domain.ErrSessionLocked, "lease outlives the original TTL")

	unlock()
	assert.False(t, mr.Exists(key))

	// После освобождения продление прекращается
	again, err := l.Lock(context.Background(), SessionKey(7))
	require.NoError(t, err)
	again()
}
