package lock

import (
	"context"
	"sync"
	"time"

	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lock:"

// releaseScript удаляет ключ, только если он все еще принадлежит владельцу
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript продлевает ключ, только если он все еще принадлежит владельцу
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker распределенная блокировка на SET NX PX
type RedisLocker struct {
	client redis.UniversalClient
	opts   Options
	log    *logger.Logger
}

// NewRedisLocker создает блокировку поверх клиента Redis
func NewRedisLocker(client redis.UniversalClient, opts Options, log *logger.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		opts:   opts.withDefaults(),
		log:    log,
	}
}

// Lock захватывает ключ, опрашивая Redis до истечения Wait.
// Пока блокировка удерживается, ее TTL продлевается каждые TTL/3.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.opts.Wait)
	defer cancel()

	ticker := time.NewTicker(l.opts.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, redisKey, token, l.opts.TTL).Result()
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, lockedErr(key)
			}
			l.log.Errorw("Failed to acquire Redis lock", "key", key, "error", err)
			return nil, err
		}
		if ok {
			return l.hold(redisKey, token), nil
		}

		select {
		case <-waitCtx.Done():
			return nil, lockedErr(key)
		case <-ticker.C:
		}
	}
}

// hold запускает продление аренды и возвращает функцию освобождения
func (l *RedisLocker) hold(redisKey, token string) Unlock {
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release(redisKey, token)
		})
	}
}

func (l *RedisLocker) keepAlive(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.opts.TTL / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			extended, err := extendScript.Run(ctx, l.client, []string{redisKey}, token, l.opts.TTL.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.log.Warnw("Failed to extend Redis lock", "key", redisKey, "error", err)
				continue
			}
			if extended == 0 {
				l.log.Errorw("Redis lock lost before release", "key", redisKey)
				return
			}
		}
	}
}

func (l *RedisLocker) release(redisKey, token string) {
	// Освобождаем даже после отмены контекста вызывающего
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
		l.log.Warnw("Failed to release Redis lock", "key", redisKey, "error", err)
	}
}
