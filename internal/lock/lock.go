package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/parking-payments/internal/domain"
)

// Unlock освобождает захваченную блокировку
type Unlock func()

// Locker взаимное исключение по ключу (обычно id сессии)
type Locker interface {
	// Lock ждет блокировку не дольше wait. Если ключ занят, возвращает domain.ErrSessionLocked.
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Options параметры блокировок
type Options struct {
	// TTL срок жизни блокировки в Redis на случай падения процесса
	TTL time.Duration
	// Wait сколько ждать освобождения занятого ключа
	Wait time.Duration
	// RetryInterval период опроса занятого ключа
	RetryInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.Wait <= 0 {
		o.Wait = 5 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 50 * time.Millisecond
	}
	return o
}

// SessionKey ключ блокировки парковочной сессии
func SessionKey(sessionID int64) string {
	return fmt.Sprintf("session:%d", sessionID)
}

func lockedErr(key string) error {
	return fmt.Errorf("%s: %w", key, domain.ErrSessionLocked)
}
