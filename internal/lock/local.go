package lock

import (
	"context"
	"sync"
)

// LocalLocker блокировка по ключу в пределах процесса. Используется, когда Redis недоступен.
type LocalLocker struct {
	mu   sync.Mutex
	keys map[string]*localEntry
	opts Options
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker создает блокировку в памяти
func NewLocalLocker(opts Options) *LocalLocker {
	return &LocalLocker{
		keys: make(map[string]*localEntry),
		opts: opts.withDefaults(),
	}
}

// Lock захватывает ключ или ждет его освобождения не дольше Wait
func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, l.opts.Wait)
	defer cancel()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.unref(key, e)
			})
		}, nil
	case <-waitCtx.Done():
		l.unref(key, e)
		return nil, lockedErr(key)
	}
}

func (l *LocalLocker) unref(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}
