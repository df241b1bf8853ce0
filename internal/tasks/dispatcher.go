package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dhoini/parking-payments/internal/metrics"
	"github.com/Dhoini/parking-payments/pkg/logger"
)

// ProcessFunc обрабатывает одну сессию
type ProcessFunc func(ctx context.Context, sessionID int64) error

// DispatcherConfig параметры очереди
type DispatcherConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = time.Minute
	}
	return c
}

// Dispatcher последовательная очередь по сессиям: одна и та же сессия
// всегда попадает к одному и тому же воркеру
type Dispatcher struct {
	cfg     DispatcherConfig
	queues  []chan int64
	process ProcessFunc
	metrics metrics.BillingMetrics
	log     *logger.Logger

	mu      sync.Mutex
	pending map[int64]struct{}

	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher создает очередь; воркеры запускаются в Start
func NewDispatcher(cfg DispatcherConfig, process ProcessFunc, m metrics.BillingMetrics, log *logger.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	queues := make([]chan int64, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan int64, cfg.QueueSize)
	}
	return &Dispatcher{
		cfg:     cfg,
		queues:  queues,
		process: process,
		metrics: m,
		log:     log.Named("dispatcher"),
		pending: make(map[int64]struct{}),
	}
}

// Start запускает воркеры
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for _, q := range d.queues {
		d.wg.Add(1)
		go d.worker(ctx, q)
	}
	d.log.Info("Dispatcher started with %d workers", len(d.queues))
}

// Enqueue ставит сессию в очередь. Сессия, уже ожидающая обработки, не дублируется.
// false означает, что очередь остановлена или переполнена.
func (d *Dispatcher) Enqueue(sessionID int64) bool {
	if d.stopped.Load() {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[sessionID]; ok {
		return true
	}

	select {
	case d.queues[d.shard(sessionID)] <- sessionID:
		d.pending[sessionID] = struct{}{}
		return true
	default:
		d.log.Warn("Queue for session %d is full", sessionID)
		return false
	}
}

// Stop останавливает воркеры и ждет завершения текущих задач
func (d *Dispatcher) Stop() {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.log.Info("Dispatcher stopped")
}

// Pending число сессий, ожидающих обработки
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) shard(sessionID int64) int {
	return int(uint64(sessionID) % uint64(len(d.queues)))
}

func (d *Dispatcher) worker(ctx context.Context, q <-chan int64) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q:
			// Снимаем отметку до обработки, чтобы новые события по сессии не терялись
			d.mu.Lock()
			delete(d.pending, id)
			d.mu.Unlock()

			runSession(ctx, d.cfg.JobTimeout, "dispatch", id, func(ctx context.Context) error {
				return d.process(ctx, id)
			}, d.metrics, d.log)
		}
	}
}

// runSession обрабатывает одну сессию, изолируя ошибки и паники
func runSession(ctx context.Context, timeout time.Duration, task string, id int64, fn func(context.Context) error, m metrics.BillingMetrics, log *logger.Logger) (ok bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Panic while processing session", "task", task, "sessionID", id, "panic", r)
			m.IncSweepSession(task, "panic")
			ok = false
		}
	}()

	if err := fn(ctx); err != nil {
		log.Warnw("Session processing failed", "task", task, "sessionID", id, "error", err)
		m.IncSweepSession(task, resultLabel(err))
		return false
	}
	m.IncSweepSession(task, "ok")
	return true
}
