package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/metrics"
	"github.com/Dhoini/parking-payments/pkg/logger"
)

const (
	TaskGenerateOrders = "generate_orders_and_pay"
	TaskConfirmOrders  = "confirm_once_per_3_day"
)

// Reconciler операции расчетов, которые выполняет планировщик
type Reconciler interface {
	RefundPendingSessions(ctx context.Context) ([]int64, error)
	BillableSessions(ctx context.Context) ([]int64, error)
	ProcessRefund(ctx context.Context, sessionID int64) error
	GenerateCurrentDebtOrder(ctx context.Context, sessionID int64) error
	StaleOrders(ctx context.Context) ([]*domain.Order, error)
	ConfirmStaleOrder(ctx context.Context, order *domain.Order) error
}

// SchedulerConfig расписание и параллелизм обходов
type SchedulerConfig struct {
	GenerateSpec string
	ConfirmSpec  string
	Concurrency  int
	JobTimeout   time.Duration
	SweepTimeout time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.GenerateSpec == "" {
		c.GenerateSpec = "@every 30s"
	}
	if c.ConfirmSpec == "" {
		c.ConfirmSpec = "@every 1h"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = time.Minute
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = 10 * time.Minute
	}
	return c
}

// SweepResult итог одного обхода
type SweepResult struct {
	Processed int
	Failed    int
}

// Scheduler периодические задачи сверки
type Scheduler struct {
	cron    *cron.Cron
	r       Reconciler
	cfg     SchedulerConfig
	metrics metrics.BillingMetrics
	log     *logger.Logger
	running atomic.Bool
}

// NewScheduler регистрирует задачи в cron с поддержкой секунд
func NewScheduler(r Reconciler, cfg SchedulerConfig, m metrics.BillingMetrics, log *logger.Logger) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	log = log.Named("scheduler")
	cl := cronLogger{log: log}

	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		r:       r,
		cfg:     cfg,
		metrics: m,
		log:     log,
	}

	if _, err := s.cron.AddFunc(cfg.GenerateSpec, s.job(TaskGenerateOrders, s.GenerateOrdersAndPay)); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", TaskGenerateOrders, err)
	}
	if _, err := s.cron.AddFunc(cfg.ConfirmSpec, s.job(TaskConfirmOrders, s.ConfirmOncePer3Day)); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", TaskConfirmOrders, err)
	}
	return s, nil
}

// Start запускает планировщик
func (s *Scheduler) Start() {
	s.cron.Start()
	s.running.Store(true)
	s.log.Info("Scheduler started: %s every %q, %s every %q",
		TaskGenerateOrders, s.cfg.GenerateSpec, TaskConfirmOrders, s.cfg.ConfirmSpec)
}

// Stop останавливает планировщик и ждет выполняющиеся задачи
func (s *Scheduler) Stop(ctx context.Context) {
	s.running.Store(false)
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("Scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("Scheduler stop timed out, jobs are still running")
	}
}

// Running сообщает, работает ли планировщик
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) job(task string, run func(context.Context) (SweepResult, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepTimeout)
		defer cancel()

		started := time.Now()
		res, err := run(ctx)
		s.metrics.ObserveSweepDuration(task, time.Since(started))
		if err != nil {
			s.log.Errorw("Sweep failed", "task", task, "error", err)
			return
		}
		s.log.Infow("Sweep finished", "task", task, "processed", res.Processed, "failed", res.Failed,
			"duration", time.Since(started))
	}
}

// GenerateOrdersAndPay обрабатывает ожидающие возвраты, затем пересчитывает долг
// всех сессий, по которым еще идет расчет
func (s *Scheduler) GenerateOrdersAndPay(ctx context.Context) (SweepResult, error) {
	refunds, err := s.r.RefundPendingSessions(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list refund sessions: %w", err)
	}
	res := s.forEach(ctx, "refund", refunds, s.r.ProcessRefund)

	billable, err := s.r.BillableSessions(ctx)
	if err != nil {
		return res, fmt.Errorf("list billable sessions: %w", err)
	}
	gen := s.forEach(ctx, "generate", billable, s.r.GenerateCurrentDebtOrder)

	res.Processed += gen.Processed
	res.Failed += gen.Failed
	return res, nil
}

// ConfirmOncePer3Day принудительно подтверждает давно авторизованные заказы
func (s *Scheduler) ConfirmOncePer3Day(ctx context.Context) (SweepResult, error) {
	orders, err := s.r.StaleOrders(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list stale orders: %w", err)
	}

	return sweep(ctx, s, "confirm", orders,
		func(o *domain.Order) int64 {
			if o.SessionID != nil {
				return *o.SessionID
			}
			return 0
		},
		s.r.ConfirmStaleOrder,
	), nil
}

func (s *Scheduler) forEach(ctx context.Context, task string, ids []int64, fn func(context.Context, int64) error) SweepResult {
	return sweep(ctx, s, task, ids, func(id int64) int64 { return id }, fn)
}

// sweep обрабатывает элементы параллельно с ограничением; сбой одного не прерывает остальные
func sweep[T any](ctx context.Context, s *Scheduler, task string, items []T, sessionOf func(T) int64, fn func(context.Context, T) error) SweepResult {
	var processed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		item := item
		g.Go(func() error {
			ok := runSession(ctx, s.cfg.JobTimeout, task, sessionOf(item), func(ctx context.Context) error {
				return fn(ctx, item)
			}, s.metrics, s.log)
			if ok {
				processed.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return SweepResult{Processed: int(processed.Load()), Failed: int(failed.Load())}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionLocked):
		return "locked"
	case errors.Is(err, domain.ErrExternalServiceUnavailable):
		return "gateway_unavailable"
	case errors.Is(err, domain.ErrPaymentFailed):
		return "rejected"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	}
	return "error"
}

// cronLogger передает журнал cron в логгер сервиса
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
