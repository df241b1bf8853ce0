package service

import (
	"context"
	"errors"
	"time"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/gateway"
	"github.com/Dhoini/parking-payments/internal/kafka/producer"
	"github.com/Dhoini/parking-payments/internal/lock"
	"github.com/Dhoini/parking-payments/internal/metrics"
	"github.com/Dhoini/parking-payments/internal/repository"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/google/uuid"
)

// Gateway методы эквайринга, которые использует сервис
type Gateway interface {
	Init(ctx context.Context, req gateway.InitRequest) (*gateway.Response, error)
	Charge(ctx context.Context, paymentID, rebillID string) (*gateway.Response, error)
	Confirm(ctx context.Context, paymentID string, amount int64) (*gateway.Response, error)
	Cancel(ctx context.Context, paymentID string, amount *int64) (*gateway.Response, error)
}

// SessionQueue очередь фоновой обработки сессий
type SessionQueue interface {
	Enqueue(sessionID int64) bool
}

// Repositories набор хранилищ сервиса
type Repositories struct {
	Sessions repository.SessionRepository
	Orders   repository.OrderRepository
	Payments repository.PaymentRepository
	Parkings repository.ParkingRepository
	Vendors  repository.VendorRepository
	Cards    repository.CardRepository
}

// ReceiptConfig параметры фискального чека
type ReceiptConfig struct {
	Enabled  bool
	Email    string
	Taxation string
	Tax      string
	ItemName string
}

// Config параметры расчетов
type Config struct {
	// MaxCorrectionIterations ограничивает число пересчетов после отмены лишнего заказа
	MaxCorrectionIterations int
	// ConfirmAfter через сколько принудительно подтверждать авторизованные заказы
	ConfirmAfter       time.Duration
	PaymentDescription string
	Receipt            ReceiptConfig
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		MaxCorrectionIterations: 5,
		ConfirmAfter:            72 * time.Hour,
		PaymentDescription:      "Оплата парковки",
		Receipt: ReceiptConfig{
			Taxation: "osn",
			Tax:      "none",
			ItemName: "Парковка",
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxCorrectionIterations <= 0 {
		c.MaxCorrectionIterations = def.MaxCorrectionIterations
	}
	if c.ConfirmAfter <= 0 {
		c.ConfirmAfter = def.ConfirmAfter
	}
	if c.PaymentDescription == "" {
		c.PaymentDescription = def.PaymentDescription
	}
	if c.Receipt.ItemName == "" {
		c.Receipt.ItemName = def.Receipt.ItemName
	}
	if c.Receipt.Taxation == "" {
		c.Receipt.Taxation = def.Receipt.Taxation
	}
	if c.Receipt.Tax == "" {
		c.Receipt.Tax = def.Receipt.Tax
	}
	return c
}

// Billing ведет долг сессий, заказы, платежи и возвраты
type Billing struct {
	repos   Repositories
	gw      Gateway
	locker  lock.Locker
	events  producer.EventProducer
	metrics metrics.BillingMetrics
	queue   SessionQueue
	cfg     Config
	log     *logger.Logger
	now     func() time.Time
}

// NewBilling создает сервис расчетов
func NewBilling(
	repos Repositories,
	gw Gateway,
	locker lock.Locker,
	events producer.EventProducer,
	m metrics.BillingMetrics,
	cfg Config,
	log *logger.Logger,
) *Billing {
	if events == nil {
		events = producer.NopProducer{}
	}
	return &Billing{
		repos:   repos,
		gw:      gw,
		locker:  locker,
		events:  events,
		metrics: m,
		cfg:     cfg.withDefaults(),
		log:     log.Named("billing"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetQueue подключает фоновую очередь обработки сессий
func (b *Billing) SetQueue(q SessionQueue) {
	b.queue = q
}

// ProcessSession выполняет возврат, если он ожидается, и пересчет долга сессии
func (b *Billing) ProcessSession(ctx context.Context, sessionID int64) error {
	return b.withSessionLock(ctx, sessionID, func() error {
		refundErr := b.processRefundLocked(ctx, sessionID)
		if refundErr != nil {
			b.log.Warn("Refund for session %d failed: %v", sessionID, refundErr)
		}
		return errors.Join(refundErr, b.generateLocked(ctx, sessionID))
	})
}

// enqueue ставит сессию в очередь или обрабатывает ее сразу, если очереди нет
func (b *Billing) enqueue(ctx context.Context, sessionID int64) {
	if b.queue != nil && b.queue.Enqueue(sessionID) {
		return
	}
	if err := b.ProcessSession(ctx, sessionID); err != nil {
		b.log.Warn("Processing session %d failed: %v", sessionID, err)
	}
}

// withSessionLock выполняет fn под блокировкой сессии
func (b *Billing) withSessionLock(ctx context.Context, sessionID int64, fn func() error) error {
	unlock, err := b.locker.Lock(ctx, lock.SessionKey(sessionID))
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// callGateway снимает метрики вызова эквайринга
func (b *Billing) callGateway(method string, call func() (*gateway.Response, error)) (*gateway.Response, error) {
	started := time.Now()
	resp, err := call()
	b.metrics.ObserveGatewayCall(method, time.Since(started))

	switch {
	case err != nil:
		b.metrics.IncGatewayError(method, "no_result")
	case resp.Failed():
		b.metrics.IncGatewayError(method, string(resp.Category()))
	}
	return resp, err
}

func (b *Billing) publishSession(ctx context.Context, eventType string, s *domain.ParkingSession) {
	if err := b.events.PublishSessionEvent(ctx, eventType, s); err != nil {
		b.log.Warnw("Failed to publish session event", "type", eventType, "sessionID", s.ID, "error", err)
	}
}

func (b *Billing) publishPayment(ctx context.Context, eventType string, o *domain.Order, p *domain.Payment) {
	if err := b.events.PublishPaymentEvent(ctx, eventType, o, p); err != nil {
		b.log.Warnw("Failed to publish payment event", "type", eventType, "orderID", o.ID, "error", err)
	}
}

// latestPayment возвращает самый свежий платеж заказа в одном из статусов
func (b *Billing) latestPayment(ctx context.Context, orderID uuid.UUID, statuses ...domain.PaymentStatus) (*domain.Payment, error) {
	payments, err := b.repos.Payments.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		if len(statuses) == 0 {
			return p, nil
		}
		for _, st := range statuses {
			if p.Status == st {
				return p, nil
			}
		}
	}
	return nil, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
