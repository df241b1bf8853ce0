package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/google/uuid"
)

// PaymentRepository интерфейс для работы с платежами
type PaymentRepository interface {
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error)
	// ListByOrder возвращает платежи заказа, самый свежий первым
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error)
	Create(ctx context.Context, payment *domain.Payment) error
	Update(ctx context.Context, payment *domain.Payment) error
}

// InMemoryPaymentRepository реализация репозитория платежей в памяти
type InMemoryPaymentRepository struct {
	payments map[uuid.UUID]domain.Payment
	mutex    sync.RWMutex
	log      *logger.Logger
}

// NewInMemoryPaymentRepository создает новый репозиторий платежей в памяти
func NewInMemoryPaymentRepository(log *logger.Logger) *InMemoryPaymentRepository {
	return &InMemoryPaymentRepository{
		payments: make(map[uuid.UUID]domain.Payment),
		log:      log,
	}
}

// GetByPaymentID возвращает платеж по идентификатору эквайринга
func (r *InMemoryPaymentRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, p := range r.payments {
		if p.PaymentID != "" && p.PaymentID == paymentID {
			found := p
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

// ListByOrder возвращает историю платежей заказа
func (r *InMemoryPaymentRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*domain.Payment, 0)
	for _, p := range r.payments {
		if p.OrderID == orderID {
			payment := p
			result = append(result, &payment)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Create создает новый платеж
func (r *InMemoryPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.payments[payment.ID]; exists {
		return ErrDuplicate
	}
	r.payments[payment.ID] = *payment

	r.log.Debugw("Payment created in memory", "id", payment.ID, "orderID", payment.OrderID)
	return nil
}

// Update обновляет платеж
func (r *InMemoryPaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.payments[payment.ID]; !exists {
		return ErrNotFound
	}
	r.payments[payment.ID] = *payment
	return nil
}
