package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderRepository интерфейс для работы с заказами
type OrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// ListBySession возвращает заказы сессии в порядке создания
	ListBySession(ctx context.Context, sessionID int64) ([]*domain.Order, error)
	// ListAwaitingConfirmation возвращает авторизованные, но не оплаченные заказы,
	// авторизованные раньше указанного момента
	ListAwaitingConfirmation(ctx context.Context, authorizedBefore time.Time) ([]*domain.Order, error)
	Create(ctx context.Context, order *domain.Order) error
	Update(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// OrderedSum суммирует заказы сессии
func OrderedSum(orders []*domain.Order) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range orders {
		sum = sum.Add(o.Sum)
	}
	return sum
}

// InMemoryOrderRepository реализация репозитория заказов в памяти
type InMemoryOrderRepository struct {
	orders map[uuid.UUID]domain.Order
	mutex  sync.RWMutex
	log    *logger.Logger
}

// NewInMemoryOrderRepository создает новый репозиторий заказов в памяти
func NewInMemoryOrderRepository(log *logger.Logger) *InMemoryOrderRepository {
	return &InMemoryOrderRepository{
		orders: make(map[uuid.UUID]domain.Order),
		log:    log,
	}
}

// GetByID возвращает заказ по ID
func (r *InMemoryOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

// ListBySession возвращает заказы сессии
func (r *InMemoryOrderRepository) ListBySession(ctx context.Context, sessionID int64) ([]*domain.Order, error) {
	return r.list(func(o domain.Order) bool {
		return o.SessionID != nil && *o.SessionID == sessionID
	}), nil
}

// ListAwaitingConfirmation возвращает давно авторизованные заказы
func (r *InMemoryOrderRepository) ListAwaitingConfirmation(ctx context.Context, authorizedBefore time.Time) ([]*domain.Order, error) {
	return r.list(func(o domain.Order) bool {
		return o.AwaitingConfirmation() && o.AuthorizedAt != nil && o.AuthorizedAt.Before(authorizedBefore)
	}), nil
}

// Create сохраняет новый заказ
func (r *InMemoryOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return ErrDuplicate
	}
	r.orders[order.ID] = *order

	r.log.Debugw("Order created in memory", "orderID", order.ID, "sum", order.Sum.String())
	return nil
}

// Update обновляет заказ
func (r *InMemoryOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.orders[order.ID]; !exists {
		return ErrNotFound
	}
	r.orders[order.ID] = *order
	return nil
}

// Delete удаляет заказ
func (r *InMemoryOrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.orders[id]; !exists {
		return ErrNotFound
	}
	delete(r.orders, id)
	return nil
}

func (r *InMemoryOrderRepository) list(keep func(domain.Order) bool) []*domain.Order {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*domain.Order, 0)
	for _, o := range r.orders {
		if keep(o) {
			order := o
			result = append(result, &order)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}
