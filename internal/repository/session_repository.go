package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/pkg/logger"
)

// SessionRepository интерфейс для работы с парковочными сессиями
type SessionRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.ParkingSession, error)
	GetByVendorSessionID(ctx context.Context, parkingID int64, vendorSessionID string) (*domain.ParkingSession, error)
	Create(ctx context.Context, session *domain.ParkingSession) error
	Update(ctx context.Context, session *domain.ParkingSession) error
	// ListBillable возвращает id сессий, которые еще не отменены и не закрыты
	ListBillable(ctx context.Context) ([]int64, error)
	// ListRefundPending возвращает id сессий с try_refund = true
	ListRefundPending(ctx context.Context) ([]int64, error)
}

// InMemorySessionRepository реализация репозитория сессий в памяти
type InMemorySessionRepository struct {
	sessions map[int64]domain.ParkingSession
	nextID   int64
	mutex    sync.RWMutex
	log      *logger.Logger
}

// NewInMemorySessionRepository создает новый репозиторий сессий в памяти
func NewInMemorySessionRepository(log *logger.Logger) *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[int64]domain.ParkingSession),
		log:      log,
	}
}

// GetByID возвращает сессию по ID
func (r *InMemorySessionRepository) GetByID(ctx context.Context, id int64) (*domain.ParkingSession, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// GetByVendorSessionID ищет сессию по идентификатору вендора в рамках парковки
func (r *InMemorySessionRepository) GetByVendorSessionID(ctx context.Context, parkingID int64, vendorSessionID string) (*domain.ParkingSession, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, s := range r.sessions {
		if s.ParkingID == parkingID && s.VendorSessionID == vendorSessionID {
			found := s
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

// Create сохраняет новую сессию и присваивает ей ID
func (r *InMemorySessionRepository) Create(ctx context.Context, session *domain.ParkingSession) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, s := range r.sessions {
		if s.ParkingID == session.ParkingID && s.VendorSessionID == session.VendorSessionID && session.VendorSessionID != "" {
			return ErrDuplicate
		}
	}

	r.nextID++
	session.ID = r.nextID
	session.ResolveClientStatus()
	r.sessions[session.ID] = *session

	r.log.Debugw("Session created in memory", "sessionID", session.ID)
	return nil
}

// Update обновляет сессию
func (r *InMemorySessionRepository) Update(ctx context.Context, session *domain.ParkingSession) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	session.ResolveClientStatus()
	r.sessions[session.ID] = *session
	return nil
}

// ListBillable возвращает сессии, по которым еще возможен расчет
func (r *InMemorySessionRepository) ListBillable(ctx context.Context) ([]int64, error) {
	return r.filter(func(s domain.ParkingSession) bool {
		return s.State != domain.SessionCanceled && s.State != domain.SessionClosed
	}), nil
}

// ListRefundPending возвращает сессии, ожидающие возврата
func (r *InMemorySessionRepository) ListRefundPending(ctx context.Context) ([]int64, error) {
	return r.filter(func(s domain.ParkingSession) bool { return s.TryRefund }), nil
}

func (r *InMemorySessionRepository) filter(keep func(domain.ParkingSession) bool) []int64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]int64, 0)
	for id, s := range r.sessions {
		if keep(s) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
