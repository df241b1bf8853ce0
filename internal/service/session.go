package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/gateway"
	"github.com/Dhoini/parking-payments/internal/kafka/producer"
	"github.com/Dhoini/parking-payments/internal/repository"
	"github.com/shopspring/decimal"
)

// SessionUpdate текущее состояние сессии по данным вендора
type SessionUpdate struct {
	VendorSessionID string
	ParkingID       int64
	ClientID        int64
	Debt            decimal.Decimal
	StartedAt       time.Time
	UpdatedAt       time.Time
	IsSuspended     bool
}

// SessionComplete завершение сессии вендором с итоговым долгом
type SessionComplete struct {
	VendorSessionID string
	ParkingID       int64
	ClientID        int64
	Debt            decimal.Decimal
	StartedAt       time.Time
	CompletedAt     time.Time
}

// BatchResult результат одного элемента пакетного обновления
type BatchResult struct {
	VendorSessionID string
	SessionID       int64
	Err             error
}

// SessionView сессия вместе с расчетными значениями для клиента
type SessionView struct {
	Session     *domain.ParkingSession
	Debt        decimal.Decimal
	ClientState domain.ClientState
	Duration    time.Duration
	OrderedSum  decimal.Decimal
	PaidSum     decimal.Decimal
	RefundedSum decimal.Decimal
}

func validateVendorSession(vendorSessionID string, debt decimal.Decimal) error {
	if vendorSessionID == "" {
		return fmt.Errorf("%w: vendor session id is required", domain.ErrInvalidInput)
	}
	if debt.IsNegative() {
		return fmt.Errorf("%w: debt must not be negative", domain.ErrInvalidInput)
	}
	return nil
}

// checkParking проверяет, что парковка принадлежит вендору
func (b *Billing) checkParking(ctx context.Context, vendor *domain.Vendor, parkingID int64) error {
	parking, err := b.repos.Parkings.GetByID(ctx, parkingID)
	if err != nil {
		return err
	}
	if parking.VendorID != vendor.ID {
		b.log.Warn("Vendor %s reported session on foreign parking %d", vendor.Name, parkingID)
		return fmt.Errorf("%w: parking %d does not belong to vendor %s", domain.ErrInvalidInput, parkingID, vendor.Name)
	}
	return nil
}

// findOrCreateVendorSession возвращает id сессии, создавая ее при первом упоминании вендором
func (b *Billing) findOrCreateVendorSession(ctx context.Context, parkingID, clientID int64, vendorSessionID string, startedAt time.Time, init func(*domain.ParkingSession)) (int64, bool, error) {
	session, err := b.repos.Sessions.GetByVendorSessionID(ctx, parkingID, vendorSessionID)
	if err == nil {
		return session.ID, false, nil
	}
	if !isNotFound(err) {
		return 0, false, err
	}

	session = domain.NewVendorSession(parkingID, clientID, vendorSessionID, startedAt)
	init(session)
	if err := b.repos.Sessions.Create(ctx, session); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return 0, false, err
		}
		// Сессию параллельно создал другой запрос
		existing, err := b.repos.Sessions.GetByVendorSessionID(ctx, parkingID, vendorSessionID)
		if err != nil {
			return 0, false, err
		}
		return existing.ID, false, nil
	}
	b.log.Info("Created session %d for vendor session %s on parking %d", session.ID, vendorSessionID, parkingID)
	return session.ID, true, nil
}

// VendorUpdate применяет текущий долг и состояние сессии от вендора
func (b *Billing) VendorUpdate(ctx context.Context, vendor *domain.Vendor, u SessionUpdate) (*domain.ParkingSession, error) {
	if err := validateVendorSession(u.VendorSessionID, u.Debt); err != nil {
		return nil, err
	}
	if err := b.checkParking(ctx, vendor, u.ParkingID); err != nil {
		return nil, err
	}

	updatedAt := u.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = b.now()
	}
	id, created, err := b.findOrCreateVendorSession(ctx, u.ParkingID, u.ClientID, u.VendorSessionID, u.StartedAt,
		func(s *domain.ParkingSession) {
			s.Debt = u.Debt
			s.UpdatedAt = &updatedAt
			if u.IsSuspended {
				s.Suspend(updatedAt)
			}
		})
	if err != nil {
		return nil, err
	}

	var session *domain.ParkingSession
	if created {
		session, err = b.repos.Sessions.GetByID(ctx, id)
	} else {
		session, err = b.applyVendorUpdate(ctx, id, u, updatedAt)
	}
	if err != nil {
		return nil, err
	}

	b.enqueue(ctx, session.ID)
	return session, nil
}

func (b *Billing) applyVendorUpdate(ctx context.Context, sessionID int64, u SessionUpdate, updatedAt time.Time) (*domain.ParkingSession, error) {
	var session *domain.ParkingSession
	err := b.withSessionLock(ctx, sessionID, func() error {
		var err error
		session, err = b.repos.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if !session.IsAvailableForVendorUpdate() {
			b.log.Info("Session %d is %s, vendor update ignored", sessionID, session.State)
			return nil
		}
		if session.UpdatedAt != nil && updatedAt.Before(*session.UpdatedAt) {
			b.log.Info("Stale vendor update for session %d: %v before %v", sessionID, updatedAt, *session.UpdatedAt)
			return nil
		}

		if !session.IsStartedByVendor() {
			session.AddVendorStartMark()
		}
		session.Debt = u.Debt
		session.UpdatedAt = &updatedAt
		if u.IsSuspended {
			session.Suspend(updatedAt)
		} else {
			session.Resume()
		}
		return b.repos.Sessions.Update(ctx, session)
	})
	return session, err
}

// VendorComplete завершает сессию со стороны вендора с итоговым долгом
func (b *Billing) VendorComplete(ctx context.Context, vendor *domain.Vendor, c SessionComplete) (*domain.ParkingSession, error) {
	if err := validateVendorSession(c.VendorSessionID, c.Debt); err != nil {
		return nil, err
	}
	if err := b.checkParking(ctx, vendor, c.ParkingID); err != nil {
		return nil, err
	}

	completedAt := c.CompletedAt
	if completedAt.IsZero() {
		completedAt = b.now()
	}
	id, _, err := b.findOrCreateVendorSession(ctx, c.ParkingID, c.ClientID, c.VendorSessionID, c.StartedAt,
		func(s *domain.ParkingSession) {})
	if err != nil {
		return nil, err
	}

	var session *domain.ParkingSession
	err = b.withSessionLock(ctx, id, func() error {
		var err error
		session, err = b.repos.Sessions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !session.IsAvailableForVendorUpdate() {
			b.log.Info("Session %d is already %s, completion ignored", id, session.State)
			return nil
		}

		if !session.IsStartedByVendor() {
			session.AddVendorStartMark()
		}
		session.Debt = c.Debt
		session.UpdatedAt = &completedAt
		session.CompletedAt = &completedAt
		session.Resume()
		session.AddVendorCompleteMark()
		if err := b.repos.Sessions.Update(ctx, session); err != nil {
			return err
		}
		b.log.Info("Session %d completed by vendor, debt %s", id, c.Debt)
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.enqueue(ctx, id)
	return session, nil
}

// VendorBatchUpdate применяет обновления независимо друг от друга
func (b *Billing) VendorBatchUpdate(ctx context.Context, vendor *domain.Vendor, updates []SessionUpdate) []BatchResult {
	results := make([]BatchResult, 0, len(updates))
	for _, u := range updates {
		res := BatchResult{VendorSessionID: u.VendorSessionID}
		session, err := b.VendorUpdate(ctx, vendor, u)
		if err != nil {
			b.log.Warn("Batch update of vendor session %s failed: %v", u.VendorSessionID, err)
			res.Err = err
		} else {
			res.SessionID = session.ID
		}
		results = append(results, res)
	}
	return results
}

// ClientStart отмечает начало сессии из клиентского приложения
func (b *Billing) ClientStart(ctx context.Context, clientID, parkingID int64, vendorSessionID string, startedAt time.Time) (*domain.ParkingSession, error) {
	if vendorSessionID == "" {
		return nil, fmt.Errorf("%w: vendor session id is required", domain.ErrInvalidInput)
	}
	if _, err := b.repos.Parkings.GetByID(ctx, parkingID); err != nil {
		return nil, err
	}
	if startedAt.IsZero() {
		startedAt = b.now()
	}

	existing, err := b.repos.Sessions.GetByVendorSessionID(ctx, parkingID, vendorSessionID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if err == nil {
		return b.addClientStart(ctx, clientID, existing.ID)
	}

	session := domain.NewClientSession(parkingID, clientID, vendorSessionID, startedAt)
	if err := b.repos.Sessions.Create(ctx, session); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		existing, err := b.repos.Sessions.GetByVendorSessionID(ctx, parkingID, vendorSessionID)
		if err != nil {
			return nil, err
		}
		return b.addClientStart(ctx, clientID, existing.ID)
	}
	b.log.Info("Client %d started session %d", clientID, session.ID)
	return session, nil
}

// addClientStart отмечает старт клиентом; сессия вендора без клиента закрепляется за ним
func (b *Billing) addClientStart(ctx context.Context, clientID, sessionID int64) (*domain.ParkingSession, error) {
	var session *domain.ParkingSession
	err := b.withSessionLock(ctx, sessionID, func() error {
		var err error
		session, err = b.repos.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		switch session.ClientID {
		case clientID:
		case 0:
			session.ClientID = clientID
		default:
			return fmt.Errorf("%w: session %d belongs to another client", domain.ErrInvalidOperation, sessionID)
		}
		session.AddClientStartMark()
		return b.repos.Sessions.Update(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ClientComplete отмечает завершение сессии клиентом
func (b *Billing) ClientComplete(ctx context.Context, clientID, sessionID int64) (*domain.ParkingSession, error) {
	return b.mutateClientSession(ctx, clientID, sessionID, func(s *domain.ParkingSession) error {
		s.AddClientCompleteMark()
		return nil
	})
}

// ClientCancel отменяет сессию, пока по ней нет авторизованных или оплаченных заказов
func (b *Billing) ClientCancel(ctx context.Context, clientID, sessionID int64) (*domain.ParkingSession, error) {
	session, err := b.mutateClientSession(ctx, clientID, sessionID, func(s *domain.ParkingSession) error {
		orders, err := b.repos.Orders.ListBySession(ctx, s.ID)
		if err != nil {
			return err
		}
		for _, order := range orders {
			if order.Authorized || order.Paid {
				return fmt.Errorf("%w: session %d has authorized orders", domain.ErrInvalidOperation, s.ID)
			}
		}
		if err := s.Cancel(); err != nil {
			return err
		}
		for _, order := range orders {
			b.cancelPendingPayment(ctx, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.publishSession(ctx, producer.EventSessionCanceled, session)
	return session, nil
}

// cancelPendingPayment отменяет неоплаченную форму оплаты заказа
func (b *Billing) cancelPendingPayment(ctx context.Context, order *domain.Order) {
	payment, err := b.latestPayment(ctx, order.ID, domain.PaymentStatusNew, domain.PaymentStatusFormShowed)
	if err != nil || payment == nil || payment.PaymentID == "" {
		return
	}
	resp, err := b.callGateway("Cancel", func() (*gateway.Response, error) {
		return b.gw.Cancel(ctx, payment.PaymentID, nil)
	})
	if err != nil || resp.Failed() {
		b.log.Warn("Could not cancel pending payment %s of order %s", payment.PaymentID, order.ID)
		return
	}
	if _, err := b.applyPaymentStatus(ctx, order, payment, domain.PaymentStatusCancel, statusDetails{}); err != nil {
		b.log.Warn("Could not store canceled payment %s: %v", payment.PaymentID, err)
	}
}

// mutateClientSession применяет fn к сессии клиента под блокировкой и сохраняет ее
func (b *Billing) mutateClientSession(ctx context.Context, clientID, sessionID int64, fn func(*domain.ParkingSession) error) (*domain.ParkingSession, error) {
	var session *domain.ParkingSession
	err := b.withSessionLock(ctx, sessionID, func() error {
		var err error
		session, err = b.repos.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.ClientID != clientID {
			return domain.NewNotFoundError("session", fmt.Sprint(sessionID))
		}
		if err := fn(session); err != nil {
			return err
		}
		return b.repos.Sessions.Update(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession возвращает сессию клиента с долгом, статусом и длительностью
func (b *Billing) GetSession(ctx context.Context, clientID, sessionID int64) (*SessionView, error) {
	session, err := b.repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ClientID != clientID {
		return nil, domain.NewNotFoundError("session", fmt.Sprint(sessionID))
	}

	orders, err := b.repos.Orders.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	view := &SessionView{
		Session:     session,
		Debt:        session.Debt,
		ClientState: session.ResolveClientStatus(),
		Duration:    session.CalculatedDuration(),
		OrderedSum:  repository.OrderedSum(orders),
		PaidSum:     decimal.Zero,
		RefundedSum: decimal.Zero,
	}
	for _, order := range orders {
		if order.Paid {
			view.PaidSum = view.PaidSum.Add(order.Sum)
		}
		view.RefundedSum = view.RefundedSum.Add(order.RefundedSum)
	}
	return view, nil
}

// ClientPay повторяет оплату по сессии по запросу клиента
func (b *Billing) ClientPay(ctx context.Context, clientID, sessionID int64) error {
	session, err := b.repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.ClientID != clientID {
		return domain.NewNotFoundError("session", fmt.Sprint(sessionID))
	}
	return b.ForcePay(ctx, sessionID)
}
