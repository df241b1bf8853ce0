package service

import (
	"context"
	"errors"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/gateway"
	"github.com/Dhoini/parking-payments/internal/kafka/producer"
)

// statusDetails сопутствующие данные статуса платежа
type statusDetails struct {
	ErrorCode string
	Message   string
	Details   string
	CardID    string
	RebillID  string
	Pan       string
	ExpDate   string
}

func notificationDetails(n gateway.Notification) statusDetails {
	return statusDetails{
		ErrorCode: n.ErrorCode,
		Message:   n.Message,
		Details:   n.Details,
		CardID:    n.CardID.String(),
		RebillID:  n.RebillID.String(),
		Pan:       n.Pan,
		ExpDate:   n.ExpDate,
	}
}

// HandleCallback применяет уведомление эквайринга к платежу и заказу.
// Подпись уведомления проверяется до вызова.
func (b *Billing) HandleCallback(ctx context.Context, n gateway.Notification) error {
	if n.Status == gateway.StatusReceipt {
		b.log.Infow("Receipt notification received", "orderID", n.OrderID, "paymentID", n.PaymentID.String())
		return nil
	}

	status, ok := gateway.MapStatus(n.Status)
	if !ok {
		b.log.Debug("Ignoring intermediate status %s for payment %s", n.Status, n.PaymentID)
		return nil
	}

	payment, err := b.repos.Payments.GetByPaymentID(ctx, n.PaymentID.String())
	if err != nil {
		if isNotFound(err) {
			b.log.Warn("Callback for unknown payment %s, status %s", n.PaymentID, n.Status)
			return nil
		}
		return err
	}
	order, err := b.repos.Orders.GetByID(ctx, payment.OrderID)
	if err != nil {
		if isNotFound(err) {
			b.log.Warn("Callback for payment %s of deleted order %s", n.PaymentID, payment.OrderID)
			return nil
		}
		return err
	}

	if order.SessionID == nil {
		_, err := b.applyPaymentStatus(ctx, order, payment, status, notificationDetails(n))
		return err
	}

	sessionID := *order.SessionID
	return b.withSessionLock(ctx, sessionID, func() error {
		// Перечитываем под блокировкой
		payment, err := b.repos.Payments.GetByPaymentID(ctx, n.PaymentID.String())
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		order, err := b.repos.Orders.GetByID(ctx, payment.OrderID)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}

		changed, err := b.applyPaymentStatus(ctx, order, payment, status, notificationDetails(n))
		if err != nil || !changed {
			return err
		}

		session, err := b.repos.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}

		// Сбой последующих шагов не отклоняет уведомление, их повторит обход
		switch status {
		case domain.PaymentStatusAuthorized:
			if err := b.ConfirmAllOrdersIfNeeded(ctx, session); err != nil {
				b.log.Warn("Confirmation after callback failed for session %d: %v", sessionID, err)
			}
			if _, err := b.TryCloseSession(ctx, session); err != nil {
				b.log.Warn("Closing session %d after callback failed: %v", sessionID, err)
			}
		case domain.PaymentStatusConfirmed:
			if _, err := b.TryCloseSession(ctx, session); err != nil {
				b.log.Warn("Closing session %d after callback failed: %v", sessionID, err)
			}
		}
		return nil
	})
}

// applyPaymentStatus переводит платеж в новый статус и обновляет заказ.
// Повторный или недопустимый переход логируется и возвращает false.
func (b *Billing) applyPaymentStatus(ctx context.Context, order *domain.Order, payment *domain.Payment, next domain.PaymentStatus, d statusDetails) (bool, error) {
	now := b.now()
	if err := payment.SetStatus(next, now); err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			b.log.Debug("Payment %s is already %s", payment.PaymentID, next)
		} else {
			b.log.Warn("Ignoring status change of payment %s: %v", payment.PaymentID, err)
		}
		return false, nil
	}

	event := ""
	switch next {
	case domain.PaymentStatusAuthorized:
		order.MarkAuthorized(now)
		if d.Pan != "" {
			order.PaidCardPan = d.Pan
		}
		if d.RebillID != "" {
			b.saveCard(ctx, order, d)
		}
		event = producer.EventPaymentAuthorized
	case domain.PaymentStatusConfirmed:
		order.MarkPaid(now)
		event = producer.EventPaymentConfirmed
	case domain.PaymentStatusReversed:
		order.Authorized = false
		order.AuthorizedAt = nil
		event = producer.EventPaymentReversed
	case domain.PaymentStatusRejected, domain.PaymentStatusAuthFail:
		cat := gateway.ErrorCategory(d.ErrorCode)
		message := d.Message
		if message == "" {
			message = cat.UserMessage()
		}
		payment.SetError(d.ErrorCode, string(cat), message, d.Details)
		event = producer.EventPaymentRejected
	}

	if err := b.repos.Payments.Update(ctx, payment); err != nil {
		return false, err
	}
	if err := b.repos.Orders.Update(ctx, order); err != nil {
		return false, err
	}

	b.metrics.IncPaymentStatus(string(next))
	b.log.Info("Payment %s of order %s is now %s", payment.PaymentID, order.ID, next)
	if event != "" {
		b.publishPayment(ctx, event, order, payment)
	}
	return true, nil
}

// saveCard привязывает карту клиента для рекуррентных списаний
func (b *Billing) saveCard(ctx context.Context, order *domain.Order, d statusDetails) {
	card := &domain.CreditCard{
		ClientID:  order.ClientID,
		CardID:    d.CardID,
		Pan:       d.Pan,
		ExpDate:   d.ExpDate,
		RebillID:  d.RebillID,
		IsDefault: true,
		CreatedAt: b.now(),
	}
	if err := b.repos.Cards.Save(ctx, card); err != nil {
		b.log.Error("Failed to save card for client %d: %v", order.ClientID, err)
	}
}
