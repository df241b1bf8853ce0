package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/gateway"
	"github.com/Dhoini/parking-payments/internal/kafka/producer"
	"github.com/shopspring/decimal"
)

// ProcessRefund возвращает клиенту разницу между целевой и уже возвращенной суммой
func (b *Billing) ProcessRefund(ctx context.Context, sessionID int64) error {
	return b.withSessionLock(ctx, sessionID, func() error {
		return b.processRefundLocked(ctx, sessionID)
	})
}

func (b *Billing) processRefundLocked(ctx context.Context, sessionID int64) error {
	session, err := b.repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.RefundPending() {
		if session.TryRefund {
			session.TryRefund = false
			return b.repos.Sessions.Update(ctx, session)
		}
		return nil
	}

	session.TryRefund = false
	if err := b.repos.Sessions.Update(ctx, session); err != nil {
		return err
	}

	orders, err := b.repos.Orders.ListBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	remaining := session.TargetRefundSum.Sub(session.CurrentRefundSum)
	b.log.Info("Refunding %s for session %d", remaining, sessionID)

	var errs []error
	for _, order := range orders {
		if !remaining.IsPositive() {
			break
		}
		if !order.Paid || order.IsRefunded() {
			continue
		}
		amount := domain.MinDecimal(remaining, order.RefundableSum())
		if !amount.IsPositive() {
			continue
		}

		before := order.RefundedSum
		if err := b.refundOrder(ctx, order, amount); err != nil {
			errs = append(errs, err)
			continue
		}
		// Заказ без подтвержденного платежа не уменьшает остаток
		remaining = remaining.Sub(order.RefundedSum.Sub(before))
	}

	// Пересчет по всем заказам сессии, а не только затронутым
	orders, err = b.repos.Orders.ListBySession(ctx, sessionID)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	total := decimal.Zero
	for _, order := range orders {
		total = total.Add(order.RefundedSum)
	}
	if total.GreaterThan(session.TargetRefundSum) {
		b.log.Warn("Session %d refunded %s over target %s", sessionID, total, session.TargetRefundSum)
		session.TargetRefundSum = total
	}
	session.CurrentRefundSum = total
	if session.RefundPending() {
		session.TryRefund = true
	}
	if err := b.repos.Sessions.Update(ctx, session); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (b *Billing) refundOrder(ctx context.Context, order *domain.Order, amount decimal.Decimal) error {
	payment, err := b.latestPayment(ctx, order.ID, domain.PaymentStatusConfirmed, domain.PaymentStatusPartialRefunded)
	if err != nil {
		return err
	}
	if payment == nil || payment.PaymentID == "" {
		b.log.Warn("Order %s has no confirmed payment to refund", order.ID)
		b.metrics.IncRefund("skipped")
		return nil
	}

	minor := domain.ToMinorUnits(amount)
	resp, err := b.callGateway("Cancel", func() (*gateway.Response, error) {
		return b.gw.Cancel(ctx, payment.PaymentID, &minor)
	})
	if err != nil {
		b.log.Warn("Refund for order %s returned no result: %v", order.ID, err)
		b.metrics.IncRefund("no_result")
		return err
	}
	if resp.Failed() {
		cat := resp.Category()
		payment.SetError(resp.ErrorCode, string(cat), cat.UserMessage(), resp.Details)
		b.metrics.IncRefund("rejected")
		if err := b.repos.Payments.Update(ctx, payment); err != nil {
			return err
		}
		return resp.AsError()
	}

	status, ok := gateway.MapStatus(resp.Status)
	if !ok || (status != domain.PaymentStatusRefunded && status != domain.PaymentStatusPartialRefunded) {
		b.log.Warn("Unexpected refund status %s for order %s", resp.Status, order.ID)
		b.metrics.IncRefund("unexpected")
		return nil
	}

	order.RefundRequest = true
	refunded := order.RefundedSum.Add(amount)
	if left, ok := resp.RemainingAmount(); ok {
		refunded = order.Sum.Sub(domain.FromMinorUnits(left))
	}
	order.SetRefundedSum(refunded)
	if err := payment.SetStatus(status, b.now()); err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		b.log.Warn("Ignoring status change of payment %s: %v", payment.PaymentID, err)
	}
	if err := b.repos.Payments.Update(ctx, payment); err != nil {
		return err
	}
	if err := b.repos.Orders.Update(ctx, order); err != nil {
		return err
	}

	b.metrics.IncRefund("ok")
	b.metrics.ObserveRefundAmount(amount.InexactFloat64())
	b.log.Info("Refunded %s of order %s, total refunded %s", amount, order.ID, order.RefundedSum)
	b.publishPayment(ctx, producer.EventOrderRefunded, order, payment)
	return nil
}

// RequestRefund увеличивает целевую сумму возврата сессии на amount
func (b *Billing) RequestRefund(ctx context.Context, sessionID int64, amount decimal.Decimal) (*domain.ParkingSession, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: refund amount must be positive", domain.ErrInvalidInput)
	}

	var session *domain.ParkingSession
	err := b.withSessionLock(ctx, sessionID, func() error {
		var err error
		session, err = b.repos.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		orders, err := b.repos.Orders.ListBySession(ctx, sessionID)
		if err != nil {
			return err
		}

		paid := decimal.Zero
		for _, order := range orders {
			if order.Paid {
				paid = paid.Add(order.Sum)
			}
		}
		target := session.TargetRefundSum.Add(amount)
		if target.GreaterThan(paid) {
			return fmt.Errorf("%w: refund %s exceeds paid amount %s", domain.ErrInvalidInput, target, paid)
		}

		session.TargetRefundSum = target
		session.TryRefund = true
		if err := b.repos.Sessions.Update(ctx, session); err != nil {
			return err
		}
		b.log.Info("Refund of %s requested for session %d, target %s", amount, sessionID, target)
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.enqueue(ctx, sessionID)
	return session, nil
}

// VendorRefund запрашивает возврат по сессии, указанной идентификатором вендора
func (b *Billing) VendorRefund(ctx context.Context, vendor *domain.Vendor, parkingID int64, vendorSessionID string, amount decimal.Decimal) (*domain.ParkingSession, error) {
	if err := b.checkParking(ctx, vendor, parkingID); err != nil {
		return nil, err
	}
	session, err := b.repos.Sessions.GetByVendorSessionID(ctx, parkingID, vendorSessionID)
	if err != nil {
		return nil, err
	}
	return b.RequestRefund(ctx, session.ID, amount)
}
