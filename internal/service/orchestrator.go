package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/gateway"
	"github.com/Dhoini/parking-payments/internal/kafka/producer"
	"github.com/Dhoini/parking-payments/internal/repository"
)

// ErrCorrectionLimit долг не сошелся за отведенное число пересчетов
var ErrCorrectionLimit = errors.New("debt correction limit reached")

// retryableStatuses статусы последнего платежа, после которых заказ оплачивается заново
var retryableStatuses = map[domain.PaymentStatus]bool{
	domain.PaymentStatusInit:     true,
	domain.PaymentStatusRejected: true,
	domain.PaymentStatusAuthFail: true,
	domain.PaymentStatusCancel:   true,
	domain.PaymentStatusReversed: true,
}

// CreateDebtOrder выполняет один шаг расчета долга: если долг вырос выше порога,
// создает заказ на приращение и пытается его оплатить. Возвращает созданный заказ или nil.
func (b *Billing) CreateDebtOrder(ctx context.Context, sessionID int64) (*domain.Order, error) {
	var created *domain.Order
	err := b.withSessionLock(ctx, sessionID, func() error {
		session, err := b.repos.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		orders, err := b.repos.Orders.ListBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		decision, err := b.decide(ctx, session, orders)
		if err != nil {
			return err
		}
		if decision.Action != domain.LedgerCreateOrder {
			return nil
		}
		created, err = b.payDebtOrder(ctx, session, decision)
		return err
	})
	return created, err
}

// GenerateCurrentDebtOrder приводит заказы сессии в соответствие с ее долгом
func (b *Billing) GenerateCurrentDebtOrder(ctx context.Context, sessionID int64) error {
	return b.withSessionLock(ctx, sessionID, func() error {
		return b.generateLocked(ctx, sessionID)
	})
}

func (b *Billing) generateLocked(ctx context.Context, sessionID int64) error {
	for i := 0; i < b.cfg.MaxCorrectionIterations; i++ {
		session, err := b.repos.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.State == domain.SessionCanceled || session.State == domain.SessionClosed {
			b.log.Debug("Session %d is %s, nothing to bill", sessionID, session.State)
			return nil
		}

		orders, err := b.repos.Orders.ListBySession(ctx, sessionID)
		if err != nil {
			return err
		}

		// Нулевой долг после завершения вендором закрывает сессию без заказов
		if len(orders) == 0 && session.IsCompletedForBilling() && domain.IsNegligible(session.Debt) {
			_, err := b.TryCloseSession(ctx, session)
			return err
		}

		decision, err := b.decide(ctx, session, orders)
		if err != nil {
			return err
		}

		switch decision.Action {
		case domain.LedgerCreateOrder:
			_, err := b.payDebtOrder(ctx, session, decision)
			return err

		case domain.LedgerCorrect:
			b.log.Warn("Orders of session %d exceed debt by %s, correcting", sessionID, decision.Amount.Neg())
			if err := b.cancelLatestOrder(ctx, orders); err != nil {
				return err
			}
			b.metrics.IncOrderCorrected()
			continue

		default:
			if err := b.retryUnauthorized(ctx, orders, false); err != nil {
				return err
			}
			if err := b.ConfirmAllOrdersIfNeeded(ctx, session); err != nil {
				return err
			}
			_, err := b.TryCloseSession(ctx, session)
			return err
		}
	}

	b.log.Error("Session %d did not converge after %d corrections", sessionID, b.cfg.MaxCorrectionIterations)
	return fmt.Errorf("session %d: %w", sessionID, ErrCorrectionLimit)
}

func (b *Billing) decide(ctx context.Context, session *domain.ParkingSession, orders []*domain.Order) (domain.LedgerDecision, error) {
	parking, err := b.repos.Parkings.GetByID(ctx, session.ParkingID)
	if err != nil {
		return domain.LedgerDecision{}, fmt.Errorf("parking %d: %w", session.ParkingID, err)
	}
	return domain.NextOrderSum(
		session.Debt,
		repository.OrderedSum(orders),
		parking.MaxClientDebt,
		session.IsCompletedForBilling(),
	), nil
}

// payDebtOrder создает заказ и оплачивает его. Синхронная авторизация сразу
// ведет к подтверждению и закрытию: повторное уведомление об авторизации
// уже ничего не меняет.
func (b *Billing) payDebtOrder(ctx context.Context, session *domain.ParkingSession, decision domain.LedgerDecision) (*domain.Order, error) {
	order, err := b.createOrder(ctx, session, decision)
	if err != nil {
		return nil, err
	}
	if _, err := b.TryPay(ctx, order); err != nil {
		return order, err
	}
	if !order.Authorized {
		return order, nil
	}
	if err := b.ConfirmAllOrdersIfNeeded(ctx, session); err != nil {
		return order, err
	}
	_, err = b.TryCloseSession(ctx, session)
	return order, err
}

func (b *Billing) createOrder(ctx context.Context, session *domain.ParkingSession, decision domain.LedgerDecision) (*domain.Order, error) {
	order := domain.NewSessionOrder(session, decision.Amount, b.now())
	if err := b.repos.Orders.Create(ctx, order); err != nil {
		b.log.Error("Failed to create order for session %d: %v", session.ID, err)
		return nil, err
	}

	b.metrics.IncOrderCreated()
	b.metrics.ObserveOrderSum(decision.Amount.InexactFloat64())
	b.log.Info("Created order %s for session %d, sum %s", order.ID, session.ID, order.Sum)
	b.publishPayment(ctx, producer.EventOrderCreated, order, nil)
	return order, nil
}

// TryPay создает платеж по заказу и отправляет его в эквайринг.
// Если у клиента есть привязанная карта, сразу выполняется рекуррентное списание.
func (b *Billing) TryPay(ctx context.Context, order *domain.Order) (*domain.Payment, error) {
	if order.Authorized {
		return nil, nil
	}

	payment := domain.NewPayment(order.ID, b.now())
	if err := b.repos.Payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	resp, err := b.callGateway("Init", func() (*gateway.Response, error) {
		return b.gw.Init(ctx, b.initRequest(order))
	})
	if err != nil {
		b.log.Warn("Init for order %s returned no result: %v", order.ID, err)
		return payment, err
	}
	if resp.Failed() {
		return payment, b.rejectPayment(ctx, order, payment, resp)
	}

	payment.PaymentID = resp.PaymentID.String()
	payment.PaymentURL = resp.PaymentURL
	if err := b.applyResponseStatus(ctx, order, payment, resp, statusDetails{}); err != nil {
		return payment, err
	}

	card, err := b.repos.Cards.GetDefault(ctx, order.ClientID)
	if err != nil {
		if !isNotFound(err) {
			return payment, err
		}
		b.log.Debug("Client %d has no bound card, waiting for payment form", order.ClientID)
		return payment, nil
	}
	if card.RebillID == "" {
		return payment, nil
	}

	resp, err = b.callGateway("Charge", func() (*gateway.Response, error) {
		return b.gw.Charge(ctx, payment.PaymentID, card.RebillID)
	})
	if err != nil {
		b.log.Warn("Charge for order %s returned no result: %v", order.ID, err)
		return payment, err
	}
	if resp.Failed() {
		return payment, b.rejectPayment(ctx, order, payment, resp)
	}
	return payment, b.applyResponseStatus(ctx, order, payment, resp, statusDetails{Pan: card.Pan})
}

func (b *Billing) initRequest(order *domain.Order) gateway.InitRequest {
	amount := domain.ToMinorUnits(order.Sum)
	req := gateway.InitRequest{
		Amount:      amount,
		OrderID:     order.ID.String(),
		Description: b.cfg.PaymentDescription,
		CustomerKey: strconv.FormatInt(order.ClientID, 10),
		Recurrent:   true,
	}
	if order.SessionID != nil {
		req.Data = map[string]string{"session_id": strconv.FormatInt(*order.SessionID, 10)}
	}
	if b.cfg.Receipt.Enabled {
		req.Receipt = &gateway.Receipt{
			Email:    b.cfg.Receipt.Email,
			Taxation: b.cfg.Receipt.Taxation,
			Items: []gateway.ReceiptItem{{
				Name:     b.cfg.Receipt.ItemName,
				Price:    amount,
				Quantity: 1,
				Amount:   amount,
				Tax:      b.cfg.Receipt.Tax,
			}},
		}
	}
	return req
}

// rejectPayment сохраняет бизнес-отказ эквайринга на платеже
func (b *Billing) rejectPayment(ctx context.Context, order *domain.Order, payment *domain.Payment, resp *gateway.Response) error {
	if resp.PaymentID != "" && payment.PaymentID == "" {
		payment.PaymentID = resp.PaymentID.String()
	}
	_, err := b.applyPaymentStatus(ctx, order, payment, domain.PaymentStatusRejected, statusDetails{
		ErrorCode: resp.ErrorCode,
		Message:   resp.Message,
		Details:   resp.Details,
	})
	if err != nil {
		return err
	}
	return resp.AsError()
}

func (b *Billing) applyResponseStatus(ctx context.Context, order *domain.Order, payment *domain.Payment, resp *gateway.Response, details statusDetails) error {
	status, ok := gateway.MapStatus(resp.Status)
	if !ok {
		// Промежуточный статус, итог придет уведомлением
		return b.repos.Payments.Update(ctx, payment)
	}
	_, err := b.applyPaymentStatus(ctx, order, payment, status, details)
	return err
}

// retryUnauthorized повторяет оплату неавторизованных заказов.
// force повторяет и заказы, ожидающие оплаты через форму.
func (b *Billing) retryUnauthorized(ctx context.Context, orders []*domain.Order, force bool) error {
	var errs []error
	for _, order := range orders {
		if order.Authorized {
			continue
		}
		latest, err := b.latestPayment(ctx, order.ID)
		if err != nil {
			return err
		}
		if !force && latest != nil && !retryableStatuses[latest.Status] {
			continue
		}
		b.log.Info("Retrying payment for order %s", order.ID)
		if _, err := b.TryPay(ctx, order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// cancelLatestOrder отменяет в эквайринге последний заказ и удаляет его
func (b *Billing) cancelLatestOrder(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	order := orders[len(orders)-1]

	payment, err := b.latestPayment(ctx, order.ID,
		domain.PaymentStatusAuthorized,
		domain.PaymentStatusConfirmed,
		domain.PaymentStatusPartialRefunded,
		domain.PaymentStatusNew,
		domain.PaymentStatusFormShowed,
	)
	if err != nil {
		return err
	}

	if payment != nil && payment.PaymentID != "" {
		resp, err := b.callGateway("Cancel", func() (*gateway.Response, error) {
			return b.gw.Cancel(ctx, payment.PaymentID, nil)
		})
		if err != nil {
			b.log.Warn("Cancel for order %s returned no result: %v", order.ID, err)
			return err
		}
		if resp.Failed() {
			b.log.Error("Gateway refused to cancel order %s: %s", order.ID, resp.ErrorCode)
			return resp.AsError()
		}
		b.log.Info("Canceled payment %s of order %s, gateway status %s", payment.PaymentID, order.ID, resp.Status)
		b.publishPayment(ctx, producer.EventPaymentReversed, order, payment)
	}

	if err := b.repos.Orders.Delete(ctx, order.ID); err != nil {
		return err
	}
	b.log.Info("Deleted order %s of sum %s", order.ID, order.Sum)
	return nil
}

// ConfirmAllOrdersIfNeeded подтверждает авторизованные заказы, когда все заказы
// сессии авторизованы и вендор завершил сессию. Вызывающий держит блокировку сессии.
func (b *Billing) ConfirmAllOrdersIfNeeded(ctx context.Context, session *domain.ParkingSession) error {
	if !session.IsCompletedByVendor() {
		b.log.Debug("Session %d is not completed by vendor yet", session.ID)
		return nil
	}

	orders, err := b.repos.Orders.ListBySession(ctx, session.ID)
	if err != nil {
		return err
	}
	for _, order := range orders {
		if !order.Authorized {
			b.log.Info("Session %d has unauthorized order %s, waiting", session.ID, order.ID)
			return nil
		}
	}

	var errs []error
	for _, order := range orders {
		if !order.AwaitingConfirmation() {
			continue
		}
		if err := b.ConfirmOrder(ctx, order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ConfirmOrder списывает удержанные средства по последнему авторизованному платежу
func (b *Billing) ConfirmOrder(ctx context.Context, order *domain.Order) error {
	if order.Paid {
		return nil
	}

	payment, err := b.latestPayment(ctx, order.ID, domain.PaymentStatusAuthorized)
	if err != nil {
		return err
	}
	if payment == nil || payment.PaymentID == "" {
		b.log.Warn("Order %s has no authorized payment to confirm", order.ID)
		return nil
	}

	resp, err := b.callGateway("Confirm", func() (*gateway.Response, error) {
		return b.gw.Confirm(ctx, payment.PaymentID, domain.ToMinorUnits(order.Sum))
	})
	if err != nil {
		b.log.Warn("Confirm for order %s returned no result: %v", order.ID, err)
		return err
	}
	if resp.Failed() {
		cat := resp.Category()
		payment.SetError(resp.ErrorCode, string(cat), cat.UserMessage(), resp.Details)
		if err := b.repos.Payments.Update(ctx, payment); err != nil {
			return err
		}
		b.log.Error("Gateway refused to confirm order %s: %s", order.ID, resp.ErrorCode)
		return resp.AsError()
	}

	b.log.Info("Confirmed order %s, gateway status %s", order.ID, resp.Status)
	return b.applyResponseStatus(ctx, order, payment, resp, statusDetails{})
}

// ForcePay повторяет оплату неавторизованных заказов сессии,
// а если таких нет, подтверждает авторизованные
func (b *Billing) ForcePay(ctx context.Context, sessionID int64) error {
	return b.withSessionLock(ctx, sessionID, func() error {
		session, err := b.repos.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		orders, err := b.repos.Orders.ListBySession(ctx, sessionID)
		if err != nil {
			return err
		}

		unauthorized := false
		for _, order := range orders {
			if !order.Authorized {
				unauthorized = true
				break
			}
		}
		if unauthorized {
			b.log.Info("Force paying unauthorized orders of session %d", sessionID)
			return b.retryUnauthorized(ctx, orders, true)
		}

		b.log.Info("Force confirming orders of session %d", sessionID)
		var errs []error
		for _, order := range orders {
			if !order.AwaitingConfirmation() {
				continue
			}
			if err := b.ConfirmOrder(ctx, order); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
		_, err = b.TryCloseSession(ctx, session)
		return err
	})
}

// TryCloseSession закрывает сессию, если вендор ее завершил, все заказы оплачены
// и их сумма покрывает долг. Вызывающий держит блокировку сессии.
func (b *Billing) TryCloseSession(ctx context.Context, session *domain.ParkingSession) (bool, error) {
	if session.State == domain.SessionClosed {
		return true, nil
	}
	if !session.IsCompletedByVendor() {
		return false, nil
	}

	orders, err := b.repos.Orders.ListBySession(ctx, session.ID)
	if err != nil {
		return false, err
	}
	for _, order := range orders {
		if !order.Paid {
			return false, nil
		}
	}
	if repository.OrderedSum(orders).Sub(session.Debt).Abs().GreaterThan(domain.NegligibleDebt) {
		b.log.Debug("Orders of session %d do not cover debt %s yet", session.ID, session.Debt)
		return false, nil
	}

	if err := session.Close(b.now()); err != nil {
		return false, err
	}
	if err := b.repos.Sessions.Update(ctx, session); err != nil {
		return false, err
	}

	b.metrics.IncSessionClosed()
	b.log.Info("Closed session %d", session.ID)
	b.publishSession(ctx, producer.EventSessionClosed, session)
	return true, nil
}

// StaleOrders возвращает заказы, авторизованные дольше ConfirmAfter назад
func (b *Billing) StaleOrders(ctx context.Context) ([]*domain.Order, error) {
	return b.repos.Orders.ListAwaitingConfirmation(ctx, b.now().Add(-b.cfg.ConfirmAfter))
}

// ConfirmStaleOrder принудительно подтверждает зависший заказ
func (b *Billing) ConfirmStaleOrder(ctx context.Context, order *domain.Order) error {
	if order.SessionID == nil {
		return b.ConfirmOrder(ctx, order)
	}

	return b.withSessionLock(ctx, *order.SessionID, func() error {
		fresh, err := b.repos.Orders.GetByID(ctx, order.ID)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		if !fresh.AwaitingConfirmation() {
			return nil
		}

		b.log.Info("Force confirming order %s authorized at %v", fresh.ID, fresh.AuthorizedAt)
		if err := b.ConfirmOrder(ctx, fresh); err != nil {
			return err
		}

		session, err := b.repos.Sessions.GetByID(ctx, *fresh.SessionID)
		if err != nil {
			return err
		}
		_, err = b.TryCloseSession(ctx, session)
		return err
	})
}

// BillableSessions возвращает id сессий, по которым еще идет расчет
func (b *Billing) BillableSessions(ctx context.Context) ([]int64, error) {
	return b.repos.Sessions.ListBillable(ctx)
}

// RefundPendingSessions возвращает id сессий, ожидающих возврата
func (b *Billing) RefundPendingSessions(ctx context.Context) ([]int64, error) {
	return b.repos.Sessions.ListRefundPending(ctx)
}
