package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus статус платежа на стороне эквайринга
type PaymentStatus string

const (
	PaymentStatusInit            PaymentStatus = "init"
	PaymentStatusNew             PaymentStatus = "new"
	PaymentStatusCancel          PaymentStatus = "cancel"
	PaymentStatusFormShowed      PaymentStatus = "form_showed"
	PaymentStatusRejected        PaymentStatus = "rejected"
	PaymentStatusAuthFail        PaymentStatus = "auth_fail"
	PaymentStatusAuthorized      PaymentStatus = "authorized"
	PaymentStatusReversed        PaymentStatus = "reversed"
	PaymentStatusConfirmed       PaymentStatus = "confirmed"
	PaymentStatusRefunded        PaymentStatus = "refunded"
	PaymentStatusPartialRefunded PaymentStatus = "partial_refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusInit:            {PaymentStatusNew, PaymentStatusRejected, PaymentStatusFormShowed, PaymentStatusAuthorized, PaymentStatusAuthFail, PaymentStatusCancel},
	PaymentStatusNew:             {PaymentStatusFormShowed, PaymentStatusAuthorized, PaymentStatusAuthFail, PaymentStatusRejected, PaymentStatusCancel},
	PaymentStatusFormShowed:      {PaymentStatusAuthorized, PaymentStatusAuthFail, PaymentStatusRejected, PaymentStatusCancel},
	PaymentStatusAuthFail:        {PaymentStatusAuthorized, PaymentStatusRejected},
	PaymentStatusAuthorized:      {PaymentStatusConfirmed, PaymentStatusReversed},
	PaymentStatusConfirmed:       {PaymentStatusRefunded, PaymentStatusPartialRefunded},
	PaymentStatusPartialRefunded: {PaymentStatusPartialRefunded, PaymentStatusRefunded},
}

// CanTransitionTo reports whether the gateway may move a payment from s to next
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal is true for statuses that only accept refund bookkeeping
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusConfirmed, PaymentStatusRefunded, PaymentStatusRejected,
		PaymentStatusReversed, PaymentStatusCancel:
		return true
	}
	return false
}

// Payment is one attempt to pay an Order through the acquiring gateway
type Payment struct {
	ID               uuid.UUID
	PaymentID        string
	OrderID          uuid.UUID
	Status           PaymentStatus
	ErrorCode        string
	ErrorCategory    string
	ErrorMessage     string
	ErrorDescription string
	PaymentURL       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func NewPayment(orderID uuid.UUID, now time.Time) *Payment {
	return &Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		Status:    PaymentStatusInit,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus applies a gateway status if the transition is legal
func (p *Payment) SetStatus(next PaymentStatus, now time.Time) error {
	if p.Status == next && next != PaymentStatusPartialRefunded {
		return ErrAlreadyProcessed
	}
	if !p.Status.CanTransitionTo(next) {
		return &TransitionError{Entity: "payment", From: string(p.Status), To: string(next)}
	}
	p.Status = next
	p.UpdatedAt = now
	return nil
}

// SetError records gateway diagnostics
func (p *Payment) SetError(code, category, message, description string) {
	p.ErrorCode = code
	p.ErrorCategory = category
	p.ErrorMessage = message
	p.ErrorDescription = description
}

// CreditCard is a card bound through a successful authorization.
// RebillID allows charging it again without the payment form.
type CreditCard struct {
	ID        int64
	ClientID  int64
	CardID    string
	Pan       string
	ExpDate   string
	RebillID  string
	IsDefault bool
	CreatedAt time.Time
}
