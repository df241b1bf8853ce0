package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is one payment request for a bounded portion of a session's debt.
// SessionID is nil for card-binding and other non-session payments.
type Order struct {
	ID            uuid.UUID
	SessionID     *int64
	ClientID      int64
	Sum           decimal.Decimal
	Authorized    bool
	Paid          bool
	RefundRequest bool
	RefundedSum   decimal.Decimal
	PaidCardPan   string
	CreatedAt     time.Time
	AuthorizedAt  *time.Time
	PaidAt        *time.Time
}

// NewSessionOrder creates an order for a slice of session debt
func NewSessionOrder(session *ParkingSession, sum decimal.Decimal, now time.Time) *Order {
	sessionID := session.ID
	return &Order{
		ID:          uuid.New(),
		SessionID:   &sessionID,
		ClientID:    session.ClientID,
		Sum:         sum,
		RefundedSum: decimal.Zero,
		CreatedAt:   now,
	}
}

// IsRefunded is true when the whole sum went back to the client
func (o *Order) IsRefunded() bool {
	return o.RefundedSum.Equal(o.Sum)
}

// RefundableSum is what can still be refunded from this order
func (o *Order) RefundableSum() decimal.Decimal {
	if !o.Paid {
		return decimal.Zero
	}
	rest := o.Sum.Sub(o.RefundedSum)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// SetRefundedSum records a cumulative refunded amount, capped at Sum
func (o *Order) SetRefundedSum(v decimal.Decimal) {
	switch {
	case v.IsNegative():
		v = decimal.Zero
	case v.GreaterThan(o.Sum):
		v = o.Sum
	}
	o.RefundedSum = v
}

func (o *Order) MarkAuthorized(at time.Time) {
	if o.Authorized {
		return
	}
	o.Authorized = true
	o.AuthorizedAt = &at
}

func (o *Order) MarkPaid(at time.Time) {
	if o.Paid {
		return
	}
	o.Authorized = true
	if o.AuthorizedAt == nil {
		o.AuthorizedAt = &at
	}
	o.Paid = true
	o.PaidAt = &at
}

// AwaitingConfirmation means funds are held but not captured
func (o *Order) AwaitingConfirmation() bool {
	return o.Authorized && !o.Paid
}
