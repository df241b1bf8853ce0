package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNextOrderSum(t *testing.T) {
	tests := []struct {
		name       string
		debt       string
		ordered    string
		max        string
		completed  bool
		wantAction LedgerAction
		wantAmount string
	}{
		{"clamped on active session", "150", "0", "100", false, LedgerCreateOrder, "100"},
		{"exactly the ceiling", "100", "0", "100", false, LedgerCreateOrder, "100"},
		{"below ceiling defers", "40", "0", "100", false, LedgerWait, "0"},
		{"still below ceiling", "95", "0", "100", false, LedgerWait, "0"},
		{"second increment clamps", "260", "100", "100", false, LedgerCreateOrder, "100"},
		{"final settlement unclamped", "150", "0", "100", true, LedgerCreateOrder, "150"},
		{"final remainder", "150", "100", "100", true, LedgerCreateOrder, "50"},
		{"fully ordered", "150", "150", "100", true, LedgerWait, "0"},
		{"overshoot on completed session", "80", "100", "100", true, LedgerCorrect, "-20"},
		{"overshoot on active session waits", "80", "100", "100", false, LedgerWait, "0"},
		{"negligible remainder", "100.004", "100", "100", true, LedgerWait, "0"},
		{"zero ceiling never bills mid-session", "500", "0", "0", false, LedgerWait, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextOrderSum(d(tt.debt), d(tt.ordered), d(tt.max), tt.completed)
			assert.Equal(t, tt.wantAction, got.Action)
			assert.Truef(t, got.Amount.Equal(d(tt.wantAmount)), "amount %s, want %s", got.Amount, tt.wantAmount)
		})
	}
}

func TestDebtSequenceDefersOrders(t *testing.T) {
	max := d("100")
	created := decimal.Zero
	for _, debt := range []string{"0", "40", "95"} {
		dec := NextOrderSum(d(debt), created, max, false)
		require.Equal(t, LedgerWait, dec.Action, "debt %s", debt)
	}
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		minor  int64
	}{
		{"0", 0},
		{"1", 100},
		{"99.99", 9999},
		{"40.5", 4050},
		{"0.005", 1},
		{"123.456", 12346},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.minor, ToMinorUnits(d(tt.amount)), "amount %s", tt.amount)
	}

	for _, minor := range []int64{0, 1, 99, 4050, 1234567} {
		assert.Equal(t, minor, ToMinorUnits(FromMinorUnits(minor)))
	}
	assert.True(t, FromMinorUnits(4050).Equal(d("40.50")))
}

func TestOrderRefundBookkeeping(t *testing.T) {
	o := &Order{Sum: d("50"), RefundedSum: decimal.Zero}
	assert.True(t, o.RefundableSum().IsZero(), "unpaid orders are not refundable")

	o.MarkPaid(time.Now())
	assert.True(t, o.Authorized)
	assert.True(t, o.RefundableSum().Equal(d("50")))

	o.SetRefundedSum(d("40"))
	assert.False(t, o.IsRefunded())
	assert.True(t, o.RefundableSum().Equal(d("10")))

	o.SetRefundedSum(d("75"))
	assert.True(t, o.RefundedSum.Equal(d("50")), "refunded sum is capped at sum")
	assert.True(t, o.IsRefunded())

	o.SetRefundedSum(d("-1"))
	assert.True(t, o.RefundedSum.IsZero())
}

func TestPaymentStatusTransitions(t *testing.T) {
	now := time.Now()
	p := NewPayment(NewSessionOrder(&ParkingSession{ID: 1}, d("10"), now).ID, now)

	require.NoError(t, p.SetStatus(PaymentStatusNew, now))
	require.NoError(t, p.SetStatus(PaymentStatusAuthorized, now))
	require.ErrorIs(t, p.SetStatus(PaymentStatusAuthorized, now), ErrAlreadyProcessed)
	require.ErrorIs(t, p.SetStatus(PaymentStatusRefunded, now), ErrInvalidOperation)
	require.NoError(t, p.SetStatus(PaymentStatusConfirmed, now))
	require.NoError(t, p.SetStatus(PaymentStatusPartialRefunded, now))
	require.NoError(t, p.SetStatus(PaymentStatusPartialRefunded, now))
	require.NoError(t, p.SetStatus(PaymentStatusRefunded, now))
	assert.True(t, p.Status.IsTerminal())
	require.ErrorIs(t, p.SetStatus(PaymentStatusConfirmed, now), ErrInvalidOperation)
}
