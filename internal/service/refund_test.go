package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/parking-payments/internal/domain"
)

func assertRefundInvariants(t *testing.T, f *fixture, sessionID int64) {
	t.Helper()
	for _, o := range f.sessionOrders(t, sessionID) {
		assert.False(t, o.RefundedSum.IsNegative())
		assert.True(t, o.RefundedSum.LessThanOrEqual(o.Sum), "order %s refunded %s of %s", o.ID, o.RefundedSum, o.Sum)
	}
	s := f.session(t, sessionID)
	assert.True(t, s.CurrentRefundSum.LessThanOrEqual(s.TargetRefundSum))
}

func TestRefund_PartialAcrossOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionClosed, "80")
	first, firstPayment := f.seedOrder(t, s, "50", domain.PaymentStatusConfirmed)
	second, _ := f.seedOrder(t, s, "30", domain.PaymentStatusConfirmed)

	_, err := f.billing.RequestRefund(ctx, s.ID, dec("40"))
	require.NoError(t, err)

	cancels := f.gw.callsOf("Cancel")
	require.Len(t, cancels, 1)
	assert.Equal(t, firstPayment.PaymentID, cancels[0].PaymentID)
	assert.Equal(t, int64(4000), *cancels[0].Amount)

	got, err := f.orders.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.RefundedSum.Equal(dec("40")))
	assert.False(t, got.IsRefunded())
	untouched, err := f.orders.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, untouched.RefundedSum.IsZero())

	session := f.session(t, s.ID)
	assert.True(t, session.CurrentRefundSum.Equal(dec("40")))
	assert.False(t, session.TryRefund)
	assertRefundInvariants(t, f, s.ID)

	payment, err := f.payments.GetByPaymentID(ctx, firstPayment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPartialRefunded, payment.Status)
}

func TestRefund_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionClosed, "80")
	f.seedOrder(t, s, "50", domain.PaymentStatusConfirmed)
	f.seedOrder(t, s, "30", domain.PaymentStatusConfirmed)

	_, err := f.billing.RequestRefund(ctx, s.ID, dec("40"))
	require.NoError(t, err)
	require.NoError(t, f.billing.ProcessRefund(ctx, s.ID))
	require.NoError(t, f.billing.ProcessRefund(ctx, s.ID))

	assert.Len(t, f.gw.callsOf("Cancel"), 1)
}

func TestRefund_SpansOrdersAndCapsAtPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionClosed, "80")
	first, _ := f.seedOrder(t, s, "50", domain.PaymentStatusConfirmed)
	second, _ := f.seedOrder(t, s, "30", domain.PaymentStatusConfirmed)

	_, err := f.billing.RequestRefund(ctx, s.ID, dec("40"))
	require.NoError(t, err)

	_, err = f.billing.RequestRefund(ctx, s.ID, dec("50"))
	require.ErrorIs(t, err, domain.ErrInvalidInput, "target would exceed the paid total")

	_, err = f.billing.RequestRefund(ctx, s.ID, dec("20"))
	require.NoError(t, err)

	got, err := f.orders.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRefunded())
	got, err = f.orders.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, got.RefundedSum.Equal(dec("10")))

	session := f.session(t, s.ID)
	assert.True(t, session.CurrentRefundSum.Equal(dec("60")))
	assert.True(t, session.TargetRefundSum.Equal(dec("60")))
	assertRefundInvariants(t, f, s.ID)
}

func TestRefund_RepeatedPartialRefundsOfOneOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionClosed, "80")
	first, _ := f.seedOrder(t, s, "50", domain.PaymentStatusConfirmed)
	second, _ := f.seedOrder(t, s, "30", domain.PaymentStatusConfirmed)

	for _, amount := range []string{"10", "10", "10"} {
		_, err := f.billing.RequestRefund(ctx, s.ID, dec(amount))
		require.NoError(t, err)
	}

	got, err := f.orders.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.RefundedSum.Equal(dec("30")), "refunded sum is cumulative, got %s", got.RefundedSum)

	_, err = f.billing.RequestRefund(ctx, s.ID, dec("30"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.billing.ProcessRefund(ctx, s.ID))
	}

	got, err = f.orders.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRefunded())
	got, err = f.orders.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, got.RefundedSum.Equal(dec("10")))

	session := f.session(t, s.ID)
	assert.True(t, session.CurrentRefundSum.Equal(dec("60")))
	assert.False(t, session.TryRefund)
	assert.Len(t, f.gw.callsOf("Cancel"), 5, "settled session makes no further gateway calls")
	assertRefundInvariants(t, f, s.ID)
}

func TestRefund_SkippedOrderPassesAmountOn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionClosed, "80")
	first, firstPayment := f.seedOrder(t, s, "50", domain.PaymentStatusConfirmed)
	second, _ := f.seedOrder(t, s, "30", domain.PaymentStatusConfirmed)

	firstPayment.PaymentID = ""
	require.NoError(t, f.payments.Update(ctx, firstPayment))

	_, err := f.billing.RequestRefund(ctx, s.ID, dec("20"))
	require.NoError(t, err)

	got, err := f.orders.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.RefundedSum.IsZero())
	got, err = f.orders.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, got.RefundedSum.Equal(dec("20")))

	session := f.session(t, s.ID)
	assert.True(t, session.CurrentRefundSum.Equal(dec("20")))
	assert.False(t, session.TryRefund)
	assertRefundInvariants(t, f, s.ID)
}

func TestRefund_UnavailableGatewayKeepsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionClosed, "50")
	order, _ := f.seedOrder(t, s, "50", domain.PaymentStatusConfirmed)

	s.TargetRefundSum = dec("50")
	s.TryRefund = true
	require.NoError(t, f.sessions.Update(ctx, s))

	f.gw.cancelStatus = "REFUNDING"
	require.NoError(t, f.billing.ProcessRefund(ctx, s.ID))

	got, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, got.RefundedSum.IsZero(), "unexpected status leaves the order eligible")
	assert.True(t, f.session(t, s.ID).TryRefund, "pending delta is retried on the next sweep")

	f.gw.cancelStatus = ""
	require.NoError(t, f.billing.ProcessRefund(ctx, s.ID))
	assert.True(t, f.session(t, s.ID).CurrentRefundSum.Equal(dec("50")))
	assert.False(t, f.session(t, s.ID).TryRefund)
	assertRefundInvariants(t, f, s.ID)
}

func TestRequestRefund_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionClosed, "10")

	_, err := f.billing.RequestRefund(ctx, s.ID, dec("0"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.billing.RequestRefund(ctx, s.ID, dec("5"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "nothing is paid yet")

	_, err = f.billing.RequestRefund(ctx, 999, dec("5"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVendorRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionClosed, "50")
	f.seedOrder(t, s, "50", domain.PaymentStatusConfirmed)

	_, err := f.billing.VendorRefund(ctx, f.vendor, 20, s.VendorSessionID, dec("10"))
	require.ErrorIs(t, err, domain.ErrInvalidInput, "foreign parking")

	_, err = f.billing.VendorRefund(ctx, f.vendor, testParkingID, "missing", dec("10"))
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := f.billing.VendorRefund(ctx, f.vendor, testParkingID, s.VendorSessionID, dec("10"))
	require.NoError(t, err)
	assert.True(t, got.TargetRefundSum.Equal(dec("10")))
	assert.True(t, f.session(t, s.ID).CurrentRefundSum.Equal(dec("10")))
}
