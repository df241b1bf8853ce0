package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/gateway"
	"github.com/Dhoini/parking-payments/internal/kafka/producer"
)

func TestHandleCallback_AuthorizedBindsCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionStartedByVendor, "100")
	order, payment := f.seedOrder(t, s, "100", domain.PaymentStatusNew)

	n := gateway.Notification{
		Status:    gateway.StatusAuthorized,
		Success:   true,
		PaymentID: gateway.FlexString(payment.PaymentID),
		CardID:    "card-9",
		RebillID:  "rebill-9",
		Pan:       "550000******0004",
		ExpDate:   "1230",
	}
	require.NoError(t, f.billing.HandleCallback(ctx, n))

	got, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, got.Authorized)
	assert.Equal(t, "550000******0004", got.PaidCardPan)

	card, err := f.dir.Cards().GetDefault(ctx, testClientID)
	require.NoError(t, err)
	assert.Equal(t, "rebill-9", card.RebillID)
	assert.True(t, f.events.has(producer.EventPaymentAuthorized))
	assert.Empty(t, f.gw.methods(), "session is not completed, nothing to confirm")

	require.NoError(t, f.billing.HandleCallback(ctx, n), "duplicate callback is a no-op")
}

func TestHandleCallback_AuthorizedStartsConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionCompletedByVendorFully, "50")
	_, payment := f.seedOrder(t, s, "50", domain.PaymentStatusNew)

	require.NoError(t, f.billing.HandleCallback(ctx, gateway.Notification{
		Status:    gateway.StatusAuthorized,
		Success:   true,
		PaymentID: gateway.FlexString(payment.PaymentID),
	}))

	confirms := f.gw.callsOf("Confirm")
	require.Len(t, confirms, 1)
	assert.Equal(t, int64(5000), *confirms[0].Amount)
	assert.Equal(t, domain.SessionClosed, f.session(t, s.ID).State)
}

func TestHandleCallback_FailuresAreRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionStartedByVendor, "100")
	_, payment := f.seedOrder(t, s, "100", domain.PaymentStatusNew)

	require.NoError(t, f.billing.HandleCallback(ctx, gateway.Notification{
		Status:    gateway.StatusRejected,
		PaymentID: gateway.FlexString(payment.PaymentID),
		ErrorCode: "1051",
		Details:   "insufficient funds",
	}))

	got, err := f.payments.GetByPaymentID(ctx, payment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRejected, got.Status)
	assert.Equal(t, "1051", got.ErrorCode)
	assert.Equal(t, string(gateway.CategoryInsufficientFunds), got.ErrorCategory)
	assert.Equal(t, "insufficient funds", got.ErrorDescription)
}

func TestHandleCallback_ReversedDropsAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionStartedByVendor, "100")
	order, payment := f.seedOrder(t, s, "100", domain.PaymentStatusAuthorized)

	require.NoError(t, f.billing.HandleCallback(ctx, gateway.Notification{
		Status:    gateway.StatusReversed,
		Success:   true,
		PaymentID: gateway.FlexString(payment.PaymentID),
	}))

	got, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, got.Authorized)
	assert.Nil(t, got.AuthorizedAt)
}

func TestHandleCallback_Ignored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionStartedByVendor, "100")
	order, payment := f.seedOrder(t, s, "100", domain.PaymentStatusConfirmed)

	tests := []struct {
		name string
		n    gateway.Notification
	}{
		{"receipt", gateway.Notification{Status: gateway.StatusReceipt, PaymentID: gateway.FlexString(payment.PaymentID)}},
		{"intermediate status", gateway.Notification{Status: gateway.StatusAuthorizing, PaymentID: gateway.FlexString(payment.PaymentID)}},
		{"unknown payment", gateway.Notification{Status: gateway.StatusConfirmed, PaymentID: "does-not-exist"}},
		{"illegal transition", gateway.Notification{Status: gateway.StatusAuthorized, PaymentID: gateway.FlexString(payment.PaymentID)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, f.billing.HandleCallback(ctx, tt.n))
		})
	}

	got, err := f.payments.GetByPaymentID(ctx, payment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusConfirmed, got.Status)
	gotOrder, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, gotOrder.Paid)
}
