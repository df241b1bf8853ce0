package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/kafka/producer"
)

func TestVendorUpdate_ForeignParking(t *testing.T) {
	f := newFixture(t)
	u := vendorUpdate("v-1", "10", 1)
	u.ParkingID = 20

	_, err := f.billing.VendorUpdate(context.Background(), f.vendor, u)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestVendorUpdate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.billing.VendorUpdate(ctx, f.vendor, vendorUpdate("", "10", 1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.billing.VendorUpdate(ctx, f.vendor, vendorUpdate("v-1", "-1", 1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	u := vendorUpdate("v-1", "1", 1)
	u.ParkingID = 404
	_, err = f.billing.VendorUpdate(ctx, f.vendor, u)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVendorUpdate_StaleAndSettledUpdatesAreIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.billing.VendorUpdate(ctx, f.vendor, vendorUpdate("v-1", "50", 10))
	require.NoError(t, err)

	_, err = f.billing.VendorUpdate(ctx, f.vendor, vendorUpdate("v-1", "20", 5))
	require.NoError(t, err)
	assert.True(t, f.session(t, s.ID).Debt.Equal(dec("50")), "older updated_at does not overwrite")

	_, err = f.billing.VendorComplete(ctx, f.vendor, vendorComplete("v-1", "60", 20))
	require.NoError(t, err)
	_, err = f.billing.VendorUpdate(ctx, f.vendor, vendorUpdate("v-1", "70", 30))
	require.NoError(t, err)
	assert.True(t, f.session(t, s.ID).Debt.Equal(dec("60")), "completed session keeps the final debt")

	_, err = f.billing.VendorComplete(ctx, f.vendor, vendorComplete("v-1", "80", 40))
	require.NoError(t, err)
	assert.True(t, f.session(t, s.ID).Debt.Equal(dec("60")), "second completion is a no-op")
}

func TestVendorUpdate_Suspension(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := vendorUpdate("v-1", "10", 1)
	u.IsSuspended = true
	s, err := f.billing.VendorUpdate(ctx, f.vendor, u)
	require.NoError(t, err)
	got := f.session(t, s.ID)
	assert.True(t, got.IsSuspended)
	assert.Equal(t, domain.ClientStateSuspended, got.ClientState)

	_, err = f.billing.VendorUpdate(ctx, f.vendor, vendorUpdate("v-1", "12", 2))
	require.NoError(t, err)
	got = f.session(t, s.ID)
	assert.False(t, got.IsSuspended)
	assert.Equal(t, domain.ClientStateActive, got.ClientState)
}

func TestVendorBatchUpdate(t *testing.T) {
	f := newFixture(t)
	foreign := vendorUpdate("v-2", "10", 1)
	foreign.ParkingID = 20

	results := f.billing.VendorBatchUpdate(context.Background(), f.vendor, []SessionUpdate{
		vendorUpdate("v-1", "10", 1),
		foreign,
		vendorUpdate("v-3", "20", 1),
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.NotZero(t, results[0].SessionID)
	assert.ErrorIs(t, results[1].Err, domain.ErrInvalidInput)
	assert.NoError(t, results[2].Err)
	assert.NotEqual(t, results[0].SessionID, results[2].SessionID)
}

func TestClientLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.billing.ClientStart(ctx, testClientID, testParkingID, "v-1", base)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStartedByClient, s.State)

	_, err = f.billing.VendorUpdate(ctx, f.vendor, vendorUpdate("v-1", "30", 15))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStarted, f.session(t, s.ID).State)

	_, err = f.billing.ClientComplete(ctx, testClientID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompletedByClientFully, f.session(t, s.ID).State)

	view, err := f.billing.GetSession(ctx, testClientID, s.ID)
	require.NoError(t, err)
	assert.True(t, view.Debt.Equal(dec("30")))
	assert.Equal(t, domain.ClientStateCompleted, view.ClientState)
	assert.Equal(t, 15*time.Minute, view.Duration)
	assert.True(t, view.OrderedSum.IsZero())

	_, err = f.billing.GetSession(ctx, testClientID+1, s.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "foreign sessions are hidden")
}

func TestClientStart_ClaimsVendorSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := vendorUpdate("v-1", "0", 1)
	u.ClientID = 0
	s, err := f.billing.VendorUpdate(ctx, f.vendor, u)
	require.NoError(t, err)

	claimed, err := f.billing.ClientStart(ctx, testClientID, testParkingID, "v-1", base)
	require.NoError(t, err)
	assert.Equal(t, s.ID, claimed.ID)
	assert.Equal(t, testClientID, claimed.ClientID)
	assert.Equal(t, domain.SessionStarted, claimed.State)

	_, err = f.billing.ClientStart(ctx, testClientID+1, testParkingID, "v-1", base)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}

func TestClientCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.seedSession(t, domain.SessionStarted, "100")
	f.seedOrder(t, paid, "100", domain.PaymentStatusAuthorized)
	_, err := f.billing.ClientCancel(ctx, testClientID, paid.ID)
	require.ErrorIs(t, err, domain.ErrInvalidOperation)
	assert.Equal(t, domain.SessionStarted, f.session(t, paid.ID).State)

	pending := f.seedSession(t, domain.SessionStartedByClient, "20")
	_, payment := f.seedOrder(t, pending, "20", domain.PaymentStatusNew)
	canceled, err := f.billing.ClientCancel(ctx, testClientID, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCanceled, canceled.State)
	assert.Equal(t, domain.ClientStateCanceled, f.session(t, pending.ID).ClientState)
	assert.True(t, f.events.has(producer.EventSessionCanceled))

	got, err := f.payments.GetByPaymentID(ctx, payment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancel, got.Status, "open payment form is voided")

	done := f.seedSession(t, domain.SessionCompletedByVendor, "0")
	_, err = f.billing.ClientCancel(ctx, testClientID, done.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}

func TestClientPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedSession(t, domain.SessionCompletedByVendorFully, "70")
	f.seedOrder(t, s, "70", domain.PaymentStatusAuthorized)

	err := f.billing.ClientPay(ctx, testClientID+1, s.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.gw.callsOf("Confirm"))

	require.NoError(t, f.billing.ClientPay(ctx, testClientID, s.ID))
	assert.Equal(t, domain.SessionClosed, f.session(t, s.ID).State)
}
