package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionState_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		start SessionState
		marks []SessionMark
		want  SessionState
	}{
		{"vendor then client start", SessionStartedByVendor, []SessionMark{MarkClientStart}, SessionStarted},
		{"client then vendor start", SessionStartedByClient, []SessionMark{MarkVendorStart}, SessionStarted},
		{"started, client completes", SessionStarted, []SessionMark{MarkClientComplete}, SessionCompletedByClientFully},
		{"started, vendor completes", SessionStarted, []SessionMark{MarkVendorComplete}, SessionCompletedByVendorFully},
		{"vendor only lifecycle", SessionStartedByVendor, []SessionMark{MarkVendorComplete}, SessionCompletedByVendor},
		{"both complete in either order", SessionStarted, []SessionMark{MarkVendorComplete, MarkClientComplete}, SessionCompleted},
		{"client complete before vendor", SessionStarted, []SessionMark{MarkClientComplete, MarkVendorComplete}, SessionCompleted},
		{"client start only then client complete", SessionStartedByClient, []SessionMark{MarkClientComplete}, SessionCompletedByClient},
		{"closed ignores marks", SessionClosed, []SessionMark{MarkClientStart, MarkVendorComplete}, SessionClosed},
		{"canceled ignores marks", SessionCanceled, []SessionMark{MarkVendorStart}, SessionCanceled},
		{"completed is absorbing", SessionCompleted, []SessionMark{MarkClientStart, MarkVendorStart, MarkClientComplete}, SessionCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &ParkingSession{State: tt.start}
			for _, m := range tt.marks {
				s.applyMark(m)
			}
			assert.Equal(t, tt.want, s.State)
			assert.True(t, s.State.Valid())
		})
	}
}

func TestSessionState_TableStaysInsideEnum(t *testing.T) {
	marks := []SessionMark{MarkClientStart, MarkVendorStart, MarkClientComplete, MarkVendorComplete}
	for state := range sessionStateNames {
		for _, m := range marks {
			next := state.Next(m)
			require.Truef(t, next.Valid(), "%s + %s produced %d", state, m, int(next))
		}
	}
}

func TestAddVendorCompleteMark_Idempotent(t *testing.T) {
	s := &ParkingSession{State: SessionStarted}
	s.AddVendorCompleteMark()
	once := s.State
	s.AddVendorCompleteMark()
	assert.Equal(t, once, s.State)
	assert.Equal(t, SessionCompletedByVendorFully, s.State)
}

func TestSessionPredicates(t *testing.T) {
	s := &ParkingSession{State: SessionCompletedByVendor}
	assert.True(t, s.IsStartedByVendor())
	assert.True(t, s.IsCompletedByVendor())
	assert.False(t, s.IsCompletedByClient())
	assert.True(t, s.IsActive())
	assert.False(t, s.IsCancelable())
	assert.False(t, s.IsAvailableForVendorUpdate())
	assert.True(t, s.IsCompletedForBilling())

	s.State = SessionCompletedByClient
	assert.True(t, s.IsCancelable())
	assert.True(t, s.IsAvailableForVendorUpdate())
	assert.False(t, s.IsCompletedForBilling())

	for _, st := range []SessionState{SessionCanceled, SessionCompleted, SessionClosed} {
		s.State = st
		assert.Falsef(t, s.IsActive(), "state %s", st)
	}
}

func TestResolveClientStatus(t *testing.T) {
	tests := []struct {
		state     SessionState
		suspended bool
		want      ClientState
	}{
		{SessionCanceled, true, ClientStateCanceled},
		{SessionClosed, false, ClientStateClosed},
		{SessionStarted, true, ClientStateSuspended},
		{SessionStartedByVendor, false, ClientStateActive},
		{SessionStartedByClient, false, ClientStateActive},
		{SessionCompletedByClientFully, false, ClientStateCompleted},
		{SessionCompleted, false, ClientStateCompleted},
	}
	for _, tt := range tests {
		s := &ParkingSession{State: tt.state, IsSuspended: tt.suspended}
		assert.Equalf(t, tt.want, s.ResolveClientStatus(), "state=%s suspended=%v", tt.state, tt.suspended)
		assert.Equal(t, tt.want, s.ClientState)
	}
}

func TestCalculatedDuration(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	at := func(min int) *time.Time {
		v := start.Add(time.Duration(min) * time.Minute)
		return &v
	}

	s := &ParkingSession{StartedAt: start}
	assert.Equal(t, time.Duration(0), s.CalculatedDuration())

	s.UpdatedAt = at(30)
	assert.Equal(t, 30*time.Minute, s.CalculatedDuration())

	s.IsSuspended = true
	s.SuspendedAt = at(20)
	assert.Equal(t, 20*time.Minute, s.CalculatedDuration())

	s.CompletedAt = at(45)
	assert.Equal(t, 45*time.Minute, s.CalculatedDuration())
	assert.Equal(t, int64(45*60), s.DurationSeconds())
}

func TestCancelAndClose(t *testing.T) {
	now := time.Now()

	s := &ParkingSession{State: SessionStarted}
	require.NoError(t, s.Cancel())
	assert.Equal(t, SessionCanceled, s.State)
	assert.Equal(t, ClientStateCanceled, s.ClientState)

	s = &ParkingSession{State: SessionCompletedByVendor}
	err := s.Cancel()
	require.ErrorIs(t, err, ErrInvalidOperation)

	s = &ParkingSession{State: SessionStarted}
	require.ErrorIs(t, s.Close(now), ErrInvalidOperation)

	s.AddVendorCompleteMark()
	require.NoError(t, s.Close(now))
	assert.Equal(t, SessionClosed, s.State)
	require.NotNil(t, s.CompletedAt)
	require.NoError(t, s.Close(now), "closing twice is a no-op")
}

func TestSuspendResume(t *testing.T) {
	s := NewVendorSession(1, 2, "v-1", time.Now())
	s.Suspend(time.Now())
	assert.Equal(t, ClientStateSuspended, s.ClientState)
	s.Resume()
	assert.Equal(t, ClientStateActive, s.ClientState)
	assert.Nil(t, s.SuspendedAt)
}

func TestRefundPending(t *testing.T) {
	s := &ParkingSession{TargetRefundSum: decimal.NewFromInt(40), CurrentRefundSum: decimal.NewFromInt(10)}
	assert.True(t, s.RefundPending())
	s.CurrentRefundSum = decimal.NewFromInt(40)
	assert.False(t, s.RefundPending())
}
