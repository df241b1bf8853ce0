package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SessionState is the lifecycle state of a parking session.
// Values match the legacy store encoding and are persisted as is.
type SessionState int

const (
	SessionCanceled               SessionState = -1
	SessionClosed                 SessionState = 0
	SessionStartedByClient        SessionState = 1
	SessionStartedByVendor        SessionState = 2
	SessionStarted                SessionState = 3
	SessionCompletedByClient      SessionState = 6
	SessionCompletedByClientFully SessionState = 7
	SessionCompletedByVendor      SessionState = 10
	SessionCompletedByVendorFully SessionState = 11
	SessionCompleted              SessionState = 14
)

var sessionStateNames = map[SessionState]string{
	SessionCanceled:               "canceled",
	SessionClosed:                 "closed",
	SessionStartedByClient:        "started_by_client",
	SessionStartedByVendor:        "started_by_vendor",
	SessionStarted:                "started",
	SessionCompletedByClient:      "completed_by_client",
	SessionCompletedByClientFully: "completed_by_client_fully",
	SessionCompletedByVendor:      "completed_by_vendor",
	SessionCompletedByVendorFully: "completed_by_vendor_fully",
	SessionCompleted:              "completed",
}

func (s SessionState) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Valid reports whether s is one of the enumerated states
func (s SessionState) Valid() bool {
	_, ok := sessionStateNames[s]
	return ok
}

// SessionMark is one of the four independent lifecycle reports
type SessionMark int

const (
	MarkClientStart SessionMark = iota
	MarkVendorStart
	MarkClientComplete
	MarkVendorComplete
)

func (m SessionMark) String() string {
	switch m {
	case MarkClientStart:
		return "client_start"
	case MarkVendorStart:
		return "vendor_start"
	case MarkClientComplete:
		return "client_complete"
	case MarkVendorComplete:
		return "vendor_complete"
	}
	return "unknown"
}

type markSet struct {
	clientStart, vendorStart, clientComplete, vendorComplete bool
}

// sessionMarks lists which marks each state carries
var sessionMarks = map[SessionState]markSet{
	SessionStartedByClient:        {clientStart: true},
	SessionStartedByVendor:        {vendorStart: true},
	SessionStarted:                {clientStart: true, vendorStart: true},
	SessionCompletedByClient:      {vendorStart: true, clientComplete: true},
	SessionCompletedByClientFully: {clientStart: true, vendorStart: true, clientComplete: true},
	SessionCompletedByVendor:      {vendorStart: true, vendorComplete: true},
	SessionCompletedByVendorFully: {clientStart: true, vendorStart: true, vendorComplete: true},
	SessionCompleted:              {vendorStart: true, clientComplete: true, vendorComplete: true},
}

type transitionKey struct {
	from SessionState
	mark SessionMark
}

// sessionTransitions is the full state x mark table. Missing entries are no-ops.
var sessionTransitions = map[transitionKey]SessionState{
	{SessionStartedByClient, MarkVendorStart}:    SessionStarted,
	{SessionStartedByClient, MarkClientComplete}: SessionCompletedByClient,
	{SessionStartedByClient, MarkVendorComplete}: SessionCompletedByVendorFully,

	{SessionStartedByVendor, MarkClientStart}:    SessionStarted,
	{SessionStartedByVendor, MarkClientComplete}: SessionCompletedByClient,
	{SessionStartedByVendor, MarkVendorComplete}: SessionCompletedByVendor,

	{SessionStarted, MarkClientComplete}: SessionCompletedByClientFully,
	{SessionStarted, MarkVendorComplete}: SessionCompletedByVendorFully,

	{SessionCompletedByClient, MarkClientStart}:    SessionCompletedByClientFully,
	{SessionCompletedByClient, MarkVendorComplete}: SessionCompleted,

	{SessionCompletedByClientFully, MarkVendorComplete}: SessionCompleted,

	{SessionCompletedByVendor, MarkClientStart}:    SessionCompletedByVendorFully,
	{SessionCompletedByVendor, MarkClientComplete}: SessionCompleted,

	{SessionCompletedByVendorFully, MarkClientComplete}: SessionCompleted,
}

// Next returns the state after applying mark. Unknown pairs keep the state.
func (s SessionState) Next(mark SessionMark) SessionState {
	if next, ok := sessionTransitions[transitionKey{from: s, mark: mark}]; ok {
		return next
	}
	return s
}

// ClientState is the coarse status shown to the client
type ClientState int

const (
	ClientStateCanceled  ClientState = -1
	ClientStateClosed    ClientState = 0
	ClientStateSuspended ClientState = 1
	ClientStateActive    ClientState = 2
	ClientStateCompleted ClientState = 3
)

func (c ClientState) String() string {
	switch c {
	case ClientStateCanceled:
		return "canceled"
	case ClientStateClosed:
		return "closed"
	case ClientStateSuspended:
		return "suspended"
	case ClientStateActive:
		return "active"
	case ClientStateCompleted:
		return "completed"
	}
	return "unknown"
}

// ParkingSession is a single stay on a parking, billed incrementally
type ParkingSession struct {
	ID               int64
	VendorSessionID  string
	ParkingID        int64
	ClientID         int64
	Debt             decimal.Decimal
	State            SessionState
	ClientState      ClientState
	StartedAt        time.Time
	UpdatedAt        *time.Time
	CompletedAt      *time.Time
	IsSuspended      bool
	SuspendedAt      *time.Time
	TryRefund        bool
	TargetRefundSum  decimal.Decimal
	CurrentRefundSum decimal.Decimal
	CreatedAt        time.Time
}

// NewVendorSession creates a session reported first by the vendor
func NewVendorSession(parkingID, clientID int64, vendorSessionID string, startedAt time.Time) *ParkingSession {
	s := &ParkingSession{
		VendorSessionID: vendorSessionID,
		ParkingID:       parkingID,
		ClientID:        clientID,
		Debt:            decimal.Zero,
		State:           SessionStartedByVendor,
		StartedAt:       startedAt,
	}
	s.ResolveClientStatus()
	return s
}

// NewClientSession creates a session reported first by the client app
func NewClientSession(parkingID, clientID int64, vendorSessionID string, startedAt time.Time) *ParkingSession {
	s := &ParkingSession{
		VendorSessionID: vendorSessionID,
		ParkingID:       parkingID,
		ClientID:        clientID,
		Debt:            decimal.Zero,
		State:           SessionStartedByClient,
		StartedAt:       startedAt,
	}
	s.ResolveClientStatus()
	return s
}

func (s *ParkingSession) applyMark(mark SessionMark) {
	s.State = s.State.Next(mark)
}

func (s *ParkingSession) AddClientStartMark()    { s.applyMark(MarkClientStart) }
func (s *ParkingSession) AddVendorStartMark()    { s.applyMark(MarkVendorStart) }
func (s *ParkingSession) AddClientCompleteMark() { s.applyMark(MarkClientComplete) }
func (s *ParkingSession) AddVendorCompleteMark() { s.applyMark(MarkVendorComplete) }

func (s *ParkingSession) IsStartedByVendor() bool {
	return sessionMarks[s.State].vendorStart
}

func (s *ParkingSession) IsCompletedByVendor() bool {
	return sessionMarks[s.State].vendorComplete
}

func (s *ParkingSession) IsCompletedByClient() bool {
	return sessionMarks[s.State].clientComplete
}

// IsActive is true unless the session is canceled, completed or closed
func (s *ParkingSession) IsActive() bool {
	switch s.State {
	case SessionCanceled, SessionCompleted, SessionClosed:
		return false
	}
	return true
}

func (s *ParkingSession) IsCancelable() bool {
	switch s.State {
	case SessionStartedByClient, SessionStartedByVendor, SessionStarted,
		SessionCompletedByClient, SessionCompletedByClientFully:
		return true
	}
	return false
}

// IsAvailableForVendorUpdate guards against stale vendor pushes reopening a settled session
func (s *ParkingSession) IsAvailableForVendorUpdate() bool {
	switch s.State {
	case SessionCanceled, SessionCompletedByVendor, SessionCompletedByVendorFully,
		SessionCompleted, SessionClosed:
		return false
	}
	return true
}

// IsCompletedForBilling reports whether the vendor has reported the final debt
func (s *ParkingSession) IsCompletedForBilling() bool {
	switch s.State {
	case SessionCompletedByVendor, SessionCompletedByVendorFully, SessionCompleted:
		return true
	}
	return false
}

// ResolveClientStatus recomputes ClientState from State and IsSuspended
func (s *ParkingSession) ResolveClientStatus() ClientState {
	switch {
	case s.State == SessionCanceled:
		s.ClientState = ClientStateCanceled
	case s.State == SessionClosed:
		s.ClientState = ClientStateClosed
	case s.IsSuspended:
		s.ClientState = ClientStateSuspended
	case s.State == SessionStartedByClient || s.State == SessionStartedByVendor || s.State == SessionStarted:
		s.ClientState = ClientStateActive
	default:
		s.ClientState = ClientStateCompleted
	}
	return s.ClientState
}

// CalculatedDuration returns elapsed time since StartedAt, measured up to
// CompletedAt, else SuspendedAt while suspended, else UpdatedAt.
func (s *ParkingSession) CalculatedDuration() time.Duration {
	var end *time.Time
	switch {
	case s.CompletedAt != nil:
		end = s.CompletedAt
	case s.IsSuspended && s.SuspendedAt != nil:
		end = s.SuspendedAt
	case s.UpdatedAt != nil:
		end = s.UpdatedAt
	default:
		return 0
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// DurationSeconds is CalculatedDuration truncated to whole seconds
func (s *ParkingSession) DurationSeconds() int64 {
	return int64(s.CalculatedDuration() / time.Second)
}

// Cancel moves a cancelable session to SessionCanceled
func (s *ParkingSession) Cancel() error {
	if !s.IsCancelable() {
		return &TransitionError{Entity: "session", From: s.State.String(), To: SessionCanceled.String()}
	}
	s.State = SessionCanceled
	s.ResolveClientStatus()
	return nil
}

// Close settles the session; allowed only after vendor completion
func (s *ParkingSession) Close(at time.Time) error {
	if s.State == SessionClosed {
		return nil
	}
	if !s.IsCompletedByVendor() {
		return &TransitionError{Entity: "session", From: s.State.String(), To: SessionClosed.String()}
	}
	if s.CompletedAt == nil {
		s.CompletedAt = &at
	}
	s.State = SessionClosed
	s.ResolveClientStatus()
	return nil
}

func (s *ParkingSession) Suspend(at time.Time) {
	if s.IsSuspended {
		return
	}
	s.IsSuspended = true
	s.SuspendedAt = &at
	s.ResolveClientStatus()
}

func (s *ParkingSession) Resume() {
	s.IsSuspended = false
	s.SuspendedAt = nil
	s.ResolveClientStatus()
}

// RefundPending reports whether a refund delta is still outstanding
func (s *ParkingSession) RefundPending() bool {
	return s.TargetRefundSum.GreaterThan(s.CurrentRefundSum)
}
