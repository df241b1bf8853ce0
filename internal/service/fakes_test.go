package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/gateway"
	"github.com/Dhoini/parking-payments/internal/lock"
	"github.com/Dhoini/parking-payments/internal/metrics"
	"github.com/Dhoini/parking-payments/internal/repository"
	"github.com/Dhoini/parking-payments/pkg/logger"
)

type gatewayCall struct {
	Method    string
	PaymentID string
	Amount    *int64
}

// fakeGateway эмулирует эквайринг с двухстадийной оплатой
type fakeGateway struct {
	mu       sync.Mutex
	calls    []gatewayCall
	nextID   int
	amounts  map[string]int64
	refunded map[string]int64

	err          error
	initErrCode  string
	confirmCode  string
	cancelStatus string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		amounts:  make(map[string]int64),
		refunded: make(map[string]int64),
	}
}

func (g *fakeGateway) record(method, paymentID string, amount *int64) {
	g.calls = append(g.calls, gatewayCall{Method: method, PaymentID: paymentID, Amount: amount})
}

func (g *fakeGateway) Init(ctx context.Context, req gateway.InitRequest) (*gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	amount := req.Amount
	g.record("Init", "", &amount)
	if g.err != nil {
		return nil, g.err
	}
	if g.initErrCode != "" {
		return &gateway.Response{Success: false, ErrorCode: g.initErrCode}, nil
	}
	g.nextID++
	id := fmt.Sprintf("pay-%d", g.nextID)
	g.amounts[id] = req.Amount
	return &gateway.Response{
		Success:    true,
		ErrorCode:  "0",
		Status:     gateway.StatusNew,
		PaymentID:  gateway.FlexString(id),
		OrderID:    req.OrderID,
		Amount:     req.Amount,
		PaymentURL: "https://pay.example/" + id,
	}, nil
}

func (g *fakeGateway) Charge(ctx context.Context, paymentID, rebillID string) (*gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("Charge", paymentID, nil)
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.Response{Success: true, Status: gateway.StatusAuthorized, PaymentID: gateway.FlexString(paymentID)}, nil
}

func (g *fakeGateway) Confirm(ctx context.Context, paymentID string, amount int64) (*gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("Confirm", paymentID, &amount)
	if g.err != nil {
		return nil, g.err
	}
	if g.confirmCode != "" {
		return &gateway.Response{Success: false, ErrorCode: g.confirmCode, PaymentID: gateway.FlexString(paymentID)}, nil
	}
	return &gateway.Response{Success: true, Status: gateway.StatusConfirmed, PaymentID: gateway.FlexString(paymentID)}, nil
}

func (g *fakeGateway) Cancel(ctx context.Context, paymentID string, amount *int64) (*gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("Cancel", paymentID, amount)
	if g.err != nil {
		return nil, g.err
	}
	if g.cancelStatus != "" {
		return &gateway.Response{Success: true, Status: g.cancelStatus, PaymentID: gateway.FlexString(paymentID)}, nil
	}

	original := g.amounts[paymentID]
	if amount == nil {
		return &gateway.Response{Success: true, Status: gateway.StatusReversed, OriginalAmount: original}, nil
	}
	// OriginalAmount is what the payment held before this call
	before := original - g.refunded[paymentID]
	g.refunded[paymentID] += *amount
	resp := &gateway.Response{Success: true, PaymentID: gateway.FlexString(paymentID), OriginalAmount: before}
	if g.refunded[paymentID] >= original {
		resp.Status = gateway.StatusRefunded
	} else {
		resp.Status = gateway.StatusPartialRefunded
		resp.NewAmount = original - g.refunded[paymentID]
	}
	return resp, nil
}

func (g *fakeGateway) methods() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.calls))
	for _, c := range g.calls {
		out = append(out, c.Method)
	}
	return out
}

func (g *fakeGateway) callsOf(method string) []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []gatewayCall
	for _, c := range g.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// recordingProducer запоминает типы опубликованных событий
type recordingProducer struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingProducer) PublishSessionEvent(ctx context.Context, eventType string, s *domain.ParkingSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingProducer) PublishPaymentEvent(ctx context.Context, eventType string, o *domain.Order, pay *domain.Payment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) has(eventType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == eventType {
			return true
		}
	}
	return false
}

// tickingClock каждый вызов сдвигает время на секунду
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

const (
	testClientID  = int64(5)
	testParkingID = int64(10)
)

type fixture struct {
	billing  *Billing
	gw       *fakeGateway
	events   *recordingProducer
	clock    *tickingClock
	sessions *repository.InMemorySessionRepository
	orders   *repository.InMemoryOrderRepository
	payments *repository.InMemoryPaymentRepository
	dir      *repository.InMemoryDirectory
	vendor   *domain.Vendor
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNop()

	f := &fixture{
		gw:       newFakeGateway(),
		events:   &recordingProducer{},
		clock:    &tickingClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		sessions: repository.NewInMemorySessionRepository(log),
		orders:   repository.NewInMemoryOrderRepository(log),
		payments: repository.NewInMemoryPaymentRepository(log),
		dir:      repository.NewInMemoryDirectory(),
		vendor:   &domain.Vendor{ID: 1, Name: "acme", Secret: "vendor-secret"},
	}
	f.dir.AddVendor(*f.vendor)
	f.dir.AddParking(domain.Parking{ID: testParkingID, Name: "Central", VendorID: 1, MaxClientDebt: decimal.NewFromInt(100)})
	f.dir.AddParking(domain.Parking{ID: 20, Name: "Foreign", VendorID: 2, MaxClientDebt: decimal.NewFromInt(100)})

	f.billing = NewBilling(
		Repositories{
			Sessions: f.sessions,
			Orders:   f.orders,
			Payments: f.payments,
			Parkings: f.dir.Parkings(),
			Vendors:  f.dir.Vendors(),
			Cards:    f.dir.Cards(),
		},
		f.gw,
		lock.NewLocalLocker(lock.Options{Wait: time.Second}),
		f.events,
		metrics.NewNopBillingMetrics(),
		Config{},
		log,
	)
	f.billing.now = f.clock.Now
	return f
}

func (f *fixture) bindCard(t *testing.T) {
	t.Helper()
	require.NoError(t, f.dir.Cards().Save(context.Background(), &domain.CreditCard{
		ClientID: testClientID, CardID: "card-1", Pan: "430000******0777", RebillID: "rebill-1", IsDefault: true,
	}))
}

// seedSession сохраняет сессию в заданном состоянии в обход сервиса
func (f *fixture) seedSession(t *testing.T, state domain.SessionState, debt string) *domain.ParkingSession {
	t.Helper()
	f.seq++
	s := domain.NewVendorSession(testParkingID, testClientID, fmt.Sprintf("seed-%d", f.seq), f.clock.Now())
	s.State = state
	s.Debt = decimal.RequireFromString(debt)
	require.NoError(t, f.sessions.Create(context.Background(), s))
	return s
}

// seedOrder создает заказ с платежом в указанном статусе
func (f *fixture) seedOrder(t *testing.T, s *domain.ParkingSession, sum string, status domain.PaymentStatus) (*domain.Order, *domain.Payment) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	order := domain.NewSessionOrder(s, decimal.RequireFromString(sum), now)
	switch status {
	case domain.PaymentStatusAuthorized:
		order.MarkAuthorized(now)
	case domain.PaymentStatusConfirmed:
		order.MarkPaid(now)
	}
	require.NoError(t, f.orders.Create(ctx, order))

	f.seq++
	payment := domain.NewPayment(order.ID, now)
	payment.PaymentID = fmt.Sprintf("seeded-%d", f.seq)
	payment.Status = status
	require.NoError(t, f.payments.Create(ctx, payment))

	f.gw.mu.Lock()
	f.gw.amounts[payment.PaymentID] = domain.ToMinorUnits(order.Sum)
	f.gw.mu.Unlock()
	return order, payment
}

func (f *fixture) sessionOrders(t *testing.T, sessionID int64) []*domain.Order {
	t.Helper()
	orders, err := f.orders.ListBySession(context.Background(), sessionID)
	require.NoError(t, err)
	return orders
}

func (f *fixture) session(t *testing.T, id int64) *domain.ParkingSession {
	t.Helper()
	s, err := f.sessions.GetByID(context.Background(), id)
	require.NoError(t, err)
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
