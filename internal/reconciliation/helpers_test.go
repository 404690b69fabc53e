package reconciliation

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/sirupsen/logrus"
)

var testStart = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// fakeGateway answers with ErrNotFound unless a handler is set
type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	bookingByID   func(ctx context.Context, id string) (*models.Booking, error)
	bookingByCart func(ctx context.Context, cartID string) (*models.Booking, error)
	cartStatus    func(ctx context.Context, q StatusQuery) (*models.PaymentStatusResult, error)
	paymentStatus func(ctx context.Context, paymentID string) (*models.PaymentStatusResult, error)
	latest        func(ctx context.Context) (*models.Booking, error)
	verify        func(ctx context.Context, cartID string) (*models.VerifyResult, error)
	retry         func(ctx context.Context, paymentID string) (*models.WebhookRetryResult, error)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: make(map[string]int)}
}

func (g *fakeGateway) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[name]++
	return g.calls[name]
}

func (g *fakeGateway) Calls(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *fakeGateway) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	g.count("booking_by_id")
	if g.bookingByID == nil {
		return nil, models.ErrNotFound
	}
	return g.bookingByID(ctx, id)
}

func (g *fakeGateway) GetBookingByCart(ctx context.Context, cartID string) (*models.Booking, error) {
	g.count("booking_by_cart")
	if g.bookingByCart == nil {
		return nil, models.ErrNotFound
	}
	return g.bookingByCart(ctx, cartID)
}

func (g *fakeGateway) GetCartPaymentStatus(ctx context.Context, q StatusQuery) (*models.PaymentStatusResult, error) {
	g.count("cart_status")
	if g.cartStatus == nil {
		return nil, models.ErrNotFound
	}
	return g.cartStatus(ctx, q)
}

func (g *fakeGateway) GetPaymentStatus(ctx context.Context, paymentID string) (*models.PaymentStatusResult, error) {
	g.count("payment_status")
	if g.paymentStatus == nil {
		return nil, models.ErrNotFound
	}
	return g.paymentStatus(ctx, paymentID)
}

func (g *fakeGateway) GetLatestBooking(ctx context.Context) (*models.Booking, error) {
	g.count("latest")
	if g.latest == nil {
		return nil, models.ErrNotFound
	}
	return g.latest(ctx)
}

func (g *fakeGateway) VerifyAndComplete(ctx context.Context, cartID string) (*models.VerifyResult, error) {
	g.count("verify")
	if g.verify == nil {
		return nil, models.ErrNotFound
	}
	return g.verify(ctx, cartID)
}

func (g *fakeGateway) RetryWebhook(ctx context.Context, paymentID string) (*models.WebhookRetryResult, error) {
	g.count("retry")
	if g.retry == nil {
		return &models.WebhookRetryResult{Acknowledged: true}, nil
	}
	return g.retry(ctx, paymentID)
}

// memoryAudit collects audit entries
type memoryAudit struct {
	mu      sync.Mutex
	entries []*models.ReconciliationAudit
}

func (m *memoryAudit) Record(_ context.Context, entry *models.ReconciliationAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryAudit) Count(eventType models.ReconciliationEventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupEngine(t *testing.T, gw Gateway, policy Policy) (*Engine, *ManualClock, *memoryAudit) {
	t.Helper()
	clock := NewManualClock(testStart)
	audit := &memoryAudit{}
	engine := NewEngine(gw, policy,
		WithClock(clock),
		WithLogger(quietLogger()),
		WithAuditRecorder(audit),
	)
	t.Cleanup(engine.Cancel)
	return engine, clock, audit
}

func statusResult(status models.RemotePaymentStatus, created bool, bookingID string) *models.PaymentStatusResult {
	return &models.PaymentStatusResult{PaymentStatus: status, BookingCreated: created, BookingID: bookingID}
}

func booking(id string) *models.Booking {
	return &models.Booking{BookID: id}
}
