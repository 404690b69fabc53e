package reconciliation

import (
	"context"
	"errors"
	"testing"

	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestLookupChain(t *testing.T) {
	transport := errors.New("dial tcp 10.0.0.1:443: connection refused")

	tests := []struct {
		name        string
		ref         models.PaymentReference
		hint        string
		allowLatest bool
		setup       func(gw *fakeGateway)
		wantKind    OutcomeKind
		wantBooking string
		wantCalls   map[string]int
	}{
		{
			name: "booking id found first",
			ref:  models.PaymentReference{BookingID: "BK-1", CartID: "CART_1"},
			setup: func(gw *fakeGateway) {
				gw.bookingByID = func(_ context.Context, id string) (*models.Booking, error) { return booking(id), nil }
			},
			wantKind:    OutcomeBookingFound,
			wantBooking: "BK-1",
			wantCalls:   map[string]int{"booking_by_id": 1, "cart_status": 0},
		},
		{
			name: "booking id missing falls through to cart status",
			ref:  models.PaymentReference{BookingID: "BK-2", CartID: "CART_2"},
			setup: func(gw *fakeGateway) {
				gw.cartStatus = func(_ context.Context, _ StatusQuery) (*models.PaymentStatusResult, error) {
					return statusResult(models.RemotePaymentPending, false, ""), nil
				}
			},
			wantKind:  OutcomePaymentPending,
			wantCalls: map[string]int{"booking_by_id": 1, "cart_status": 1},
		},
		{
			name: "hint is used as booking id",
			ref:  models.PaymentReference{CartID: "CART_3"},
			hint: "BK-3",
			setup: func(gw *fakeGateway) {
				gw.bookingByID = func(_ context.Context, id string) (*models.Booking, error) { return booking(id), nil }
			},
			wantKind:    OutcomeBookingFound,
			wantBooking: "BK-3",
		},
		{
			name: "merchant order status failed",
			ref:  models.PaymentReference{MerchantOrderID: "MO-4"},
			setup: func(gw *fakeGateway) {
				gw.cartStatus = func(_ context.Context, q StatusQuery) (*models.PaymentStatusResult, error) {
					if q.MerchantOrderID != "MO-4" {
						return nil, models.ErrNotFound
					}
					return &models.PaymentStatusResult{PaymentStatus: models.RemotePaymentFailed, FailureReason: "INSUFFICIENT_FUNDS"}, nil
				}
			},
			wantKind: OutcomePaymentFailed,
		},
		{
			name: "status endpoint down but booking readable by cart",
			ref:  models.PaymentReference{CartID: "CART_5"},
			setup: func(gw *fakeGateway) {
				gw.cartStatus = func(_ context.Context, _ StatusQuery) (*models.PaymentStatusResult, error) { return nil, transport }
				gw.bookingByCart = func(_ context.Context, _ string) (*models.Booking, error) { return booking("BK-5"), nil }
			},
			wantKind:    OutcomeBookingFound,
			wantBooking: "BK-5",
		},
		{
			name: "status endpoint down and nothing found",
			ref:  models.PaymentReference{CartID: "CART_6"},
			setup: func(gw *fakeGateway) {
				gw.cartStatus = func(_ context.Context, _ StatusQuery) (*models.PaymentStatusResult, error) { return nil, transport }
			},
			wantKind: OutcomeLookupError,
		},
		{
			name: "success with booking created reads booking by cart",
			ref:  models.PaymentReference{CartID: "CART_7"},
			setup: func(gw *fakeGateway) {
				gw.cartStatus = func(_ context.Context, _ StatusQuery) (*models.PaymentStatusResult, error) {
					return statusResult(models.RemotePaymentSuccess, true, ""), nil
				}
				gw.bookingByCart = func(_ context.Context, _ string) (*models.Booking, error) { return booking("BK-7"), nil }
			},
			wantKind:    OutcomeBookingFound,
			wantBooking: "BK-7",
		},
		{
			name: "cart reference never uses latest booking",
			ref:  models.PaymentReference{CartID: "CART_8", PaymentID: "PAY-8"},
			setup: func(gw *fakeGateway) {
				gw.cartStatus = func(_ context.Context, _ StatusQuery) (*models.PaymentStatusResult, error) {
					return statusResult(models.RemotePaymentSuccess, false, ""), nil
				}
				gw.latest = func(_ context.Context) (*models.Booking, error) { return booking("BK-WRONG"), nil }
			},
			allowLatest: true,
			wantKind:    OutcomePaymentSucceededNoBookingYet,
			wantCalls:   map[string]int{"latest": 0, "payment_status": 0},
		},
		{
			name: "cart not found falls through to payment id",
			ref:  models.PaymentReference{CartID: "CART_15", PaymentID: "77"},
			setup: func(gw *fakeGateway) {
				gw.paymentStatus = func(_ context.Context, id string) (*models.PaymentStatusResult, error) {
					if id != "77" {
						return nil, models.ErrNotFound
					}
					return &models.PaymentStatusResult{PaymentStatus: models.RemotePaymentFailed, FailureReason: "DECLINED"}, nil
				}
			},
			wantKind:  OutcomePaymentFailed,
			wantCalls: map[string]int{"cart_status": 1, "booking_by_cart": 1, "payment_status": 1},
		},
		{
			name: "cart reference keeps latest booking blocked after payment id",
			ref:  models.PaymentReference{MerchantOrderID: "MO-16", PaymentID: "PAY-16"},
			setup: func(gw *fakeGateway) {
				gw.paymentStatus = func(_ context.Context, _ string) (*models.PaymentStatusResult, error) {
					return statusResult(models.RemotePaymentSuccess, false, ""), nil
				}
				gw.latest = func(_ context.Context) (*models.Booking, error) { return booking("BK-WRONG"), nil }
			},
			allowLatest: true,
			wantKind:    OutcomePaymentSucceededNoBookingYet,
			wantCalls:   map[string]int{"payment_status": 1, "latest": 0},
		},
		{
			name: "payment id only accepts matching latest booking",
			ref:  models.PaymentReference{PaymentID: "PAY-9"},
			setup: func(gw *fakeGateway) {
				gw.paymentStatus = func(_ context.Context, _ string) (*models.PaymentStatusResult, error) {
					return statusResult(models.RemotePaymentSuccess, false, ""), nil
				}
				gw.latest = func(_ context.Context) (*models.Booking, error) {
					return &models.Booking{BookID: "BK-9", Payment: &models.BookingPayment{PaymentID: "PAY-9"}}, nil
				}
			},
			allowLatest: true,
			wantKind:    OutcomeBookingFound,
			wantBooking: "BK-9",
		},
		{
			name: "latest booking of another payment is rejected",
			ref:  models.PaymentReference{PaymentID: "PAY-10"},
			setup: func(gw *fakeGateway) {
				gw.paymentStatus = func(_ context.Context, _ string) (*models.PaymentStatusResult, error) {
					return statusResult(models.RemotePaymentSuccess, false, ""), nil
				}
				gw.latest = func(_ context.Context) (*models.Booking, error) {
					return &models.Booking{BookID: "BK-OTHER", Payment: &models.BookingPayment{PaymentID: "PAY-11"}}, nil
				}
			},
			allowLatest: true,
			wantKind:    OutcomePaymentSucceededNoBookingYet,
		},
		{
			name: "latest booking disabled by policy",
			ref:  models.PaymentReference{PaymentID: "PAY-12"},
			setup: func(gw *fakeGateway) {
				gw.paymentStatus = func(_ context.Context, _ string) (*models.PaymentStatusResult, error) {
					return statusResult(models.RemotePaymentSuccess, false, ""), nil
				}
			},
			wantKind:  OutcomePaymentSucceededNoBookingYet,
			wantCalls: map[string]int{"latest": 0},
		},
		{
			name: "pending payment never falls back",
			ref:  models.PaymentReference{PaymentID: "PAY-13"},
			setup: func(gw *fakeGateway) {
				gw.paymentStatus = func(_ context.Context, _ string) (*models.PaymentStatusResult, error) {
					return statusResult(models.RemotePaymentPending, false, ""), nil
				}
			},
			allowLatest: true,
			wantKind:    OutcomePaymentPending,
			wantCalls:   map[string]int{"latest": 0},
		},
		{
			name:     "everything not found yet",
			ref:      models.PaymentReference{CartID: "CART_14"},
			setup:    func(gw *fakeGateway) {},
			wantKind: OutcomePaymentPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			tt.setup(gw)

			chain := &lookupChain{gateway: gw, ref: tt.ref, bookingHint: tt.hint, allowLatest: tt.allowLatest}
			outcome := chain.run(context.Background())

			assert.Equal(t, tt.wantKind, outcome.Kind, outcome.String())
			if tt.wantBooking != "" {
				if assert.NotNil(t, outcome.Booking) {
					assert.Equal(t, tt.wantBooking, outcome.Booking.BookID)
				}
			}
			for name, want := range tt.wantCalls {
				assert.Equal(t, want, gw.Calls(name), "calls to %s", name)
			}
		})
	}
}

func TestPerformLookup_DoesNotChangeState(t *testing.T) {
	gw := newFakeGateway()
	gw.cartStatus = func(_ context.Context, _ StatusQuery) (*models.PaymentStatusResult, error) {
		return &models.PaymentStatusResult{PaymentStatus: models.RemotePaymentFailed}, nil
	}
	engine, _, _ := setupEngine(t, gw, PendingPolicy())
	if err := engine.Start(models.PaymentReference{CartID: "CART_P"}); err != nil {
		t.Fatal(err)
	}

	outcome := engine.PerformLookup(context.Background())
	assert.Equal(t, OutcomePaymentFailed, outcome.Kind)
	assert.Equal(t, models.ReconciliationPending, engine.Snapshot().Status)
}
