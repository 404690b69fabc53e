package reconciliation

import (
	"context"

	"github.com/poojaseva/checkout-reconciler/internal/models"
)

// StatusQuery selects a cart payment status by cart id or merchant order id
type StatusQuery struct {
	CartID          string
	MerchantOrderID string
}

// Gateway is the remote booking/payment API consumed by the engine.
// Lookups return models.ErrNotFound when the record does not exist yet.
type Gateway interface {
	GetBookingByID(ctx context.Context, bookingID string) (*models.Booking, error)
	GetBookingByCart(ctx context.Context, cartID string) (*models.Booking, error)
	GetCartPaymentStatus(ctx context.Context, query StatusQuery) (*models.PaymentStatusResult, error)
	GetPaymentStatus(ctx context.Context, paymentID string) (*models.PaymentStatusResult, error)
	GetLatestBooking(ctx context.Context) (*models.Booking, error)
	VerifyAndComplete(ctx context.Context, cartID string) (*models.VerifyResult, error)
	RetryWebhook(ctx context.Context, paymentID string) (*models.WebhookRetryResult, error)
}
