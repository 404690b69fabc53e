package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/poojaseva/checkout-reconciler/internal/models"
)

// lookupChain walks the identifiers of one reference in priority order:
// booking id, cart / merchant order status, legacy payment id, and finally
// the user's most recent booking.
type lookupChain struct {
	gateway     Gateway
	ref         models.PaymentReference
	bookingHint string
	allowLatest bool

	transportErr error
}

// run returns the first definitive outcome. Not-found answers mean the
// booking is not there yet; any other error is remembered and only reported
// when nothing definitive was learned.
func (l *lookupChain) run(ctx context.Context) Outcome {
	if outcome, ok := l.byBookingID(ctx); ok {
		return outcome
	}

	if l.ref.CartID != "" || l.ref.MerchantOrderID != "" {
		if outcome, ok := l.byCart(ctx); ok {
			return outcome
		}
	}
	if l.ref.PaymentID != "" {
		if outcome, ok := l.byPaymentID(ctx); ok {
			return outcome
		}
	}

	if l.transportErr != nil {
		return LookupError(l.transportErr)
	}
	return PaymentPending()
}

func (l *lookupChain) byBookingID(ctx context.Context) (Outcome, bool) {
	bookingID := l.ref.BookingID
	if bookingID == "" {
		bookingID = l.bookingHint
	}
	if bookingID == "" {
		return Outcome{}, false
	}
	booking, err := l.gateway.GetBookingByID(ctx, bookingID)
	if l.record(err) && booking != nil {
		return BookingFound(booking), true
	}
	return Outcome{}, false
}

func (l *lookupChain) byCart(ctx context.Context) (Outcome, bool) {
	status, err := l.gateway.GetCartPaymentStatus(ctx, StatusQuery{
		CartID:          l.ref.CartID,
		MerchantOrderID: l.ref.MerchantOrderID,
	})
	if !l.record(err) || status == nil {
		// The status endpoint may lag the booking table
		if booking, ok := l.bookingForCart(ctx); ok {
			return BookingFound(booking), true
		}
		return Outcome{}, false
	}
	return l.fromStatus(ctx, status, false), true
}

func (l *lookupChain) byPaymentID(ctx context.Context) (Outcome, bool) {
	status, err := l.gateway.GetPaymentStatus(ctx, l.ref.PaymentID)
	if !l.record(err) || status == nil {
		if booking, ok := l.latestBooking(ctx); ok {
			return BookingFound(booking), true
		}
		return Outcome{}, false
	}
	return l.fromStatus(ctx, status, true), true
}

func (l *lookupChain) fromStatus(ctx context.Context, status *models.PaymentStatusResult, legacy bool) Outcome {
	switch status.PaymentStatus {
	case models.RemotePaymentFailed:
		reason := status.FailureReason
		if reason == "" {
			reason = string(models.RemotePaymentFailed)
		}
		return PaymentFailed(reason)

	case models.RemotePaymentSuccess:
		if status.BookingID != "" {
			booking, err := l.gateway.GetBookingByID(ctx, status.BookingID)
			if l.record(err) && booking != nil {
				return BookingFound(booking)
			}
		}
		if status.BookingCreated || status.BookingID == "" {
			if booking, ok := l.bookingForCart(ctx); ok {
				return BookingFound(booking)
			}
		}
		if legacy {
			if booking, ok := l.latestBooking(ctx); ok {
				return BookingFound(booking)
			}
		}
		return PaymentSucceededNoBookingYet(status.BookingID)
	}

	return PaymentPending()
}

func (l *lookupChain) bookingForCart(ctx context.Context) (*models.Booking, bool) {
	if l.ref.CartID == "" {
		return nil, false
	}
	booking, err := l.gateway.GetBookingByCart(ctx, l.ref.CartID)
	if l.record(err) && booking != nil {
		return booking, true
	}
	return nil, false
}

// latestBooking is the racy last resort: only used when the payment id is the
// sole identifier, and only accepted when the booking does not point at
// another payment.
func (l *lookupChain) latestBooking(ctx context.Context) (*models.Booking, bool) {
	if !l.allowLatest || l.ref.HasPreciseIdentifier() || l.bookingHint != "" {
		return nil, false
	}
	booking, err := l.gateway.GetLatestBooking(ctx)
	if !l.record(err) || booking == nil {
		return nil, false
	}
	if !latestBookingPlausible(booking, l.ref) {
		return nil, false
	}
	return booking, true
}

func latestBookingPlausible(booking *models.Booking, ref models.PaymentReference) bool {
	p := booking.Payment
	if p == nil || (p.PaymentID == "" && p.TransactionID == "" && p.MerchantOrderID == "") {
		return true
	}
	return booking.MatchesReference(ref)
}

// record keeps the last transport error and reports whether err was nil
func (l *lookupChain) record(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, models.ErrNotFound) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		l.transportErr = fmt.Errorf("lookup timed out: %w", err)
		return false
	}
	l.transportErr = err
	return false
}
