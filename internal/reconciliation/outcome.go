package reconciliation

import (
	"fmt"

	"github.com/poojaseva/checkout-reconciler/internal/models"
)

// OutcomeKind classifies the result of one lookup or manual verification
type OutcomeKind int

const (
	OutcomeBookingFound OutcomeKind = iota + 1
	OutcomePaymentSucceededNoBookingYet
	OutcomePaymentPending
	OutcomePaymentFailed
	OutcomeLookupError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeBookingFound:
		return "booking_found"
	case OutcomePaymentSucceededNoBookingYet:
		return "payment_succeeded_no_booking_yet"
	case OutcomePaymentPending:
		return "payment_pending"
	case OutcomePaymentFailed:
		return "payment_failed"
	case OutcomeLookupError:
		return "lookup_error"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is what a lookup learned about the payment
type Outcome struct {
	Kind    OutcomeKind
	Booking *models.Booking
	Reason  string
	Err     error

	// BookingHint is a booking id reported before the booking itself was readable
	BookingHint string
}

func BookingFound(booking *models.Booking) Outcome {
	return Outcome{Kind: OutcomeBookingFound, Booking: booking}
}

func PaymentSucceededNoBookingYet(bookingHint string) Outcome {
	return Outcome{Kind: OutcomePaymentSucceededNoBookingYet, BookingHint: bookingHint}
}

func PaymentPending() Outcome {
	return Outcome{Kind: OutcomePaymentPending}
}

func PaymentFailed(reason string) Outcome {
	return Outcome{Kind: OutcomePaymentFailed, Reason: reason}
}

func LookupError(err error) Outcome {
	return Outcome{Kind: OutcomeLookupError, Err: err}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeBookingFound:
		if o.Booking != nil {
			return fmt.Sprintf("%s(%s)", o.Kind, o.Booking.BookID)
		}
	case OutcomePaymentFailed:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
	case OutcomeLookupError:
		return fmt.Sprintf("%s(%v)", o.Kind, o.Err)
	}
	return o.Kind.String()
}
