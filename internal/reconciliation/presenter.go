package reconciliation

import (
	"fmt"

	"github.com/poojaseva/checkout-reconciler/internal/models"
)

// ActionKind is a forward action offered to the user
type ActionKind string

const (
	ActionViewBooking    ActionKind = "view_booking"
	ActionGoHome         ActionKind = "go_home"
	ActionRefresh        ActionKind = "refresh"
	ActionManualVerify   ActionKind = "manual_verify"
	ActionRetryWebhook   ActionKind = "retry_webhook"
	ActionReturnToCart   ActionKind = "return_to_cart"
	ActionContactSupport ActionKind = "contact_support"
)

// Action is one button of a view
type Action struct {
	Kind    ActionKind `json:"kind"`
	Label   string     `json:"label"`
	Enabled bool       `json:"enabled"`
}

// BookingSummary is the part of a booking shown on the confirmation view
type BookingSummary struct {
	BookID        string   `json:"book_id"`
	Services      []string `json:"services,omitempty"`
	TransactionID string   `json:"transaction_id,omitempty"`
	PaymentMethod string   `json:"payment_method,omitempty"`
	PaymentStatus string   `json:"payment_status,omitempty"`
	Total         float64  `json:"total_amount,omitempty"`
	Currency      string   `json:"currency,omitempty"`
}

// ViewModel is the presentation contract of one reconciliation state
type ViewModel struct {
	Status         models.ReconciliationStatus `json:"status"`
	Headline       string                      `json:"headline"`
	Detail         string                      `json:"detail"`
	Notice         string                      `json:"notice,omitempty"`
	Actions        []Action                    `json:"actions"`
	Booking        *BookingSummary             `json:"booking,omitempty"`
	Attempt        int                         `json:"attempt"`
	ElapsedSeconds float64                     `json:"elapsed_seconds"`
}

// HasForwardAction reports whether at least one enabled action exists
func (v ViewModel) HasForwardAction() bool {
	for _, a := range v.Actions {
		if a.Enabled {
			return true
		}
	}
	return false
}

// Present maps a state to exactly one view. It has no side effects.
func Present(state models.ReconciliationState) ViewModel {
	view := ViewModel{
		Status:         state.Status,
		Attempt:        state.Attempt,
		ElapsedSeconds: state.ElapsedSeconds,
		Notice:         state.ManualVerifyMessage,
	}

	switch state.Status {
	case models.ReconciliationSuccess:
		view.Headline = "Booking confirmed"
		view.Detail = "Your payment was received and your booking is confirmed."
		view.Booking = summarize(state.Booking)
		if view.Booking != nil {
			view.Detail = fmt.Sprintf("Your payment was received and booking %s is confirmed.", view.Booking.BookID)
		}
		view.Notice = ""
		view.Actions = []Action{
			{Kind: ActionViewBooking, Label: "View booking", Enabled: view.Booking != nil},
			{Kind: ActionGoHome, Label: "Continue browsing", Enabled: true},
		}

	case models.ReconciliationPending:
		view.Headline = "Confirming your payment"
		view.Detail = "We are waiting for the payment gateway to confirm your payment. This usually takes less than a minute."
		if state.LastError != "" {
			view.Detail = "We are having trouble reaching the booking service. We will keep trying automatically."
		}
		view.Actions = []Action{
			{Kind: ActionRefresh, Label: "Check again", Enabled: true},
			manualVerifyAction(state),
		}
		if state.Reference.PaymentID != "" {
			view.Actions = append(view.Actions, Action{Kind: ActionRetryWebhook, Label: "Resend payment confirmation", Enabled: true})
		}
		view.Actions = append(view.Actions, contactSupport())

	case models.ReconciliationNeedsManualVerification:
		view.Headline = "We need a moment longer"
		view.Detail = "Your payment may have gone through but we could not confirm the booking automatically. Verify the payment to complete your booking."
		view.Actions = []Action{manualVerifyAction(state)}
		if state.Reference.PaymentID != "" {
			view.Actions = append(view.Actions, Action{Kind: ActionRetryWebhook, Label: "Resend payment confirmation", Enabled: true})
		}
		view.Actions = append(view.Actions,
			Action{Kind: ActionReturnToCart, Label: "Back to cart", Enabled: true},
			contactSupport(),
		)

	case models.ReconciliationFailed:
		view.Headline = "Payment failed"
		view.Detail = "Your payment could not be completed. No booking was made."
		if state.FailureReason != "" {
			view.Detail = fmt.Sprintf("Your payment could not be completed (%s). No booking was made.", state.FailureReason)
		}
		view.Actions = []Action{
			{Kind: ActionReturnToCart, Label: "Try again", Enabled: true},
		}
		if state.ManualVerifyAvailable {
			view.Actions = append(view.Actions, manualVerifyAction(state))
		}
		view.Actions = append(view.Actions, contactSupport())

	default:
		view.Headline = "Something went wrong"
		view.Detail = "We could not determine the status of your payment."
		view.Actions = []Action{
			{Kind: ActionRefresh, Label: "Check again", Enabled: true},
			contactSupport(),
		}
	}

	return view
}

func manualVerifyAction(state models.ReconciliationState) Action {
	return Action{
		Kind:    ActionManualVerify,
		Label:   "Verify payment",
		Enabled: state.ManualVerifyAvailable && !state.ManualVerifyInFlight,
	}
}

func contactSupport() Action {
	return Action{Kind: ActionContactSupport, Label: "Contact support", Enabled: true}
}

func summarize(b *models.Booking) *BookingSummary {
	if b == nil {
		return nil
	}
	s := &BookingSummary{
		BookID:   b.BookID,
		Total:    b.Total,
		Currency: b.Currency,
	}
	for _, svc := range b.Services {
		s.Services = append(s.Services, svc.Name)
	}
	if b.Payment != nil {
		s.TransactionID = b.Payment.TransactionID
		s.PaymentMethod = b.Payment.Method
		s.PaymentStatus = b.Payment.Status
	}
	return s
}
