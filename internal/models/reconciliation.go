package models

import "time"

// ReconciliationStatus is the state of one reconciliation
type ReconciliationStatus string

const (
	ReconciliationPending                 ReconciliationStatus = "pending"
	ReconciliationSuccess                 ReconciliationStatus = "success"
	ReconciliationFailed                  ReconciliationStatus = "failed"
	ReconciliationNeedsManualVerification ReconciliationStatus = "needs_manual_verification"
)

// IsTerminal reports whether no further transition is possible.
// NeedsManualVerification is not terminal: a manual verification may still move it to Success.
func (s ReconciliationStatus) IsTerminal() bool {
	return s == ReconciliationSuccess || s == ReconciliationFailed
}

// IsValid checks the status is one of the known values
func (s ReconciliationStatus) IsValid() bool {
	switch s {
	case ReconciliationPending, ReconciliationSuccess, ReconciliationFailed, ReconciliationNeedsManualVerification:
		return true
	}
	return false
}

// Screen names the view hosting a reconciliation
type Screen string

const (
	ScreenConfirmation Screen = "confirmation"
	ScreenPending      Screen = "pending"
	ScreenFailed       Screen = "failed"
)

// ParseScreen returns the screen for a route segment
func ParseScreen(s string) (Screen, bool) {
	switch Screen(s) {
	case ScreenConfirmation, ScreenPending, ScreenFailed:
		return Screen(s), true
	}
	return "", false
}

// ReconciliationState is a point-in-time copy of an engine's state
type ReconciliationState struct {
	Reference      PaymentReference     `json:"reference"`
	Status         ReconciliationStatus `json:"status"`
	Attempt        int                  `json:"attempt"`
	ErrorCount     int                  `json:"error_count"`
	StartedAt      time.Time            `json:"started_at"`
	SettledAt      *time.Time           `json:"settled_at,omitempty"`
	ElapsedSeconds float64              `json:"elapsed_seconds"`
	LastError      string               `json:"last_error,omitempty"`
	FailureReason  string               `json:"failure_reason,omitempty"`
	Booking        *Booking             `json:"booking,omitempty"`

	// BookingHint is a booking id reported by a status lookup before the booking was readable
	BookingHint string `json:"booking_hint,omitempty"`

	ManualVerifyAvailable bool       `json:"manual_verify_available"`
	ManualVerifyInFlight  bool       `json:"manual_verify_in_flight"`
	ManualVerifyMessage   string     `json:"manual_verify_message,omitempty"`
	NextAttemptAt         *time.Time `json:"next_attempt_at,omitempty"`
}
