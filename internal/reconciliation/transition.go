package reconciliation

import (
	"fmt"

	"github.com/poojaseva/checkout-reconciler/internal/models"
)

// Effect is the scheduling consequence of a transition
type Effect int

const (
	EffectNone Effect = iota
	EffectScheduleNext
	EffectStop
	EffectExposeManualVerify
)

func (e Effect) String() string {
	switch e {
	case EffectScheduleNext:
		return "schedule_next"
	case EffectStop:
		return "stop"
	case EffectExposeManualVerify:
		return "expose_manual_verify"
	}
	return "none"
}

// StateTransition is the result of applying one outcome
type StateTransition struct {
	From    models.ReconciliationStatus
	To      models.ReconciliationStatus
	Outcome Outcome
	Effect  Effect
	State   models.ReconciliationState
}

// Changed reports whether the status moved
func (t StateTransition) Changed() bool {
	return t.From != t.To
}

// Transition is the single decision table of the workflow. It never touches
// timers or the network; the engine acts on the returned effect.
//
// A found booking always wins: it moves any state other than Success to
// Success, so polling and manual verification converge on the same path.
// Once Success is reached a later booking is ignored.
func Transition(state models.ReconciliationState, outcome Outcome, policy Policy) StateTransition {
	next := state
	tr := StateTransition{From: state.Status, To: state.Status, Outcome: outcome, Effect: EffectNone}

	if outcome.Kind == OutcomeBookingFound {
		if state.Status == models.ReconciliationSuccess || outcome.Booking == nil {
			tr.State = next
			return tr
		}
		next.Status = models.ReconciliationSuccess
		next.Booking = outcome.Booking
		next.LastError = ""
		next.FailureReason = ""
		next.ManualVerifyMessage = ""
		tr.To = next.Status
		tr.Effect = EffectStop
		tr.State = next
		return tr
	}

	// Everything else only moves a reconciliation that is still polling
	if state.Status != models.ReconciliationPending {
		tr.State = next
		return tr
	}

	switch outcome.Kind {
	case OutcomePaymentFailed:
		reason := outcome.Reason
		if reason == "" {
			reason = "payment was not completed"
		}
		next.Status = models.ReconciliationFailed
		next.FailureReason = reason
		next.LastError = "payment failed: " + reason
		tr.To = next.Status
		tr.Effect = EffectStop
		tr.State = next
		return tr

	case OutcomePaymentSucceededNoBookingYet, OutcomePaymentPending:
		next.Attempt++
		next.LastError = ""
		if outcome.BookingHint != "" {
			next.BookingHint = outcome.BookingHint
		}

	default:
		// Unknown outcomes are transport noise: counted, never terminal
		next.Attempt++
		next.ErrorCount++
		switch {
		case outcome.Err != nil:
			next.LastError = outcome.Err.Error()
		case outcome.Kind == OutcomeLookupError:
			next.LastError = "lookup failed"
		default:
			next.LastError = fmt.Sprintf("unknown lookup outcome %d", int(outcome.Kind))
		}
	}

	if next.Attempt >= policy.MaxAttempts {
		next.Status = models.ReconciliationNeedsManualVerification
		tr.To = next.Status
		tr.Effect = EffectExposeManualVerify
		tr.State = next
		return tr
	}

	tr.Effect = EffectScheduleNext
	tr.State = next
	return tr
}
