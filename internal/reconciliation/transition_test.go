package reconciliation

import (
	"errors"
	"testing"

	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingState(attempt int) models.ReconciliationState {
	return models.ReconciliationState{
		Reference: models.PaymentReference{CartID: "CART_1"},
		Status:    models.ReconciliationPending,
		Attempt:   attempt,
	}
}

func TestTransition_Table(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: 1, MaxDelay: 1, Multiplier: 1, LookupTimeout: 1}

	tests := []struct {
		name        string
		state       models.ReconciliationState
		outcome     Outcome
		wantStatus  models.ReconciliationStatus
		wantEffect  Effect
		wantAttempt int
	}{
		{
			name:        "booking found settles",
			state:       pendingState(1),
			outcome:     BookingFound(booking("BK-1")),
			wantStatus:  models.ReconciliationSuccess,
			wantEffect:  EffectStop,
			wantAttempt: 1,
		},
		{
			name:        "succeeded without booking keeps polling",
			state:       pendingState(0),
			outcome:     PaymentSucceededNoBookingYet("BK-2"),
			wantStatus:  models.ReconciliationPending,
			wantEffect:  EffectScheduleNext,
			wantAttempt: 1,
		},
		{
			name:        "pending keeps polling",
			state:       pendingState(1),
			outcome:     PaymentPending(),
			wantStatus:  models.ReconciliationPending,
			wantEffect:  EffectScheduleNext,
			wantAttempt: 2,
		},
		{
			name:        "explicit failure is terminal",
			state:       pendingState(1),
			outcome:     PaymentFailed("DECLINED"),
			wantStatus:  models.ReconciliationFailed,
			wantEffect:  EffectStop,
			wantAttempt: 1,
		},
		{
			name:        "lookup error keeps polling",
			state:       pendingState(0),
			outcome:     LookupError(errors.New("connection refused")),
			wantStatus:  models.ReconciliationPending,
			wantEffect:  EffectScheduleNext,
			wantAttempt: 1,
		},
		{
			name:        "ceiling reached while pending",
			state:       pendingState(2),
			outcome:     PaymentPending(),
			wantStatus:  models.ReconciliationNeedsManualVerification,
			wantEffect:  EffectExposeManualVerify,
			wantAttempt: 3,
		},
		{
			name:        "ceiling reached by lookup error",
			state:       pendingState(2),
			outcome:     LookupError(errors.New("timeout")),
			wantStatus:  models.ReconciliationNeedsManualVerification,
			wantEffect:  EffectExposeManualVerify,
			wantAttempt: 3,
		},
		{
			name:        "manual state ignores pending",
			state:       models.ReconciliationState{Status: models.ReconciliationNeedsManualVerification, Attempt: 3},
			outcome:     PaymentPending(),
			wantStatus:  models.ReconciliationNeedsManualVerification,
			wantEffect:  EffectNone,
			wantAttempt: 3,
		},
		{
			name:        "manual state accepts booking",
			state:       models.ReconciliationState{Status: models.ReconciliationNeedsManualVerification, Attempt: 3},
			outcome:     BookingFound(booking("BK-3")),
			wantStatus:  models.ReconciliationSuccess,
			wantEffect:  EffectStop,
			wantAttempt: 3,
		},
		{
			name:        "failed state ignores lookup error",
			state:       models.ReconciliationState{Status: models.ReconciliationFailed, Attempt: 1},
			outcome:     LookupError(errors.New("boom")),
			wantStatus:  models.ReconciliationFailed,
			wantEffect:  EffectNone,
			wantAttempt: 1,
		},
		{
			name:       "success ignores failure",
			state:      models.ReconciliationState{Status: models.ReconciliationSuccess, Booking: booking("BK-4")},
			outcome:    PaymentFailed("DECLINED"),
			wantStatus: models.ReconciliationSuccess,
			wantEffect: EffectNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Transition(tt.state, tt.outcome, policy)
			assert.Equal(t, tt.state.Status, tr.From)
			assert.Equal(t, tt.wantStatus, tr.To)
			assert.Equal(t, tt.wantStatus, tr.State.Status)
			assert.Equal(t, tt.wantEffect, tr.Effect)
			assert.Equal(t, tt.wantAttempt, tr.State.Attempt)
		})
	}
}

func TestTransition_LookupErrorBookkeeping(t *testing.T) {
	policy := PendingPolicy()

	tr := Transition(pendingState(0), LookupError(errors.New("dial tcp: connection refused")), policy)
	assert.Equal(t, 1, tr.State.ErrorCount)
	assert.Contains(t, tr.State.LastError, "connection refused")

	tr = Transition(tr.State, PaymentPending(), policy)
	assert.Empty(t, tr.State.LastError, "a successful lookup clears the last error")
	assert.Equal(t, 1, tr.State.ErrorCount)
}

func TestTransition_FailureReasonInLastError(t *testing.T) {
	tr := Transition(pendingState(0), PaymentFailed("DECLINED"), ConfirmationPolicy())
	assert.Equal(t, "DECLINED", tr.State.FailureReason)
	assert.Contains(t, tr.State.LastError, "DECLINED")
}

func TestTransition_KeepsBookingHint(t *testing.T) {
	tr := Transition(pendingState(0), PaymentSucceededNoBookingYet("BK-77"), PendingPolicy())
	assert.Equal(t, "BK-77", tr.State.BookingHint)

	tr = Transition(tr.State, PaymentPending(), PendingPolicy())
	assert.Equal(t, "BK-77", tr.State.BookingHint)
}

func TestTransition_SecondBookingIgnored(t *testing.T) {
	first := Transition(pendingState(1), BookingFound(booking("BK-A")), PendingPolicy())
	require.Equal(t, models.ReconciliationSuccess, first.To)

	second := Transition(first.State, BookingFound(booking("BK-B")), PendingPolicy())
	assert.False(t, second.Changed())
	assert.Equal(t, EffectNone, second.Effect)
	assert.Equal(t, "BK-A", second.State.Booking.BookID)
}

func TestTransition_NilBookingIsNoop(t *testing.T) {
	tr := Transition(pendingState(1), BookingFound(nil), PendingPolicy())
	assert.Equal(t, models.ReconciliationPending, tr.To)
	assert.Equal(t, EffectNone, tr.Effect)
}
