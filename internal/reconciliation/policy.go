package reconciliation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/poojaseva/checkout-reconciler/internal/models"
)

// Policy bounds the automatic polling of one screen
type Policy struct {
	MaxAttempts   int           `json:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	Multiplier    float64       `json:"multiplier"`
	LookupTimeout time.Duration `json:"lookup_timeout"`

	// ManualVerifyAfter unlocks manual verification while still Pending. Zero keeps it
	// locked until the attempt ceiling is reached.
	ManualVerifyAfter time.Duration `json:"manual_verify_after"`
	// ManualVerifyOnFailure offers manual verification after an explicit payment failure
	ManualVerifyOnFailure bool `json:"manual_verify_on_failure"`

	AllowLatestBookingFallback bool `json:"allow_latest_booking_fallback"`
}

// ConfirmationPolicy is used right after the gateway redirect: few quick checks
func ConfirmationPolicy() Policy {
	return Policy{
		MaxAttempts:                5,
		InitialDelay:               2 * time.Second,
		MaxDelay:                   2 * time.Second,
		Multiplier:                 1,
		LookupTimeout:              10 * time.Second,
		AllowLatestBookingFallback: true,
	}
}

// PendingPolicy is used by the long-lived pending screen
func PendingPolicy() Policy {
	return Policy{
		MaxAttempts:       20,
		InitialDelay:      3 * time.Second,
		MaxDelay:          15 * time.Second,
		Multiplier:        1.5,
		LookupTimeout:     10 * time.Second,
		ManualVerifyAfter: 60 * time.Second,
	}
}

// FailedPolicy runs one confirming lookup so a false failure redirect is corrected
func FailedPolicy() Policy {
	return Policy{
		MaxAttempts:           1,
		InitialDelay:          2 * time.Second,
		MaxDelay:              2 * time.Second,
		Multiplier:            1,
		LookupTimeout:         10 * time.Second,
		ManualVerifyOnFailure: true,
	}
}

// DefaultPolicies returns the built-in policy of every screen
func DefaultPolicies() map[models.Screen]Policy {
	return map[models.Screen]Policy{
		models.ScreenConfirmation: ConfirmationPolicy(),
		models.ScreenPending:      PendingPolicy(),
		models.ScreenFailed:       FailedPolicy(),
	}
}

// Validate rejects policies that could poll forever or shorten the delay
func (p Policy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts))
	}
	if p.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("initial_delay must not be negative, got %s", p.InitialDelay))
	}
	if p.MaxDelay < p.InitialDelay {
		errs = append(errs, fmt.Errorf("max_delay %s is shorter than initial_delay %s", p.MaxDelay, p.InitialDelay))
	}
	if p.Multiplier < 1 || math.IsNaN(p.Multiplier) || math.IsInf(p.Multiplier, 0) {
		errs = append(errs, fmt.Errorf("multiplier must be a finite value >= 1, got %v", p.Multiplier))
	}
	if p.LookupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lookup_timeout must be positive, got %s", p.LookupTimeout))
	}
	if p.ManualVerifyAfter < 0 {
		errs = append(errs, fmt.Errorf("manual_verify_after must not be negative, got %s", p.ManualVerifyAfter))
	}
	return errors.Join(errs...)
}

// Delay returns the wait before the lookup following the given attempt (1-based).
// The sequence is non-decreasing and never exceeds MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if delay >= float64(p.MaxDelay) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		return p.MaxDelay
	}
	if delay < float64(p.InitialDelay) {
		return p.InitialDelay
	}
	return time.Duration(delay)
}

// manualVerifyAvailable decides whether the manual action may be offered for the state
func (p Policy) manualVerifyAvailable(status models.ReconciliationStatus, elapsed time.Duration) bool {
	switch status {
	case models.ReconciliationNeedsManualVerification:
		return true
	case models.ReconciliationPending:
		return p.ManualVerifyAfter > 0 && elapsed >= p.ManualVerifyAfter
	case models.ReconciliationFailed:
		return p.ManualVerifyOnFailure
	}
	return false
}
