package reconciliation

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyReference          = errors.New("payment reference has no identifiers")
	ErrAlreadyStarted          = errors.New("reconciliation already started")
	ErrNotStarted              = errors.New("reconciliation not started")
	ErrCancelled               = errors.New("reconciliation cancelled")
	ErrManualVerifyUnavailable = errors.New("manual verification is not available yet")
	ErrCartIDRequired          = errors.New("cart id is required for manual verification")
	ErrPaymentIDRequired       = errors.New("payment id is required for webhook retry")
)

// VerificationError is a failed manual verification. It never implies the
// payment failed: the remote operation may be unavailable.
type VerificationError struct {
	CartID  string
	Message string
	Err     error
}

func (e *VerificationError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("manual verification of cart %s failed: %s: %v", e.CartID, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("manual verification of cart %s failed: %v", e.CartID, e.Err)
	case e.Message != "":
		return fmt.Sprintf("manual verification of cart %s failed: %s", e.CartID, e.Message)
	}
	return fmt.Sprintf("manual verification of cart %s failed", e.CartID)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown next to the manual verification action
func (e *VerificationError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "We could not confirm your payment right now. Please try again in a moment or contact support."
}
