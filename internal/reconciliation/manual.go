package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/sirupsen/logrus"
)

// ============================================================================
// MANUAL VERIFICATION
// ============================================================================

// ManualVerify calls the remote verify-and-complete operation exactly once.
// A returned booking, new or already existing, enters the state machine as
// BookingFound. A failure leaves the status untouched and returns a
// *VerificationError. Concurrent calls are not blocked; once one of them has
// set Success the others return the stored booking.
func (e *Engine) ManualVerify(ctx context.Context, cartID string) (*models.Booking, error) {
	e.mu.Lock()
	switch {
	case !e.started:
		e.mu.Unlock()
		return nil, ErrNotStarted
	case e.cancelled:
		e.mu.Unlock()
		return nil, ErrCancelled
	case e.state.Status == models.ReconciliationSuccess && e.state.Booking != nil:
		booking := e.state.Booking
		e.mu.Unlock()
		return booking, nil
	case !e.policy.manualVerifyAvailable(e.state.Status, e.elapsedLocked()):
		e.mu.Unlock()
		return nil, ErrManualVerifyUnavailable
	}
	if cartID == "" {
		cartID = e.state.Reference.CartID
	}
	if cartID == "" {
		e.mu.Unlock()
		return nil, ErrCartIDRequired
	}
	e.manualInFlight++
	gen := e.generation
	from := e.state.Status
	e.mu.Unlock()

	var meta *RequestMetadata
	if m, ok := requestMetadataFrom(ctx); ok {
		meta = &m
	}

	start := time.Now()
	e.logger.WithFields(logrus.Fields{
		"reconciliation_id": e.id,
		"cart_id":           cartID,
		"status":            from,
	}).Info("Manual verification requested")

	booking, err := e.verify(ctx, cartID)

	e.mu.Lock()
	e.manualInFlight--
	if gen != e.generation || e.cancelled {
		e.mu.Unlock()
		return nil, ErrCancelled
	}
	if err != nil {
		var verr *VerificationError
		if !errors.As(err, &verr) {
			verr = &VerificationError{CartID: cartID, Err: err}
		}
		e.state.ManualVerifyMessage = verr.UserMessage()
		state := e.state
		e.mu.Unlock()

		e.logger.WithFields(logrus.Fields{
			"reconciliation_id": e.id,
			"cart_id":           cartID,
			"error":             verr.Error(),
		}).Warn("Manual verification failed")

		entry := models.NewReconciliationAudit(e.id, e.screen, models.ReconciliationEventManualVerifyFailed, models.ReconciliationSourceUser).
			SetReference(state.Reference).
			SetTransition(state.Status, state.Status, state.Attempt).
			SetError(verr.Error()).
			SetProcessingTime(start)
		if meta != nil {
			entry.SetMetadata(meta.IPAddress, meta.UserAgent, meta.Device)
		}
		e.record(entry)
		return nil, verr
	}

	tr := e.applyLocked(BookingFound(booking))
	stored := e.state.Booking
	e.mu.Unlock()

	e.afterTransition(tr, models.ReconciliationSourceUser, meta)

	entry := models.NewReconciliationAudit(e.id, e.screen, models.ReconciliationEventManualVerify, models.ReconciliationSourceUser).
		SetReference(tr.State.Reference).
		SetTransition(from, tr.To, tr.State.Attempt).
		SetBookingID(booking.BookID).
		SetDetails(map[string]interface{}{"applied": tr.Changed()}).
		SetProcessingTime(start)
	if meta != nil {
		entry.SetMetadata(meta.IPAddress, meta.UserAgent, meta.Device)
	}
	e.record(entry)

	return stored, nil
}

// verify turns the remote answer into a booking snapshot
func (e *Engine) verify(ctx context.Context, cartID string) (*models.Booking, error) {
	result, err := e.gateway.VerifyAndComplete(ctx, cartID)
	if err != nil {
		return nil, &VerificationError{CartID: cartID, Err: err}
	}
	if result == nil {
		return nil, &VerificationError{CartID: cartID, Message: "empty verification response"}
	}
	if !result.Success && !result.AlreadyExists {
		return nil, &VerificationError{CartID: cartID, Message: result.Message}
	}
	if result.Booking != nil {
		return result.Booking, nil
	}
	if result.BookingID == "" {
		return nil, &VerificationError{CartID: cartID, Message: "verification succeeded without a booking reference"}
	}

	booking, err := e.gateway.GetBookingByID(ctx, result.BookingID)
	if err != nil || booking == nil {
		// The booking exists; the snapshot is filled in on the next read
		e.logger.WithFields(logrus.Fields{
			"reconciliation_id": e.id,
			"booking_id":        result.BookingID,
		}).Warn("Verified booking could not be read back")
		return &models.Booking{BookID: result.BookingID, CartID: cartID}, nil
	}
	return booking, nil
}

// ============================================================================
// WEBHOOK RETRY
// ============================================================================

// RetryWebhook asks the remote side to replay the payment webhook. On an
// acknowledged retry one follow-up lookup runs, unless a lookup is already in flight.
func (e *Engine) RetryWebhook(ctx context.Context) (*models.WebhookRetryResult, error) {
	e.mu.Lock()
	switch {
	case !e.started:
		e.mu.Unlock()
		return nil, ErrNotStarted
	case e.cancelled:
		e.mu.Unlock()
		return nil, ErrCancelled
	}
	ref := e.state.Reference
	status := e.state.Status
	attempt := e.state.Attempt
	e.mu.Unlock()

	if ref.PaymentID == "" {
		return nil, ErrPaymentIDRequired
	}

	start := time.Now()
	result, err := e.gateway.RetryWebhook(ctx, ref.PaymentID)

	entry := models.NewReconciliationAudit(e.id, e.screen, models.ReconciliationEventWebhookRetry, models.ReconciliationSourceUser).
		SetReference(ref).
		SetTransition(status, status, attempt).
		SetProcessingTime(start)
	if m, ok := requestMetadataFrom(ctx); ok {
		entry.SetMetadata(m.IPAddress, m.UserAgent, m.Device)
	}
	if err != nil {
		entry.SetError(err.Error())
		e.record(entry)
		e.logger.WithFields(logrus.Fields{
			"reconciliation_id": e.id,
			"payment_id":        ref.PaymentID,
			"error":             err.Error(),
		}).Warn("Webhook retry failed")
		return nil, fmt.Errorf("failed to retry webhook: %w", err)
	}
	if result == nil {
		result = &models.WebhookRetryResult{}
	}
	entry.SetDetails(map[string]interface{}{
		"acknowledged":   result.Acknowledged,
		"payment_status": string(result.PaymentStatus),
	})
	e.record(entry)

	if result.Acknowledged {
		e.lookupOnce(models.ReconciliationSourceUser, func(s models.ReconciliationStatus) bool {
			return s != models.ReconciliationSuccess
		})
	}
	return result, nil
}
