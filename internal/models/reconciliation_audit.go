package models

import (
	"time"

	"github.com/google/uuid"
)

// ReconciliationEventType represents the type of reconciliation event
type ReconciliationEventType string

const (
	ReconciliationEventStarted            ReconciliationEventType = "reconciliation_started"
	ReconciliationEventLookup             ReconciliationEventType = "lookup_completed"
	ReconciliationEventLookupError        ReconciliationEventType = "lookup_error"
	ReconciliationEventBookingConfirmed   ReconciliationEventType = "booking_confirmed"
	ReconciliationEventPaymentFailed      ReconciliationEventType = "payment_failed"
	ReconciliationEventManualRequired     ReconciliationEventType = "manual_verification_required"
	ReconciliationEventManualVerify       ReconciliationEventType = "manual_verification"
	ReconciliationEventManualVerifyFailed ReconciliationEventType = "manual_verification_failed"
	ReconciliationEventWebhookRetry       ReconciliationEventType = "webhook_retry"
	ReconciliationEventCancelled          ReconciliationEventType = "reconciliation_cancelled"
)

// ReconciliationEventSource identifies who caused the event
type ReconciliationEventSource string

const (
	ReconciliationSourcePolling ReconciliationEventSource = "polling"
	ReconciliationSourceUser    ReconciliationEventSource = "user"
	ReconciliationSourceSystem  ReconciliationEventSource = "system"
)

// ReconciliationAudit represents an immutable audit log entry for a reconciliation
type ReconciliationAudit struct {
	ID               uuid.UUID `json:"id" db:"id"`
	ReconciliationID uuid.UUID `json:"reconciliation_id" db:"reconciliation_id"`
	Screen           string    `json:"screen" db:"screen"`

	// Reference
	PaymentID       *string `json:"payment_id,omitempty" db:"payment_id"`
	CartID          *string `json:"cart_id,omitempty" db:"cart_id"`
	MerchantOrderID *string `json:"merchant_order_id,omitempty" db:"merchant_order_id"`
	BookingID       *string `json:"booking_id,omitempty" db:"booking_id"`

	// Event info
	EventType   ReconciliationEventType   `json:"event_type" db:"event_type"`
	EventSource ReconciliationEventSource `json:"event_source" db:"event_source"`

	// State after the event
	FromStatus *string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   *string `json:"to_status,omitempty" db:"to_status"`
	Attempt    int     `json:"attempt" db:"attempt"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
	Details      JSONB   `json:"details,omitempty" db:"details"`

	// Metadata
	IPAddress *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent *string `json:"user_agent,omitempty" db:"user_agent"`
	Device    JSONB   `json:"device,omitempty" db:"device"`

	ProcessingTimeMs *int      `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// NewReconciliationAudit creates a new audit entry with required fields
func NewReconciliationAudit(reconciliationID uuid.UUID, screen Screen, eventType ReconciliationEventType, source ReconciliationEventSource) *ReconciliationAudit {
	return &ReconciliationAudit{
		ID:               uuid.New(),
		ReconciliationID: reconciliationID,
		Screen:           string(screen),
		EventType:        eventType,
		EventSource:      source,
		CreatedAt:        time.Now(),
	}
}

// SetReference copies the known identifiers
func (a *ReconciliationAudit) SetReference(ref PaymentReference) *ReconciliationAudit {
	a.PaymentID = optionalString(ref.PaymentID)
	a.CartID = optionalString(ref.CartID)
	a.MerchantOrderID = optionalString(ref.MerchantOrderID)
	a.BookingID = optionalString(ref.BookingID)
	return a
}

// SetTransition records the status change and the attempt counter after it
func (a *ReconciliationAudit) SetTransition(from, to ReconciliationStatus, attempt int) *ReconciliationAudit {
	f, t := string(from), string(to)
	a.FromStatus = &f
	a.ToStatus = &t
	a.Attempt = attempt
	return a
}

// SetBookingID overrides the booking id, e.g. once a booking was found
func (a *ReconciliationAudit) SetBookingID(bookingID string) *ReconciliationAudit {
	if bookingID != "" {
		a.BookingID = &bookingID
	}
	return a
}

// SetError sets error information
func (a *ReconciliationAudit) SetError(message string) *ReconciliationAudit {
	if message != "" {
		a.ErrorMessage = &message
	}
	return a
}

// SetDetails attaches free-form event details
func (a *ReconciliationAudit) SetDetails(details map[string]interface{}) *ReconciliationAudit {
	a.Details = JSONB(details)
	return a
}

// SetMetadata sets request metadata
func (a *ReconciliationAudit) SetMetadata(ip, userAgent string, device map[string]interface{}) *ReconciliationAudit {
	a.IPAddress = optionalString(ip)
	a.UserAgent = optionalString(userAgent)
	if len(device) > 0 {
		a.Device = JSONB(device)
	}
	return a
}

// SetProcessingTime calculates and sets processing time
func (a *ReconciliationAudit) SetProcessingTime(startTime time.Time) *ReconciliationAudit {
	durationMs := int(time.Since(startTime).Milliseconds())
	a.ProcessingTimeMs = &durationMs
	return a
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
