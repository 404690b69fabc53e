package models

import (
	"strings"
	"time"
)

// ============================================================================
// BOOKING SNAPSHOT (read-only copy of the remote booking record)
// ============================================================================

// Booking is the durable booking record created server-side once payment is confirmed
type Booking struct {
	BookID    string          `json:"bookId"`
	CartID    string          `json:"cartId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Status    string          `json:"status,omitempty"`
	Services  []BookedService `json:"services,omitempty"`
	Address   *BookingAddress `json:"address,omitempty"`
	Payment   *BookingPayment `json:"payment,omitempty"`
	Total     float64         `json:"totalAmount,omitempty"`
	Currency  string          `json:"currency,omitempty"`
	CreatedAt *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

// BookedService describes one puja/consultation item of the booking
type BookedService struct {
	ServiceID   string     `json:"serviceId"`
	Name        string     `json:"name"`
	Category    string     `json:"category,omitempty"`
	Quantity    int        `json:"quantity,omitempty"`
	Price       float64    `json:"price,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

// BookingAddress is where a physical service or prasad is delivered
type BookingAddress struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// BookingPayment is the payment sub-record attached to a booking
type BookingPayment struct {
	TransactionID   string `json:"transactionId,omitempty"`
	PaymentID       string `json:"paymentId,omitempty"`
	MerchantOrderID string `json:"merchantOrderId,omitempty"`
	Status          string `json:"status,omitempty"`
	Method          string `json:"method,omitempty"`
}

// MatchesReference reports whether the booking can be attributed to ref.
// A booking without any payment identifiers matches nothing but its cart.
func (b *Booking) MatchesReference(ref PaymentReference) bool {
	if b == nil {
		return false
	}
	if ref.BookingID != "" && b.BookID == ref.BookingID {
		return true
	}
	if ref.CartID != "" && b.CartID == ref.CartID {
		return true
	}
	if b.Payment == nil {
		return false
	}
	if ref.PaymentID != "" && (b.Payment.PaymentID == ref.PaymentID || b.Payment.TransactionID == ref.PaymentID) {
		return true
	}
	return ref.MerchantOrderID != "" && b.Payment.MerchantOrderID == ref.MerchantOrderID
}

// ============================================================================
// PAYMENT STATUS (as reported by the remote status lookups)
// ============================================================================

// RemotePaymentStatus is the normalised payment_status of a cart or payment
type RemotePaymentStatus string

const (
	RemotePaymentPending RemotePaymentStatus = "Pending"
	RemotePaymentSuccess RemotePaymentStatus = "Success"
	RemotePaymentFailed  RemotePaymentStatus = "Failed"
)

// ParseRemotePaymentStatus maps the backend's and gateway's spellings onto the three statuses.
// Anything unrecognised is treated as still pending.
func ParseRemotePaymentStatus(raw string) RemotePaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "SUCCEEDED", "COMPLETED", "PAID", "PAYMENT_SUCCESS", "CAPTURED":
		return RemotePaymentSuccess
	case "FAILED", "FAILURE", "DECLINED", "CANCELLED", "CANCELED", "PAYMENT_ERROR", "PAYMENT_DECLINED", "EXPIRED":
		return RemotePaymentFailed
	default:
		return RemotePaymentPending
	}
}

// PaymentStatusResult is returned by the cart / merchant-order / payment-id status lookups
type PaymentStatusResult struct {
	PaymentStatus  RemotePaymentStatus `json:"payment_status"`
	BookingCreated bool                `json:"booking_created"`
	BookingID      string              `json:"booking_id,omitempty"`
	FailureReason  string              `json:"failure_reason,omitempty"`
	TransactionID  string              `json:"transaction_id,omitempty"`
}

// VerifyResult is returned by the verify-and-complete operation
type VerifyResult struct {
	Success       bool     `json:"success"`
	AlreadyExists bool     `json:"already_exists"`
	BookingID     string   `json:"booking_id,omitempty"`
	Booking       *Booking `json:"booking,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// WebhookRetryResult acknowledges a webhook retry request
type WebhookRetryResult struct {
	Acknowledged  bool                `json:"acknowledged"`
	PaymentStatus RemotePaymentStatus `json:"payment_status,omitempty"`
	Message       string              `json:"message,omitempty"`
}
