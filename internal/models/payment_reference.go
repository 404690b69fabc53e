package models

import "strings"

// PaymentReference identifies one payment attempt across the gateway redirect.
// It is immutable once a reconciliation has started.
type PaymentReference struct {
	PaymentID       string `json:"payment_id,omitempty"`
	CartID          string `json:"cart_id,omitempty"`
	MerchantOrderID string `json:"merchant_order_id,omitempty"`
	BookingID       string `json:"booking_id,omitempty"` // Set when the gateway redirect already carries bookId
}

// IsEmpty reports whether no identifier is known
func (r PaymentReference) IsEmpty() bool {
	return r.PaymentID == "" && r.CartID == "" && r.MerchantOrderID == "" && r.BookingID == ""
}

// HasPreciseIdentifier reports whether the reference can be looked up without
// falling back to the user's most recent booking
func (r PaymentReference) HasPreciseIdentifier() bool {
	return r.BookingID != "" || r.CartID != "" || r.MerchantOrderID != ""
}

// Merge fills empty fields of r from other and returns the result
func (r PaymentReference) Merge(other PaymentReference) PaymentReference {
	if r.PaymentID == "" {
		r.PaymentID = other.PaymentID
	}
	if r.CartID == "" {
		r.CartID = other.CartID
	}
	if r.MerchantOrderID == "" {
		r.MerchantOrderID = other.MerchantOrderID
	}
	if r.BookingID == "" {
		r.BookingID = other.BookingID
	}
	return r
}

// String renders the known identifiers for logs
func (r PaymentReference) String() string {
	parts := make([]string, 0, 4)
	if r.BookingID != "" {
		parts = append(parts, "booking_id="+r.BookingID)
	}
	if r.CartID != "" {
		parts = append(parts, "cart_id="+r.CartID)
	}
	if r.MerchantOrderID != "" {
		parts = append(parts, "merchant_order_id="+r.MerchantOrderID)
	}
	if r.PaymentID != "" {
		parts = append(parts, "payment_id="+r.PaymentID)
	}
	if len(parts) == 0 {
		return "<empty>"
	}
	return strings.Join(parts, " ")
}
