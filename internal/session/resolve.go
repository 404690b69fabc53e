package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/poojaseva/checkout-reconciler/internal/models"
)

// ResolveReference prefers identifiers from the URL and remembers them for the
// session; without any it falls back to the stored reference. Identifiers
// missing from the URL are filled from the stored reference only when both
// describe the same checkout (a shared identifier matches).
func ResolveReference(ctx context.Context, store ReferenceStore, sessionKey string, fromURL models.PaymentReference) (models.PaymentReference, error) {
	if store == nil || sessionKey == "" {
		if fromURL.IsEmpty() {
			return models.PaymentReference{}, ErrReferenceNotFound
		}
		return fromURL, nil
	}

	stored, err := store.Get(ctx, sessionKey)
	if err != nil && !errors.Is(err, ErrReferenceNotFound) {
		if !fromURL.IsEmpty() {
			// The URL alone is enough; the store is only a fallback
			return fromURL, nil
		}
		return models.PaymentReference{}, err
	}

	if fromURL.IsEmpty() {
		if stored.IsEmpty() {
			return models.PaymentReference{}, ErrReferenceNotFound
		}
		return stored, nil
	}

	ref := fromURL
	if sameCheckout(fromURL, stored) {
		ref = fromURL.Merge(stored)
	}
	if err := store.Set(ctx, sessionKey, ref); err != nil {
		return ref, fmt.Errorf("failed to remember payment reference: %w", err)
	}
	return ref, nil
}

func sameCheckout(a, b models.PaymentReference) bool {
	switch {
	case a.CartID != "" && a.CartID == b.CartID:
		return true
	case a.MerchantOrderID != "" && a.MerchantOrderID == b.MerchantOrderID:
		return true
	case a.PaymentID != "" && a.PaymentID == b.PaymentID:
		return true
	case a.BookingID != "" && a.BookingID == b.BookingID:
		return true
	}
	return false
}
