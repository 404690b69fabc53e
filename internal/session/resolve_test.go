package session

import (
	"context"
	"errors"
	"testing"

	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (models.PaymentReference, error) {
	return models.PaymentReference{}, errors.New("redis: connection refused")
}

func (failingStore) Set(context.Context, string, models.PaymentReference) error {
	return errors.New("redis: connection refused")
}

func (failingStore) Clear(context.Context, string) error { return nil }

func TestResolveReference(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		stored      *models.PaymentReference
		fromURL     models.PaymentReference
		want        models.PaymentReference
		wantStored  models.PaymentReference
		expectError bool
	}{
		{
			name:       "url only is remembered",
			fromURL:    models.PaymentReference{CartID: "CART_1"},
			want:       models.PaymentReference{CartID: "CART_1"},
			wantStored: models.PaymentReference{CartID: "CART_1"},
		},
		{
			name:       "redirect without parameters uses stored reference",
			stored:     &models.PaymentReference{CartID: "CART_2", MerchantOrderID: "MO-2"},
			want:       models.PaymentReference{CartID: "CART_2", MerchantOrderID: "MO-2"},
			wantStored: models.PaymentReference{CartID: "CART_2", MerchantOrderID: "MO-2"},
		},
		{
			name:       "same checkout is merged",
			stored:     &models.PaymentReference{CartID: "CART_3", MerchantOrderID: "MO-3"},
			fromURL:    models.PaymentReference{CartID: "CART_3", PaymentID: "PAY-3"},
			want:       models.PaymentReference{CartID: "CART_3", PaymentID: "PAY-3", MerchantOrderID: "MO-3"},
			wantStored: models.PaymentReference{CartID: "CART_3", PaymentID: "PAY-3", MerchantOrderID: "MO-3"},
		},
		{
			name:       "different checkout replaces stored",
			stored:     &models.PaymentReference{CartID: "CART_OLD", MerchantOrderID: "MO-OLD"},
			fromURL:    models.PaymentReference{CartID: "CART_NEW"},
			want:       models.PaymentReference{CartID: "CART_NEW"},
			wantStored: models.PaymentReference{CartID: "CART_NEW"},
		},
		{
			name:        "nothing anywhere",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryReferenceStore(0)
			if tt.stored != nil {
				require.NoError(t, store.Set(ctx, "session", *tt.stored))
			}

			got, err := ResolveReference(ctx, store, "session", tt.fromURL)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrReferenceNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			stored, err := store.Get(ctx, "session")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStored, stored)
		})
	}
}

func TestResolveReference_StoreUnavailable(t *testing.T) {
	ctx := context.Background()

	ref, err := ResolveReference(ctx, failingStore{}, "session", models.PaymentReference{PaymentID: "77"})
	require.NoError(t, err)
	assert.Equal(t, "77", ref.PaymentID)

	_, err = ResolveReference(ctx, failingStore{}, "session", models.PaymentReference{})
	assert.Error(t, err)
}

func TestResolveReference_WithoutStore(t *testing.T) {
	ref, err := ResolveReference(context.Background(), nil, "", models.PaymentReference{CartID: "C"})
	require.NoError(t, err)
	assert.Equal(t, "C", ref.CartID)
}
