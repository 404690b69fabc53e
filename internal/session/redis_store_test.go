package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T, ttl time.Duration) (*RedisReferenceStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRedisReferenceStore(client, "checkout:ref:", ttl, logger), server
}

func TestRedisReferenceStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, server := setupRedisStore(t, 30*time.Minute)

	_, err := store.Get(ctx, "session-1")
	assert.ErrorIs(t, err, ErrReferenceNotFound)

	ref := models.PaymentReference{PaymentID: "PAY-1", CartID: "CART_1", BookingID: "BK-1"}
	require.NoError(t, store.Set(ctx, "session-1", ref))

	got, err := store.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, ref, got)

	assert.True(t, server.Exists("checkout:ref:session-1"))
	assert.Equal(t, "CART_1", server.HGet("checkout:ref:session-1", "cart_id"))
	assert.Equal(t, 30*time.Minute, server.TTL("checkout:ref:session-1"))
}

func TestRedisReferenceStore_SetReplacesFields(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisStore(t, 0)

	require.NoError(t, store.Set(ctx, "s", models.PaymentReference{PaymentID: "PAY-OLD", CartID: "CART_OLD"}))
	require.NoError(t, store.Set(ctx, "s", models.PaymentReference{CartID: "CART_NEW"}))

	got, err := store.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentReference{CartID: "CART_NEW"}, got)
}

func TestRedisReferenceStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, server := setupRedisStore(t, time.Minute)

	require.NoError(t, store.Set(ctx, "s", models.PaymentReference{CartID: "CART_1"}))
	server.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "s")
	assert.ErrorIs(t, err, ErrReferenceNotFound)
}

func TestRedisReferenceStore_Clear(t *testing.T) {
	ctx := context.Background()
	store, server := setupRedisStore(t, time.Minute)

	require.NoError(t, store.Set(ctx, "s", models.PaymentReference{CartID: "CART_1"}))
	require.NoError(t, store.Clear(ctx, "s"))
	assert.False(t, server.Exists("checkout:ref:s"))
}

func TestRedisReferenceStore_ConnectionError(t *testing.T) {
	store, server := setupRedisStore(t, time.Minute)
	server.Close()

	_, err := store.Get(context.Background(), "s")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReferenceNotFound)
}

func TestNewRedisClient(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+server.Addr()+"/0")
	require.NoError(t, err)
	client.Close()

	_, err = NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}
