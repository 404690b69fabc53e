package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	hashFieldPaymentID       = "payment_id"
	hashFieldCartID          = "cart_id"
	hashFieldMerchantOrderID = "merchant_order_id"
	hashFieldBookingID       = "booking_id"
	hashFieldUpdatedAt       = "updated_at"
)

// RedisReferenceStore keeps references in a Redis hash per session so every
// server instance can resume a checkout
type RedisReferenceStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisReferenceStore creates a Redis-backed store
func NewRedisReferenceStore(client *redis.Client, prefix string, ttl time.Duration, logger *logrus.Logger) *RedisReferenceStore {
	return &RedisReferenceStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// NewRedisClient parses a redis:// URL and verifies the connection
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisReferenceStore) key(sessionKey string) string {
	return s.prefix + sessionKey
}

func (s *RedisReferenceStore) Get(ctx context.Context, sessionKey string) (models.PaymentReference, error) {
	values, err := s.client.HGetAll(ctx, s.key(sessionKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.PaymentReference{}, ErrReferenceNotFound
		}
		s.logger.WithFields(logrus.Fields{
			"session_key": sessionKey,
			"error":       err.Error(),
		}).Error("Failed to read payment reference from redis")
		return models.PaymentReference{}, fmt.Errorf("failed to get payment reference: %w", err)
	}

	ref := models.PaymentReference{
		PaymentID:       values[hashFieldPaymentID],
		CartID:          values[hashFieldCartID],
		MerchantOrderID: values[hashFieldMerchantOrderID],
		BookingID:       values[hashFieldBookingID],
	}
	if ref.IsEmpty() {
		return models.PaymentReference{}, ErrReferenceNotFound
	}
	return ref, nil
}

func (s *RedisReferenceStore) Set(ctx context.Context, sessionKey string, ref models.PaymentReference) error {
	key := s.key(sessionKey)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		hashFieldPaymentID, ref.PaymentID,
		hashFieldCartID, ref.CartID,
		hashFieldMerchantOrderID, ref.MerchantOrderID,
		hashFieldBookingID, ref.BookingID,
		hashFieldUpdatedAt, time.Now().UTC().Format(time.RFC3339),
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithFields(logrus.Fields{
			"session_key": sessionKey,
			"error":       err.Error(),
		}).Error("Failed to store payment reference in redis")
		return fmt.Errorf("failed to set payment reference: %w", err)
	}
	return nil
}

func (s *RedisReferenceStore) Clear(ctx context.Context, sessionKey string) error {
	if err := s.client.Del(ctx, s.key(sessionKey)).Err(); err != nil {
		return fmt.Errorf("failed to clear payment reference: %w", err)
	}
	return nil
}
