package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/poojaseva/checkout-reconciler/internal/config"
	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/poojaseva/checkout-reconciler/internal/reconciliation"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// BookingAPIService talks to the remote booking/payment API
type BookingAPIService struct {
	config  *config.BookingAPIConfig
	logger  *logrus.Logger
	client  *http.Client
	limiter *rate.Limiter
}

var _ reconciliation.Gateway = (*BookingAPIService)(nil)

// APIError is a non-2xx answer of the booking API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("booking API returned status %d for %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("booking API returned status %d for %s", e.StatusCode, e.Endpoint)
}

// Unwrap maps 404 onto models.ErrNotFound
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return models.ErrNotFound
	}
	return nil
}

// apiEnvelope is the response wrapper used by every booking API route
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// paymentStatusPayload is the wire form of a payment/cart status
type paymentStatusPayload struct {
	PaymentStatus  string `json:"payment_status"`
	BookingCreated bool   `json:"booking_created"`
	BookingID      string `json:"booking_id,omitempty"`
	FailureReason  string `json:"failure_reason,omitempty"`
	TransactionID  string `json:"transaction_id,omitempty"`
}

type verifyRequest struct {
	CartID string `json:"cart_id"`
}

type verifyPayload struct {
	Booking       *models.Booking `json:"booking,omitempty"`
	BookingID     string          `json:"booking_id,omitempty"`
	AlreadyExists bool            `json:"already_exists"`
}

type webhookRetryPayload struct {
	PaymentStatus string `json:"payment_status,omitempty"`
}

type bearerTokenKey struct{}

// WithBearerToken forwards the customer's access token on calls made with ctx
func WithBearerToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerTokenKey{}, token)
}

func bearerToken(ctx context.Context) string {
	token, _ := ctx.Value(bearerTokenKey{}).(string)
	return token
}

// NewBookingAPIService creates a new booking API client
func NewBookingAPIService(cfg *config.BookingAPIConfig, logger *logrus.Logger) *BookingAPIService {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &BookingAPIService{
		config:  cfg,
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetBookingByID fetches a booking snapshot by its booking id
func (s *BookingAPIService) GetBookingByID(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	if _, err := s.do(ctx, http.MethodGet, "/bookings/"+url.PathEscape(bookingID), nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetBookingByCart fetches the booking created for a cart
func (s *BookingAPIService) GetBookingByCart(ctx context.Context, cartID string) (*models.Booking, error) {
	var booking models.Booking
	if _, err := s.do(ctx, http.MethodGet, "/bookings/by-cart/"+url.PathEscape(cartID), nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetLatestBooking fetches the most recent booking of the forwarded customer
func (s *BookingAPIService) GetLatestBooking(ctx context.Context) (*models.Booking, error) {
	var booking models.Booking
	if _, err := s.do(ctx, http.MethodGet, "/bookings/latest", nil, &booking); err != nil {
		return nil, err
	}
	if booking.BookID == "" {
		return nil, models.ErrNotFound
	}
	return &booking, nil
}

// GetCartPaymentStatus queries the payment status of a cart or merchant order
func (s *BookingAPIService) GetCartPaymentStatus(ctx context.Context, query reconciliation.StatusQuery) (*models.PaymentStatusResult, error) {
	params := url.Values{}
	if query.CartID != "" {
		params.Set("cart_id", query.CartID)
	}
	if query.MerchantOrderID != "" {
		params.Set("merchant_order_id", query.MerchantOrderID)
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("cart status lookup needs a cart id or merchant order id")
	}

	var payload paymentStatusPayload
	if _, err := s.do(ctx, http.MethodGet, "/payments/cart-status?"+params.Encode(), nil, &payload); err != nil {
		return nil, err
	}
	return payload.toResult(), nil
}

// GetPaymentStatus queries the legacy payment-id status
func (s *BookingAPIService) GetPaymentStatus(ctx context.Context, paymentID string) (*models.PaymentStatusResult, error) {
	var payload paymentStatusPayload
	if _, err := s.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID)+"/status", nil, &payload); err != nil {
		return nil, err
	}
	return payload.toResult(), nil
}

// VerifyAndComplete asks the API to verify the payment with the gateway and
// create the booking. An already existing booking is reported, not rejected.
func (s *BookingAPIService) VerifyAndComplete(ctx context.Context, cartID string) (*models.VerifyResult, error) {
	var payload verifyPayload
	envelope, err := s.do(ctx, http.MethodPost, "/payments/verify-and-complete", &verifyRequest{CartID: cartID}, &payload)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict && envelope != nil {
			// 409 carries the existing booking
			if decodeErr := decodeData(envelope.Data, &payload); decodeErr == nil {
				return payload.toResult(true, envelope.Message), nil
			}
			return &models.VerifyResult{AlreadyExists: true, Message: envelope.Message}, nil
		}
		var rejected *rejectedError
		if errors.As(err, &rejected) {
			return &models.VerifyResult{Success: false, Message: rejected.message}, nil
		}
		return nil, err
	}
	return payload.toResult(false, envelope.Message), nil
}

// RetryWebhook asks the API to replay the gateway webhook for a payment
func (s *BookingAPIService) RetryWebhook(ctx context.Context, paymentID string) (*models.WebhookRetryResult, error) {
	var payload webhookRetryPayload
	envelope, err := s.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/retry-webhook", nil, &payload)
	if err != nil {
		var rejected *rejectedError
		if errors.As(err, &rejected) {
			return &models.WebhookRetryResult{Acknowledged: false, Message: rejected.message}, nil
		}
		return nil, err
	}
	result := &models.WebhookRetryResult{Acknowledged: true, Message: envelope.Message}
	if payload.PaymentStatus != "" {
		result.PaymentStatus = models.ParseRemotePaymentStatus(payload.PaymentStatus)
	}
	return result, nil
}

// rejectedError is a 2xx envelope with success=false
type rejectedError struct {
	message string
}

func (e *rejectedError) Error() string {
	return "booking API rejected the request: " + e.message
}

// do performs one throttled request and decodes the envelope's data into out.
// The envelope is returned whenever a body could be parsed, also on errors.
func (s *BookingAPIService) do(ctx context.Context, method, path string, body interface{}, out interface{}) (*apiEnvelope, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	endpoint := s.config.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := bearerToken(ctx)
	if token == "" {
		token = s.config.ServiceToken
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"method":   method,
			"endpoint": path,
			"error":    err.Error(),
		}).Warn("Booking API request failed")
		return nil, fmt.Errorf("failed to call booking API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"method":      method,
		"endpoint":    path,
		"status_code": resp.StatusCode,
		"latency_ms":  time.Since(start).Milliseconds(),
	}).Debug("Booking API response received")

	var envelope apiEnvelope
	parsed := len(raw) > 0 && json.Unmarshal(raw, &envelope) == nil

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw), Endpoint: path}
		if parsed {
			apiErr.Message = envelope.Message
			apiErr.Code = envelope.Code
			return &envelope, apiErr
		}
		return nil, apiErr
	}

	if !parsed {
		return nil, fmt.Errorf("failed to parse response from %s", path)
	}
	if !envelope.Success {
		return &envelope, &rejectedError{message: envelope.Message}
	}
	if out != nil {
		if err := decodeData(envelope.Data, out); err != nil {
			return &envelope, fmt.Errorf("failed to parse response data from %s: %w", path, err)
		}
	}
	return &envelope, nil
}

func decodeData(data json.RawMessage, out interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return models.ErrNotFound
	}
	return json.Unmarshal(data, out)
}

func (p paymentStatusPayload) toResult() *models.PaymentStatusResult {
	return &models.PaymentStatusResult{
		PaymentStatus:  models.ParseRemotePaymentStatus(p.PaymentStatus),
		BookingCreated: p.BookingCreated,
		BookingID:      p.BookingID,
		FailureReason:  p.FailureReason,
		TransactionID:  p.TransactionID,
	}
}

func (p verifyPayload) toResult(conflict bool, message string) *models.VerifyResult {
	result := &models.VerifyResult{
		Success:       !conflict,
		AlreadyExists: conflict || p.AlreadyExists,
		Booking:       p.Booking,
		BookingID:     p.BookingID,
		Message:       message,
	}
	if result.Booking != nil && result.BookingID == "" {
		result.BookingID = result.Booking.BookID
	}
	return result
}
