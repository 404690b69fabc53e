package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/poojaseva/checkout-reconciler/internal/config"
	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/poojaseva/checkout-reconciler/internal/reconciliation"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBookingAPITest(t *testing.T, handler http.HandlerFunc) *BookingAPIService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.BookingAPIConfig{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
		Burst:   1,
	}
	return NewBookingAPIService(cfg, logger)
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": success,
		"data":    data,
		"message": message,
	})
}

func TestBookingAPI_GetBookingByID(t *testing.T) {
	service := setupBookingAPITest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/bookings/BK-0001", r.URL.Path)
		assert.Equal(t, "Bearer customer-token", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, true, map[string]interface{}{
			"bookId": "BK-0001",
			"cartId": "CART_123",
			"payment": map[string]interface{}{
				"transactionId": "TXN-9",
				"status":        "SUCCESS",
				"method":        "upi",
			},
		}, "")
	})

	ctx := WithBearerToken(context.Background(), "customer-token")
	booking, err := service.GetBookingByID(ctx, "BK-0001")
	require.NoError(t, err)
	assert.Equal(t, "BK-0001", booking.BookID)
	assert.Equal(t, "CART_123", booking.CartID)
	require.NotNil(t, booking.Payment)
	assert.Equal(t, "TXN-9", booking.Payment.TransactionID)
}

func TestBookingAPI_NotFound(t *testing.T) {
	service := setupBookingAPITest(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, false, nil, "Booking not found")
	})

	_, err := service.GetBookingByCart(context.Background(), "CART_404")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Booking not found", apiErr.Message)
}

func TestBookingAPI_ServerErrorIsNotNotFound(t *testing.T) {
	service := setupBookingAPITest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})

	_, err := service.GetPaymentStatus(context.Background(), "77")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
	assert.Contains(t, err.Error(), "502")
}

func TestBookingAPI_GetCartPaymentStatus(t *testing.T) {
	tests := []struct {
		name       string
		query      reconciliation.StatusQuery
		rawStatus  string
		wantQuery  string
		wantStatus models.RemotePaymentStatus
	}{
		{
			name:       "cart id success",
			query:      reconciliation.StatusQuery{CartID: "CART_123"},
			rawStatus:  "SUCCESS",
			wantQuery:  "cart_id=CART_123",
			wantStatus: models.RemotePaymentSuccess,
		},
		{
			name:       "merchant order declined",
			query:      reconciliation.StatusQuery{MerchantOrderID: "MO-1"},
			rawStatus:  "declined",
			wantQuery:  "merchant_order_id=MO-1",
			wantStatus: models.RemotePaymentFailed,
		},
		{
			name:       "unknown status stays pending",
			query:      reconciliation.StatusQuery{CartID: "CART_7"},
			rawStatus:  "INITIATED",
			wantQuery:  "cart_id=CART_7",
			wantStatus: models.RemotePaymentPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := setupBookingAPITest(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/payments/cart-status", r.URL.Path)
				assert.Equal(t, tt.wantQuery, r.URL.RawQuery)
				writeEnvelope(w, http.StatusOK, true, map[string]interface{}{
					"payment_status":  tt.rawStatus,
					"booking_created": false,
				}, "")
			})

			result, err := service.GetCartPaymentStatus(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.PaymentStatus)
		})
	}
}

func TestBookingAPI_GetCartPaymentStatusNeedsIdentifier(t *testing.T) {
	service := setupBookingAPITest(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := service.GetCartPaymentStatus(context.Background(), reconciliation.StatusQuery{})
	assert.Error(t, err)
}

func TestBookingAPI_VerifyAndComplete(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		success       bool
		data          interface{}
		message       string
		wantSuccess   bool
		wantExists    bool
		wantBookingID string
	}{
		{
			name:          "booking created",
			status:        http.StatusOK,
			success:       true,
			data:          map[string]interface{}{"booking": map[string]interface{}{"bookId": "BK-NEW"}},
			wantSuccess:   true,
			wantBookingID: "BK-NEW",
		},
		{
			name:          "already exists in body",
			status:        http.StatusOK,
			success:       true,
			data:          map[string]interface{}{"booking_id": "BK-OLD", "already_exists": true},
			wantSuccess:   true,
			wantExists:    true,
			wantBookingID: "BK-OLD",
		},
		{
			name:          "already exists as conflict",
			status:        http.StatusConflict,
			success:       false,
			data:          map[string]interface{}{"booking": map[string]interface{}{"bookId": "BK-409"}},
			message:       "Booking already exists",
			wantExists:    true,
			wantBookingID: "BK-409",
		},
		{
			name:    "payment not captured",
			status:  http.StatusOK,
			success: false,
			message: "Payment not captured yet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := setupBookingAPITest(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/payments/verify-and-complete", r.URL.Path)
				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "CART_999", body["cart_id"])
				writeEnvelope(w, tt.status, tt.success, tt.data, tt.message)
			})

			result, err := service.VerifyAndComplete(context.Background(), "CART_999")
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantExists, result.AlreadyExists)
			assert.Equal(t, tt.wantBookingID, result.BookingID)
			if tt.message != "" {
				assert.Equal(t, tt.message, result.Message)
			}
		})
	}
}

func TestBookingAPI_VerifyAndCompleteServerError(t *testing.T) {
	service := setupBookingAPITest(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusServiceUnavailable, false, nil, "gateway unavailable")
	})

	_, err := service.VerifyAndComplete(context.Background(), "CART_1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestBookingAPI_RetryWebhook(t *testing.T) {
	service := setupBookingAPITest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments/PAY-1/retry-webhook", r.URL.Path)
		writeEnvelope(w, http.StatusOK, true, map[string]interface{}{"payment_status": "completed"}, "Webhook queued")
	})

	result, err := service.RetryWebhook(context.Background(), "PAY-1")
	require.NoError(t, err)
	assert.True(t, result.Acknowledged)
	assert.Equal(t, models.RemotePaymentSuccess, result.PaymentStatus)
	assert.Equal(t, "Webhook queued", result.Message)
}

func TestBookingAPI_LatestBookingEmpty(t *testing.T) {
	service := setupBookingAPITest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bookings/latest", r.URL.Path)
		writeEnvelope(w, http.StatusOK, true, nil, "")
	})

	_, err := service.GetLatestBooking(context.Background())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBookingAPI_ContextTimeout(t *testing.T) {
	service := setupBookingAPITest(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := service.GetBookingByID(ctx, "BK-SLOW")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBookingAPI_ServiceTokenFallback(t *testing.T) {
	service := setupBookingAPITest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer service-token", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, true, map[string]interface{}{"bookId": "BK-1"}, "")
	})
	service.config.ServiceToken = "service-token"

	_, err := service.GetBookingByID(context.Background(), "BK-1")
	require.NoError(t, err)
}
