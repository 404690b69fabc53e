package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/poojaseva/checkout-reconciler/internal/middleware"
	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/poojaseva/checkout-reconciler/internal/reconciliation"
	"github.com/poojaseva/checkout-reconciler/internal/services"
	"github.com/poojaseva/checkout-reconciler/internal/session"
	"github.com/poojaseva/checkout-reconciler/internal/utils"
	"github.com/poojaseva/checkout-reconciler/pkg/validator"
	"github.com/sirupsen/logrus"
)

const (
	sessionHeader = "X-Session-ID"
	sessionCookie = "session_id"

	maxWait = 30 * time.Second
)

// AuditReader lists the audit trail of a reconciliation
type AuditReader interface {
	ListByReconciliation(ctx context.Context, reconciliationID uuid.UUID) ([]models.ReconciliationAudit, error)
}

// ReconciliationHandler serves the booking result screens and the actions offered on them
type ReconciliationHandler struct {
	registry     *reconciliation.Registry
	references   session.ReferenceStore
	audit        AuditReader
	validator    *validator.IdentifierValidator
	logger       *logrus.Logger
	cookieMaxAge int
	secureCookie bool
}

// NewReconciliationHandler creates a new ReconciliationHandler; audit may be nil
func NewReconciliationHandler(
	registry *reconciliation.Registry,
	references session.ReferenceStore,
	audit AuditReader,
	logger *logrus.Logger,
	sessionMaxAge time.Duration,
	secureCookie bool,
) *ReconciliationHandler {
	return &ReconciliationHandler{
		registry:     registry,
		references:   references,
		audit:        audit,
		validator:    validator.NewIdentifierValidator(),
		logger:       logger,
		cookieMaxAge: int(sessionMaxAge.Seconds()),
		secureCookie: secureCookie,
	}
}

// RegisterRoutes mounts the handler on an /api/v1 group
func (h *ReconciliationHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/booking/:screen", h.OpenScreen)

	reconciliations := api.Group("/reconciliations")
	{
		reconciliations.GET("/:id", h.GetReconciliation)
		reconciliations.GET("/:id/audit", h.GetAuditTrail)
		reconciliations.POST("/:id/manual-verify", h.ManualVerify)
		reconciliations.POST("/:id/retry-webhook", h.RetryWebhook)
		reconciliations.DELETE("/:id", h.CancelReconciliation)
	}
}

// ManualVerifyRequest is the optional body of a manual verification
type ManualVerifyRequest struct {
	CartID string `json:"cart_id"`
}

// OpenScreen starts the reconciliation of a result screen
// GET /api/v1/booking/:screen?paymentId=&cartId=&merchantOrderId=&bookId=
func (h *ReconciliationHandler) OpenScreen(c *gin.Context) {
	screen, ok := models.ParseScreen(c.Param("screen"))
	if !ok {
		respondError(c, http.StatusNotFound, "not_found", "Unknown booking screen", "UNKNOWN_SCREEN")
		return
	}

	fields, invalid := h.validator.ValidateFields(map[string]string{
		"paymentId":       c.Query("paymentId"),
		"cartId":          c.Query("cartId"),
		"merchantOrderId": c.Query("merchantOrderId"),
		"bookId":          c.Query("bookId"),
	})
	if len(invalid) > 0 {
		details := make(gin.H, len(invalid))
		for field, err := range invalid {
			details[field] = err.Error()
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid payment reference",
			"code":    "INVALID_IDENTIFIER",
			"details": details,
		})
		return
	}
	fromURL := models.PaymentReference{
		PaymentID:       fields["paymentId"],
		CartID:          fields["cartId"],
		MerchantOrderID: fields["merchantOrderId"],
		BookingID:       fields["bookId"],
	}

	sessionKey := h.ensureSession(c)
	ctx := h.requestContext(c)

	ref, err := session.ResolveReference(ctx, h.references, sessionKey, fromURL)
	switch {
	case errors.Is(err, session.ErrReferenceNotFound):
		respondError(c, http.StatusBadRequest, "invalid_request",
			"No payment reference found. Open this page from the payment gateway redirect.", "MISSING_REFERENCE")
		return
	case err != nil && ref.IsEmpty():
		h.logger.WithError(err).WithField("screen", screen).Error("Failed to load payment reference")
		respondError(c, http.StatusServiceUnavailable, "unavailable", "Could not load your payment reference", "REFERENCE_STORE_UNAVAILABLE")
		return
	case err != nil:
		h.logger.WithError(err).WithField("screen", screen).Warn("Payment reference not remembered for this session")
	}

	engine, err := h.registry.Open(ctx, sessionKey, screen, ref)
	if err != nil {
		if errors.Is(err, reconciliation.ErrEmptyReference) {
			respondError(c, http.StatusBadRequest, "invalid_request", "Payment reference has no identifiers", "MISSING_REFERENCE")
			return
		}
		h.logger.WithError(err).WithField("screen", screen).Error("Failed to start reconciliation")
		respondError(c, http.StatusInternalServerError, "internal_error", "Failed to start reconciliation", "RECONCILIATION_START_FAILED")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"reconciliation_id": engine.ID(),
		"screen":            screen,
		"reference":         ref.String(),
	}).Info("Reconciliation opened")

	c.JSON(http.StatusOK, gin.H{
		"reconciliation_id": engine.ID(),
		"session_id":        sessionKey,
		"view":              engine.View(),
		"state":             engine.Snapshot(),
	})
}

// GetReconciliation returns the current view; ?wait=10s blocks until polling settles
// GET /api/v1/reconciliations/:id
func (h *ReconciliationHandler) GetReconciliation(c *gin.Context) {
	engine, ok := h.engine(c)
	if !ok {
		return
	}

	if raw := c.Query("wait"); raw != "" {
		wait, err := time.ParseDuration(raw)
		if err != nil || wait < 0 {
			respondError(c, http.StatusBadRequest, "invalid_request", "wait must be a duration like 10s", "INVALID_WAIT")
			return
		}
		if wait > maxWait {
			wait = maxWait
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
		// a timeout only means polling is still running
		_, _ = engine.Wait(ctx)
		cancel()
	}

	h.forgetSettledReference(c, engine)
	respondState(c, http.StatusOK, engine, nil)
}

// GetAuditTrail returns the recorded events of a reconciliation
// GET /api/v1/reconciliations/:id/audit
func (h *ReconciliationHandler) GetAuditTrail(c *gin.Context) {
	engine, ok := h.engine(c)
	if !ok {
		return
	}
	if h.audit == nil {
		respondError(c, http.StatusNotFound, "not_found", "Audit trail is not enabled", "AUDIT_DISABLED")
		return
	}

	audits, err := h.audit.ListByReconciliation(c.Request.Context(), engine.ID())
	if err != nil {
		h.logger.WithError(err).WithField("reconciliation_id", engine.ID()).Error("Failed to load audit trail")
		respondError(c, http.StatusInternalServerError, "internal_error", "Failed to load audit trail", "AUDIT_READ_FAILED")
		return
	}
	if audits == nil {
		audits = []models.ReconciliationAudit{}
	}

	c.JSON(http.StatusOK, gin.H{
		"reconciliation_id": engine.ID(),
		"events":            audits,
	})
}

// ManualVerify runs one manual verification
// POST /api/v1/reconciliations/:id/manual-verify
func (h *ReconciliationHandler) ManualVerify(c *gin.Context) {
	engine, ok := h.engine(c)
	if !ok {
		return
	}

	var req ManualVerifyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body", "INVALID_BODY")
			return
		}
	}
	cartID, err := h.validator.Validate(req.CartID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error(), "INVALID_IDENTIFIER")
		return
	}

	booking, err := engine.ManualVerify(h.requestContext(c), cartID)
	if err != nil {
		var verr *reconciliation.VerificationError
		switch {
		case errors.As(err, &verr):
			respondState(c, http.StatusBadGateway, engine, gin.H{
				"error":   "verification_failed",
				"message": verr.UserMessage(),
				"code":    "VERIFICATION_FAILED",
			})
		case errors.Is(err, reconciliation.ErrManualVerifyUnavailable):
			respondState(c, http.StatusConflict, engine, gin.H{
				"error":   "conflict",
				"message": "Manual verification is not available yet",
				"code":    "MANUAL_VERIFY_UNAVAILABLE",
			})
		case errors.Is(err, reconciliation.ErrCartIDRequired):
			respondError(c, http.StatusBadRequest, "invalid_request", "cart_id is required", "CART_ID_REQUIRED")
		default:
			h.respondEngineError(c, engine, err)
		}
		return
	}

	h.forgetSettledReference(c, engine)
	respondState(c, http.StatusOK, engine, gin.H{"booking": booking})
}

// RetryWebhook asks the payment side to replay its webhook
// POST /api/v1/reconciliations/:id/retry-webhook
func (h *ReconciliationHandler) RetryWebhook(c *gin.Context) {
	engine, ok := h.engine(c)
	if !ok {
		return
	}

	result, err := engine.RetryWebhook(h.requestContext(c))
	if err != nil {
		switch {
		case errors.Is(err, reconciliation.ErrPaymentIDRequired):
			respondError(c, http.StatusBadRequest, "invalid_request", "This payment has no payment id to retry", "PAYMENT_ID_REQUIRED")
		case errors.Is(err, reconciliation.ErrCancelled), errors.Is(err, reconciliation.ErrNotStarted):
			h.respondEngineError(c, engine, err)
		default:
			respondState(c, http.StatusBadGateway, engine, gin.H{
				"error":   "upstream_error",
				"message": "Could not retry the payment notification",
				"code":    "WEBHOOK_RETRY_FAILED",
			})
		}
		return
	}

	h.forgetSettledReference(c, engine)
	respondState(c, http.StatusOK, engine, gin.H{"result": result})
}

// CancelReconciliation tears the reconciliation down
// DELETE /api/v1/reconciliations/:id
func (h *ReconciliationHandler) CancelReconciliation(c *gin.Context) {
	engine, ok := h.engine(c)
	if !ok {
		return
	}
	h.registry.Close(engine.ID())

	c.JSON(http.StatusOK, gin.H{
		"reconciliation_id": engine.ID(),
		"cancelled":         true,
	})
}

// ============================================================================
// HELPERS
// ============================================================================

// engine resolves :id for the caller's session and writes the error response itself
func (h *ReconciliationHandler) engine(c *gin.Context) (*reconciliation.Engine, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid reconciliation id", "INVALID_ID")
		return nil, false
	}

	engine, ok := h.registry.Get(id, sessionFrom(c))
	if !ok {
		respondError(c, http.StatusNotFound, "not_found", "Reconciliation not found", "RECONCILIATION_NOT_FOUND")
		return nil, false
	}
	return engine, true
}

// forgetSettledReference drops the remembered reference once the booking is
// confirmed so the next checkout of the session starts clean
func (h *ReconciliationHandler) forgetSettledReference(c *gin.Context, engine *reconciliation.Engine) {
	if engine.Snapshot().Status != models.ReconciliationSuccess {
		return
	}
	if err := h.references.Clear(c.Request.Context(), sessionFrom(c)); err != nil {
		h.logger.WithError(err).WithField("reconciliation_id", engine.ID()).Warn("Failed to clear payment reference")
	}
}

func (h *ReconciliationHandler) respondEngineError(c *gin.Context, engine *reconciliation.Engine, err error) {
	switch {
	case errors.Is(err, reconciliation.ErrCancelled):
		respondError(c, http.StatusGone, "gone", "This reconciliation was closed", "RECONCILIATION_CANCELLED")
	case errors.Is(err, reconciliation.ErrNotStarted):
		respondError(c, http.StatusConflict, "conflict", "Reconciliation has not started", "RECONCILIATION_NOT_STARTED")
	default:
		h.logger.WithError(err).WithField("reconciliation_id", engine.ID()).Error("Reconciliation action failed")
		respondError(c, http.StatusInternalServerError, "internal_error", "Something went wrong", "INTERNAL_ERROR")
	}
}

// ensureSession returns the caller's session key, issuing one when absent
func (h *ReconciliationHandler) ensureSession(c *gin.Context) string {
	if key := sessionFrom(c); key != "" {
		return key
	}
	key := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, key, h.cookieMaxAge, "/", "", h.secureCookie, true)
	c.Header(sessionHeader, key)
	return key
}

func sessionFrom(c *gin.Context) string {
	if key := c.GetHeader(sessionHeader); key != "" {
		return key
	}
	key, _ := c.Cookie(sessionCookie)
	return key
}

// requestContext carries the forwarded bearer token and audit metadata
func (h *ReconciliationHandler) requestContext(c *gin.Context) context.Context {
	ctx := services.WithBearerToken(c.Request.Context(), middleware.GetBearerToken(c))

	userAgent := utils.GetUserAgent(c)
	return reconciliation.WithRequestMetadata(ctx, reconciliation.RequestMetadata{
		IPAddress: utils.GetRealIP(c),
		UserAgent: userAgent,
		Device:    utils.ParseUserAgent(userAgent).ToMap(),
	})
}

func respondState(c *gin.Context, status int, engine *reconciliation.Engine, extra gin.H) {
	body := gin.H{
		"reconciliation_id": engine.ID(),
		"view":              engine.View(),
		"state":             engine.Snapshot(),
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func respondError(c *gin.Context, status int, errorKey, message, code string) {
	c.JSON(status, gin.H{
		"error":   errorKey,
		"message": message,
		"code":    code,
	})
}
