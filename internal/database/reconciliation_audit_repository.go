package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/sirupsen/logrus"
)

// ReconciliationAuditRepository stores the reconciliation audit trail
type ReconciliationAuditRepository struct {
	db     DB
	logger *logrus.Logger
}

// NewReconciliationAuditRepository creates a new reconciliation audit repository
func NewReconciliationAuditRepository(db DB, logger *logrus.Logger) *ReconciliationAuditRepository {
	return &ReconciliationAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Record inserts an audit entry
func (r *ReconciliationAuditRepository) Record(ctx context.Context, audit *models.ReconciliationAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO reconciliation_audits (
			id, reconciliation_id, screen,
			payment_id, cart_id, merchant_order_id, booking_id,
			event_type, event_source,
			from_status, to_status, attempt,
			error_message, details,
			ip_address, user_agent, device,
			processing_time_ms, created_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9,
			$10, $11, $12,
			$13, $14,
			$15, $16, $17,
			$18, $19
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.ReconciliationID, audit.Screen,
		audit.PaymentID, audit.CartID, audit.MerchantOrderID, audit.BookingID,
		audit.EventType, audit.EventSource,
		audit.FromStatus, audit.ToStatus, audit.Attempt,
		audit.ErrorMessage, audit.Details,
		audit.IPAddress, audit.UserAgent, audit.Device,
		audit.ProcessingTimeMs, audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":        audit.EventType,
			"reconciliation_id": audit.ReconciliationID,
		}).Error("Failed to record reconciliation audit")
		return fmt.Errorf("failed to record reconciliation audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":          audit.ID,
		"event_type":        audit.EventType,
		"reconciliation_id": audit.ReconciliationID,
	}).Debug("Reconciliation audit recorded")

	return nil
}

// ListByReconciliation returns the audit trail of one reconciliation, oldest first
func (r *ReconciliationAuditRepository) ListByReconciliation(ctx context.Context, reconciliationID uuid.UUID) ([]models.ReconciliationAudit, error) {
	var audits []models.ReconciliationAudit
	query := `
		SELECT id, reconciliation_id, screen,
			payment_id, cart_id, merchant_order_id, booking_id,
			event_type, event_source,
			from_status, to_status, attempt,
			error_message, details,
			ip_address, user_agent, device,
			processing_time_ms, created_at
		FROM reconciliation_audits
		WHERE reconciliation_id = $1
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &audits, query, reconciliationID); err != nil {
		return nil, fmt.Errorf("failed to get reconciliation audit trail: %w", err)
	}
	return audits, nil
}

// CountByEventType counts entries of one type since a point in time
func (r *ReconciliationAuditRepository) CountByEventType(ctx context.Context, eventType models.ReconciliationEventType, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM reconciliation_audits WHERE event_type = $1 AND created_at >= $2`

	if err := r.db.GetContext(ctx, &count, query, eventType, since); err != nil {
		return 0, fmt.Errorf("failed to count reconciliation audits: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes entries created before the cutoff
func (r *ReconciliationAuditRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reconciliation_audits WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune reconciliation audits: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read pruned row count: %w", err)
	}
	return deleted, nil
}
