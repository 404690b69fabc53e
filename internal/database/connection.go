package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/poojaseva/checkout-reconciler/internal/config"
)

// DB is the subset of sqlx used by the repositories
type DB interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	PingContext(ctx context.Context) error
	Close() error
}

// PostgresDB wraps sqlx.DB
type PostgresDB struct {
	*sqlx.DB
}

// NewConnection creates a new database connection
func NewConnection(ctx context.Context, cfg config.DatabaseConfig) (*PostgresDB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Supavisor and other poolers reject the extended protocol
	connectionURL := cfg.URL
	if !strings.Contains(connectionURL, "prefer_simple_protocol") {
		separator := "?"
		if strings.Contains(connectionURL, "?") {
			separator = "&"
		}
		connectionURL = connectionURL + separator + "prefer_simple_protocol=true"
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{DB: db}, nil
}

// EnsureSchema creates the audit table when it does not exist yet
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.ExecContext(ctx, reconciliationAuditSchema); err != nil {
		return fmt.Errorf("failed to create reconciliation audit schema: %w", err)
	}
	return nil
}

const reconciliationAuditSchema = `
CREATE TABLE IF NOT EXISTS reconciliation_audits (
	id                 UUID PRIMARY KEY,
	reconciliation_id  UUID NOT NULL,
	screen             VARCHAR(32) NOT NULL,
	payment_id         VARCHAR(128),
	cart_id            VARCHAR(128),
	merchant_order_id  VARCHAR(128),
	booking_id         VARCHAR(128),
	event_type         VARCHAR(64) NOT NULL,
	event_source       VARCHAR(16) NOT NULL,
	from_status        VARCHAR(32),
	to_status          VARCHAR(32),
	attempt            INTEGER NOT NULL DEFAULT 0,
	error_message      TEXT,
	details            JSONB,
	ip_address         VARCHAR(64),
	user_agent         TEXT,
	device             JSONB,
	processing_time_ms INTEGER,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reconciliation_audits_reconciliation ON reconciliation_audits (reconciliation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_reconciliation_audits_created_at ON reconciliation_audits (created_at);`
