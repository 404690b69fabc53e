package reconciliation

import (
	"context"

	"github.com/poojaseva/checkout-reconciler/internal/models"
)

// AuditRecorder persists reconciliation events. Failures are logged, never returned to the user.
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.ReconciliationAudit) error
}

// RequestMetadata describes the user request behind a manual action
type RequestMetadata struct {
	IPAddress string
	UserAgent string
	Device    map[string]interface{}
}

type requestMetadataKey struct{}

// WithRequestMetadata attaches request metadata to ctx for audit entries
func WithRequestMetadata(ctx context.Context, meta RequestMetadata) context.Context {
	return context.WithValue(ctx, requestMetadataKey{}, meta)
}

func requestMetadataFrom(ctx context.Context) (RequestMetadata, bool) {
	meta, ok := ctx.Value(requestMetadataKey{}).(RequestMetadata)
	return meta, ok
}
