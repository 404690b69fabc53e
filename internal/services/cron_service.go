package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ReconciliationSweeper cancels abandoned reconciliations
type ReconciliationSweeper interface {
	Sweep(now time.Time, maxAge time.Duration) int
}

// ExpiringReferenceStore drops session references past their TTL
type ExpiringReferenceStore interface {
	PurgeExpired(now time.Time) int
}

// AuditPruner deletes audit entries past the retention period
type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// CronConfig controls the housekeeping jobs
type CronConfig struct {
	SweepSchedule  string        // cron spec with seconds
	SessionMaxAge  time.Duration // reconciliations older than this are cancelled
	AuditSchedule  string
	AuditRetention time.Duration
}

// DefaultCronConfig returns the default housekeeping schedule
func DefaultCronConfig() CronConfig {
	return CronConfig{
		SweepSchedule:  "0 */5 * * * *",
		SessionMaxAge:  30 * time.Minute,
		AuditSchedule:  "0 0 3 * * *",
		AuditRetention: 90 * 24 * time.Hour,
	}
}

// CronService manages scheduled background jobs
type CronService struct {
	cron       *cron.Cron
	config     CronConfig
	logger     *logrus.Logger
	sweeper    ReconciliationSweeper
	references ExpiringReferenceStore // nil when references live in Redis
	audit      AuditPruner            // nil without a database
	now        func() time.Time
}

// NewCronService creates a new CronService
func NewCronService(cfg CronConfig, sweeper ReconciliationSweeper, references ExpiringReferenceStore, audit AuditPruner, logger *logrus.Logger) *CronService {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:       c,
		config:     cfg,
		logger:     logger,
		sweeper:    sweeper,
		references: references,
		audit:      audit,
		now:        time.Now,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Job 1: Cancel reconciliations whose screen was abandoned
	_, err := s.cron.AddFunc(s.config.SweepSchedule, s.sweepReconciliationsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation sweep job: %w", err)
	}
	s.logger.WithField("schedule", s.config.SweepSchedule).Info("Scheduled: sweep abandoned reconciliations")

	// Job 2: Purge expired in-memory session references
	if s.references != nil {
		_, err = s.cron.AddFunc(s.config.SweepSchedule, s.purgeReferencesJob)
		if err != nil {
			return fmt.Errorf("failed to schedule reference purge job: %w", err)
		}
		s.logger.WithField("schedule", s.config.SweepSchedule).Info("Scheduled: purge expired session references")
	}

	// Job 3: Prune old audit entries
	if s.audit != nil && s.config.AuditRetention > 0 {
		_, err = s.cron.AddFunc(s.config.AuditSchedule, s.pruneAuditJob)
		if err != nil {
			return fmt.Errorf("failed to schedule audit prune job: %w", err)
		}
		s.logger.WithField("schedule", s.config.AuditSchedule).Info("Scheduled: prune reconciliation audit")
	}

	s.cron.Start()
	s.logger.Info("Cron service started successfully")

	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// sweepReconciliationsJob cancels reconciliations older than the session max age
func (s *CronService) sweepReconciliationsJob() {
	startTime := time.Now()
	swept := s.sweeper.Sweep(s.now(), s.config.SessionMaxAge)

	s.logger.WithFields(logrus.Fields{
		"job":         "sweep_reconciliations",
		"swept":       swept,
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Debug("[CRON] Reconciliation sweep finished")
}

// purgeReferencesJob drops expired session references
func (s *CronService) purgeReferencesJob() {
	purged := s.references.PurgeExpired(s.now())

	s.logger.WithFields(logrus.Fields{
		"job":    "purge_references",
		"purged": purged,
	}).Debug("[CRON] Reference purge finished")
}

// pruneAuditJob deletes audit entries past retention
func (s *CronService) pruneAuditJob() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.audit.DeleteOlderThan(ctx, s.now().Add(-s.config.AuditRetention))
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"job":   "prune_audit",
			"error": err.Error(),
		}).Error("[CRON ERROR] Failed to prune reconciliation audit")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"job":         "prune_audit",
		"deleted":     deleted,
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Info("[CRON] Pruned reconciliation audit")
}

// RunSweepNow runs the reconciliation sweep immediately
func (s *CronService) RunSweepNow() {
	s.logger.Info("[MANUAL] Running reconciliation sweep now...")
	s.sweepReconciliationsJob()
	if s.references != nil {
		s.purgeReferencesJob()
	}
}

// RunAuditPruneNow runs the audit prune job immediately
func (s *CronService) RunAuditPruneNow() error {
	if s.audit == nil {
		return fmt.Errorf("audit trail is not configured")
	}
	s.logger.Info("[MANUAL] Running audit prune now...")
	s.pruneAuditJob()
	return nil
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
