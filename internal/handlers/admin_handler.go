package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HousekeepingRunner triggers the scheduled housekeeping jobs on demand
type HousekeepingRunner interface {
	RunSweepNow()
	RunAuditPruneNow() error
	GetJobStatus() map[string]interface{}
}

// AdminHandler exposes cron management for operators
type AdminHandler struct {
	cron   HousekeepingRunner
	logger *logrus.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(cron HousekeepingRunner, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{cron: cron, logger: logger}
}

// RegisterRoutes mounts the cron routes on an already protected group
func (h *AdminHandler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.POST("/cron/sweep", h.RunSweep)
	admin.POST("/cron/prune-audit", h.RunAuditPrune)
	admin.GET("/cron/status", h.GetCronStatus)
}

// RunSweep handles POST /api/v1/admin/cron/sweep
func (h *AdminHandler) RunSweep(c *gin.Context) {
	h.cron.RunSweepNow()
	c.JSON(http.StatusOK, gin.H{"message": "Reconciliation sweep triggered"})
}

// RunAuditPrune handles POST /api/v1/admin/cron/prune-audit
func (h *AdminHandler) RunAuditPrune(c *gin.Context) {
	if err := h.cron.RunAuditPruneNow(); err != nil {
		h.logger.WithError(err).Warn("Audit prune requested without audit trail")
		respondError(c, http.StatusServiceUnavailable, "audit_disabled", "Audit trail is not configured", "AUDIT_DISABLED")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Audit prune triggered"})
}

// GetCronStatus handles GET /api/v1/admin/cron/status
func (h *AdminHandler) GetCronStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cron.GetJobStatus())
}
