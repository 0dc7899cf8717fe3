package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/academic-records/repositories/postgres"
	"github.com/upb/academic-records/services/audit"
	"github.com/upb/academic-records/services/session"
	"github.com/upb/academic-records/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string                 `json:"status"`
	Timestamp      string                 `json:"timestamp"`
	ActiveSessions *int                   `json:"active_sessions,omitempty"`
	Checks         map[string]string      `json:"checks,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// SessionCounter reports the number of live sessions
type SessionCounter interface {
	ActiveSessions() int
}

// DatabaseChecker is the records database as seen by readiness probes
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
	PoolStats() postgres.PoolStats
}

// SessionStatsSource reports session store counters
type SessionStatsSource interface {
	Stats() session.Stats
}

// KeyCacheReporter reports the identity provider signing key cache
type KeyCacheReporter interface {
	CacheStats() map[string]interface{}
}

// AuditStatsSource reports the audit writer queue
type AuditStatsSource interface {
	GetStats() audit.Stats
}

// ReadinessSources feed the /ready body. Any of them may be nil.
type ReadinessSources struct {
	Database    DatabaseChecker
	Sessions    SessionStatsSource
	SigningKeys KeyCacheReporter
	Audit       AuditStatsSource
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	sources  ReadinessSources
	sessions SessionCounter
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. sessions may be nil.
func NewHealthHandler(sources ReadinessSources, sessions SessionCounter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		sources:  sources,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleHealth handles GET /health
// Liveness only; returns 200 whenever the process is serving.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.sessions != nil {
		n := h.sessions.ActiveSessions()
		response.ActiveSessions = &n
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /ready
// Only the database decides the status; the rest is reported as details.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	details := make(map[string]interface{})
	allHealthy := true

	if db := h.sources.Database; db == nil {
		checks["database"] = "not_configured"
		allHealthy = false
	} else {
		if err := db.HealthCheck(ctx); err != nil {
			h.logger.Warn("database health check failed", zap.Error(err))
			checks["database"] = "unhealthy"
			allHealthy = false
		} else {
			checks["database"] = "healthy"
		}
		details["database_pool"] = db.PoolStats()
	}

	if h.sources.Sessions != nil {
		details["sessions"] = h.sources.Sessions.Stats()
	}
	if h.sources.SigningKeys != nil {
		details["signing_keys"] = h.sources.SigningKeys.CacheStats()
	}
	if h.sources.Audit != nil {
		details["audit"] = h.sources.Audit.GetStats()
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Details:   details,
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
