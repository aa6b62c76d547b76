package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/usecase"
)

// HealthHandler exposes liveness information plus an allowlist summary.
type HealthHandler struct {
	startedAt time.Time
	allowlist *usecase.AllowlistService
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(allowlist *usecase.AllowlistService) *HealthHandler {
	return &HealthHandler{startedAt: time.Now().UTC(), allowlist: allowlist}
}

// Status reports liveness and the current allowlist/runtime state.
func (h *HealthHandler) Status(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
		Timestamp: time.Now().UTC(),
	}

	if h.allowlist != nil {
		summary := h.allowlist.Summary(c.Request.Context())
		resp.Allowlist = map[string]any{
			"available":          summary.SnapshotAvailable,
			"reason":             summary.SnapshotReason,
			"override_installed": summary.OverrideInstalled,
			"override_mode":      summary.OverrideMode,
			"proof_count":        summary.ProofCount,
			"hash_count":         summary.HashCount,
			"sources":            summary.Sources,
		}
	}

	c.JSON(http.StatusOK, resp)
}
