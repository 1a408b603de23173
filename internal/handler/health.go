package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/vizquery/vizquery/internal/executor"
	"github.com/vizquery/vizquery/internal/models"
	"github.com/vizquery/vizquery/internal/registry"
)

const version = "1.0.0"

// HealthHandler handles GET /health with dependency checks.
type HealthHandler struct {
	reg                 *registry.Registry
	completerConfigured bool
}

func NewHealthHandler(reg *registry.Registry, completerConfigured bool) *HealthHandler {
	return &HealthHandler{reg: reg, completerConfigured: completerConfigured}
}

// Health pings every registered data source with a short timeout so the
// check never blocks a probe.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"server": "ok"}
	overall := "healthy"

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.reg.Ping(ctx); err != nil {
		checks["datasources"] = "unavailable: " + executor.SanitizeError(err)
		overall = "degraded"
	} else {
		checks["datasources"] = "ok"
	}

	if h.completerConfigured {
		checks["completion"] = "configured"
	} else {
		checks["completion"] = "disabled"
		overall = "degraded"
	}

	code := http.StatusOK
	if overall == "degraded" {
		code = http.StatusServiceUnavailable
	}
	models.WriteJSON(w, code, models.HealthResponse{
		Status:  overall,
		Version: version,
		Checks:  checks,
	})
}
