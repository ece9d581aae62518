package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// BlockProbe reports the latest block seen by the resolution indexer.
type BlockProbe interface {
	FetchLatestBlock(ctx context.Context) (int64, error)
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	probe  BlockProbe
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. probe may be nil.
func NewHealthHandler(probe BlockProbe, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{probe: probe, logger: logHandler(logger, "health")}
}

// HealthCheck responds with a simple JSON status indicating the server is
// alive, plus the indexer head when a probe is configured. A failing probe
// does not fail the check.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.probe != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		block, err := h.probe.FetchLatestBlock(ctx)
		if err != nil {
			h.logger.WarnContext(r.Context(), "indexer probe failed", slog.String("error", err.Error()))
			body["indexer_error"] = "unavailable"
		} else {
			body["indexed_block"] = block
		}
	}
	writeJSON(w, http.StatusOK, body)
}
