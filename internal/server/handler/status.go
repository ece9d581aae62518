package handler

import (
	"net/http"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// StatusProvider exposes the run loop state.
type StatusProvider interface {
	Status() domain.RunStatus
}

// StatusHandler serves the current window, position and running totals.
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

// GetStatus responds with the run loop status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.Status())
}
