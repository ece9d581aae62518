package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// WindowHandler serves settled window results and their fills.
type WindowHandler struct {
	store  domain.WindowStore
	fills  domain.FillStore
	logger *slog.Logger
}

// NewWindowHandler creates a WindowHandler. fills may be nil.
func NewWindowHandler(store domain.WindowStore, fills domain.FillStore, logger *slog.Logger) *WindowHandler {
	return &WindowHandler{store: store, fills: fills, logger: logHandler(logger, "window")}
}

type listWindowsResponse struct {
	Windows []domain.WindowResult `json:"windows"`
}

// ListWindows returns settled windows, newest first.
// GET /api/windows?limit=50&offset=0
func (h *WindowHandler) ListWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := h.store.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list windows failed", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "failed to list windows")
		return
	}
	if windows == nil {
		windows = []domain.WindowResult{}
	}
	writeJSON(w, http.StatusOK, listWindowsResponse{Windows: windows})
}

// GetWindow returns one settled window by slug.
// GET /api/windows/{slug}
func (h *WindowHandler) GetWindow(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	res, err := h.store.Get(r.Context(), slug)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "window not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get window failed",
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusInternalServerError, "failed to get window")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type listFillsResponse struct {
	Slug  string        `json:"slug"`
	Fills []domain.Fill `json:"fills"`
}

// ListFills returns the buys made in one window, oldest first.
// GET /api/windows/{slug}/fills
func (h *WindowHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if h.fills == nil {
		writeError(w, r, http.StatusNotFound, "fills are not stored")
		return
	}
	fills, err := h.fills.ListBySlug(r.Context(), slug)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list fills failed",
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusInternalServerError, "failed to list fills")
		return
	}
	if fills == nil {
		fills = []domain.Fill{}
	}
	writeJSON(w, http.StatusOK, listFillsResponse{Slug: slug, Fills: fills})
}
