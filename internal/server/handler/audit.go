package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// AuditHandler serves the audit log.
type AuditHandler struct {
	store  domain.AuditStore
	logger *slog.Logger
}

func NewAuditHandler(store domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{store: store, logger: logHandler(logger, "audit")}
}

type auditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// ListAudit returns audit entries newest first.
// GET /api/audit?event=fill&limit=50
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	event := r.URL.Query().Get("event")
	entries, err := h.store.List(r.Context(), event, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	out := make([]auditEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntry{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
