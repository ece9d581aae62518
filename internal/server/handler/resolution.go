package handler

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/resolution"
)

// ResolutionLookup reads mirrored resolutions from shared storage.
type ResolutionLookup interface {
	Lookup(ctx context.Context, conditionID string) (domain.Resolution, error)
}

// ResolutionHandler answers resolution queries for a condition.
type ResolutionHandler struct {
	source resolution.Source
	mirror ResolutionLookup
	logger *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler. mirror may be nil.
func NewResolutionHandler(source resolution.Source, mirror ResolutionLookup, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		source: source,
		mirror: mirror,
		logger: logHandler(logger, "resolution"),
	}
}

// GetResolution returns the resolution status of a condition. Conditions the
// local source has not seen resolve are looked up in the mirror, which may
// hold records written by another replica.
// GET /api/resolutions/{conditionID}
func (h *ResolutionHandler) GetResolution(w http.ResponseWriter, r *http.Request) {
	id := resolution.NormalizeID(r.PathValue("conditionID"))
	if !validConditionID(id) {
		writeError(w, r, http.StatusBadRequest, "condition id must be 32 bytes of hex")
		return
	}

	res := h.source.Resolved(r.Context(), id)
	if !res.Resolved && h.mirror != nil {
		mirrored, err := h.mirror.Lookup(r.Context(), id)
		switch {
		case err == nil:
			res = mirrored
		case !errors.Is(err, domain.ErrNotFound):
			h.logger.WarnContext(r.Context(), "mirror lookup failed",
				slog.String("condition_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func validConditionID(id string) bool {
	raw := strings.TrimPrefix(id, "0x")
	if len(raw) != 64 {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}
