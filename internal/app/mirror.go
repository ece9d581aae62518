package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/resolution"
)

// resolutionMirror copies newly cached resolutions into Redis and Postgres
// so other replicas and the status API can read them.
type resolutionMirror struct {
	cache  domain.ResolutionCache
	store  domain.ResolutionStore
	logger *slog.Logger
}

var _ resolution.Recorder = (*resolutionMirror)(nil)

// newResolutionMirror returns nil when there is nowhere to mirror to.
func newResolutionMirror(cache domain.ResolutionCache, store domain.ResolutionStore, logger *slog.Logger) *resolutionMirror {
	if cache == nil && store == nil {
		return nil
	}
	return &resolutionMirror{
		cache:  cache,
		store:  store,
		logger: logger.With(slog.String("component", "resolution_mirror")),
	}
}

// Record implements resolution.Recorder.
func (m *resolutionMirror) Record(ctx context.Context, r domain.Resolution) error {
	var errs []error
	if m.cache != nil {
		wrote, err := m.cache.SetOnce(ctx, r)
		if err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		} else if wrote {
			m.logger.Debug("resolution cached", slog.String("condition_id", r.ConditionID))
		}
	}
	if m.store != nil {
		if err := m.store.Insert(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Lookup returns a mirrored resolution, trying the cache before the store.
func (m *resolutionMirror) Lookup(ctx context.Context, conditionID string) (domain.Resolution, error) {
	id := resolution.NormalizeID(conditionID)
	if m.cache != nil {
		r, err := m.cache.Get(ctx, id)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			m.logger.Debug("resolution cache read failed",
				slog.String("condition_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	if m.store != nil {
		return m.store.Get(ctx, id)
	}
	return domain.Resolution{}, domain.ErrNotFound
}
