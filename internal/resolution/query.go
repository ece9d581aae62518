package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/platform/goldsky"
)

// ConditionFetcher reads indexed condition payouts.
type ConditionFetcher interface {
	FetchCondition(ctx context.Context, conditionID string) (goldsky.Condition, bool, error)
}

// Query resolves conditions on demand against the conditions subgraph.
type Query struct {
	fetcher  ConditionFetcher
	cache    *Cache
	recorder Recorder
	timeout  time.Duration
	logger   *slog.Logger
}

// NewQuery creates a pull-mode Source. recorder may be nil.
func NewQuery(fetcher ConditionFetcher, cache *Cache, recorder Recorder, timeout time.Duration, logger *slog.Logger) *Query {
	if cache == nil {
		cache = NewCache()
	}
	return &Query{
		fetcher:  fetcher,
		cache:    cache,
		recorder: recorder,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "resolution_query")),
	}
}

var _ Source = (*Query)(nil)

// Resolved implements Source.
func (q *Query) Resolved(ctx context.Context, conditionID string) domain.Resolution {
	id := NormalizeID(conditionID)
	known, cached := q.cache.Get(id)
	if cached && known.Settled() {
		return known
	}

	// A resolved record without a winner is polled for an upgrade, but a
	// failed or stale lookup never takes it back.
	r, err := q.lookup(ctx, id)
	if err != nil {
		q.logger.Warn("resolution lookup failed",
			slog.String("condition_id", id),
			slog.String("error", err.Error()),
		)
		if cached {
			return known
		}
		return unresolved(id)
	}
	if !r.Resolved {
		if cached {
			return known
		}
		return r
	}

	if q.cache.Put(r) && q.recorder != nil {
		if err := q.recorder.Record(ctx, r); err != nil {
			q.logger.Warn("resolution mirror failed",
				slog.String("condition_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	if stored, ok := q.cache.Get(id); ok {
		return stored
	}
	return r
}

func (q *Query) lookup(ctx context.Context, id string) (domain.Resolution, error) {
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	cond, found, err := q.fetcher.FetchCondition(ctx, id)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("%w: %w", domain.ErrResolutionLookup, err)
	}
	if !found {
		return unresolved(id), nil
	}

	resolved, winner, err := FromPayouts(cond.PayoutNumerators, cond.PayoutDenominator)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("%w: %w", domain.ErrResolutionLookup, err)
	}
	if !resolved {
		return unresolved(id), nil
	}

	now := time.Now().UTC()
	return domain.Resolution{
		ConditionID:       id,
		Resolved:          true,
		WinningIndex:      winner,
		PayoutNumerators:  canonicalAmounts(cond.PayoutNumerators),
		PayoutDenominator: canonicalAmounts([]string{cond.PayoutDenominator})[0],
		OutcomeSlotCount:  len(cond.PayoutNumerators),
		ObservedAt:        now,
		ResolvedAt:        &now,
	}, nil
}

// Cache exposes the underlying cache.
func (q *Query) Cache() *Cache { return q.cache }
