package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// cachedFinder answers slug lookups from a MarketCache before asking the
// venue. Listings are immutable per slug so hits never go stale.
type cachedFinder struct {
	next   MarketFinder
	cache  domain.MarketCache
	logger *slog.Logger
}

func newCachedFinder(next MarketFinder, cache domain.MarketCache, logger *slog.Logger) MarketFinder {
	if cache == nil {
		return next
	}
	return &cachedFinder{next: next, cache: cache, logger: logger}
}

func (f *cachedFinder) MarketBySlug(ctx context.Context, slug string) (domain.Market, error) {
	m, err := f.cache.GetMarket(ctx, slug)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		f.logger.Debug("market cache read failed",
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
	}

	m, err = f.next.MarketBySlug(ctx, slug)
	if err != nil {
		return domain.Market{}, err
	}
	if err := f.cache.SetMarket(ctx, m); err != nil {
		f.logger.Debug("market cache write failed",
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
	}
	return m, nil
}
