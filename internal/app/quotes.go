package app

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/strategy"
)

// quoteTap remembers the last best ask per leg for the status endpoint and
// publishes each one to the shared quote cache.
type quoteTap struct {
	next   strategy.QuoteSource
	cache  domain.QuoteCache
	logger *slog.Logger

	mu   sync.RWMutex
	last map[string]domain.Quote
}

var _ strategy.QuoteSource = (*quoteTap)(nil)

func newQuoteTap(next strategy.QuoteSource, cache domain.QuoteCache, logger *slog.Logger) *quoteTap {
	return &quoteTap{
		next:   next,
		cache:  cache,
		logger: logger.With(slog.String("component", "quote_tap")),
		last:   make(map[string]domain.Quote),
	}
}

// BestAsk implements strategy.QuoteSource.
func (t *quoteTap) BestAsk(ctx context.Context, market domain.Market, leg domain.Leg) (domain.Quote, error) {
	q, err := t.next.BestAsk(ctx, market, leg)
	if err != nil {
		return q, err
	}

	t.mu.Lock()
	t.last[leg.String()] = q
	t.mu.Unlock()

	if t.cache != nil {
		if token := market.TokenID(leg); token != "" {
			if err := t.cache.SetQuote(ctx, token, q); err != nil {
				t.logger.Debug("quote cache write failed",
					slog.String("token_id", token),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return q, nil
}

func (t *quoteTap) snapshot() map[string]domain.Quote {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.last) == 0 {
		return nil
	}
	return maps.Clone(t.last)
}

func (t *quoteTap) reset() {
	t.mu.Lock()
	clear(t.last)
	t.mu.Unlock()
}
