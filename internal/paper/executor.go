// Package paper simulates order execution against live quotes.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/strategy"
)

// Executor fills a buy when its limit price is at or above the current best
// ask and the ask has enough size. Nothing is sent to the venue.
type Executor struct {
	quotes strategy.QuoteSource
	logger *slog.Logger

	mu     sync.Mutex
	spent  decimal.Decimal
	fills  int
	misses int
}

var _ strategy.OrderExecutor = (*Executor)(nil)

// NewExecutor creates a paper executor reading quotes.
func NewExecutor(quotes strategy.QuoteSource, logger *slog.Logger) *Executor {
	return &Executor{
		quotes: quotes,
		logger: logger.With(slog.String("component", "paper_executor")),
	}
}

// Buy implements strategy.OrderExecutor.
func (e *Executor) Buy(ctx context.Context, market domain.Market, leg domain.Leg, price, size float64) (bool, error) {
	q, err := e.quotes.BestAsk(ctx, market, leg)
	if err != nil {
		return false, fmt.Errorf("paper: quote %s: %w", leg, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if q.Empty() || price < q.Price || size > q.Size {
		e.misses++
		e.logger.Debug("paper order not filled",
			slog.String("leg", leg.String()),
			slog.Float64("limit", price),
			slog.Float64("ask", q.Price),
			slog.Float64("ask_size", q.Size),
		)
		return false, nil
	}

	cost := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(size))
	e.spent = e.spent.Add(cost)
	e.fills++
	e.logger.Info("paper fill",
		slog.String("slug", market.Slug),
		slog.String("leg", leg.String()),
		slog.Float64("price", price),
		slog.Float64("size", size),
		slog.String("cost", cost.StringFixed(4)),
	)
	return true, nil
}

// Stats returns the fill count, missed orders and total simulated spend.
func (e *Executor) Stats() (fills, misses int, spent decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fills, e.misses, e.spent
}
