package strategy

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// QuoteSource returns the current best ask of one leg of a market. An empty
// book side is reported as a zero quote, not an error.
type QuoteSource interface {
	BestAsk(ctx context.Context, market domain.Market, leg domain.Leg) (domain.Quote, error)
}

// OrderExecutor places a fill-or-fail buy of size shares at price. It returns
// true only when the whole size was filled.
type OrderExecutor interface {
	Buy(ctx context.Context, market domain.Market, leg domain.Leg, price, size float64) (bool, error)
}

// Config holds the pair strategy parameters.
type Config struct {
	// OrderSize is the number of shares bought per fill.
	OrderSize float64
	// MaxInitCombinedPrice gates the opening buys: the two init prices must
	// sum to strictly less than this.
	MaxInitCombinedPrice float64
	// PairDifferenceThreshold bounds a leg at this multiple of the other leg.
	PairDifferenceThreshold float64
}

// DefaultConfig mirrors the defaults shipped in the example config.
func DefaultConfig() Config {
	return Config{
		OrderSize:               10,
		MaxInitCombinedPrice:    1.0,
		PairDifferenceThreshold: 1.5,
	}
}

// Validate checks the parameters are usable.
func (c Config) Validate() error {
	if c.OrderSize <= 0 {
		return fmt.Errorf("strategy: order size must be positive: %w", domain.ErrInvalidConfig)
	}
	if c.MaxInitCombinedPrice <= 0 {
		return fmt.Errorf("strategy: max init combined price must be positive: %w", domain.ErrInvalidConfig)
	}
	if c.PairDifferenceThreshold < 1 {
		return fmt.Errorf("strategy: pair difference threshold must be >= 1: %w", domain.ErrInvalidConfig)
	}
	return nil
}
