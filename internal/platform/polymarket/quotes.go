package polymarket

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// BookQuotes reads best asks straight from the CLOB REST book.
type BookQuotes struct {
	clob    *ClobClient
	timeout time.Duration
}

// NewBookQuotes creates a REST quote source. timeout bounds each book fetch.
func NewBookQuotes(clob *ClobClient, timeout time.Duration) *BookQuotes {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BookQuotes{clob: clob, timeout: timeout}
}

// BestAsk implements strategy.QuoteSource.
func (q *BookQuotes) BestAsk(ctx context.Context, market domain.Market, leg domain.Leg) (domain.Quote, error) {
	tokenID := market.TokenID(leg)
	if tokenID == "" {
		return domain.Quote{}, fmt.Errorf("polymarket: best ask %s: no token id", leg)
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	book, err := q.clob.OrderBook(ctx, tokenID)
	if err != nil {
		return domain.Quote{}, err
	}
	return book.BestAsk(), nil
}
