package domain

import (
	"context"
	"time"
)

// ResolutionCache shares settled resolutions between processes.
type ResolutionCache interface {
	// SetOnce stores r unless a record already exists and reports whether it wrote.
	SetOnce(ctx context.Context, r Resolution) (bool, error)
	Get(ctx context.Context, conditionID string) (Resolution, error)
}

// QuoteCache keeps the latest observed best ask per token.
type QuoteCache interface {
	SetQuote(ctx context.Context, tokenID string, q Quote) error
	GetQuote(ctx context.Context, tokenID string) (Quote, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter admits at most limit requests per window for a key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// MarketCache keeps venue market listings by slug.
type MarketCache interface {
	GetMarket(ctx context.Context, slug string) (Market, error)
	SetMarket(ctx context.Context, m Market) error
}
