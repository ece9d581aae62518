package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// QuoteCache keeps the last best ask per token as a hash at
// "quote:{tokenID}" with fields price, size and ts (Unix nanoseconds).
type QuoteCache struct {
	c   *Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache whose entries expire after ttl.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{c: c, ttl: ttl}
}

// SetQuote stores q for tokenID.
func (qc *QuoteCache) SetQuote(ctx context.Context, tokenID string, q domain.Quote) error {
	key := qc.c.key("quote", tokenID)
	pipe := qc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, encodeQuote(q))
	if qc.ttl > 0 {
		pipe.Expire(ctx, key, qc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", tokenID, err)
	}
	return nil
}

// GetQuote returns the stored quote or domain.ErrNotFound.
func (qc *QuoteCache) GetQuote(ctx context.Context, tokenID string) (domain.Quote, error) {
	vals, err := qc.c.rdb.HGetAll(ctx, qc.c.key("quote", tokenID)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", tokenID, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	q, err := decodeQuote(vals)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: decode quote %s: %w", tokenID, err)
	}
	return q, nil
}

func encodeQuote(q domain.Quote) map[string]any {
	return map[string]any{
		"price": strconv.FormatFloat(q.Price, 'f', -1, 64),
		"size":  strconv.FormatFloat(q.Size, 'f', -1, 64),
		"ts":    strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}
}

func decodeQuote(vals map[string]string) (domain.Quote, error) {
	var q domain.Quote
	var err error
	if q.Price, err = strconv.ParseFloat(vals["price"], 64); err != nil {
		return q, fmt.Errorf("price: %w", err)
	}
	if q.Size, err = strconv.ParseFloat(vals["size"], 64); err != nil {
		return q, fmt.Errorf("size: %w", err)
	}
	if ts, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil && ts > 0 {
		q.Timestamp = time.Unix(0, ts).UTC()
	}
	return q, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
