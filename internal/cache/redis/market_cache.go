package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/resolution"
)

// DefaultMarketTTL outlives a window and its settlement wait.
const DefaultMarketTTL = 3 * time.Hour

// MarketCache stores Market listings as JSON.
//
// Key schema:
//
//	{prefix}market:{slug}            - JSON encoded market
//	{prefix}market:condition:{id}    - slug of the market
type MarketCache struct {
	c   *Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache. A zero ttl uses DefaultMarketTTL.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{c: c, ttl: ttl}
}

// SetMarket stores m under its slug and indexes its condition id.
func (mc *MarketCache) SetMarket(ctx context.Context, m domain.Market) error {
	if m.Slug == "" {
		return errors.New("redis: set market: empty slug")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", m.Slug, err)
	}

	pipe := mc.c.rdb.TxPipeline()
	pipe.Set(ctx, mc.c.key("market", m.Slug), data, mc.ttl)
	if m.ConditionID != "" {
		pipe.Set(ctx, mc.c.key("market", "condition", resolution.NormalizeID(m.ConditionID)), m.Slug, mc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", m.Slug, err)
	}
	return nil
}

// GetMarket returns the market listed under slug or domain.ErrNotFound.
func (mc *MarketCache) GetMarket(ctx context.Context, slug string) (domain.Market, error) {
	data, err := mc.c.rdb.Get(ctx, mc.c.key("market", slug)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", slug, err)
	}
	return decodeMarket(data)
}

// GetByCondition looks a market up by its condition id.
func (mc *MarketCache) GetByCondition(ctx context.Context, conditionID string) (domain.Market, error) {
	slug, err := mc.c.rdb.Get(ctx, mc.c.key("market", "condition", resolution.NormalizeID(conditionID))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market by condition %s: %w", conditionID, err)
	}
	return mc.GetMarket(ctx, slug)
}

func decodeMarket(data []byte) (domain.Market, error) {
	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market: %w", err)
	}
	return m, nil
}

var _ domain.MarketCache = (*MarketCache)(nil)
