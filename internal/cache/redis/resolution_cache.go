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

// ResolutionCache mirrors resolved conditions as JSON strings under
// "resolution:{conditionID}". A settled record is never overwritten; a
// record without a winner may be upgraded once the winner is known.
type ResolutionCache struct {
	c   *Client
	ttl time.Duration
}

// NewResolutionCache creates a ResolutionCache. ttl of zero keeps records
// forever.
func NewResolutionCache(c *Client, ttl time.Duration) *ResolutionCache {
	return &ResolutionCache{c: c, ttl: ttl}
}

func (rc *ResolutionCache) resolutionKey(conditionID string) string {
	return rc.c.key("resolution", resolution.NormalizeID(conditionID))
}

// SetOnce stores r when no record exists, or when the stored record has no
// winner and r does. Unresolved records are ignored.
func (rc *ResolutionCache) SetOnce(ctx context.Context, r domain.Resolution) (bool, error) {
	if !r.Resolved {
		return false, nil
	}
	r.ConditionID = resolution.NormalizeID(r.ConditionID)
	data, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("redis: marshal resolution: %w", err)
	}
	key := rc.resolutionKey(r.ConditionID)

	ok, err := rc.c.rdb.SetNX(ctx, key, data, rc.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: set resolution %s: %w", r.ConditionID, err)
	}
	if ok || !r.Settled() {
		return ok, nil
	}

	existing, err := rc.Get(ctx, r.ConditionID)
	if err != nil {
		return false, err
	}
	if existing.Settled() {
		return false, nil
	}
	ok, err = rc.c.rdb.SetXX(ctx, key, data, rc.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: upgrade resolution %s: %w", r.ConditionID, err)
	}
	return ok, nil
}

// Get returns the cached record or domain.ErrNotFound.
func (rc *ResolutionCache) Get(ctx context.Context, conditionID string) (domain.Resolution, error) {
	data, err := rc.c.rdb.Get(ctx, rc.resolutionKey(conditionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Resolution{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("redis: get resolution %s: %w", conditionID, err)
	}
	var r domain.Resolution
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.Resolution{}, fmt.Errorf("redis: decode resolution %s: %w", conditionID, err)
	}
	return r, nil
}

var _ domain.ResolutionCache = (*ResolutionCache)(nil)
