package resolution

import (
	"slices"
	"sync"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// Cache holds resolved conditions keyed by normalized id, plus the last
// block scanned by a Monitor. It is safe for concurrent use.
//
// Only resolved records are stored. Once a record with a winning index is
// stored it never changes; a resolved record without a winner may be
// replaced by one that has a winner.
type Cache struct {
	mu        sync.RWMutex
	records   map[string]domain.Resolution
	cursor    uint64
	hasCursor bool
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{records: make(map[string]domain.Resolution)}
}

// Get returns the stored record for conditionID.
func (c *Cache) Get(conditionID string) (domain.Resolution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[NormalizeID(conditionID)]
	return r, ok
}

// Put stores r and reports whether the cache changed. A record with a winner
// is final; a resolved record without one may still be replaced by a later
// record that names a winner.
func (c *Cache) Put(r domain.Resolution) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.putLocked(r)
}

// Apply stores a batch of records and advances the block cursor in one step,
// returning the records that were newly stored.
func (c *Cache) Apply(records []domain.Resolution, cursor uint64) []domain.Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()
	var stored []domain.Resolution
	for _, r := range records {
		if c.putLocked(r) {
			stored = append(stored, c.records[NormalizeID(r.ConditionID)])
		}
	}
	if !c.hasCursor || cursor > c.cursor {
		c.cursor = cursor
		c.hasCursor = true
	}
	return stored
}

func (c *Cache) putLocked(r domain.Resolution) bool {
	if !r.Resolved {
		return false
	}
	r.ConditionID = NormalizeID(r.ConditionID)
	if existing, ok := c.records[r.ConditionID]; ok {
		if existing.Settled() {
			return false
		}
		if !r.Settled() && slices.Equal(existing.PayoutNumerators, r.PayoutNumerators) {
			return false
		}
	}
	c.records[r.ConditionID] = r
	return true
}

// Cursor returns the last scanned block, if any.
func (c *Cache) Cursor() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursor, c.hasCursor
}

// SetCursor initialises the block cursor.
func (c *Cache) SetCursor(block uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = block
	c.hasCursor = true
}

// Len returns the number of stored resolutions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
