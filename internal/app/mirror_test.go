package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

type memResolutionCache struct {
	recs map[string]domain.Resolution
	err  error
}

func (c *memResolutionCache) SetOnce(_ context.Context, r domain.Resolution) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	if _, ok := c.recs[r.ConditionID]; ok {
		return false, nil
	}
	c.recs[r.ConditionID] = r
	return true, nil
}

func (c *memResolutionCache) Get(_ context.Context, id string) (domain.Resolution, error) {
	if r, ok := c.recs[id]; ok {
		return r, nil
	}
	return domain.Resolution{}, domain.ErrNotFound
}

type memResolutionStore struct {
	recs map[string]domain.Resolution
	err  error
}

func (s *memResolutionStore) Insert(_ context.Context, r domain.Resolution) error {
	if s.err != nil {
		return s.err
	}
	s.recs[r.ConditionID] = r
	return nil
}

func (s *memResolutionStore) Get(_ context.Context, id string) (domain.Resolution, error) {
	if r, ok := s.recs[id]; ok {
		return r, nil
	}
	return domain.Resolution{}, domain.ErrNotFound
}

func TestNewResolutionMirrorNeedsABackend(t *testing.T) {
	if m := newResolutionMirror(nil, nil, discardLogger()); m != nil {
		t.Error("expected nil mirror")
	}
}

func TestResolutionMirrorRecordAndLookup(t *testing.T) {
	cache := &memResolutionCache{recs: map[string]domain.Resolution{}}
	store := &memResolutionStore{recs: map[string]domain.Resolution{}}
	m := newResolutionMirror(cache, store, discardLogger())

	r := domain.Resolution{ConditionID: "0xabc", Resolved: true, WinningIndex: domain.IntPtr(1)}
	if err := m.Record(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.recs["0xabc"]; !ok {
		t.Error("cache not written")
	}
	if _, ok := store.recs["0xabc"]; !ok {
		t.Error("store not written")
	}

	got, err := m.Lookup(context.Background(), "ABC")
	if err != nil || *got.WinningIndex != 1 {
		t.Errorf("lookup = %+v, %v", got, err)
	}

	delete(cache.recs, "0xabc")
	if _, err := m.Lookup(context.Background(), "0xabc"); err != nil {
		t.Errorf("store fallback failed: %v", err)
	}
	if _, err := m.Lookup(context.Background(), "0xdef"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing = %v", err)
	}
}

func TestResolutionMirrorJoinsErrors(t *testing.T) {
	cache := &memResolutionCache{err: errors.New("redis down")}
	store := &memResolutionStore{err: errors.New("pg down")}
	m := newResolutionMirror(cache, store, discardLogger())

	err := m.Record(context.Background(), domain.Resolution{ConditionID: "0x1", Resolved: true})
	if err == nil {
		t.Fatal("expected error")
	}
	if msg := err.Error(); !strings.Contains(msg, "redis down") || !strings.Contains(msg, "pg down") {
		t.Errorf("err = %v", err)
	}
}
