package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// stepClock advances by step on every read.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type fakeFinder struct {
	mu      sync.Mutex
	market  domain.Market
	missing int // lookups answered with ErrNotFound before the market appears
	calls   int
}

func (f *fakeFinder) MarketBySlug(_ context.Context, slug string) (domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.missing {
		return domain.Market{}, domain.ErrNotFound
	}
	m := f.market
	m.Slug = slug
	return m, nil
}

type staticQuotes [2]domain.Quote

func (q staticQuotes) BestAsk(_ context.Context, _ domain.Market, leg domain.Leg) (domain.Quote, error) {
	return q[leg], nil
}

type fillAll struct {
	mu    sync.Mutex
	buys  int
	fail  bool
	err   error
	calls int
	onBuy func(buys int)
}

func (f *fillAll) Buy(context.Context, domain.Market, domain.Leg, float64, float64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.fail {
		return false, nil
	}
	f.buys++
	if f.onBuy != nil {
		f.onBuy(f.buys)
	}
	return true, nil
}

type fakeLocks struct {
	held     bool
	err      error
	acquired []string
	released int
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func() { l.released++ }, nil
}

type fakeWatcher struct{ watched []string }

func (w *fakeWatcher) Watch(m domain.Market) error {
	w.watched = append(w.watched, m.Slug)
	return nil
}

type memQuoteCache struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
}

func (c *memQuoteCache) SetQuote(_ context.Context, token string, q domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quotes == nil {
		c.quotes = make(map[string]domain.Quote)
	}
	c.quotes[token] = q
	return nil
}

func (c *memQuoteCache) GetQuote(_ context.Context, token string) (domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[token]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return a.err
}

func (a *memAudit) List(context.Context, string, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

// scriptedSource reports unresolved until pending lookups have passed.
type scriptedSource struct {
	mu      sync.Mutex
	pending int
	final   domain.Resolution
	calls   int
}

func (s *scriptedSource) Resolved(_ context.Context, id string) domain.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.pending {
		return domain.Resolution{ConditionID: id}
	}
	return s.final
}

type memWindows struct {
	mu    sync.Mutex
	saved []domain.WindowResult
}

func (w *memWindows) Save(ctx context.Context, r domain.WindowResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saved = append(w.saved, r)
	return nil
}

func (w *memWindows) Get(context.Context, string) (domain.WindowResult, error) {
	return domain.WindowResult{}, domain.ErrNotFound
}

func (w *memWindows) List(context.Context, domain.ListOpts) ([]domain.WindowResult, error) {
	return nil, nil
}

type memFills struct {
	mu     sync.Mutex
	stored []domain.Fill
}

func (m *memFills) InsertBatch(ctx context.Context, fills []domain.Fill) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, fills...)
	return nil
}

func (m *memFills) ListBySlug(_ context.Context, slug string) ([]domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Fill
	for _, f := range m.stored {
		if f.Slug == slug {
			out = append(out, f)
		}
	}
	return out, nil
}

type memJournal struct {
	mu    sync.Mutex
	fills int
	err   error
}

func (j *memJournal) Archive(ctx context.Context, r domain.WindowResult, fills []domain.Fill) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return "", j.err
	}
	j.fills = len(fills)
	return "journals/" + r.Slug + ".jsonl", nil
}

type fakeRedeemer struct {
	calls []string
	err   error
}

func (r *fakeRedeemer) Redeem(_ context.Context, conditionID string) (common.Hash, error) {
	r.calls = append(r.calls, conditionID)
	if r.err != nil {
		return common.Hash{}, r.err
	}
	return common.HexToHash("0xfeed"), nil
}

var errBoom = errors.New("boom")
