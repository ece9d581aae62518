package app

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/slot"
	"github.com/alanyoungcy/pairbot/internal/strategy"
)

var windowStart = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type runnerFixture struct {
	runner  *Runner
	closed  chan closedWindow
	finder  *fakeFinder
	orders  *fillAll
	locks   *fakeLocks
	watcher *fakeWatcher
	cache   *memQuoteCache
	audit   *memAudit
	slot    slot.Slot
}

func newRunnerFixture(t *testing.T, quotes staticQuotes, takeProfit float64) *runnerFixture {
	t.Helper()
	clock := &stepClock{now: windowStart, step: 30 * time.Second}
	sched, err := slot.NewScheduler(15, "", clock)
	if err != nil {
		t.Fatal(err)
	}
	f := &runnerFixture{
		closed: make(chan closedWindow, 1),
		finder: &fakeFinder{market: domain.Market{
			ConditionID: "0xc0nd",
			TokenIDs:    [2]string{"111", "222"},
			TickSize:    "0.01",
		}},
		orders:  &fillAll{},
		locks:   &fakeLocks{},
		watcher: &fakeWatcher{},
		cache:   &memQuoteCache{},
		audit:   &memAudit{},
		slot:    sched.Current(windowStart),
	}
	f.runner = NewRunner(RunnerConfig{
		Mode:         "paper",
		Paper:        true,
		Strategy:     strategy.DefaultConfig(),
		TakeProfit:   takeProfit,
		TickInterval: time.Millisecond,
	}, RunnerDeps{
		Scheduler:  sched,
		Markets:    f.finder,
		Quotes:     quotes,
		Orders:     f.orders,
		QuoteCache: f.cache,
		Audit:      f.audit,
		Locks:      f.locks,
		Watcher:    f.watcher,
	}, f.closed, discardLogger())
	return f
}

func TestRunWindowTradesAndHandsOff(t *testing.T) {
	f := newRunnerFixture(t, staticQuotes{{Price: 0.4, Size: 50}, {Price: 0.55, Size: 50}}, 0)

	if err := f.runner.runWindow(context.Background(), f.slot); err != nil {
		t.Fatalf("runWindow: %v", err)
	}

	var w closedWindow
	select {
	case w = <-f.closed:
	default:
		t.Fatal("no window handed off")
	}
	if w.Market.Slug != "btc-updown-15m-1735732800" {
		t.Errorf("slug = %q", w.Market.Slug)
	}
	if w.Position.Up.Amount != 10 || w.Position.Down.Amount != 10 {
		t.Errorf("amounts = %v/%v", w.Position.Up.Amount, w.Position.Down.Amount)
	}
	if math.Abs(w.Position.PairCost-0.95) > 1e-9 {
		t.Errorf("pair cost = %v", w.Position.PairCost)
	}
	if w.Position.State != strategy.StateClosed.String() {
		t.Errorf("state = %q", w.Position.State)
	}
	if len(w.Fills) != 2 || w.Fills[0].ID == "" || !w.Fills[0].Paper {
		t.Errorf("fills = %+v", w.Fills)
	}
	if len(f.audit.events) != 3 || f.audit.events[2] != domain.AuditWindowOpened {
		t.Errorf("audit events = %v", f.audit.events)
	}
	if len(f.locks.acquired) != 1 || f.locks.acquired[0] != "window:btc-updown-15m-1735732800" || f.locks.released != 1 {
		t.Errorf("lock = %v released %d", f.locks.acquired, f.locks.released)
	}
	if len(f.watcher.watched) != 1 {
		t.Errorf("watch calls = %v", f.watcher.watched)
	}
	if q, err := f.cache.GetQuote(context.Background(), "222"); err != nil || q.Price != 0.55 {
		t.Errorf("cached down quote = %+v, %v", q, err)
	}

	st := f.runner.Status()
	if st.Slug != w.Market.Slug || st.Position == nil || st.Position.Spent != w.Position.Spent {
		t.Errorf("status = %+v", st)
	}
	if st.Quotes["up"].Price != 0.4 {
		t.Errorf("status quotes = %+v", st.Quotes)
	}
}

func TestRunWindowTakeProfitStopsEarly(t *testing.T) {
	f := newRunnerFixture(t, staticQuotes{{Price: 0.3, Size: 50}, {Price: 0.3, Size: 50}}, 2)

	if err := f.runner.runWindow(context.Background(), f.slot); err != nil {
		t.Fatalf("runWindow: %v", err)
	}
	w := <-f.closed
	if math.Abs(w.Position.Profit-4) > 1e-9 {
		t.Errorf("profit = %v", w.Position.Profit)
	}
	if f.orders.buys != 2 {
		t.Errorf("buys = %d, trading should stop at take profit", f.orders.buys)
	}
}

func TestRunWindowInitGateClosed(t *testing.T) {
	f := newRunnerFixture(t, staticQuotes{{Price: 0.5, Size: 50}, {Price: 0.55, Size: 50}}, 0)

	if err := f.runner.runWindow(context.Background(), f.slot); err != nil {
		t.Fatal(err)
	}
	w := <-f.closed
	if f.orders.calls != 0 || w.Position.Spent != 0 || len(w.Fills) != 0 {
		t.Errorf("no buys expected: calls=%d spent=%v", f.orders.calls, w.Position.Spent)
	}
	if w.Position.Up.InitPrice != 0.5 {
		t.Errorf("init price = %v", w.Position.Up.InitPrice)
	}
}

func TestRunWindowSkipsLockedWindow(t *testing.T) {
	f := newRunnerFixture(t, staticQuotes{{Price: 0.4, Size: 50}, {Price: 0.55, Size: 50}}, 0)
	f.locks.held = true

	if err := f.runner.runWindow(context.Background(), f.slot); err != nil {
		t.Fatal(err)
	}
	if f.finder.calls != 0 {
		t.Errorf("market lookups = %d", f.finder.calls)
	}
	select {
	case <-f.closed:
		t.Error("locked window should not be handed off")
	default:
	}
}

func TestRunWindowLockErrorTradesAnyway(t *testing.T) {
	f := newRunnerFixture(t, staticQuotes{{Price: 0.4, Size: 50}, {Price: 0.55, Size: 50}}, 0)
	f.locks.err = errBoom

	if err := f.runner.runWindow(context.Background(), f.slot); err != nil {
		t.Fatal(err)
	}
	if w := <-f.closed; w.Position.Spent == 0 {
		t.Error("expected trading without the lock")
	}
}

func TestRunWindowRetriesMarketLookup(t *testing.T) {
	f := newRunnerFixture(t, staticQuotes{{Price: 0.4, Size: 50}, {Price: 0.55, Size: 50}}, 0)
	f.finder.missing = 3

	if err := f.runner.runWindow(context.Background(), f.slot); err != nil {
		t.Fatal(err)
	}
	if f.finder.calls != 4 {
		t.Errorf("lookups = %d", f.finder.calls)
	}
	<-f.closed
}

func TestRunWindowMarketNeverListed(t *testing.T) {
	f := newRunnerFixture(t, staticQuotes{}, 0)
	f.finder.missing = math.MaxInt

	err := f.runner.runWindow(context.Background(), f.slot)
	if !errors.Is(err, errWindowMissed) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunWindowCancelled(t *testing.T) {
	f := newRunnerFixture(t, staticQuotes{{Price: 0.4, Size: 50}, {Price: 0.55, Size: 50}}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.runner.runWindow(ctx, f.slot); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunWindowCancelledHandsOffFills(t *testing.T) {
	f := newRunnerFixture(t, staticQuotes{{Price: 0.4, Size: 50}, {Price: 0.55, Size: 50}}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.orders.onBuy = func(buys int) {
		if buys == 2 {
			cancel()
		}
	}

	if err := f.runner.runWindow(ctx, f.slot); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	var w closedWindow
	select {
	case w = <-f.closed:
	default:
		t.Fatal("cancelled window not handed off")
	}
	if len(w.Fills) != 2 || w.Position.Spent == 0 {
		t.Errorf("fills = %d spent = %v", len(w.Fills), w.Position.Spent)
	}
	if w.Position.State != strategy.StateClosed.String() {
		t.Errorf("state = %q", w.Position.State)
	}
	if rest := f.runner.orders.drain(); len(rest) != 0 {
		t.Errorf("undrained fills = %d", len(rest))
	}
}

func TestRecordResultTotals(t *testing.T) {
	f := newRunnerFixture(t, staticQuotes{}, 0)
	pnl := 1.25
	f.runner.recordResult(domain.WindowResult{Slug: "a", RealizedPnL: &pnl})
	f.runner.recordResult(domain.WindowResult{Slug: "b", Outcome: domain.OutcomeUnknown})

	st := f.runner.Status()
	if st.Windows != 2 || st.RealizedPnL != 1.25 || st.LastResult.Slug != "b" {
		t.Errorf("status = %+v", st)
	}
}

func TestRecordingExecutorSkipsMisses(t *testing.T) {
	orders := &fillAll{fail: true}
	audit := &memAudit{}
	rec := newRecordingExecutor(orders, audit, false, discardLogger())
	m := domain.Market{Slug: "s", TokenIDs: [2]string{"1", "2"}}

	if ok, err := rec.Buy(context.Background(), m, domain.LegUp, 0.4, 10); ok || err != nil {
		t.Fatalf("miss = %v, %v", ok, err)
	}
	orders.fail = false
	audit.err = errBoom
	if ok, err := rec.Buy(context.Background(), m, domain.LegDown, 0.5, 10); !ok || err != nil {
		t.Fatalf("fill = %v, %v (audit errors must not fail the buy)", ok, err)
	}
	orders.err = errBoom
	if _, err := rec.Buy(context.Background(), m, domain.LegDown, 0.5, 10); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}

	fills := rec.drain()
	if len(fills) != 1 || fills[0].TokenID != "2" || fills[0].Leg != domain.LegDown || fills[0].Paper {
		t.Errorf("fills = %+v", fills)
	}
	if len(rec.drain()) != 0 {
		t.Error("drain should reset")
	}
}
