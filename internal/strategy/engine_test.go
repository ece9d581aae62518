package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

type fakeQuotes struct {
	asks [2]domain.Quote
	errs [2]error
}

func (f *fakeQuotes) BestAsk(_ context.Context, _ domain.Market, leg domain.Leg) (domain.Quote, error) {
	if f.errs[leg] != nil {
		return domain.Quote{}, f.errs[leg]
	}
	return f.asks[leg], nil
}

func (f *fakeQuotes) set(up, upSize, down, downSize float64) {
	f.asks[domain.LegUp] = domain.Quote{Price: up, Size: upSize}
	f.asks[domain.LegDown] = domain.Quote{Price: down, Size: downSize}
}

type buyCall struct {
	leg   domain.Leg
	price float64
	size  float64
}

type fakeOrders struct {
	reject bool
	err    error
	calls  []buyCall
}

func (f *fakeOrders) Buy(_ context.Context, _ domain.Market, leg domain.Leg, price, size float64) (bool, error) {
	f.calls = append(f.calls, buyCall{leg: leg, price: price, size: size})
	if f.err != nil {
		return false, f.err
	}
	return !f.reject, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(cfg Config) (*Engine, *fakeQuotes, *fakeOrders) {
	q := &fakeQuotes{}
	o := &fakeOrders{}
	m := domain.Market{ConditionID: "0xabc", Slug: "btc-updown-15m-1735689600"}
	return NewEngine(m, cfg, q, o, discardLogger()), q, o
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestInitOpensBothLegs(t *testing.T) {
	e, q, _ := newTestEngine(DefaultConfig())
	q.set(0.40, 50, 0.55, 50)

	if !e.Init(context.Background()) {
		t.Fatal("Init returned false, want true")
	}
	if e.State() != StateActive {
		t.Fatalf("state = %s, want active", e.State())
	}
	up, down := e.Leg(domain.LegUp), e.Leg(domain.LegDown)
	if up.Amount != 10 || down.Amount != 10 {
		t.Fatalf("amounts = %v/%v, want 10/10", up.Amount, down.Amount)
	}
	if !approx(up.Spent, 4.0) || !approx(down.Spent, 5.5) {
		t.Fatalf("spent = %v/%v, want 4.0/5.5", up.Spent, down.Spent)
	}
	if !approx(e.PairCost(), 0.95) {
		t.Fatalf("PairCost = %v, want 0.95", e.PairCost())
	}
	if !approx(e.CurrentProfit(), 0.5) {
		t.Fatalf("CurrentProfit = %v, want 0.5", e.CurrentProfit())
	}
	if !approx(e.UpProfit(), 0.5) || !approx(e.DownProfit(), 0.5) {
		t.Fatalf("Up/DownProfit = %v/%v", e.UpProfit(), e.DownProfit())
	}
}

func TestInitGateTracksLatestAsk(t *testing.T) {
	e, q, o := newTestEngine(DefaultConfig())
	q.set(0.50, 50, 0.55, 50)

	if e.Init(context.Background()) {
		t.Fatal("Init succeeded with combined price 1.05")
	}
	if len(o.calls) != 0 {
		t.Fatalf("placed %d orders with the gate closed", len(o.calls))
	}
	if e.State() != StateInitializing {
		t.Fatalf("state = %s, want initializing", e.State())
	}

	q.set(0.40, 50, 0.55, 50)
	if !e.Init(context.Background()) {
		t.Fatal("Init did not use the latest ask once the gate opened")
	}
	if got := e.Leg(domain.LegUp).InitPrice; got != 0.40 {
		t.Fatalf("up InitPrice = %v, want 0.40", got)
	}
}

func TestInitSkipsThinLegAndFreezesOpenedPrice(t *testing.T) {
	e, q, _ := newTestEngine(DefaultConfig())
	// Up has exactly OrderSize shares available, which is not enough.
	q.set(0.40, 10, 0.55, 50)

	if e.Init(context.Background()) {
		t.Fatal("Init returned true with one leg unopened")
	}
	if e.Leg(domain.LegUp).Initialized {
		t.Fatal("up opened with insufficient size")
	}
	if !e.Leg(domain.LegDown).Initialized {
		t.Fatal("down not opened")
	}

	// Down moves but its init price stays frozen; up now has depth.
	q.set(0.42, 50, 0.70, 50)
	if !e.Init(context.Background()) {
		t.Fatal("Init returned false after up gained depth")
	}
	if got := e.Leg(domain.LegDown).InitPrice; got != 0.55 {
		t.Fatalf("down InitPrice = %v, want frozen 0.55", got)
	}
	if got := e.Leg(domain.LegDown).Amount; got != 10 {
		t.Fatalf("down amount = %v, want 10", got)
	}
}

func TestInitIgnoresEmptyBookAndQuoteErrors(t *testing.T) {
	e, q, o := newTestEngine(DefaultConfig())
	q.set(0, 0, 0.55, 50)
	if e.Init(context.Background()) {
		t.Fatal("Init succeeded with an empty up book")
	}
	q.set(0.40, 50, 0.55, 50)
	q.errs[domain.LegDown] = errors.New("timeout")
	// Down has a remembered init price, so up may open.
	if e.Init(context.Background()) {
		t.Fatal("Init returned true while down quote failed")
	}
	if !e.Leg(domain.LegUp).Initialized || e.Leg(domain.LegDown).Initialized {
		t.Fatalf("unexpected legs after quote error: %+v %+v", e.Leg(domain.LegUp), e.Leg(domain.LegDown))
	}
	if len(o.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(o.calls))
	}
}

func TestTradeRejectsImbalance(t *testing.T) {
	e, q, o := newTestEngine(DefaultConfig())
	q.set(0.40, 50, 0.55, 50)
	if !e.Init(context.Background()) {
		t.Fatal("Init failed")
	}
	before := e.Snapshot()
	calls := len(o.calls)

	q.set(0.30, 50, 0.55, 50)
	e.Trade(context.Background())

	if len(o.calls) != calls {
		t.Fatalf("Trade placed %d orders, want none", len(o.calls)-calls)
	}
	after := e.Snapshot()
	if after.Up != before.Up || after.Down != before.Down {
		t.Fatalf("state changed: before %+v after %+v", before, after)
	}
}

func TestTradeBuysWhenPairCostDrops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PairDifferenceThreshold = 2
	e, q, _ := newTestEngine(cfg)
	q.set(0.40, 50, 0.55, 50)
	if !e.Init(context.Background()) {
		t.Fatal("Init failed")
	}

	q.set(0.30, 50, 0.55, 50)
	e.Trade(context.Background())

	if got := e.Leg(domain.LegUp).Amount; got != 20 {
		t.Fatalf("up amount = %v, want 20", got)
	}
	if got := e.Leg(domain.LegDown).Amount; got != 10 {
		t.Fatalf("down amount = %v, want 10 (no improvement at same price)", got)
	}
	if !approx(e.PairCost(), 0.90) {
		t.Fatalf("PairCost = %v, want 0.90", e.PairCost())
	}
}

func TestTradeSecondLegSeesFirstLegFill(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PairDifferenceThreshold = 2
	e, q, o := newTestEngine(cfg)
	q.set(0.40, 50, 0.55, 50)
	e.Init(context.Background())

	q.set(0.30, 50, 0.50, 50)
	e.Trade(context.Background())

	// Up buys first (0.35+0.55=0.90 < 0.95); down then compares against 0.90:
	// 0.35 + (5.5+5.0)/20 = 0.875 < 0.90 and 20 <= 2*20.
	if len(o.calls) != 4 {
		t.Fatalf("calls = %d, want 4", len(o.calls))
	}
	if e.Leg(domain.LegDown).Amount != 20 {
		t.Fatalf("down amount = %v, want 20", e.Leg(domain.LegDown).Amount)
	}
	if !approx(e.PairCost(), 0.875) {
		t.Fatalf("PairCost = %v, want 0.875", e.PairCost())
	}
}

func TestTradeRequiresStrictImprovementAndDepth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PairDifferenceThreshold = 3
	e, q, o := newTestEngine(cfg)
	q.set(0.40, 50, 0.55, 50)
	e.Init(context.Background())
	calls := len(o.calls)

	// Same prices: no strict improvement.
	e.Trade(context.Background())
	// Cheaper but too thin.
	q.set(0.10, 10, 0.10, 5)
	e.Trade(context.Background())

	if len(o.calls) != calls {
		t.Fatalf("Trade placed %d orders, want none", len(o.calls)-calls)
	}
}

func TestFailedBuyLeavesStateUnchanged(t *testing.T) {
	e, q, o := newTestEngine(DefaultConfig())
	q.set(0.40, 50, 0.55, 50)
	o.err = errors.New("http 500")
	if e.Init(context.Background()) {
		t.Fatal("Init succeeded although every buy failed")
	}
	o.err = nil
	o.reject = true
	if e.Init(context.Background()) {
		t.Fatal("Init succeeded although every buy was rejected")
	}
	for _, leg := range domain.Legs {
		l := e.Leg(leg)
		if l.Amount != 0 || l.Spent != 0 || l.Initialized {
			t.Fatalf("%s mutated after failed buys: %+v", leg, l)
		}
	}
	if !math.IsNaN(e.PairCost()) {
		t.Fatalf("PairCost = %v, want NaN", e.PairCost())
	}
}

func TestCloseStopsTrading(t *testing.T) {
	e, q, o := newTestEngine(DefaultConfig())
	q.set(0.40, 50, 0.55, 50)
	e.Init(context.Background())
	e.Close()
	calls := len(o.calls)

	q.set(0.10, 50, 0.10, 50)
	if e.Init(context.Background()) {
		t.Fatal("Init returned true after Close")
	}
	e.Trade(context.Background())
	if len(o.calls) != calls {
		t.Fatal("closed engine placed orders")
	}
	if got := e.Snapshot().State; got != "closed" {
		t.Fatalf("snapshot state = %q", got)
	}
}

func TestTradeBeforeInitIsNoop(t *testing.T) {
	e, q, o := newTestEngine(DefaultConfig())
	q.set(0.10, 50, 0.10, 50)
	e.Trade(context.Background())
	if len(o.calls) != 0 {
		t.Fatal("Trade placed orders before Init")
	}
}

// TestRandomTicksKeepInvariants drives the engine with random books and
// checks the position invariants after every tick.
func TestRandomTicksKeepInvariants(t *testing.T) {
	cfg := Config{OrderSize: 5, MaxInitCombinedPrice: 0.98, PairDifferenceThreshold: 1.5}
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		e, q, o := newTestEngine(cfg)
		var prev [2]domain.LegPosition
		for tick := 0; tick < 200; tick++ {
			q.set(0.05+rng.Float64()*0.9, rng.Float64()*20, 0.05+rng.Float64()*0.9, rng.Float64()*20)
			o.reject = rng.Intn(5) == 0

			wasActive := e.State() == StateActive
			calls := len(o.calls)
			if !wasActive {
				ok := e.Init(context.Background())
				sum := e.Leg(domain.LegUp).InitPrice + e.Leg(domain.LegDown).InitPrice
				if len(o.calls) > calls && sum >= cfg.MaxInitCombinedPrice {
					t.Fatalf("run %d tick %d: init bought with combined %v", run, tick, sum)
				}
				_ = ok
			} else {
				e.Trade(context.Background())
			}

			for _, leg := range domain.Legs {
				l := e.Leg(leg)
				if l.Amount < prev[leg].Amount || l.Spent < prev[leg].Spent {
					t.Fatalf("run %d tick %d: %s decreased", run, tick, leg)
				}
				if n := l.Amount / cfg.OrderSize; n != math.Trunc(n) {
					t.Fatalf("run %d tick %d: %s amount %v not a multiple", run, tick, leg, l.Amount)
				}
				prev[leg] = l
			}
			if wasActive {
				up, down := e.Leg(domain.LegUp).Amount, e.Leg(domain.LegDown).Amount
				if up > cfg.PairDifferenceThreshold*down || down > cfg.PairDifferenceThreshold*up {
					t.Fatalf("run %d tick %d: imbalance %v/%v", run, tick, up, down)
				}
			}
		}
	}
}
