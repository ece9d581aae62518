package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/notify"
	"github.com/alanyoungcy/pairbot/internal/slot"
	"github.com/alanyoungcy/pairbot/internal/strategy"
)

var errWindowMissed = errors.New("app: window ended before its market was listed")

// handOffTimeout bounds the final hand-off to settlement during shutdown.
const handOffTimeout = 5 * time.Second

// MarketFinder resolves a window slug to its market.
type MarketFinder interface {
	MarketBySlug(ctx context.Context, slug string) (domain.Market, error)
}

// MarketWatcher is told which market is being traded, e.g. to move a
// websocket subscription onto its tokens.
type MarketWatcher interface {
	Watch(market domain.Market) error
}

// RunnerConfig tunes the trading loop.
type RunnerConfig struct {
	Mode         string
	Paper        bool
	Strategy     strategy.Config
	TakeProfit   float64 // zero disables
	TickInterval time.Duration
	LockTTL      time.Duration
}

func (c *RunnerConfig) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 20 * time.Minute
	}
}

// closedWindow is what the runner hands to settlement once a window stops
// trading.
type closedWindow struct {
	Slot     slot.Slot
	Market   domain.Market
	Position domain.PairPosition
	Fills    []domain.Fill
}

// Runner drives one strategy engine per window: it finds the window's
// market, ticks Init and Trade until the window ends or take profit fires,
// then hands the final position to settlement and waits for the next window.
type Runner struct {
	cfg      RunnerConfig
	sched    *slot.Scheduler
	markets  MarketFinder
	quotes   *quoteTap
	orders   *recordingExecutor
	audit    domain.AuditStore
	locks    domain.LockManager
	watcher  MarketWatcher
	notifier *notify.Notifier
	closed   chan<- closedWindow
	logger   *slog.Logger

	mu     sync.RWMutex
	status domain.RunStatus
}

// RunnerDeps are the collaborators of a Runner. Locks, Watcher, QuoteCache,
// Audit and Notifier are optional.
type RunnerDeps struct {
	Scheduler  *slot.Scheduler
	Markets    MarketFinder
	Quotes     strategy.QuoteSource
	Orders     strategy.OrderExecutor
	QuoteCache domain.QuoteCache
	Audit      domain.AuditStore
	Locks      domain.LockManager
	Watcher    MarketWatcher
	Notifier   *notify.Notifier
}

// NewRunner creates a runner that sends closed windows on closed. closed is
// closed when Run returns.
func NewRunner(cfg RunnerConfig, deps RunnerDeps, closed chan<- closedWindow, logger *slog.Logger) *Runner {
	cfg.applyDefaults()
	return &Runner{
		cfg:      cfg,
		sched:    deps.Scheduler,
		markets:  deps.Markets,
		quotes:   newQuoteTap(deps.Quotes, deps.QuoteCache, logger),
		orders:   newRecordingExecutor(deps.Orders, deps.Audit, cfg.Paper, logger),
		audit:    deps.Audit,
		locks:    deps.Locks,
		watcher:  deps.Watcher,
		notifier: deps.Notifier,
		closed:   closed,
		logger:   logger.With(slog.String("component", "runner")),
		status:   domain.RunStatus{Mode: cfg.Mode},
	}
}

// Run trades window after window until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.closed != nil {
		defer close(r.closed)
	}
	for {
		s := r.sched.Current(r.sched.Now())
		if err := r.runWindow(ctx, s); err != nil && ctx.Err() == nil {
			r.logger.Warn("window skipped",
				slog.String("slot", s.String()),
				slog.String("error", err.Error()),
			)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := r.sched.WaitUntilNext(ctx, s); err != nil {
			return nil
		}
	}
}

func (r *Runner) runWindow(ctx context.Context, s slot.Slot) error {
	slug := r.sched.Slug(s)
	logger := r.logger.With(slog.String("slug", slug))
	r.beginWindow(s, slug)

	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, "window:"+slug, r.cfg.LockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			logger.Info("window traded by another replica")
			return nil
		case err != nil:
			logger.Warn("window lock unavailable, trading unlocked", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	market, err := r.findMarket(ctx, s, slug, ticker.C)
	if err != nil {
		return err
	}
	if r.watcher != nil {
		if err := r.watcher.Watch(market); err != nil {
			logger.Warn("quote stream watch failed", slog.String("error", err.Error()))
		}
	}
	logger.Info("window started",
		slog.String("condition_id", market.ConditionID),
		slog.Time("ends", s.End()),
	)

	engine := strategy.NewEngine(market, r.cfg.Strategy, r.quotes, r.orders, r.logger)
	opened := false
	for r.sched.Active(s, r.sched.Now()) {
		if engine.State() == strategy.StateActive {
			engine.Trade(ctx)
		} else if engine.Init(ctx) && !opened {
			opened = true
			snap := engine.Snapshot()
			title, msg := notify.WindowOpened(snap)
			r.notify(ctx, notify.EventWindowOpen, title, msg)
			r.auditOpened(ctx, market, snap)
		}

		snap := engine.Snapshot()
		r.setPosition(snap, r.quotes.snapshot())

		if opened && r.cfg.TakeProfit > 0 && snap.Profit >= r.cfg.TakeProfit {
			logger.Info("take profit reached",
				slog.Float64("profit", snap.Profit),
				slog.Float64("target", r.cfg.TakeProfit),
			)
			title, msg := notify.TakeProfit(snap, r.cfg.TakeProfit)
			r.notify(ctx, notify.EventTakeProfit, title, msg)
			break
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		final := r.closeWindow(engine)
		if final.Spent > 0 {
			logger.Warn("shutdown with an open position", slog.Float64("spent", final.Spent))
		}
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handOffTimeout)
		defer cancel()
		r.handOff(hctx, closedWindow{Slot: s, Market: market, Position: final, Fills: r.orders.drain()})
		return ctx.Err()
	}

	final := r.closeWindow(engine)
	r.handOff(ctx, closedWindow{
		Slot:     s,
		Market:   market,
		Position: final,
		Fills:    r.orders.drain(),
	})
	return nil
}

func (r *Runner) closeWindow(engine *strategy.Engine) domain.PairPosition {
	engine.Close()
	final := engine.Snapshot()
	r.setPosition(final, r.quotes.snapshot())
	return final
}

// findMarket polls the market listing once per tick until the slug appears
// or the window ends.
func (r *Runner) findMarket(ctx context.Context, s slot.Slot, slug string, tick <-chan time.Time) (domain.Market, error) {
	for {
		m, err := r.markets.MarketBySlug(ctx, slug)
		if err == nil {
			return m, nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.Debug("market not listed yet", slog.String("slug", slug))
		} else {
			r.logger.Warn("market lookup failed",
				slog.String("slug", slug),
				slog.String("error", err.Error()),
			)
		}
		if !r.sched.Active(s, r.sched.Now()) {
			return domain.Market{}, errWindowMissed
		}
		select {
		case <-ctx.Done():
			return domain.Market{}, ctx.Err()
		case <-tick:
		}
	}
}

func (r *Runner) handOff(ctx context.Context, w closedWindow) {
	if r.closed == nil {
		return
	}
	select {
	case r.closed <- w:
	case <-ctx.Done():
	}
}

func (r *Runner) notify(ctx context.Context, event string, title, message string) {
	if err := r.notifier.Notify(ctx, event, title, message); err != nil {
		r.logger.Warn("notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) beginWindow(s slot.Slot, slug string) {
	r.quotes.reset()
	r.orders.drain()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Slug = slug
	r.status.SlotStart = s.Start
	r.status.SlotEnd = s.End()
	r.status.Position = nil
	r.status.Quotes = nil
}

func (r *Runner) setPosition(p domain.PairPosition, quotes map[string]domain.Quote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Position = &p
	r.status.Quotes = quotes
}

// recordResult folds a settled window into the running totals.
func (r *Runner) recordResult(res domain.WindowResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Windows++
	if res.RealizedPnL != nil {
		r.status.RealizedPnL += *res.RealizedPnL
	}
	r.status.LastResult = &res
}

// Status returns a copy of the loop state.
func (r *Runner) Status() domain.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Runner) auditOpened(ctx context.Context, market domain.Market, pos domain.PairPosition) {
	if r.audit == nil {
		return
	}
	err := r.audit.Log(ctx, domain.AuditWindowOpened, map[string]any{
		"slug":         market.Slug,
		"condition_id": market.ConditionID,
		"up_price":     pos.Up.AvgPrice(),
		"down_price":   pos.Down.AvgPrice(),
		"pair_cost":    pos.PairCost,
		"paper":        r.cfg.Paper,
	})
	if err != nil {
		r.logger.Warn("audit window open failed",
			slog.String("slug", market.Slug),
			slog.String("error", err.Error()),
		)
	}
}
