package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/server"
	"github.com/alanyoungcy/pairbot/internal/server/handler"
	"github.com/alanyoungcy/pairbot/internal/slot"
	"github.com/alanyoungcy/pairbot/internal/strategy"
)

// TradeMode runs the trading loop, settlement, the resolution monitor, the
// quote stream and the status server. With paper set, fills are simulated.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies, paper bool) error {
	a.logger.InfoContext(ctx, "starting trade mode", slog.Bool("paper", paper))

	sched, err := slot.NewScheduler(a.cfg.Slot.DurationMinutes, a.cfg.Slot.SlugPrefix, nil)
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	stratCfg := strategy.Config{
		OrderSize:               a.cfg.Strategy.OrderSize,
		MaxInitCombinedPrice:    a.cfg.Strategy.MaxInitCombinedPrice,
		PairDifferenceThreshold: a.cfg.Strategy.PairDifferenceThreshold,
	}
	if err := stratCfg.Validate(); err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	closed := make(chan closedWindow, 4)
	runnerDeps := RunnerDeps{
		Scheduler:  sched,
		Markets:    deps.Markets,
		Quotes:     deps.Quotes,
		Orders:     deps.Orders,
		QuoteCache: deps.QuoteCache,
		Audit:      deps.AuditStore,
		Locks:      deps.LockManager,
		Notifier:   deps.Notifier,
	}
	if deps.Stream != nil {
		runnerDeps.Watcher = deps.Stream
		g.Go(func() error {
			return deps.Stream.Run(ctx)
		})
	}
	runner := NewRunner(RunnerConfig{
		Mode:         a.cfg.Mode,
		Paper:        paper,
		Strategy:     stratCfg,
		TakeProfit:   a.cfg.Strategy.TakeProfit,
		TickInterval: a.cfg.Slot.TickInterval.Duration,
		LockTTL:      sched.Duration + a.cfg.Settle.PollInterval.Duration,
	}, runnerDeps, closed, a.base)

	settlerDeps := SettlerDeps{
		Source:    deps.Resolution,
		Windows:   deps.WindowStore,
		Fills:     deps.FillStore,
		Audit:     deps.AuditStore,
		Notifier:  deps.Notifier,
		OnSettled: runner.recordResult,
	}
	if deps.Journal != nil {
		settlerDeps.Journal = deps.Journal
	}
	if deps.Account != nil {
		settlerDeps.Redeemer = deps.Account
	}
	settler := NewSettler(SettlerConfig{
		PollInterval: a.cfg.Settle.PollInterval.Duration,
		Timeout:      a.cfg.Settle.Timeout.Duration,
		Redeem:       a.cfg.Settle.Redeem,
		Paper:        paper,
	}, settlerDeps, a.base)

	if deps.Monitor != nil {
		g.Go(func() error {
			return deps.Monitor.Run(ctx)
		})
	}
	g.Go(func() error {
		return runner.Run(ctx)
	})
	g.Go(func() error {
		return settler.Run(ctx, closed)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, runner)
	}

	return g.Wait()
}

// MonitorMode follows resolutions and serves the status API. No orders are
// placed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.String("resolution_source", a.cfg.Resolution.Source),
	)

	g, ctx := errgroup.WithContext(ctx)
	if deps.Monitor != nil {
		g.Go(func() error {
			return deps.Monitor.Run(ctx)
		})
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, idleStatus{mode: a.cfg.Mode})
	}
	return g.Wait()
}

// idleStatus reports the mode only, for runs without a trading loop.
type idleStatus struct{ mode string }

func (s idleStatus) Status() domain.RunStatus { return domain.RunStatus{Mode: s.mode} }

// startHTTPServer adds the status API to g. The server shuts down when ctx
// is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, status handler.StatusProvider) {
	var probe handler.BlockProbe
	if deps.Goldsky != nil {
		probe = deps.Goldsky
	}
	var mirror handler.ResolutionLookup
	if deps.Mirror != nil {
		mirror = deps.Mirror
	}
	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(probe, a.base),
		Status:      handler.NewStatusHandler(status),
		Resolutions: handler.NewResolutionHandler(deps.Resolution, mirror, a.base),
	}
	if deps.WindowStore != nil {
		handlers.Windows = handler.NewWindowHandler(deps.WindowStore, deps.FillStore, a.base)
	}
	if deps.AuditStore != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, a.base)
	}

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		Limiter:            deps.RateLimiter,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, a.base)

	g.Go(func() error {
		return srv.Run(ctx)
	})
}
