// Package app wires the bot together and runs the configured mode: the
// trading loop with settlement (live or paper), or the resolution monitor
// on its own.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pairbot/internal/config"
)

// App runs one mode of the bot and releases the backends it opened.
type App struct {
	cfg     *config.Config
	base    *slog.Logger // handed to components, which add their own tag
	logger  *slog.Logger
	closers []func()
	started time.Time
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		base:   logger,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the configured mode and blocks until
// the context is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.started = time.Now()
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("slug_prefix", a.cfg.Slot.SlugPrefix),
		slog.String("resolution_source", a.cfg.Resolution.Source),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.base)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch a.cfg.Mode {
	case config.ModeTrade:
		return a.TradeMode(ctx, deps, false)
	case config.ModePaper:
		return a.TradeMode(ctx, deps, true)
	case config.ModeMonitor:
		return a.MonitorMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close releases backends in reverse order of opening. Later calls do
// nothing.
func (a *App) Close() {
	if a.closers == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.logger.Info("stopped", slog.Duration("uptime", time.Since(a.started).Round(time.Second)))
}
