package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/notify"
	"github.com/alanyoungcy/pairbot/internal/resolution"
)

// Redeemer burns winning positions of a resolved condition for collateral.
type Redeemer interface {
	Redeem(ctx context.Context, conditionID string) (common.Hash, error)
}

// JournalArchiver stores a window's fills and result.
type JournalArchiver interface {
	Archive(ctx context.Context, result domain.WindowResult, fills []domain.Fill) (string, error)
}

// SettlerConfig tunes settlement.
type SettlerConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Redeem       bool
	Paper        bool
}

// persistTimeout bounds the result writes, which outlive a cancelled run so
// windows in flight at shutdown are still recorded.
const persistTimeout = 10 * time.Second

func (c *SettlerConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Hour
	}
}

// Settler waits for each closed window's market to resolve and records the
// outcome. Windows settle concurrently so a slow resolution never holds up
// the next one.
type Settler struct {
	cfg       SettlerConfig
	source    resolution.Source
	windows   domain.WindowStore
	fills     domain.FillStore
	audit     domain.AuditStore
	journal   JournalArchiver
	redeemer  Redeemer
	notifier  *notify.Notifier
	onSettled func(domain.WindowResult)
	logger    *slog.Logger
}

// SettlerDeps are the collaborators of a Settler. Only Source is required.
type SettlerDeps struct {
	Source    resolution.Source
	Windows   domain.WindowStore
	Fills     domain.FillStore
	Audit     domain.AuditStore
	Journal   JournalArchiver
	Redeemer  Redeemer
	Notifier  *notify.Notifier
	OnSettled func(domain.WindowResult)
}

// NewSettler creates a settler.
func NewSettler(cfg SettlerConfig, deps SettlerDeps, logger *slog.Logger) *Settler {
	cfg.applyDefaults()
	return &Settler{
		cfg:       cfg,
		source:    deps.Source,
		windows:   deps.Windows,
		fills:     deps.Fills,
		audit:     deps.Audit,
		journal:   deps.Journal,
		redeemer:  deps.Redeemer,
		notifier:  deps.Notifier,
		onSettled: deps.OnSettled,
		logger:    logger.With(slog.String("component", "settler")),
	}
}

// Run settles every window received on in until in is closed, then waits for
// the settlements in flight.
func (s *Settler) Run(ctx context.Context, in <-chan closedWindow) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for w := range in {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Settle(ctx, w)
		}()
	}
	return nil
}

// Settle resolves one window and persists, archives and announces the
// result.
func (s *Settler) Settle(ctx context.Context, w closedWindow) domain.WindowResult {
	pos := w.Position
	res := domain.WindowResult{
		Slug:             w.Market.Slug,
		ConditionID:      w.Market.ConditionID,
		SlotStart:        w.Slot.Start,
		SlotEnd:          w.Slot.End(),
		Position:         pos,
		GuaranteedProfit: pos.Profit,
		Paper:            s.cfg.Paper,
	}
	logger := s.logger.With(slog.String("slug", res.Slug))

	// Fills are stored before the resolution wait so they survive a restart.
	if s.fills != nil && len(w.Fills) > 0 {
		pctx, cancel := s.persistContext(ctx)
		err := s.fills.InsertBatch(pctx, w.Fills)
		cancel()
		if err != nil {
			logger.Error("fill save failed",
				slog.Int("fills", len(w.Fills)),
				slog.String("error", err.Error()),
			)
		}
	}

	var resolved domain.Resolution
	if pos.Up.Amount == 0 && pos.Down.Amount == 0 {
		res.Outcome = domain.OutcomeNoPosition
	} else {
		var ok bool
		resolved, ok = s.await(ctx, w.Market.ConditionID)
		applyOutcome(&res, resolved, ok)
	}

	if resolved.Resolved && s.cfg.Redeem && !s.cfg.Paper && s.redeemer != nil {
		s.redeem(ctx, &res)
	}
	res.SettledAt = time.Now().UTC()

	pctx, cancel := s.persistContext(ctx)
	defer cancel()
	if s.journal != nil {
		path, err := s.journal.Archive(pctx, res, w.Fills)
		if err != nil {
			logger.Warn("journal archive failed", slog.String("error", err.Error()))
		} else {
			res.JournalPath = path
		}
	}
	if s.windows != nil {
		if err := s.windows.Save(pctx, res); err != nil {
			logger.Error("window save failed", slog.String("error", err.Error()))
		}
	}
	s.auditLog(pctx, domain.AuditWindowSettled, map[string]any{
		"slug":         res.Slug,
		"condition_id": res.ConditionID,
		"outcome":      string(res.Outcome),
		"spent":        pos.Spent,
	})

	attrs := []any{
		slog.String("outcome", string(res.Outcome)),
		slog.Float64("spent", pos.Spent),
		slog.Float64("guaranteed_profit", res.GuaranteedProfit),
	}
	if res.RealizedPnL != nil {
		attrs = append(attrs, slog.Float64("realized_pnl", *res.RealizedPnL))
	}
	logger.Info("window settled", attrs...)

	if res.Outcome != domain.OutcomeNoPosition {
		title, msg := notify.WindowSettled(res)
		if err := s.notifier.Notify(ctx, notify.EventWindowSettle, title, msg); err != nil {
			logger.Warn("notify failed", slog.String("error", err.Error()))
		}
	}
	if s.onSettled != nil {
		s.onSettled(res)
	}
	return res
}

// applyOutcome fills in the outcome and realized PnL. A resolution with no
// single winner leaves the PnL unset.
func applyOutcome(res *domain.WindowResult, r domain.Resolution, resolved bool) {
	if !resolved || !r.Resolved {
		res.Outcome = domain.OutcomeUnresolved
		return
	}
	winner, ok := r.Winner()
	if !ok {
		res.Outcome = domain.OutcomeUnknown
		return
	}
	res.WinningIndex = domain.IntPtr(int(winner))
	if winner == domain.LegUp {
		res.Outcome = domain.OutcomeUp
	} else {
		res.Outcome = domain.OutcomeDown
	}
	pnl := res.Position.Leg(winner).Amount - res.Position.Spent
	res.RealizedPnL = &pnl
}

// await polls the resolution source until the condition resolves, the
// timeout passes or ctx is cancelled.
func (s *Settler) await(ctx context.Context, conditionID string) (domain.Resolution, bool) {
	deadline := time.NewTimer(s.cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		r := s.source.Resolved(ctx, conditionID)
		if r.Resolved {
			return r, true
		}
		select {
		case <-ctx.Done():
			return r, false
		case <-deadline.C:
			s.logger.Warn("resolution wait timed out",
				slog.String("condition_id", conditionID),
				slog.Duration("timeout", s.cfg.Timeout),
			)
			return r, false
		case <-ticker.C:
		}
	}
}

func (s *Settler) redeem(ctx context.Context, res *domain.WindowResult) {
	tx, err := s.redeemer.Redeem(ctx, res.ConditionID)
	if err != nil {
		s.logger.Error("redeem failed",
			slog.String("condition_id", res.ConditionID),
			slog.String("error", err.Error()),
		)
		if nerr := s.notifier.Notify(ctx, notify.EventError, "Redeem failed: "+res.Slug, err.Error()); nerr != nil {
			s.logger.Warn("notify failed", slog.String("error", nerr.Error()))
		}
		return
	}
	res.RedeemTx = tx.Hex()
	s.auditLog(ctx, domain.AuditRedeem, map[string]any{
		"slug":         res.Slug,
		"condition_id": res.ConditionID,
		"tx":           res.RedeemTx,
	})
	msg := fmt.Sprintf("condition %s\ntx %s", res.ConditionID, res.RedeemTx)
	if err := s.notifier.Notify(ctx, notify.EventRedeem, "Redeemed: "+res.Slug, msg); err != nil {
		s.logger.Warn("notify failed", slog.String("error", err.Error()))
	}
}

func (s *Settler) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

func (s *Settler) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.Warn("audit failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
