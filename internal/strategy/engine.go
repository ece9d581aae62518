package strategy

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// State is the lifecycle of an Engine.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Engine accumulates a paired position in one up/down market. It first opens
// both legs at a combined price below MaxInitCombinedPrice, then keeps buying
// whichever leg lowers the average cost of a pair without letting either leg
// outgrow the other by more than PairDifferenceThreshold.
//
// An Engine is owned by a single goroutine.
type Engine struct {
	market domain.Market
	cfg    Config
	quotes QuoteSource
	orders OrderExecutor
	logger *slog.Logger

	state State
	legs  [2]domain.LegPosition
}

// NewEngine creates an Engine bound to market.
func NewEngine(market domain.Market, cfg Config, quotes QuoteSource, orders OrderExecutor, logger *slog.Logger) *Engine {
	return &Engine{
		market: market,
		cfg:    cfg,
		quotes: quotes,
		orders: orders,
		logger: logger.With(
			slog.String("component", "pair_engine"),
			slog.String("slug", market.Slug),
		),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Market returns the market the engine trades.
func (e *Engine) Market() domain.Market { return e.market }

// Leg returns a copy of one leg's state.
func (e *Engine) Leg(leg domain.Leg) domain.LegPosition { return e.legs[leg] }

// Init tries to open any leg that has no position yet and reports whether
// both legs are open. Call it once per tick until it returns true.
func (e *Engine) Init(ctx context.Context) bool {
	switch e.state {
	case StateClosed:
		return false
	case StateActive:
		return true
	case StateUninitialized:
		e.state = StateInitializing
	}

	var asks [2]domain.Quote
	for _, leg := range domain.Legs {
		if e.legs[leg].Initialized {
			continue
		}
		q, err := e.quotes.BestAsk(ctx, e.market, leg)
		if err != nil {
			e.logger.Debug("init quote failed",
				slog.String("leg", leg.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if q.Empty() {
			continue
		}
		asks[leg] = q
		e.legs[leg].InitPrice = q.Price
	}

	up, down := e.legs[domain.LegUp], e.legs[domain.LegDown]
	if up.InitPrice <= 0 || down.InitPrice <= 0 {
		return false
	}
	combined := up.InitPrice + down.InitPrice
	if combined >= e.cfg.MaxInitCombinedPrice {
		e.logger.Debug("init gate closed",
			slog.Float64("combined", combined),
			slog.Float64("max", e.cfg.MaxInitCombinedPrice),
		)
		return false
	}

	for _, leg := range domain.Legs {
		if e.legs[leg].Initialized {
			continue
		}
		q := asks[leg]
		if q.Size <= e.cfg.OrderSize {
			continue
		}
		if e.buy(ctx, leg, q.Price) {
			e.legs[leg].Initialized = true
			e.logger.Info("leg opened",
				slog.String("leg", leg.String()),
				slog.Float64("price", q.Price),
				slog.Float64("size", e.cfg.OrderSize),
			)
		}
	}

	if e.legs[domain.LegUp].Initialized && e.legs[domain.LegDown].Initialized {
		e.state = StateActive
		e.logger.Info("pair initialised",
			slog.Float64("pair_cost", e.PairCost()),
			slog.Float64("spent", e.Spent()),
		)
		return true
	}
	return false
}

// Trade runs one rebalancing pass: up first, then down. Each leg is bought
// only when one more increment strictly lowers the pair cost and keeps the
// leg within the imbalance bound. Trade does nothing unless the engine is
// active.
func (e *Engine) Trade(ctx context.Context) {
	if e.state != StateActive {
		return
	}
	for _, leg := range domain.Legs {
		e.rebalance(ctx, leg)
	}
}

func (e *Engine) rebalance(ctx context.Context, leg domain.Leg) {
	current := e.PairCost()
	q, err := e.quotes.BestAsk(ctx, e.market, leg)
	if err != nil {
		e.logger.Debug("trade quote failed",
			slog.String("leg", leg.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if q.Size <= e.cfg.OrderSize {
		return
	}

	next := e.hypotheticalPairCost(leg, q.Price)
	if !(next < current) {
		return
	}

	resulting := e.legs[leg].Amount + e.cfg.OrderSize
	limit := e.cfg.PairDifferenceThreshold * e.legs[leg.Other()].Amount
	if resulting > limit {
		e.logger.Debug("buy would unbalance pair",
			slog.String("leg", leg.String()),
			slog.Float64("resulting", resulting),
			slog.Float64("limit", limit),
		)
		return
	}

	if e.buy(ctx, leg, q.Price) {
		e.logger.Info("pair rebalanced",
			slog.String("leg", leg.String()),
			slog.Float64("price", q.Price),
			slog.Float64("pair_cost_before", current),
			slog.Float64("pair_cost_after", e.PairCost()),
		)
	}
}

// buy executes one OrderSize increment and applies it to the leg on success.
func (e *Engine) buy(ctx context.Context, leg domain.Leg, price float64) bool {
	ok, err := e.orders.Buy(ctx, e.market, leg, price, e.cfg.OrderSize)
	if err != nil {
		e.logger.Warn("buy failed",
			slog.String("leg", leg.String()),
			slog.Float64("price", price),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !ok {
		e.logger.Debug("buy not filled",
			slog.String("leg", leg.String()),
			slog.Float64("price", price),
		)
		return false
	}
	l := &e.legs[leg]
	l.Fills++
	l.Amount = float64(l.Fills) * e.cfg.OrderSize
	l.Spent += price * e.cfg.OrderSize
	return true
}

func (e *Engine) hypotheticalPairCost(leg domain.Leg, price float64) float64 {
	l := e.legs[leg]
	other := e.legs[leg.Other()]
	if other.Amount == 0 {
		return math.NaN()
	}
	return (l.Spent+price*e.cfg.OrderSize)/(l.Amount+e.cfg.OrderSize) + other.Spent/other.Amount
}

// PairCost is the average cost of one up share plus one down share. It is
// NaN until both legs hold shares.
func (e *Engine) PairCost() float64 {
	up, down := e.legs[domain.LegUp], e.legs[domain.LegDown]
	if up.Amount == 0 || down.Amount == 0 {
		return math.NaN()
	}
	return up.Spent/up.Amount + down.Spent/down.Amount
}

// AveragePairCost is an alias of PairCost kept for reporting.
func (e *Engine) AveragePairCost() float64 { return e.PairCost() }

// Spent is the total USDC paid across both legs.
func (e *Engine) Spent() float64 {
	return e.legs[domain.LegUp].Spent + e.legs[domain.LegDown].Spent
}

// CurrentProfit is the payout guaranteed whichever leg wins, net of spend.
func (e *Engine) CurrentProfit() float64 {
	return math.Min(e.legs[domain.LegUp].Amount, e.legs[domain.LegDown].Amount) - e.Spent()
}

// UpProfit is the net result if up wins.
func (e *Engine) UpProfit() float64 { return e.legs[domain.LegUp].Amount - e.Spent() }

// DownProfit is the net result if down wins.
func (e *Engine) DownProfit() float64 { return e.legs[domain.LegDown].Amount - e.Spent() }

// Close stops the engine. Init and Trade are no-ops afterwards.
func (e *Engine) Close() {
	if e.state == StateClosed {
		return
	}
	e.state = StateClosed
	e.logger.Info("engine closed",
		slog.Float64("spent", e.Spent()),
		slog.Float64("profit", e.CurrentProfit()),
		slog.Float64("up_amount", e.legs[domain.LegUp].Amount),
		slog.Float64("down_amount", e.legs[domain.LegDown].Amount),
	)
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() domain.PairPosition {
	pc := e.PairCost()
	if math.IsNaN(pc) {
		pc = 0
	}
	return domain.PairPosition{
		Slug:        e.market.Slug,
		ConditionID: e.market.ConditionID,
		State:       e.state.String(),
		Up:          e.legs[domain.LegUp],
		Down:        e.legs[domain.LegDown],
		Spent:       e.Spent(),
		PairCost:    pc,
		Profit:      e.CurrentProfit(),
		UpProfit:    e.UpProfit(),
		DownProfit:  e.DownProfit(),
		At:          time.Now().UTC(),
	}
}
