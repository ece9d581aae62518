package domain

import "time"

// LegPosition is the accumulated holding of one leg within a window.
type LegPosition struct {
	Spent       float64 `json:"spent"`
	Amount      float64 `json:"amount"`
	Fills       int     `json:"fills"`
	Initialized bool    `json:"initialized"`
	InitPrice   float64 `json:"init_price"`
}

// AvgPrice is the per-share cost of the leg, or zero before the first fill.
func (l LegPosition) AvgPrice() float64 {
	if l.Amount == 0 {
		return 0
	}
	return l.Spent / l.Amount
}

// PairPosition is a point-in-time view of the strategy state for one market.
// PairCost is zero until both legs hold shares.
type PairPosition struct {
	Slug        string      `json:"slug"`
	ConditionID string      `json:"condition_id"`
	State       string      `json:"state"`
	Up          LegPosition `json:"up"`
	Down        LegPosition `json:"down"`
	Spent       float64     `json:"spent"`
	PairCost    float64     `json:"pair_cost"`
	Profit      float64     `json:"profit"`
	UpProfit    float64     `json:"up_profit"`
	DownProfit  float64     `json:"down_profit"`
	At          time.Time   `json:"at"`
}

// Leg returns the position for the given leg.
func (p PairPosition) Leg(l Leg) LegPosition {
	if l == LegDown {
		return p.Down
	}
	return p.Up
}
