package domain

import "time"

// WindowOutcome summarises how a traded window settled.
type WindowOutcome string

const (
	OutcomeUp         WindowOutcome = "up"
	OutcomeDown       WindowOutcome = "down"
	OutcomeUnknown    WindowOutcome = "unknown"    // resolved without a single winner
	OutcomeUnresolved WindowOutcome = "unresolved" // settlement timed out
	OutcomeNoPosition WindowOutcome = "no_position"
)

// WindowResult is the persisted record of one traded window.
type WindowResult struct {
	Slug             string        `json:"slug"`
	ConditionID      string        `json:"condition_id"`
	SlotStart        time.Time     `json:"slot_start"`
	SlotEnd          time.Time     `json:"slot_end"`
	Position         PairPosition  `json:"position"`
	Outcome          WindowOutcome `json:"outcome"`
	WinningIndex     *int          `json:"winning_index,omitempty"`
	GuaranteedProfit float64       `json:"guaranteed_profit"`
	RealizedPnL      *float64      `json:"realized_pnl,omitempty"`
	Paper            bool          `json:"paper"`
	JournalPath      string        `json:"journal_path,omitempty"`
	RedeemTx         string        `json:"redeem_tx,omitempty"`
	SettledAt        time.Time     `json:"settled_at"`
}

// RunStatus is what the status endpoint reports about the live loop.
type RunStatus struct {
	Mode        string           `json:"mode"`
	Slug        string           `json:"slug,omitempty"`
	SlotStart   time.Time        `json:"slot_start"`
	SlotEnd     time.Time        `json:"slot_end"`
	Position    *PairPosition    `json:"position,omitempty"`
	Quotes      map[string]Quote `json:"quotes,omitempty"`
	Windows     int              `json:"windows"`
	RealizedPnL float64          `json:"realized_pnl"`
	LastResult  *WindowResult    `json:"last_result,omitempty"`
}
