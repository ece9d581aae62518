package domain

import "time"

// Resolution is the on-chain settlement status of a condition.
//
// Resolved is true once the oracle has reported payouts. WinningIndex is the
// outcome that pays out in full; it stays nil for resolved conditions whose
// payouts did not single out one outcome, which callers treat as an unknown
// winner. Payout amounts are base-10 integers kept as strings since on-chain
// values are uint256.
type Resolution struct {
	ConditionID       string     `json:"condition_id"`
	Resolved          bool       `json:"resolved"`
	WinningIndex      *int       `json:"winning_index,omitempty"`
	PayoutNumerators  []string   `json:"payout_numerators,omitempty"`
	PayoutDenominator string     `json:"payout_denominator,omitempty"`
	Oracle            string     `json:"oracle,omitempty"`
	QuestionID        string     `json:"question_id,omitempty"`
	OutcomeSlotCount  int        `json:"outcome_slot_count,omitempty"`
	BlockNumber       uint64     `json:"block_number,omitempty"`
	TxHash            string     `json:"tx_hash,omitempty"`
	ObservedAt        time.Time  `json:"observed_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

// Outcome reports the resolution as a (resolved, winningIndex, hasWinner) triple.
func (r Resolution) Outcome() (resolved bool, winningIndex int, hasWinner bool) {
	if !r.Resolved || r.WinningIndex == nil {
		return r.Resolved, -1, false
	}
	return true, *r.WinningIndex, true
}

// Settled reports whether the record is final: resolved with a known winner.
func (r Resolution) Settled() bool {
	return r.Resolved && r.WinningIndex != nil
}

// Winner returns the winning leg when there is one.
func (r Resolution) Winner() (Leg, bool) {
	if !r.Settled() {
		return 0, false
	}
	leg := Leg(*r.WinningIndex)
	return leg, leg.Valid()
}

// IntPtr is a small helper for building optional indices.
func IntPtr(v int) *int { return &v }
