package domain

import "time"

// Market is one recurring up/down window market as listed by the venue.
type Market struct {
	ConditionID string
	Slug        string
	Question    string
	Outcomes    [2]string // indexed by Leg
	TokenIDs    [2]string // ERC-1155 position ids, indexed by Leg
	TickSize    string
	NegRisk     bool
	EndDate     *time.Time
}

// TokenID returns the position token for the given leg.
func (m Market) TokenID(leg Leg) string {
	if !leg.Valid() {
		return ""
	}
	return m.TokenIDs[leg]
}
