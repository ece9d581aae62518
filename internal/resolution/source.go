// Package resolution reports whether a market's condition has been resolved
// on-chain and which outcome won. Two sources are provided: Query asks the
// conditions subgraph on demand and Monitor follows ConditionResolution
// events from the chain in the background. Both cache settled answers, so a
// condition reported as won by one outcome stays that way.
package resolution

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// Source answers resolution queries. Lookup failures are never returned to
// the caller: they are logged and reported as not yet resolved so the caller
// polls again.
type Source interface {
	Resolved(ctx context.Context, conditionID string) domain.Resolution
}

// Recorder receives every newly cached resolution, e.g. to mirror it into
// shared storage.
type Recorder interface {
	Record(ctx context.Context, r domain.Resolution) error
}

// NormalizeID lowercases a condition id and ensures the 0x prefix.
func NormalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if !strings.HasPrefix(id, "0x") {
		id = "0x" + id
	}
	return id
}

func unresolved(conditionID string) domain.Resolution {
	return domain.Resolution{ConditionID: conditionID}
}

// FromPayouts interprets subgraph payouts. The condition is resolved when at
// least one numerator is present; the winner is the index whose numerator
// equals the denominator exactly. A resolved condition may have no winner.
func FromPayouts(numerators []string, denominator string) (resolved bool, winner *int, err error) {
	if len(numerators) == 0 {
		return false, nil, nil
	}
	den, ok := new(big.Int).SetString(strings.TrimSpace(denominator), 10)
	if !ok {
		return false, nil, fmt.Errorf("resolution: bad payout denominator %q", denominator)
	}
	for i, s := range numerators {
		n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
		if !ok {
			return false, nil, fmt.Errorf("resolution: bad payout numerator %q", s)
		}
		if winner == nil && n.Cmp(den) == 0 {
			winner = domain.IntPtr(i)
		}
	}
	return true, winner, nil
}

// firstPositive returns the index of the first numerator above zero.
func firstPositive(numerators []*big.Int) *int {
	for i, n := range numerators {
		if n != nil && n.Sign() > 0 {
			return domain.IntPtr(i)
		}
	}
	return nil
}

// canonicalAmounts rewrites base-10 integers without padding or leading
// zeros. Unparseable values become "0".
func canonicalAmounts(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		n, ok := new(big.Int).SetString(strings.TrimSpace(v), 10)
		if !ok {
			out = append(out, "0")
			continue
		}
		out = append(out, n.String())
	}
	return out
}
