package domain

import "fmt"

// Leg identifies one side of a binary up/down market. The value doubles as
// the outcome index used by the conditional token framework.
type Leg int

const (
	LegUp   Leg = 0
	LegDown Leg = 1
)

// Legs lists both legs in the order the strategy evaluates them.
var Legs = [2]Leg{LegUp, LegDown}

// Other returns the opposite leg.
func (l Leg) Other() Leg {
	if l == LegUp {
		return LegDown
	}
	return LegUp
}

func (l Leg) String() string {
	switch l {
	case LegUp:
		return "up"
	case LegDown:
		return "down"
	default:
		return fmt.Sprintf("leg(%d)", int(l))
	}
}

// Valid reports whether l is one of the two known legs.
func (l Leg) Valid() bool {
	return l == LegUp || l == LegDown
}
