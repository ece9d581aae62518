package domain

import "time"

// PriceLevel is a single price+size entry in an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a snapshot of one token's book.
type OrderBook struct {
	TokenID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	TickSize  string
	Timestamp time.Time
}

// BestAsk returns the lowest ask level, or a zero quote when the ask side is empty.
func (b OrderBook) BestAsk() Quote {
	q := Quote{Timestamp: b.Timestamp}
	for _, lvl := range b.Asks {
		if lvl.Size <= 0 {
			continue
		}
		if q.Size == 0 || lvl.Price < q.Price {
			q.Price = lvl.Price
			q.Size = lvl.Size
		}
	}
	return q
}

// Quote is the best ask of one leg: the lowest offered price and the size
// available at that price. A zero quote means the side was empty.
type Quote struct {
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"ts"`
}

// Empty reports whether the quote carries no liquidity.
func (q Quote) Empty() bool {
	return q.Size <= 0
}
