package polymarket

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// collateralDecimals is the number of decimals of USDC and of outcome shares.
const collateralDecimals = 6

// DefaultTickSize is used when a market does not report one.
const DefaultTickSize = "0.01"

type roundConfig struct {
	price  int32
	size   int32
	amount int32
}

var roundingByTickSize = map[string]roundConfig{
	"0.1":    {price: 1, size: 2, amount: 3},
	"0.01":   {price: 2, size: 2, amount: 4},
	"0.001":  {price: 3, size: 2, amount: 5},
	"0.0001": {price: 4, size: 2, amount: 6},
}

// BuyAmounts converts a limit buy of size shares at price into the signed
// maker amount (USDC paid) and taker amount (shares received), both in base
// units. Price is rounded to the tick, size is rounded down to cents and the
// USDC amount is kept within the precision the exchange accepts.
func BuyAmounts(price, size float64, tickSize string) (maker, taker *big.Int, err error) {
	tickSize = strings.TrimSpace(tickSize)
	if tickSize == "" {
		tickSize = DefaultTickSize
	}
	rc, ok := roundingByTickSize[tickSize]
	if !ok {
		return nil, nil, fmt.Errorf("polymarket: unsupported tick size %q", tickSize)
	}

	p := decimal.NewFromFloat(price).Round(rc.price)
	tick, _ := decimal.NewFromString(tickSize)
	if p.LessThan(tick) || p.GreaterThan(decimal.NewFromInt(1).Sub(tick)) {
		return nil, nil, fmt.Errorf("polymarket: price %s outside [%s, %s]", p, tick, decimal.NewFromInt(1).Sub(tick))
	}
	s := decimal.NewFromFloat(size).Truncate(rc.size)
	if !s.IsPositive() {
		return nil, nil, fmt.Errorf("polymarket: size %v rounds to zero", size)
	}

	m := s.Mul(p)
	if !m.Equal(m.Truncate(rc.amount)) {
		m = ceilTo(m, rc.amount+4)
		if !m.Equal(m.Truncate(rc.amount)) {
			m = m.Truncate(rc.amount)
		}
	}

	return toBaseUnits(m), toBaseUnits(s), nil
}

// ceilTo rounds a positive d up to places decimals.
func ceilTo(d decimal.Decimal, places int32) decimal.Decimal {
	t := d.Truncate(places)
	if t.LessThan(d) {
		t = t.Add(decimal.New(1, -places))
	}
	return t
}

func toBaseUnits(d decimal.Decimal) *big.Int {
	return d.Shift(collateralDecimals).Truncate(0).BigInt()
}

// FromBaseUnits converts base units back to a decimal amount.
func FromBaseUnits(n *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(n, -collateralDecimals)
}
