// Package market holds the price vocabulary shared by the CEX and DEX
// sessions and the arbitrage monitor.
package market

import "github.com/shopspring/decimal"

// Spread is the top of book on one venue. It is only published when both
// sides are present and not crossed.
type Spread struct {
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
}

// Change is a single merged market event carrying whichever venue side
// changed. Nil means "no change on that venue".
type Change struct {
	Cex *Spread
	Dex *Spread
}

// DeltaBp returns the dislocation of higher over lower in basis points:
// (higher - lower) / lower * 10000.
func DeltaBp(higher, lower decimal.Decimal) decimal.Decimal {
	if lower.IsZero() {
		return decimal.Zero
	}
	return higher.Sub(lower).Div(lower).Mul(decimal.NewFromInt(10000))
}
