// Package app contains the spread monitor, the arbitrage coordinator, and
// the reconciler for the arbitrage context.
package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/business/arbitrage/domain"
	dexdomain "github.com/flash-defi/venus/business/dex/domain"
	"github.com/flash-defi/venus/internal/asset"
	"github.com/flash-defi/venus/internal/venue"
)

// Direction names the two crossing directions.
type Direction string

const (
	// SellCexBuyDex fires when the CEX bid is above the DEX ask.
	SellCexBuyDex Direction = "SELL_CEX_BUY_DEX"
	// BuyCexSellDex fires when the DEX bid is above the CEX ask.
	BuyCexSellDex Direction = "BUY_CEX_SELL_DEX"
)

// Intent is one detected crossing, sized to the configured notional. The
// amounts are signed per the venue contracts: CexAmount positive buys on
// the exchange, DexAmount positive buys on the pool.
type Intent struct {
	Direction Direction
	CexAmount decimal.Decimal
	DexAmount decimal.Decimal
	// DeltaBp is the observed dislocation that triggered the intent.
	DeltaBp decimal.Decimal
}

// Opener is the coordinator's single entry point, driven by the monitor.
type Opener interface {
	TryOpen(ctx context.Context, intent Intent)
}

// CexTrader submits exchange orders; fills arrive on the event stream.
type CexTrader interface {
	SubmitOrder(ctx context.Context, cid int64, cex venue.Cex, pair asset.Pair, amount decimal.Decimal) error
}

// DexTrader signs and broadcasts swaps.
type DexTrader interface {
	SubmitOrder(ctx context.Context, amount decimal.Decimal, recipient common.Address) (common.Hash, error)
}

// DexReceipts fetches mined swap outcomes for reconciliation.
type DexReceipts interface {
	Receipt(ctx context.Context, txHash common.Hash) (*dexdomain.SwapReceipt, error)
}

// Notifier delivers settlement summaries to the operator.
type Notifier interface {
	Notify(ctx context.Context, summary domain.Summary) error
}
