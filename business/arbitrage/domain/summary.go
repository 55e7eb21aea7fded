package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/internal/asset"
)

// Outcome is the realized result of one leg.
type Outcome struct {
	ID          string          `json:"id"`
	Venue       string          `json:"venue"`
	Network     string          `json:"network,omitempty"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	QuoteAmount decimal.Decimal `json:"quote_amount"`
	Price       decimal.Decimal `json:"price"`
	FeeCurrency string          `json:"fee_currency,omitempty"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
}

// Summary is the reconciled result of one arbitrage attempt, serialized to
// the notification webhook.
type Summary struct {
	Datetime         time.Time       `json:"datetime"`
	Base             asset.Symbol    `json:"base"`
	Quote            asset.Symbol    `json:"quote"`
	Status           State           `json:"status"`
	Reason           string          `json:"reason,omitempty"`
	Cex              Outcome         `json:"cex"`
	Dex              Outcome         `json:"dex"`
	RealizedSpreadBp decimal.Decimal `json:"realized_spread_bp"`
	NetPnl           decimal.Decimal `json:"net_pnl"`
}
