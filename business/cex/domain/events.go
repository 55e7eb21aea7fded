package domain

import (
	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/internal/venue"
)

// Event is an inbound event from a CEX session, delivered to the
// coordinator on the cex event channel.
type Event interface {
	cexEvent()
}

// Balance is an account wallet snapshot or delta.
type Balance struct {
	Venue      venue.Cex
	WalletType string // "exchange", "margin", "funding"
	Currency   string
	Balance    decimal.Decimal
}

func (Balance) cexEvent() {}

// TradeExecution is one fill of a submitted order, matched to its
// ArbitragePair by ClientOrderID.
type TradeExecution struct {
	Venue         venue.Cex
	ClientOrderID int64
	// BaseAmount is signed: negative for a sell of the base asset.
	BaseAmount decimal.Decimal
	// QuoteAmount is the signed counter-leg amount.
	QuoteAmount decimal.Decimal
	Price       decimal.Decimal
	FeeCurrency string
	FeeAmount   decimal.Decimal
}

func (TradeExecution) cexEvent() {}

// SendFailed reports an order command that did not reach execution: it was
// lost on a dropped socket or the venue rejected it. The coordinator treats
// the leg as failed.
type SendFailed struct {
	Venue         venue.Cex
	ClientOrderID int64
	Err           error
}

func (SendFailed) cexEvent() {}
