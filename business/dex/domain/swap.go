// Package domain contains the dex context's domain types.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/internal/venue"
)

// SwapFinalised is a confirmed on-chain swap for the wallet, keyed by the
// transaction hash the submission returned.
type SwapFinalised struct {
	TxHash      common.Hash
	BlockNumber uint64
}

// SwapReceipt is the decoded outcome of a mined swap transaction.
type SwapReceipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Reverted    bool
	// BaseAmount/QuoteAmount are the wallet's signed deltas: positive means
	// the wallet received the token.
	BaseAmount  decimal.Decimal
	QuoteAmount decimal.Decimal
	GasUsed     uint64
}

// Instruction describes one swap leg.
type Instruction struct {
	Network   venue.Network
	Venue     venue.Dex
	Amount    decimal.Decimal // sign selects buy (+) or sell (-) of base
	FeeTier   uint32
	Recipient common.Address
	CreatedAt time.Time
}
