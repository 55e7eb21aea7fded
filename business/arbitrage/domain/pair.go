// Package domain contains the arbitrage lifecycle types: the pair record,
// its derived state machine, and the settlement summary.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	cexdomain "github.com/flash-defi/venus/business/cex/domain"
	dexdomain "github.com/flash-defi/venus/business/dex/domain"
	"github.com/flash-defi/venus/internal/asset"
	"github.com/flash-defi/venus/internal/venue"
)

// CID is the client-assigned arbitrage identifier: a wall-clock millisecond
// count, unique per process lifetime.
type CID int64

// State is the lifecycle position of one arbitrage attempt.
type State string

const (
	StateCreated      State = "created"
	StateCexFilled    State = "cex_filled"
	StateDexConfirmed State = "dex_confirmed"
	StateSettled      State = "settled"
	StateFailed       State = "failed"
)

// CexLeg tracks the exchange side of an attempt.
type CexLeg struct {
	Venue venue.Cex
	// InstructionAmount is signed: negative sells the base asset.
	InstructionAmount decimal.Decimal
	Fill              *cexdomain.TradeExecution
	Failed            bool
	FailReason        string
}

// DexLeg tracks the on-chain side of an attempt.
type DexLeg struct {
	Venue   venue.Dex
	Network venue.Network
	FeeTier uint32
	// InstructionAmount is signed: positive buys the base asset.
	InstructionAmount decimal.Decimal
	TxHash            *common.Hash
	Finalised         *dexdomain.SwapFinalised
	Failed            bool
	FailReason        string
}

// Pair is the lifecycle record of one arbitrage attempt. The record exists
// before either leg is submitted; each terminal field is set exactly once.
type Pair struct {
	ID       CID
	Datetime time.Time
	Base     asset.Symbol
	Quote    asset.Symbol
	Cex      CexLeg
	Dex      DexLeg
}

// State derives the lifecycle position from the leg observations.
func (p *Pair) State() State {
	if p.Cex.Failed || p.Dex.Failed {
		return StateFailed
	}
	cexDone := p.Cex.Fill != nil
	dexDone := p.Dex.Finalised != nil
	switch {
	case cexDone && dexDone:
		return StateSettled
	case cexDone:
		return StateCexFilled
	case dexDone:
		return StateDexConfirmed
	default:
		return StateCreated
	}
}

// Terminal reports whether the attempt has finished, successfully or not.
func (p *Pair) Terminal() bool {
	s := p.State()
	return s == StateSettled || s == StateFailed
}

// HalfFilled reports whether exactly one leg has landed while the other is
// neither landed nor known failed.
func (p *Pair) HalfFilled() bool {
	return p.State() == StateCexFilled || p.State() == StateDexConfirmed
}

// Age returns how long the attempt has been open.
func (p *Pair) Age(now time.Time) time.Duration {
	return now.Sub(p.Datetime)
}
