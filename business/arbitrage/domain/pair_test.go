package domain

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	cexdomain "github.com/flash-defi/venus/business/cex/domain"
	dexdomain "github.com/flash-defi/venus/business/dex/domain"
	"github.com/flash-defi/venus/internal/asset"
	"github.com/flash-defi/venus/internal/venue"
)

func newPair() *Pair {
	return &Pair{
		ID:       CID(1700000000123),
		Datetime: time.Unix(1700000000, 0),
		Base:     asset.ARB,
		Quote:    asset.USDC,
		Cex: CexLeg{
			Venue:             venue.Bitfinex,
			InstructionAmount: decimal.NewFromInt(-10),
		},
		Dex: DexLeg{
			Venue:             venue.UniswapV3,
			Network:           venue.Arbitrum,
			FeeTier:           500,
			InstructionAmount: decimal.NewFromInt(10),
		},
	}
}

func TestStateTransitions(t *testing.T) {
	p := newPair()
	if p.State() != StateCreated {
		t.Fatalf("state = %s, want created", p.State())
	}
	if p.Terminal() || p.HalfFilled() {
		t.Error("fresh pair is neither terminal nor half-filled")
	}

	// Created -> CexFilled
	p.Cex.Fill = &cexdomain.TradeExecution{ClientOrderID: int64(p.ID)}
	if p.State() != StateCexFilled {
		t.Fatalf("state = %s, want cex_filled", p.State())
	}
	if !p.HalfFilled() {
		t.Error("cex-only pair is half-filled")
	}

	// CexFilled -> Settled
	hash := common.HexToHash("0xcba0d4fc27a32aaddece248d469beb430e29c1e6fecdd5db3383e1c8b212cdeb")
	p.Dex.TxHash = &hash
	p.Dex.Finalised = &dexdomain.SwapFinalised{TxHash: hash, BlockNumber: 42}
	if p.State() != StateSettled {
		t.Fatalf("state = %s, want settled", p.State())
	}
	if !p.Terminal() || p.HalfFilled() {
		t.Error("settled pair is terminal, not half-filled")
	}
}

func TestDexConfirmedFirst(t *testing.T) {
	p := newPair()
	hash := common.HexToHash("0x01")
	p.Dex.TxHash = &hash
	p.Dex.Finalised = &dexdomain.SwapFinalised{TxHash: hash, BlockNumber: 7}

	if p.State() != StateDexConfirmed {
		t.Fatalf("state = %s, want dex_confirmed", p.State())
	}
	if !p.HalfFilled() {
		t.Error("dex-only pair is half-filled")
	}

	p.Cex.Fill = &cexdomain.TradeExecution{ClientOrderID: int64(p.ID)}
	if p.State() != StateSettled {
		t.Fatalf("state = %s, want settled", p.State())
	}
}

func TestFailedLegWins(t *testing.T) {
	p := newPair()
	p.Cex.Fill = &cexdomain.TradeExecution{ClientOrderID: int64(p.ID)}
	p.Dex.Failed = true
	p.Dex.FailReason = "execution reverted"

	if p.State() != StateFailed {
		t.Fatalf("state = %s, want failed", p.State())
	}
	if !p.Terminal() {
		t.Error("failed pair is terminal")
	}
	if p.HalfFilled() {
		t.Error("known-failed pair is not half-filled; it is dead")
	}
}

func TestAge(t *testing.T) {
	p := newPair()
	now := p.Datetime.Add(31 * time.Second)
	if p.Age(now) != 31*time.Second {
		t.Errorf("age = %s", p.Age(now))
	}
}
