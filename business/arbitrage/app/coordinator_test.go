package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/business/arbitrage/domain"
	cexdomain "github.com/flash-defi/venus/business/cex/domain"
	dexdomain "github.com/flash-defi/venus/business/dex/domain"
	"github.com/flash-defi/venus/internal/asset"
	"github.com/flash-defi/venus/internal/venue"
)

type fakeCex struct {
	mu     sync.Mutex
	orders []struct {
		CID    int64
		Amount decimal.Decimal
	}
	err error
}

func (f *fakeCex) SubmitOrder(_ context.Context, cid int64, _ venue.Cex, _ asset.Pair, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, struct {
		CID    int64
		Amount decimal.Decimal
	}{cid, amount})
	return f.err
}

type fakeDex struct {
	mu     sync.Mutex
	orders []decimal.Decimal
	hashes []common.Hash
	err    error
}

func (f *fakeDex) SubmitOrder(_ context.Context, amount decimal.Decimal, _ common.Address) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return common.Hash{}, f.err
	}
	f.orders = append(f.orders, amount)
	var h common.Hash
	h[31] = byte(len(f.orders)) // distinct per submission
	f.hashes = append(f.hashes, h)
	return h, nil
}

type fakeReceipts struct {
	receipt *dexdomain.SwapReceipt
	err     error
}

func (f *fakeReceipts) Receipt(_ context.Context, txHash common.Hash) (*dexdomain.SwapReceipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.receipt != nil {
		r := *f.receipt
		r.TxHash = txHash
		return &r, nil
	}
	return &dexdomain.SwapReceipt{TxHash: txHash}, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	summaries []domain.Summary
}

func (f *fakeNotifier) Notify(_ context.Context, s domain.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, s)
	return nil
}

func (f *fakeNotifier) last(t *testing.T) domain.Summary {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.summaries) == 0 {
		t.Fatal("no notification delivered")
	}
	return f.summaries[len(f.summaries)-1]
}

type harness struct {
	coord    *Coordinator
	cex      *fakeCex
	dex      *fakeDex
	receipts *fakeReceipts
	notifier *fakeNotifier
	clock    *fakeClock
	fatals   []string
}

type fakeClock struct {
	mu sync.Mutex
	ms int64
}

func (c *fakeClock) now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.ms += d.Milliseconds()
	c.mu.Unlock()
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		cex:      &fakeCex{},
		dex:      &fakeDex{},
		receipts: &fakeReceipts{},
		notifier: &fakeNotifier{},
		clock:    &fakeClock{ms: 1700000000000},
	}

	log := testLogger()
	reconciler := NewReconciler(h.receipts, h.notifier, log)

	h.coord = NewCoordinator(
		CoordinatorConfig{
			Cex:      venue.Bitfinex,
			Dex:      venue.UniswapV3,
			Network:  venue.Arbitrum,
			Pair:     asset.Pair{Base: asset.ARB, Quote: asset.USDC},
			FeeTier:  500,
			Notional: decimal.NewFromInt(10),
		},
		h.cex,
		h.dex,
		reconciler,
		h.clock.now,
		func(reason string) { h.fatals = append(h.fatals, reason) },
		func() (decimal.Decimal, bool) { return decimal.RequireFromString("1.001"), true },
		log,
	)
	return h
}

func sellIntent() Intent {
	return Intent{
		Direction: SellCexBuyDex,
		CexAmount: decimal.NewFromInt(-10),
		DexAmount: decimal.NewFromInt(10),
		DeltaBp:   decimal.RequireFromString("89.9"),
	}
}

func TestTryOpenSubmitsBothLegs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coord.TryOpen(ctx, sellIntent())

	if h.coord.Inflight() != 1 {
		t.Errorf("inflight = %d, want 1", h.coord.Inflight())
	}
	if len(h.cex.orders) != 1 || !h.cex.orders[0].Amount.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("cex orders = %+v", h.cex.orders)
	}
	if len(h.dex.orders) != 1 || !h.dex.orders[0].Equal(decimal.NewFromInt(10)) {
		t.Errorf("dex orders = %+v", h.dex.orders)
	}

	pairs := h.coord.ActivePairs()
	if len(pairs) != 1 {
		t.Fatalf("active pairs = %d", len(pairs))
	}
	p := pairs[0]
	if p.State() != domain.StateCreated {
		t.Errorf("state = %s", p.State())
	}
	if int64(p.ID) != h.cex.orders[0].CID {
		t.Errorf("cex order cid %d != pair id %d", h.cex.orders[0].CID, p.ID)
	}
	if p.Dex.TxHash == nil {
		t.Error("dex tx hash not recorded")
	}
}

func TestAdmissionBackpressure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Fill the budget; at MAX_INFLIGHT - 1 the open still goes through.
	for i := 0; i < DefaultMaxInflight; i++ {
		h.clock.advance(time.Millisecond)
		h.coord.TryOpen(ctx, sellIntent())
	}
	if h.coord.Inflight() != DefaultMaxInflight {
		t.Fatalf("inflight = %d", h.coord.Inflight())
	}
	if len(h.coord.ActivePairs()) != DefaultMaxInflight {
		t.Fatalf("table size = %d", len(h.coord.ActivePairs()))
	}

	// The 6th intent is dropped with no table mutation.
	h.clock.advance(time.Millisecond)
	h.coord.TryOpen(ctx, sellIntent())

	if h.coord.Inflight() != DefaultMaxInflight {
		t.Errorf("inflight after drop = %d, want %d", h.coord.Inflight(), DefaultMaxInflight)
	}
	if len(h.coord.ActivePairs()) != DefaultMaxInflight {
		t.Errorf("table mutated on dropped intent")
	}
	if len(h.cex.orders) != DefaultMaxInflight {
		t.Errorf("cex submissions = %d", len(h.cex.orders))
	}
}

func TestCIDUniqueWithinSameMillisecond(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Clock frozen: consecutive opens must still get distinct CIDs.
	h.coord.TryOpen(ctx, sellIntent())
	h.coord.TryOpen(ctx, sellIntent())
	h.coord.TryOpen(ctx, sellIntent())

	pairs := h.coord.ActivePairs()
	if len(pairs) != 3 {
		t.Fatalf("pairs = %d", len(pairs))
	}
	seen := map[domain.CID]bool{}
	for _, p := range pairs {
		if seen[p.ID] {
			t.Fatalf("duplicate cid %d", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestHappyPathSettlement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.receipts.receipt = &dexdomain.SwapReceipt{
		BlockNumber: 42,
		BaseAmount:  decimal.NewFromInt(10),
		QuoteAmount: decimal.RequireFromString("-10.01"),
	}

	h.coord.TryOpen(ctx, sellIntent())
	pairs := h.coord.ActivePairs()
	cid := int64(pairs[0].ID)
	txHash := *pairs[0].Dex.TxHash

	// CEX fill arrives: Created -> CexFilled, inflight decrements.
	h.coord.OnCexEvent(ctx, cexdomain.TradeExecution{
		Venue:         venue.Bitfinex,
		ClientOrderID: cid,
		BaseAmount:    decimal.NewFromInt(-10),
		QuoteAmount:   decimal.RequireFromString("10.10"),
		Price:         decimal.RequireFromString("1.01"),
		FeeCurrency:   "USD",
		FeeAmount:     decimal.RequireFromString("0.020"),
	})
	if h.coord.Inflight() != 0 {
		t.Errorf("inflight after fill = %d, want 0", h.coord.Inflight())
	}
	if got := h.coord.ActivePairs()[0].State(); got != domain.StateCexFilled {
		t.Errorf("state = %s, want cex_filled", got)
	}

	// Swap log arrives: CexFilled -> Settled; pair leaves the table.
	h.coord.OnDexFinalised(ctx, dexdomain.SwapFinalised{TxHash: txHash, BlockNumber: 42})

	if len(h.coord.ActivePairs()) != 0 {
		t.Errorf("settled pair still in table")
	}
	if len(h.fatals) != 0 {
		t.Errorf("unexpected fatal: %v", h.fatals)
	}

	summary := h.notifier.last(t)
	if summary.Status != domain.StateSettled {
		t.Errorf("status = %s", summary.Status)
	}
	// Realized: cex 1.01 vs dex 1.001 -> ~89.9 bp.
	if summary.RealizedSpreadBp.LessThan(decimal.NewFromInt(89)) ||
		summary.RealizedSpreadBp.GreaterThan(decimal.NewFromInt(91)) {
		t.Errorf("realized spread = %s, want ~90", summary.RealizedSpreadBp)
	}
	// Net: 10.10 - 10.01 - 0.020 = 0.07
	if !summary.NetPnl.Equal(decimal.RequireFromString("0.07")) {
		t.Errorf("net pnl = %s, want 0.07", summary.NetPnl)
	}
}

func TestDexConfirmsBeforeCexFill(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coord.TryOpen(ctx, sellIntent())
	pairs := h.coord.ActivePairs()
	cid := int64(pairs[0].ID)
	txHash := *pairs[0].Dex.TxHash

	h.coord.OnDexFinalised(ctx, dexdomain.SwapFinalised{TxHash: txHash, BlockNumber: 7})
	if got := h.coord.ActivePairs()[0].State(); got != domain.StateDexConfirmed {
		t.Errorf("state = %s, want dex_confirmed", got)
	}
	// Inflight is NOT released by the DEX leg.
	if h.coord.Inflight() != 1 {
		t.Errorf("inflight = %d, want 1", h.coord.Inflight())
	}

	h.coord.OnCexEvent(ctx, cexdomain.TradeExecution{
		ClientOrderID: cid,
		BaseAmount:    decimal.NewFromInt(-10),
		QuoteAmount:   decimal.RequireFromString("10.10"),
		Price:         decimal.RequireFromString("1.01"),
	})

	if len(h.coord.ActivePairs()) != 0 {
		t.Error("pair should be settled and removed")
	}
	if h.coord.Inflight() != 0 {
		t.Errorf("inflight = %d, want 0", h.coord.Inflight())
	}
}

func TestUnknownCidFillDiscarded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coord.OnCexEvent(ctx, cexdomain.TradeExecution{ClientOrderID: 12345})

	if len(h.coord.ActivePairs()) != 0 || h.coord.Inflight() != 0 {
		t.Error("unknown fill must not mutate state")
	}
	if len(h.fatals) != 0 {
		t.Errorf("unexpected fatal: %v", h.fatals)
	}
}

func TestDexSubmitFailureEscalates(t *testing.T) {
	h := newHarness(t)
	h.dex.err = errors.New("execution reverted")
	ctx := context.Background()

	h.coord.TryOpen(ctx, sellIntent())

	if len(h.fatals) == 0 {
		t.Fatal("dex failure with accepted cex leg must stop the process")
	}
	summary := h.notifier.last(t)
	if summary.Status != domain.StateFailed {
		t.Errorf("status = %s, want failed", summary.Status)
	}
}

func TestHalfFillStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coord.TryOpen(ctx, sellIntent())
	cid := int64(h.coord.ActivePairs()[0].ID)

	// CEX fills; DEX stays silent.
	h.coord.OnCexEvent(ctx, cexdomain.TradeExecution{
		ClientOrderID: cid,
		BaseAmount:    decimal.NewFromInt(-10),
		QuoteAmount:   decimal.RequireFromString("10.10"),
		Price:         decimal.RequireFromString("1.01"),
	})
	if len(h.fatals) != 0 {
		t.Fatalf("premature fatal: %v", h.fatals)
	}

	// Within the deadline the scan stays quiet.
	h.clock.advance(10 * time.Second)
	h.coord.checkStatus(ctx)
	if len(h.fatals) != 0 {
		t.Fatalf("fatal before deadline: %v", h.fatals)
	}

	// Past the deadline the half-fill is terminal.
	h.clock.advance(25 * time.Second)
	h.coord.checkStatus(ctx)
	if len(h.fatals) == 0 {
		t.Fatal("half-fill past deadline must stop the process")
	}
	summary := h.notifier.last(t)
	if summary.Status != domain.StateFailed {
		t.Errorf("status = %s", summary.Status)
	}
}

func TestBalanceFloorBase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Floor is 5 x 10 = 50 base.
	h.coord.OnCexEvent(ctx, cexdomain.Balance{
		WalletType: "exchange", Currency: "ARB",
		Balance: decimal.NewFromInt(49),
	})
	if len(h.fatals) == 0 {
		t.Fatal("base balance below floor must stop the process")
	}
}

func TestBalanceFloorQuoteUsesDexBid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Floor is dex bid 1.001 x 50 = 50.05 quote.
	h.coord.OnCexEvent(ctx, cexdomain.Balance{
		WalletType: "exchange", Currency: "USDC",
		Balance: decimal.NewFromInt(50),
	})
	if len(h.fatals) == 0 {
		t.Fatal("quote balance below floor must stop the process")
	}
}

func TestBalanceAboveFloorIsFine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coord.OnCexEvent(ctx, cexdomain.Balance{
		WalletType: "exchange", Currency: "ARB",
		Balance: decimal.NewFromInt(500),
	})
	h.coord.OnCexEvent(ctx, cexdomain.Balance{
		WalletType: "margin", Currency: "ARB",
		Balance: decimal.NewFromInt(1),
	})
	if len(h.fatals) != 0 {
		t.Errorf("unexpected fatal: %v", h.fatals)
	}
}

func TestCexSendFailedEscalates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coord.TryOpen(ctx, sellIntent())
	cid := int64(h.coord.ActivePairs()[0].ID)

	h.coord.OnCexEvent(ctx, cexdomain.SendFailed{
		ClientOrderID: cid,
		Err:           errors.New("socket dropped"),
	})

	if len(h.fatals) == 0 {
		t.Fatal("cex send failure with accepted dex leg must stop the process")
	}
}
