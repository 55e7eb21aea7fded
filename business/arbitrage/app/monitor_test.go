package app

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/internal/logger"
	"github.com/flash-defi/venus/internal/market"
)

type captureOpener struct {
	intents []Intent
}

func (c *captureOpener) TryOpen(_ context.Context, intent Intent) {
	c.intents = append(c.intents, intent)
}

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func spread(bid, ask string) *market.Spread {
	return &market.Spread{
		BestBid: decimal.RequireFromString(bid),
		BestAsk: decimal.RequireFromString(ask),
	}
}

func newTestMonitor(opener Opener, live SpreadSource) *Monitor {
	return NewMonitor(decimal.NewFromInt(50), decimal.NewFromInt(10), opener, live, testLogger())
}

func TestNoCrossNoAction(t *testing.T) {
	opener := &captureOpener{}
	m := newTestMonitor(opener, nil)
	ctx := context.Background()

	m.OnChange(ctx, market.Change{Cex: spread("1.000", "1.002")})
	m.OnChange(ctx, market.Change{Dex: spread("0.999", "1.003")})

	if len(opener.intents) != 0 {
		t.Fatalf("intents = %d, want 0", len(opener.intents))
	}
}

func TestCexOverDexCross(t *testing.T) {
	opener := &captureOpener{}
	m := newTestMonitor(opener, nil)
	ctx := context.Background()

	m.OnChange(ctx, market.Change{Dex: spread("0.999", "1.001")})
	m.OnChange(ctx, market.Change{Cex: spread("1.010", "1.012")})

	if len(opener.intents) != 1 {
		t.Fatalf("intents = %d, want 1", len(opener.intents))
	}
	intent := opener.intents[0]
	if intent.Direction != SellCexBuyDex {
		t.Errorf("direction = %s", intent.Direction)
	}
	if !intent.CexAmount.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("cex amount = %s, want -10", intent.CexAmount)
	}
	if !intent.DexAmount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("dex amount = %s, want +10", intent.DexAmount)
	}
	// (1.010 - 1.001) / 1.001 ~ 89.9 bp
	if intent.DeltaBp.LessThan(decimal.NewFromInt(89)) || intent.DeltaBp.GreaterThan(decimal.NewFromInt(90)) {
		t.Errorf("delta = %s, want ~89.9", intent.DeltaBp)
	}
}

func TestDexOverCexCross(t *testing.T) {
	opener := &captureOpener{}
	m := newTestMonitor(opener, nil)
	ctx := context.Background()

	m.OnChange(ctx, market.Change{Cex: spread("0.998", "1.000")})
	m.OnChange(ctx, market.Change{Dex: spread("1.010", "1.012")})

	if len(opener.intents) != 1 {
		t.Fatalf("intents = %d, want 1", len(opener.intents))
	}
	intent := opener.intents[0]
	if intent.Direction != BuyCexSellDex {
		t.Errorf("direction = %s", intent.Direction)
	}
	if !intent.CexAmount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("cex amount = %s, want +10", intent.CexAmount)
	}
	if !intent.DexAmount.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("dex amount = %s, want -10", intent.DexAmount)
	}
}

func TestThresholdBoundary(t *testing.T) {
	opener := &captureOpener{}
	m := newTestMonitor(opener, nil)
	ctx := context.Background()

	// Exactly 50 bp: 1.005 over 1.000. Must NOT fire.
	m.OnChange(ctx, market.Change{Dex: spread("0.999", "1.000")})
	m.OnChange(ctx, market.Change{Cex: spread("1.005", "1.007")})
	if len(opener.intents) != 0 {
		t.Fatalf("exact threshold fired; intents = %d", len(opener.intents))
	}

	// Strictly greater fires.
	m.OnChange(ctx, market.Change{Cex: spread("1.0051", "1.007")})
	if len(opener.intents) != 1 {
		t.Fatalf("above threshold did not fire; intents = %d", len(opener.intents))
	}
}

func TestIncompleteStateEmitsNothing(t *testing.T) {
	opener := &captureOpener{}
	m := newTestMonitor(opener, nil)
	ctx := context.Background()

	// Only the CEX side has been seen; a huge bid still cannot fire.
	m.OnChange(ctx, market.Change{Cex: spread("2.000", "2.002")})
	if len(opener.intents) != 0 {
		t.Fatalf("intents = %d, want 0", len(opener.intents))
	}
}

func TestStaleVenueSuppressesIntents(t *testing.T) {
	opener := &captureOpener{}
	live := false
	m := newTestMonitor(opener, func() *market.Spread {
		if !live {
			return nil
		}
		return spread("1.010", "1.012")
	})
	ctx := context.Background()

	m.OnChange(ctx, market.Change{Dex: spread("0.999", "1.001")})
	m.OnChange(ctx, market.Change{Cex: spread("1.010", "1.012")})
	if len(opener.intents) != 0 {
		t.Fatalf("stale venue fired; intents = %d", len(opener.intents))
	}

	// Once the venue book is synced again, the next change may fire.
	live = true
	m.OnChange(ctx, market.Change{Cex: spread("1.010", "1.012")})
	if len(opener.intents) != 1 {
		t.Fatalf("synced venue did not fire; intents = %d", len(opener.intents))
	}
}

func TestAtMostOneIntentPerChange(t *testing.T) {
	opener := &captureOpener{}
	m := newTestMonitor(opener, nil)
	ctx := context.Background()

	// Both books present; one change crosses in one direction only.
	m.OnChange(ctx, market.Change{Dex: spread("0.990", "0.992")})
	m.OnChange(ctx, market.Change{Cex: spread("1.010", "1.012")})
	if len(opener.intents) != 1 {
		t.Fatalf("intents = %d, want exactly 1", len(opener.intents))
	}
}

func TestLastDexBid(t *testing.T) {
	m := newTestMonitor(&captureOpener{}, nil)
	if _, ok := m.LastDexBid(); ok {
		t.Error("no dex bid yet")
	}
	m.OnChange(context.Background(), market.Change{Dex: spread("1.001", "1.003")})
	bid, ok := m.LastDexBid()
	if !ok || !bid.Equal(decimal.RequireFromString("1.001")) {
		t.Errorf("dex bid = %s ok=%v", bid, ok)
	}
}
