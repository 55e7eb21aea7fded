package domain

import (
	"hash/crc32"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func level(price, amount string, count uint32) PriceLevel {
	return PriceLevel{
		Price:  decimal.RequireFromString(price),
		Amount: decimal.RequireFromString(amount),
		Count:  count,
	}
}

// Snapshot mirrors the venue feed: positive amounts are bids, negative asks.
func snapshotLevels() []PriceLevel {
	return []PriceLevel{
		level("1000.1", "1.1", 7),
		level("1003.4", "-2.1", 1),
		level("1004.4", "-5.1", 4),
		level("1000.2", "2.1", 5),
		level("1002.4", "-3.1", 2),
		level("999.2", "3.1", 3),
	}
}

func TestApplySnapshot(t *testing.T) {
	b := NewBook()
	if b.State() != BookUninitialized {
		t.Fatalf("new book state = %s", b.State())
	}

	b.ApplySnapshot(snapshotLevels())

	if b.State() != BookSynced {
		t.Fatalf("state after snapshot = %s", b.State())
	}

	bid, ok := b.BestBid()
	if !ok || !bid.Price.Equal(decimal.RequireFromString("1000.2")) {
		t.Errorf("best bid = %v ok=%v, want 1000.2", bid.Price, ok)
	}
	if bid.Count != 5 || !bid.Amount.Equal(decimal.RequireFromString("2.1")) {
		t.Errorf("best bid level = %+v", bid)
	}

	ask, ok := b.BestAsk()
	if !ok || !ask.Price.Equal(decimal.RequireFromString("1002.4")) {
		t.Errorf("best ask = %v ok=%v, want 1002.4", ask.Price, ok)
	}
	if ask.Count != 2 || !ask.Amount.Equal(decimal.RequireFromString("3.1")) {
		t.Errorf("best ask level = %+v", ask)
	}

	bids, asks := b.Depth()
	if bids != 3 || asks != 3 {
		t.Errorf("depth = %d/%d, want 3/3", bids, asks)
	}
}

func TestApplyUpdate(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot(snapshotLevels())

	// Remove the 1000.1 bid (count = 0)
	b.ApplyUpdate(level("1000.1", "1.1", 0))
	bids, _ := b.Depth()
	if bids != 2 {
		t.Errorf("bids after remove = %d, want 2", bids)
	}

	// Re-add it
	b.ApplyUpdate(level("1000.1", "1.1", 2))
	bids, _ = b.Depth()
	if bids != 3 {
		t.Errorf("bids after re-add = %d, want 3", bids)
	}

	// Update quantity in place
	b.ApplyUpdate(level("1000.2", "9.9", 6))
	bid, _ := b.BestBid()
	if !bid.Amount.Equal(decimal.RequireFromString("9.9")) || bid.Count != 6 {
		t.Errorf("best bid after update = %+v", bid)
	}

	// Ask amounts arrive negative and are stored absolute
	b.ApplyUpdate(level("1002.0", "-1.5", 1))
	ask, _ := b.BestAsk()
	if !ask.Price.Equal(decimal.RequireFromString("1002.0")) {
		t.Errorf("best ask = %v, want 1002.0", ask.Price)
	}
	if !ask.Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("ask amount stored = %v, want absolute 1.5", ask.Amount)
	}
}

func TestRemoveAbsentPriceIsNoop(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot(snapshotLevels())

	before := b.Checksum()
	b.ApplyUpdate(level("555.5", "1", 0))
	if b.Checksum() != before {
		t.Error("removing an absent price must not change the book")
	}
	if b.State() != BookSynced {
		t.Errorf("state = %s", b.State())
	}
}

func TestUpdateBeforeSnapshotIgnored(t *testing.T) {
	b := NewBook()
	b.ApplyUpdate(level("1000.0", "1", 1))
	if b.State() != BookUninitialized {
		t.Errorf("state = %s, want uninitialized", b.State())
	}
	if _, ok := b.BestBid(); ok {
		t.Error("no levels expected before snapshot")
	}
}

func TestCrossedBookGoesStale(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot(snapshotLevels())

	// A bid above the best ask crosses the book.
	b.ApplyUpdate(level("1005.0", "1", 1))
	if b.State() != BookStale {
		t.Fatalf("state = %s, want stale", b.State())
	}
	if b.Spread() != nil {
		t.Error("stale book must not publish a spread")
	}

	// Only a fresh snapshot restores Synced.
	b.ApplySnapshot(snapshotLevels())
	if b.State() != BookSynced {
		t.Errorf("state after resync = %s", b.State())
	}
	if b.Spread() == nil {
		t.Error("synced book should publish a spread")
	}
}

func TestMarkStaleSuppressesSpread(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot(snapshotLevels())
	b.MarkStale()
	if b.State() != BookStale {
		t.Fatalf("state = %s", b.State())
	}
	if b.Spread() != nil {
		t.Error("stale book must not publish a spread")
	}
}

func TestSpreadRequiresBothSides(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot([]PriceLevel{level("1000.1", "1.1", 1)})
	if b.Spread() != nil {
		t.Error("one-sided book must not publish a spread")
	}
}

func TestChecksumMatchesCanonicalSerialization(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot(snapshotLevels())

	// bid/ask pairs interleaved best-first, ask amounts negated
	canonical := strings.Join([]string{
		"1000.2", "2.1", "1002.4", "-3.1",
		"1000.1", "1.1", "1003.4", "-2.1",
		"999.2", "3.1", "1004.4", "-5.1",
	}, ":")
	want := crc32.ChecksumIEEE([]byte(canonical))

	if got := b.Checksum(); got != want {
		t.Errorf("checksum = %#x, want %#x", got, want)
	}
}

func TestChecksumStableUnderSnapshotPlusDeltas(t *testing.T) {
	// Applying a snapshot then deltas must land on the same checksum as a
	// snapshot of the final state.
	b := NewBook()
	b.ApplySnapshot(snapshotLevels())
	b.ApplyUpdate(level("1000.1", "1.1", 0))
	b.ApplyUpdate(level("999.9", "4.2", 2))

	final := NewBook()
	final.ApplySnapshot([]PriceLevel{
		level("1003.4", "-2.1", 1),
		level("1004.4", "-5.1", 4),
		level("1000.2", "2.1", 5),
		level("1002.4", "-3.1", 2),
		level("999.2", "3.1", 3),
		level("999.9", "4.2", 2),
	})

	if b.Checksum() != final.Checksum() {
		t.Errorf("delta path checksum %#x != snapshot checksum %#x", b.Checksum(), final.Checksum())
	}
}
