// Package domain contains the core domain types for the cex context: the
// order book engine and the session event vocabulary.
package domain

import (
	"hash/crc32"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/internal/market"
)

// BookState is the lifecycle of a venue book.
type BookState string

const (
	BookUninitialized BookState = "uninitialized"
	BookSynced        BookState = "synced"
	// BookStale means the local mirror can no longer be trusted (checksum
	// mismatch, sequence gap, or crossed levels). Only a fresh snapshot
	// restores BookSynced.
	BookStale BookState = "stale"
)

// ChecksumDepth is how many levels per side enter the checksum, matching the
// venue's top-25 convention.
const ChecksumDepth = 25

// PriceLevel is a single aggregated level. On the wire the sign of Amount
// selects the side (positive bid, negative ask); inside the book Amount is
// always the absolute value. Count == 0 removes the level.
type PriceLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
	Count  uint32
}

// IsBid reports the side the raw level belongs to.
func (l PriceLevel) IsBid() bool {
	return l.Amount.Sign() >= 0
}

// Book is a two-sided order book mirror. Both sides are kept sorted
// ascending by price; best bid is the last bid, best ask the first ask.
// Book is not safe for concurrent use; the owning session serializes access.
type Book struct {
	bids  []PriceLevel
	asks  []PriceLevel
	state BookState
}

// NewBook creates an empty, uninitialized book.
func NewBook() *Book {
	return &Book{state: BookUninitialized}
}

// State returns the current book state.
func (b *Book) State() BookState { return b.state }

// ApplySnapshot atomically replaces both sides from an initial book dump and
// transitions to Synced. Raw levels carry signed amounts.
func (b *Book) ApplySnapshot(levels []PriceLevel) {
	b.bids = b.bids[:0]
	b.asks = b.asks[:0]

	for _, l := range levels {
		abs := l
		abs.Amount = l.Amount.Abs()
		if l.IsBid() {
			b.bids = append(b.bids, abs)
		} else {
			b.asks = append(b.asks, abs)
		}
	}

	sort.Slice(b.bids, func(i, j int) bool { return b.bids[i].Price.LessThan(b.bids[j].Price) })
	sort.Slice(b.asks, func(i, j int) bool { return b.asks[i].Price.LessThan(b.asks[j].Price) })

	b.state = BookSynced
	if b.crossed() {
		b.state = BookStale
	}
}

// ApplyUpdate applies a single-level delta. A delta with Count == 0 removes
// the price from the side selected by the amount's sign; removing an absent
// price is a no-op. Otherwise the level is upserted. A resulting crossed
// book transitions to Stale.
func (b *Book) ApplyUpdate(l PriceLevel) {
	if b.state == BookUninitialized {
		return
	}

	side := &b.asks
	if l.IsBid() {
		side = &b.bids
	}

	if l.Count == 0 {
		b.remove(side, l.Price)
	} else {
		abs := l
		abs.Amount = l.Amount.Abs()
		b.upsert(side, abs)
	}

	if b.crossed() {
		b.state = BookStale
	}
}

// MarkStale forces the book out of Synced; used on checksum mismatches and
// sequence gaps detected by the session layer.
func (b *Book) MarkStale() {
	if b.state == BookSynced {
		b.state = BookStale
	}
}

// BestBid returns the highest bid level.
func (b *Book) BestBid() (PriceLevel, bool) {
	if len(b.bids) == 0 {
		return PriceLevel{}, false
	}
	return b.bids[len(b.bids)-1], true
}

// BestAsk returns the lowest ask level.
func (b *Book) BestAsk() (PriceLevel, bool) {
	if len(b.asks) == 0 {
		return PriceLevel{}, false
	}
	return b.asks[0], true
}

// Spread returns the top of book, or nil unless the book is Synced with
// both sides populated and not crossed.
func (b *Book) Spread() *market.Spread {
	if b.state != BookSynced {
		return nil
	}
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return nil
	}
	if bid.Price.GreaterThanOrEqual(ask.Price) {
		return nil
	}
	return &market.Spread{BestBid: bid.Price, BestAsk: ask.Price}
}

// Checksum computes the CRC32 over the top-25 levels of each side in the
// venue's canonical order: bid and ask pairs interleaved best-first, each
// contributing "price:amount" with ask amounts negated.
func (b *Book) Checksum() uint32 {
	parts := make([]string, 0, ChecksumDepth*4)

	for i := 0; i < ChecksumDepth; i++ {
		if i < len(b.bids) {
			l := b.bids[len(b.bids)-1-i]
			parts = append(parts, l.Price.String(), l.Amount.String())
		}
		if i < len(b.asks) {
			l := b.asks[i]
			parts = append(parts, l.Price.String(), l.Amount.Neg().String())
		}
	}

	return crc32.ChecksumIEEE([]byte(strings.Join(parts, ":")))
}

// Depth returns the number of levels on each side.
func (b *Book) Depth() (bids, asks int) {
	return len(b.bids), len(b.asks)
}

func (b *Book) crossed() bool {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	return okBid && okAsk && bid.Price.GreaterThanOrEqual(ask.Price)
}

// upsert inserts or replaces the level at its price, keeping the slice
// sorted ascending.
func (b *Book) upsert(side *[]PriceLevel, l PriceLevel) {
	s := *side
	i := sort.Search(len(s), func(i int) bool { return !s[i].Price.LessThan(l.Price) })
	if i < len(s) && s[i].Price.Equal(l.Price) {
		s[i] = l
		return
	}
	s = append(s, PriceLevel{})
	copy(s[i+1:], s[i:])
	s[i] = l
	*side = s
}

func (b *Book) remove(side *[]PriceLevel, price decimal.Decimal) {
	s := *side
	i := sort.Search(len(s), func(i int) bool { return !s[i].Price.LessThan(price) })
	if i < len(s) && s[i].Price.Equal(price) {
		*side = append(s[:i], s[i+1:]...)
	}
}
