package components

import (
	"fmt"
	"strings"
)

// venueQuote is one venue's displayed top of book.
type venueQuote struct {
	bid string
	ask string
}

// PricesComponent renders the live spread per venue.
type PricesComponent struct {
	cex venueQuote
	dex venueQuote
}

// NewPrices creates the prices panel.
func NewPrices() *PricesComponent {
	return &PricesComponent{}
}

// Set updates a venue's quote. venue is "cex" or "dex".
func (c *PricesComponent) Set(venue, bid, ask string) {
	q := venueQuote{bid: bid, ask: ask}
	if venue == "cex" {
		c.cex = q
	} else {
		c.dex = q
	}
}

// View renders the panel body.
func (c *PricesComponent) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-5s bid %-14s ask %-14s\n", "CEX", orDash(c.cex.bid), orDash(c.cex.ask))
	fmt.Fprintf(&b, "%-5s bid %-14s ask %-14s", "DEX", orDash(c.dex.bid), orDash(c.dex.ask))
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
