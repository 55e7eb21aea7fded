package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/flash-defi/venus/business/arbitrage/domain"
)

const maxSettledRows = 8

// ArbitragesComponent renders the active lifecycle table and the recent
// settlement log.
type ArbitragesComponent struct {
	active   []domain.Pair
	inflight int32
	settled  []string

	positive lipgloss.Style
	negative lipgloss.Style
	muted    lipgloss.Style
}

// NewArbitrages creates the arbitrages panel.
func NewArbitrages(positive, negative, muted lipgloss.Style) *ArbitragesComponent {
	return &ArbitragesComponent{
		positive: positive,
		negative: negative,
		muted:    muted,
	}
}

// SetActive replaces the active table snapshot.
func (c *ArbitragesComponent) SetActive(pairs []domain.Pair, inflight int32) {
	c.active = pairs
	c.inflight = inflight
}

// AddSettlement appends one terminal outcome to the log.
func (c *ArbitragesComponent) AddSettlement(s domain.Summary) {
	line := fmt.Sprintf("%s  %s/%s  spread %s bp  pnl %s %s",
		s.Status, s.Base, s.Quote,
		s.RealizedSpreadBp.StringFixed(2),
		s.NetPnl.String(), s.Quote,
	)
	if s.Status == domain.StateSettled && s.NetPnl.IsPositive() {
		line = c.positive.Render(line)
	} else if s.Status == domain.StateFailed {
		line = c.negative.Render(line)
	}

	c.settled = append(c.settled, line)
	if len(c.settled) > maxSettledRows {
		c.settled = c.settled[len(c.settled)-maxSettledRows:]
	}
}

// Clear drops the settlement log.
func (c *ArbitragesComponent) Clear() {
	c.settled = nil
}

// View renders the panel body.
func (c *ArbitragesComponent) View(now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "inflight %d\n", c.inflight)
	if len(c.active) == 0 {
		b.WriteString(c.muted.Render("no open arbitrages"))
	} else {
		fmt.Fprintf(&b, "%-16s %-13s %-9s %s\n", "CID", "STATE", "AGE", "TX")
		for _, p := range c.active {
			tx := "—"
			if p.Dex.TxHash != nil {
				tx = shortHash(p.Dex.TxHash.Hex())
			}
			fmt.Fprintf(&b, "%-16d %-13s %-9s %s\n",
				int64(p.ID), p.State(), p.Age(now).Truncate(time.Second), tx)
		}
	}

	if len(c.settled) > 0 {
		b.WriteString("\n")
		for _, line := range c.settled {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:8] + ".." + h[len(h)-4:]
}
