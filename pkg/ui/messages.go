// Package ui provides the Bubble Tea TUI for the venus arbitrage engine.
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/flash-defi/venus/business/arbitrage/domain"
)

// Program is the global TUI program reference, set by main when running in
// TUI mode. Send is safe to call from any goroutine.
var Program *tea.Program

// OnStartModules is invoked when the welcome screen completes and the
// application should begin connecting.
var OnStartModules func()

// Send delivers a message to the TUI if one is running.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}

// SpreadMsg updates one venue's displayed top of book.
type SpreadMsg struct {
	Venue   string // "cex" or "dex"
	BestBid string
	BestAsk string
}

// ConnectionStatusMsg is sent when a connection's state changes.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
}

// TableMsg carries a snapshot of the active arbitrage table.
type TableMsg struct {
	Pairs    []domain.Pair
	Inflight int32
}

// SettlementMsg is sent when an attempt reaches a terminal state.
type SettlementMsg struct {
	Summary domain.Summary
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// LogMsg displays one log line in the activity feed.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// TickMsg is sent periodically for clock/age refreshes.
type TickMsg struct {
	At time.Time
}

// WelcomeCompleteMsg signals that the welcome screen timeout has elapsed.
type WelcomeCompleteMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}
