// Package components holds the dashboard panels of the venus TUI.
package components

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StatusComponent renders connection states.
type StatusComponent struct {
	connections map[string]bool
	order       []string

	connectedStyle    lipgloss.Style
	disconnectedStyle lipgloss.Style
}

// NewStatus creates the status panel.
func NewStatus(connected, disconnected lipgloss.Style) *StatusComponent {
	return &StatusComponent{
		connections:       make(map[string]bool),
		connectedStyle:    connected,
		disconnectedStyle: disconnected,
	}
}

// Set updates one connection's state.
func (c *StatusComponent) Set(name string, connected bool) {
	if _, seen := c.connections[name]; !seen {
		c.order = append(c.order, name)
		sort.Strings(c.order)
	}
	c.connections[name] = connected
}

// View renders the panel body.
func (c *StatusComponent) View() string {
	if len(c.order) == 0 {
		return "waiting for connections..."
	}

	var b strings.Builder
	for i, name := range c.order {
		if i > 0 {
			b.WriteString("   ")
		}
		if c.connections[name] {
			b.WriteString(c.connectedStyle.Render("● " + name))
		} else {
			b.WriteString(c.disconnectedStyle.Render("○ " + name))
		}
	}
	return b.String()
}
