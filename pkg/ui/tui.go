package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/flash-defi/venus/pkg/ui/components"
)

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"
	PhaseDashboard Phase = "dashboard"
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

const maxFeedLines = 10

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	status     *components.StatusComponent
	prices     *components.PricesComponent
	arbitrages *components.ArbitragesComponent

	phase        Phase
	welcomeStart time.Time

	keys     KeyMap
	help     help.Model
	showHelp bool

	width    int
	height   int
	now      time.Time
	feed     []string
	errorMsg string
	quitting bool
}

// New creates the TUI model.
func New() Model {
	return Model{
		status:       components.NewStatus(StatusConnected, StatusDisconnected),
		prices:       components.NewPrices(),
		arbitrages:   components.NewArbitrages(PositiveValue, NegativeValue, MutedValue),
		phase:        PhaseWelcome,
		welcomeStart: time.Now(),
		keys:         DefaultKeyMap(),
		help:         help.New(),
		now:          time.Now(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), welcomeTimeout())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg{At: t}
	})
}

func welcomeTimeout() tea.Cmd {
	return tea.Tick(WelcomeDuration, func(time.Time) tea.Msg {
		return WelcomeCompleteMsg{}
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case msg.String() == "q" || msg.String() == "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case msg.String() == "c":
			m.feed = nil
			m.arbitrages.Clear()
			return m, nil
		case msg.String() == "?":
			m.showHelp = !m.showHelp
			return m, nil
		}
		// Any other key skips the welcome screen.
		if m.phase == PhaseWelcome {
			return m.enterDashboard()
		}
		return m, nil

	case WelcomeCompleteMsg:
		if m.phase == PhaseWelcome {
			return m.enterDashboard()
		}
		return m, nil

	case TickMsg:
		m.now = msg.At
		return m, tick()

	case ConnectionStatusMsg:
		m.status.Set(msg.Name, msg.Connected)
		return m, nil

	case SpreadMsg:
		m.prices.Set(msg.Venue, msg.BestBid, msg.BestAsk)
		return m, nil

	case TableMsg:
		m.arbitrages.SetActive(msg.Pairs, msg.Inflight)
		return m, nil

	case SettlementMsg:
		m.arbitrages.AddSettlement(msg.Summary)
		return m, nil

	case LogMsg:
		line := fmt.Sprintf("%s [%s] %s", m.now.Format("15:04:05"), msg.Level, msg.Message)
		if msg.Level == "error" {
			line = NegativeValue.Render(line)
		}
		m.feed = append(m.feed, line)
		if len(m.feed) > maxFeedLines {
			m.feed = m.feed[len(m.feed)-maxFeedLines:]
		}
		return m, nil

	case ErrorMsg:
		if msg.Error != nil {
			m.errorMsg = msg.Error.Error()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) enterDashboard() (tea.Model, tea.Cmd) {
	m.phase = PhaseDashboard
	if OnStartModules != nil {
		OnStartModules()
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.phase == PhaseWelcome {
		return m.viewWelcome()
	}
	return m.viewDashboard()
}

func (m Model) viewWelcome() string {
	banner := TitleStyle.Render(" venus — cex/dex arbitrage ")
	hint := HelpStyle.Render("press any key to start")
	body := lipgloss.JoinVertical(lipgloss.Center, banner, "", hint)
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
	}
	return body
}

func (m Model) viewDashboard() string {
	var sections []string

	sections = append(sections, HeaderStyle.Render("venus"))
	sections = append(sections, BoxStyle.Render(m.status.View()))
	sections = append(sections, BoxStyle.Render(m.prices.View()))
	sections = append(sections, BoxStyle.Render(m.arbitrages.View(m.now)))

	if len(m.feed) > 0 {
		sections = append(sections, BoxStyle.Render(strings.Join(m.feed, "\n")))
	}
	if m.errorMsg != "" {
		sections = append(sections, NegativeValue.Render("error: "+m.errorMsg))
	}

	if m.showHelp {
		sections = append(sections, m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		sections = append(sections, HelpStyle.Render("q quit · c clear · ? help"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
