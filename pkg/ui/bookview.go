package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marketfeed/l2ingest/internal/orderbook"
)

// BookProvider is the read-only surface the viewer polls. *supervisor.Supervisor
// satisfies this without the ui package importing internal/supervisor.
type BookProvider interface {
	Tags() []string
	Book(tag string) (*orderbook.Book, bool)
}

// TickMsg is sent periodically to trigger a re-poll of the book provider.
type TickMsg struct{}

const pollInterval = 500 * time.Millisecond

// Model is the Bubble Tea model for the top-of-book debug viewer.
type Model struct {
	provider BookProvider
	keys     KeyMap

	paused   bool
	quitting bool
	width    int
	height   int

	rows []row
}

type row struct {
	tag       string
	bestBid   orderbook.Level
	bestAsk   orderbook.Level
	hasBid    bool
	hasAsk    bool
	bidLevels int
	askLevels int
}

// New creates a book viewer model polling provider.
func New(provider BookProvider) Model {
	return Model{provider: provider, keys: DefaultKeyMap()}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return TickMsg{} })
}

// Init starts the poll loop.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles key presses and poll ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
			return m, nil
		}
		return m, nil

	case TickMsg:
		if !m.paused {
			m.rows = m.poll()
		}
		return m, tickCmd()
	}
	return m, nil
}

func (m Model) poll() []row {
	tags := m.provider.Tags()
	sort.Strings(tags)

	rows := make([]row, 0, len(tags))
	for _, tag := range tags {
		book, ok := m.provider.Book(tag)
		if !ok {
			continue
		}
		bids, asks := book.Book()
		r := row{tag: tag, bidLevels: len(bids), askLevels: len(asks)}
		if bb, ok := book.BestBid(); ok {
			r.bestBid, r.hasBid = bb, true
		}
		if ba, ok := book.BestAsk(); ok {
			r.bestAsk, r.hasAsk = ba, true
		}
		rows = append(rows, r)
	}
	return rows
}

// View renders the current top-of-book table.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(" l2ingest — live order books ") + "\n\n")

	header := fmt.Sprintf("%-28s %14s %10s  %14s %10s", "MARKET", "BEST BID", "DEPTH", "BEST ASK", "DEPTH")
	b.WriteString(TableHeaderStyle.Render(header) + "\n")

	if len(m.rows) == 0 {
		b.WriteString(MutedValue.Render("  (no markets streaming yet)") + "\n")
	}

	for _, r := range m.rows {
		bid := "-"
		if r.hasBid {
			bid = fmt.Sprintf("%.8g @ %.8g", r.bestBid.Liquidity, r.bestBid.Price)
		}
		ask := "-"
		if r.hasAsk {
			ask = fmt.Sprintf("%.8g @ %.8g", r.bestAsk.Liquidity, r.bestAsk.Price)
		}

		line := fmt.Sprintf("%-28s %14s %10d  %14s %10d", r.tag, bid, r.bidLevels, ask, r.askLevels)
		b.WriteString(TableCellStyle.Render(line) + "\n")
	}

	status := "streaming"
	if m.paused {
		status = "paused"
	}
	b.WriteString("\n" + HelpStyle.Render(fmt.Sprintf("[%s]  q quit · p pause", status)))

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}
