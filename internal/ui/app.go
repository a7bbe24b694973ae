package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/otel"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/store"
)

// chrome is the number of lines around the table: header, tab bar, status
// bar and help line.
const chrome = 4

// AppConfig injects the commands the viewer may run. Every field is
// optional; a nil command disables its key.
type AppConfig struct {
	LoadReport   func() tea.Cmd // Reads the latest run
	LoadEvents   func() tea.Cmd // Reads recent events
	RunBatch     func() tea.Cmd // Runs and stores a batch
	TriggerFetch func() tea.Cmd // Starts a feed collection cycle
}

// App is the root Bubble Tea model.
// IMPORTANT: App does NOT hold *store.Store. It receives data via messages.
type App struct {
	cfg AppConfig

	run    *store.Run
	events []otel.Event
	tab    Tab
	tables [tabCount]table.Model
	help   help.Model

	status  string
	err     error
	width   int
	height  int
	ready   bool
	loading bool
	now     func() time.Time
}

// NewApp creates an App with the given commands.
func NewApp(cfg AppConfig) App {
	a := App{cfg: cfg, help: help.New(), now: time.Now}
	for t := Tab(0); t < tabCount; t++ {
		a.tables[t] = table.New(
			table.WithColumns(tabColumns[t]),
			table.WithFocused(true),
			table.WithStyles(tableStyles()),
		)
	}
	return a
}

// Init loads the report and the event log.
func (a App) Init() tea.Cmd {
	var cmds []tea.Cmd
	if a.cfg.LoadReport != nil {
		cmds = append(cmds, a.cfg.LoadReport())
	}
	if a.cfg.LoadEvents != nil {
		cmds = append(cmds, a.cfg.LoadEvents())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.help.Width = msg.Width
		a.resize()
		return a, nil

	case ReportLoaded:
		a.loading = false
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.err = nil
		a.run = msg.Run
		a.refreshRows()
		return a, nil

	case EventsLoaded:
		a.events = msg.Events
		a.setRows(TabEvents)
		return a, nil

	case FetchComplete:
		if msg.Err != nil {
			a.status = fmt.Sprintf("%s: fetch failed", msg.Source)
			return a, a.reloadEvents()
		}
		a.status = fmt.Sprintf("%s: %d new incidents", msg.Source, msg.New)
		return a, a.reloadEvents()

	case BatchComplete:
		a.loading = false
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.status = "run " + shortID(msg.RunID) + " stored"
		return a, tea.Batch(a.reload(), a.reloadEvents())

	case RefreshTick:
		return a, tea.Batch(a.reload(), a.reloadEvents())
	}

	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Clear any existing error on key press
	if a.err != nil {
		a.err = nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, keys.Help):
		a.help.ShowAll = !a.help.ShowAll
		a.resize()
		return a, nil

	case key.Matches(msg, keys.NextTab):
		a.tab = (a.tab + 1) % tabCount
		return a, nil

	case key.Matches(msg, keys.PrevTab):
		a.tab = (a.tab + tabCount - 1) % tabCount
		return a, nil

	case key.Matches(msg, keys.Refresh):
		return a, tea.Batch(a.reload(), a.reloadEvents())

	case key.Matches(msg, keys.Run):
		if a.cfg.RunBatch != nil {
			a.loading = true
			a.status = "running batch"
			return a, a.cfg.RunBatch()
		}
		return a, nil

	case key.Matches(msg, keys.Fetch):
		if a.cfg.TriggerFetch != nil {
			a.status = "fetching feeds"
			return a, a.cfg.TriggerFetch()
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.tables[a.tab], cmd = a.tables[a.tab].Update(msg)
	return a, cmd
}

func (a *App) reload() tea.Cmd {
	if a.cfg.LoadReport == nil {
		return nil
	}
	a.loading = true
	return a.cfg.LoadReport()
}

func (a *App) reloadEvents() tea.Cmd {
	if a.cfg.LoadEvents == nil {
		return nil
	}
	return a.cfg.LoadEvents()
}

func (a *App) refreshRows() {
	for t := Tab(0); t < tabCount; t++ {
		a.setRows(t)
	}
}

func (a *App) setRows(t Tab) {
	rows := rowsFor(t, a.run, a.events, a.now())
	a.tables[t].SetRows(rows)
	if c := a.tables[t].Cursor(); c >= len(rows) && len(rows) > 0 {
		a.tables[t].SetCursor(len(rows) - 1)
	}
}

func (a *App) resize() {
	h := a.height - chrome
	if a.help.ShowAll {
		h -= len(keys.FullHelp()[0]) - 1
	}
	if h < 3 {
		h = 3
	}
	for t := range a.tables {
		a.tables[t].SetHeight(h)
		a.tables[t].SetWidth(a.width)
	}
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(a.header())
	b.WriteString("\n")
	b.WriteString(a.tabBar())
	b.WriteString("\n")

	if len(a.tables[a.tab].Rows()) == 0 {
		b.WriteString(EmptyStyle.Render(a.emptyText()))
	} else {
		b.WriteString(a.tables[a.tab].View())
	}
	b.WriteString("\n")

	if a.err != nil {
		b.WriteString(ErrorStyle.Width(a.width).Render("Error: " + a.err.Error() + " (press any key to dismiss)"))
		b.WriteString("\n")
	}
	b.WriteString(a.statusBar())
	b.WriteString("\n")
	b.WriteString(a.help.View(keys))
	return b.String()
}

func (a App) header() string {
	if a.run == nil {
		return HeaderStyle.Render("cuas: no run recorded")
	}
	r := a.run
	tiers := map[model.Severity]int{}
	for _, s := range r.Scores {
		tiers[s.Tier]++
	}
	counts := strings.Join([]string{
		critStyle.Render(fmt.Sprintf("%d critical", tiers[model.SeverityCritical])),
		highStyle.Render(fmt.Sprintf("%d high", tiers[model.SeverityHigh])),
		okStyle.Render(fmt.Sprintf("%d correlated", len(r.Correlations))),
		dimStyle.Render(fmt.Sprintf("%d errors", len(r.Errors))),
	}, "  ")
	title := HeaderStyle.Render(fmt.Sprintf("run %s  ref %s  lexicon %s",
		shortID(r.ID), r.ReferenceTime.Format("2006-01-02 15:04"), r.LexiconVersion))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, " ", counts)
}

func (a App) tabBar() string {
	labels := make([]string, tabCount)
	for t := Tab(0); t < tabCount; t++ {
		label := fmt.Sprintf("%s (%d)", t, len(a.tables[t].Rows()))
		if t == a.tab {
			labels[t] = TabActive.Render(label)
		} else {
			labels[t] = TabInactive.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, labels...)
}

func (a App) emptyText() string {
	if a.tab == TabEvents {
		return "No events yet."
	}
	if a.run == nil {
		return "No run recorded. Press b to run a batch, or run `cuas run`."
	}
	return "Nothing in this run."
}

func (a App) statusBar() string {
	left := a.status
	if a.loading {
		left = "loading..."
	}
	pos := ""
	if n := len(a.tables[a.tab].Rows()); n > 0 {
		pos = fmt.Sprintf("%d/%d", a.tables[a.tab].Cursor()+1, n)
	}
	gap := a.width - lipgloss.Width(left) - lipgloss.Width(pos) - 2
	if gap < 1 {
		gap = 1
	}
	return StatusBar.Width(a.width).Render(StatusBarText.Render(left) + strings.Repeat(" ", gap) + pos)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Tab returns the selected tab (for testing).
func (a App) Tab() Tab {
	return a.tab
}

// Rows returns the rows of a tab (for testing).
func (a App) Rows(t Tab) []table.Row {
	return a.tables[t].Rows()
}

// Cursor returns the cursor of the selected tab (for testing).
func (a App) Cursor() int {
	return a.tables[a.tab].Cursor()
}
