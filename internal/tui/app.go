// Package tui is the interactive browser for benchmark history.
package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mpataki/hypcmp/internal/models"
	"github.com/mpataki/hypcmp/internal/report"
	"github.com/mpataki/hypcmp/internal/storage"
)

// Store is the part of the history store the browser reads and edits.
type Store interface {
	ListSessions(limit int) ([]*models.Session, error)
	GetSession(id int64) (*models.Session, error)
	GetEntriesForSession(sessionID int64) ([]*models.Entry, error)
	DeleteSession(id int64) error
}

type View int

const (
	ViewSessionList View = iota
	ViewSessionDetail
	ViewEntry
)

const listLimit = 50

type App struct {
	store Store

	view        View
	sessions    []*models.Session
	selectedIdx int
	session     *models.Session
	entries     []*models.Entry
	entryTable  table.Model
	document    viewport.Model

	width  int
	height int
	err    error
}

func NewApp(store Store) *App {
	t := table.New(
		table.WithColumns(entryColumns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Selected = selectedStyle
	t.SetStyles(styles)

	return &App{
		store:      store,
		view:       ViewSessionList,
		entryTable: t,
		document:   viewport.New(80, 20),
	}
}

var entryColumns = []table.Column{
	{Title: "#", Width: 3},
	{Title: "Label", Width: 40},
	{Title: "Status", Width: 10},
	{Title: "Mean", Width: 12},
	{Title: "Error", Width: 40},
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadSessions, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) hasRunningSessions() bool {
	for _, s := range a.sessions {
		if s.Status == models.SessionStatusRunning {
			return true
		}
	}
	return false
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.entryTable.SetHeight(max(msg.Height-10, 5))
		a.document.Width = msg.Width
		a.document.Height = max(msg.Height-4, 5)
		return a, nil

	case sessionsLoadedMsg:
		a.sessions = msg.sessions
		a.err = msg.err
		if a.selectedIdx >= len(a.sessions) {
			a.selectedIdx = max(len(a.sessions)-1, 0)
		}
		return a, nil

	case tickMsg:
		// Another hypcmp may be writing to history.
		if a.view == ViewSessionList && a.hasRunningSessions() {
			return a, tea.Batch(a.loadSessions, a.tickCmd())
		}
		return a, a.tickCmd()

	case sessionDetailMsg:
		a.err = msg.err
		if msg.err == nil {
			a.session = msg.session
			a.entries = msg.entries
			a.entryTable.SetRows(entryRows(msg.entries))
			a.entryTable.SetCursor(0)
			a.view = ViewSessionDetail
		}
		return a, nil

	case sessionDeletedMsg:
		a.err = msg.err
		return a, a.loadSessions
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}
	switch a.view {
	case ViewSessionList:
		return a.handleSessionListKey(msg)
	case ViewSessionDetail:
		return a.handleSessionDetailKey(msg)
	case ViewEntry:
		return a.handleEntryKey(msg)
	}
	return a, nil
}

func (a *App) handleSessionListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, keys.Up):
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case key.Matches(msg, keys.Down):
		if a.selectedIdx < len(a.sessions)-1 {
			a.selectedIdx++
		}

	case key.Matches(msg, keys.Open):
		if s := a.selected(); s != nil {
			return a, a.loadSessionDetail(s.ID)
		}

	case key.Matches(msg, keys.Refresh):
		return a, a.loadSessions

	case key.Matches(msg, keys.Delete):
		if s := a.selected(); s != nil {
			return a, a.deleteSession(s.ID)
		}
	}

	return a, nil
}

func (a *App) selected() *models.Session {
	if a.selectedIdx < len(a.sessions) {
		return a.sessions[a.selectedIdx]
	}
	return nil
}

func (a *App) handleSessionDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back), msg.String() == "q":
		a.view = ViewSessionList
		a.session = nil
		a.entries = nil
		return a, nil

	case key.Matches(msg, keys.Open):
		i := a.entryTable.Cursor()
		if i >= 0 && i < len(a.entries) {
			a.document.SetContent(formatDocument(a.entries[i]))
			a.document.GotoTop()
			a.view = ViewEntry
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.entryTable, cmd = a.entryTable.Update(msg)
	return a, cmd
}

func (a *App) handleEntryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Back) || msg.String() == "q" {
		a.view = ViewSessionDetail
		return a, nil
	}
	var cmd tea.Cmd
	a.document, cmd = a.document.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	switch a.view {
	case ViewSessionList:
		return a.viewSessionList()
	case ViewSessionDetail:
		return a.viewSessionDetail()
	case ViewEntry:
		return a.viewEntry()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning     = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusComplete    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusInterrupted = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func (a *App) viewSessionList() string {
	s := titleStyle.Render("hypcmp") + "\n\n"

	if a.err != nil {
		s += statusFailed.Render(fmt.Sprintf("Error: %v", a.err)) + "\n"
	}

	if len(a.sessions) == 0 {
		s += "No benchmark sessions yet. Run 'hypcmp run <file>' to create one.\n"
	} else {
		s += "Recent Sessions\n"
		s += "───────────────\n"

		for i, session := range a.sessions {
			line := formatSessionLine(session)
			if i == a.selectedIdx {
				line = selectedStyle.Render("▶ " + line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpLine(keys.Open, keys.Delete, keys.Refresh, keys.Quit)
	return s
}

func formatSessionLine(s *models.Session) string {
	name := s.Label
	if name == "" {
		name = s.ConfigPath
	}
	return fmt.Sprintf("#%-3d %s  %-8s  %s", s.ID, formatStatus(s.Status), storage.FormatTimeAgo(s.CreatedAt), truncate(name, 50))
}

func formatStatus(status models.SessionStatus) string {
	switch status {
	case models.SessionStatusRunning:
		return statusRunning.Render("● running    ")
	case models.SessionStatusComplete:
		return statusComplete.Render("✓ complete   ")
	case models.SessionStatusFailed:
		return statusFailed.Render("✗ failed     ")
	case models.SessionStatusInterrupted:
		return statusInterrupted.Render("⚠ interrupted")
	default:
		return string(status)
	}
}

func (a *App) viewSessionDetail() string {
	if a.session == nil {
		return "No session selected"
	}
	session := a.session

	header := fmt.Sprintf("Session #%d", session.ID)
	if session.Label != "" {
		header += ": " + session.Label
	}
	s := titleStyle.Render(header) + "  " + formatStatus(session.Status) + "\n\n"

	s += labelStyle.Render("Config:  ") + session.ConfigPath + "\n"
	if session.OutputPath != "" {
		s += labelStyle.Render("Report:  ") + session.OutputPath + "\n"
	}
	s += labelStyle.Render("Started: ") + session.CreatedAt.Local().Format(time.DateTime)
	if session.CompletedAt != nil {
		s += dimStyle.Render(fmt.Sprintf(" (took %s)", formatDuration(session.CompletedAt.Sub(session.CreatedAt))))
	}
	s += "\n"
	if session.Error != "" {
		s += labelStyle.Render("Error:   ") + statusFailed.Render(session.Error) + "\n"
	}
	s += "\n"

	if len(a.entries) == 0 {
		s += "(no benchmarks recorded)\n"
	} else {
		s += a.entryTable.View() + "\n"
	}

	s += "\n" + helpLine(keys.Up, keys.Down, keys.Open, keys.Back)
	return s
}

func entryRows(entries []*models.Entry) []table.Row {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		mean := "-"
		if e.Mean != nil {
			mean = report.FormatSeconds(*e.Mean)
		}
		rows = append(rows, table.Row{fmt.Sprint(e.Seq), e.Label, string(e.Status), mean, truncate(e.Error, 40)})
	}
	return rows
}

func (a *App) viewEntry() string {
	i := a.entryTable.Cursor()
	title := "Benchmark"
	if i >= 0 && i < len(a.entries) {
		title = a.entries[i].Label
	}
	return titleStyle.Render(title) + "\n\n" + a.document.View() + "\n" + helpLine(keys.Up, keys.Down, keys.Back)
}

func formatDocument(e *models.Entry) string {
	if e.Error != "" && len(e.Document) == 0 {
		return statusFailed.Render(e.Error)
	}
	if len(e.Document) == 0 {
		return "(no result document)"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, e.Document, "", "  "); err != nil {
		return string(e.Document)
	}
	return buf.String()
}

// Messages

type sessionsLoadedMsg struct {
	sessions []*models.Session
	err      error
}

type sessionDetailMsg struct {
	session *models.Session
	entries []*models.Entry
	err     error
}

type sessionDeletedMsg struct {
	sessionID int64
	err       error
}

// Commands

func (a *App) loadSessions() tea.Msg {
	sessions, err := a.store.ListSessions(listLimit)
	return sessionsLoadedMsg{sessions: sessions, err: err}
}

func (a *App) loadSessionDetail(id int64) tea.Cmd {
	return func() tea.Msg {
		session, err := a.store.GetSession(id)
		if err != nil {
			return sessionDetailMsg{err: err}
		}

		entries, err := a.store.GetEntriesForSession(id)
		return sessionDetailMsg{session: session, entries: entries, err: err}
	}
}

func (a *App) deleteSession(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.store.DeleteSession(id); err != nil {
			return sessionDeletedMsg{err: err}
		}
		return sessionDeletedMsg{sessionID: id}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
