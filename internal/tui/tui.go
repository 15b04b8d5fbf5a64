// Package tui provides a read-only terminal browser for a kanban view and
// the plain column layout used when no terminal is attached.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kanbansync/board"
	"kanbansync/internal/markdown"
	"kanbansync/internal/tasksync"
	"kanbansync/internal/utils"
)

// Loader fetches the board. *tasksync.Service implements it.
type Loader interface {
	Snapshot(ctx context.Context) (*tasksync.Snapshot, error)
}

// Model represents the TUI state
type Model struct {
	loader Loader
	ctx    context.Context
	title  string

	snap    *tasksync.Snapshot
	err     error
	loading bool

	column int
	rows   []int // selected row per column
	detail bool

	keys keyMap
	help help.Model

	width  int
	height int

	detailStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
	errorStyle     lipgloss.Style
}

type snapshotMsg struct {
	snap *tasksync.Snapshot
}

type errMsg struct {
	err error
}

// New creates a new TUI model. title is shown in the status bar.
func New(ctx context.Context, loader Loader, title string) *Model {
	return &Model{
		loader:  loader,
		ctx:     ctx,
		title:   title,
		loading: true,
		keys:    defaultKeyMap(),
		help:    help.New(),
		detailStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		errorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	return m.load()
}

func (m *Model) load() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.loader.Snapshot(m.ctx)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg{snap}
	}
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case snapshotMsg:
		m.loading = false
		m.err = nil
		m.snap = msg.snap
		if m.snap == nil {
			m.snap = &tasksync.Snapshot{}
		}
		m.clampSelection()
		return m, nil

	case errMsg:
		m.loading = false
		m.err = msg.err
		utils.Debugf("board load failed: %v", msg.err)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.detail && msg.String() == "esc" {
			m.detail = false
			return m, nil
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Reload):
		m.loading = true
		return m, m.load()
	case key.Matches(msg, m.keys.Detail):
		m.detail = !m.detail && m.Selected() != nil
	case key.Matches(msg, m.keys.Left):
		if m.column > 0 {
			m.column--
		}
	case key.Matches(msg, m.keys.Right):
		if m.snap != nil && m.column < len(m.snap.Columns)-1 {
			m.column++
		}
	case key.Matches(msg, m.keys.Up):
		if len(m.rows) > m.column && m.rows[m.column] > 0 {
			m.rows[m.column]--
		}
	case key.Matches(msg, m.keys.Down):
		if len(m.rows) > m.column && m.rows[m.column] < len(m.snap.Columns[m.column].Tasks)-1 {
			m.rows[m.column]++
		}
	}
	return m, nil
}

// clampSelection keeps cursors valid after a reload.
func (m *Model) clampSelection() {
	n := len(m.snap.Columns)
	rows := make([]int, n)
	copy(rows, m.rows)
	for i := range rows {
		if last := len(m.snap.Columns[i].Tasks) - 1; rows[i] > last {
			rows[i] = last
		}
		if rows[i] < 0 {
			rows[i] = 0
		}
	}
	m.rows = rows
	if m.column >= n {
		m.column = n - 1
	}
	if m.column < 0 {
		m.column = 0
	}
}

// Selected returns the highlighted task, or nil.
func (m *Model) Selected() *board.Task {
	if m.snap == nil || m.column >= len(m.snap.Columns) || m.column >= len(m.rows) {
		return nil
	}
	tasks := m.snap.Columns[m.column].Tasks
	row := m.rows[m.column]
	if row < 0 || row >= len(tasks) {
		return nil
	}
	return &tasks[row]
}

// View renders the board
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	var b strings.Builder
	switch {
	case m.err != nil:
		b.WriteString(m.errorStyle.Render("Error: " + utils.OneLine(m.err)))
		b.WriteString("\n")
	case m.snap == nil:
		b.WriteString("Loading board...\n")
	case m.detail:
		b.WriteString(m.renderDetail())
		b.WriteString("\n")
	default:
		b.WriteString(m.renderColumns())
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderColumns() string {
	if len(m.snap.Columns) == 0 {
		return "No buckets in this view."
	}
	w := columnWidth(m.width, len(m.snap.Columns))
	columns := make([]string, 0, len(m.snap.Columns))
	for i, col := range m.snap.Columns {
		style, selected := columnStyle, -1
		if i == m.column {
			style, selected = activeColumnStyle, m.rows[i]
		}
		columns = append(columns, renderColumn(col, w, style, selected))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}

func (m *Model) renderDetail() string {
	t := m.Selected()
	if t == nil {
		return ""
	}

	var labels []string
	for _, l := range t.Labels {
		labels = append(labels, l.Title)
	}
	if len(labels) == 0 {
		labels = []string{markdown.Placeholder}
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("#%d %s", t.ID, t.Title)))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Bucket:   %s\n", m.snap.Columns[m.column].Bucket.Title)
	fmt.Fprintf(&b, "Progress: %d%%\n", int(t.PercentDone*100+0.5))
	fmt.Fprintf(&b, "Labels:   %s\n", strings.Join(labels, ", "))
	fmt.Fprintf(&b, "Done:     %t", t.Done)
	return m.detailStyle.Width(m.width - 4).Render(b.String())
}

func (m *Model) renderStatusBar() string {
	left := m.title
	if m.loading && m.snap != nil {
		left += " (reloading)"
	}
	right := ""
	if m.snap != nil {
		total := len(m.snap.Unsorted)
		for _, c := range m.snap.Columns {
			total += len(c.Tasks)
		}
		right = fmt.Sprintf("%d tasks", total)
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}
