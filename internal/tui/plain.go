package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"kanbansync/board"
	"kanbansync/internal/tasksync"
)

const (
	minColumnWidth = 16
	maxColumnWidth = 40
)

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	activeColumnStyle = columnStyle.
				BorderForeground(lipgloss.Color("62"))
	headerStyle   = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))
	doneStyle = lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// columnWidth splits width between n columns within the min/max bounds.
// Border and padding take four cells per column.
func columnWidth(width, n int) int {
	if n == 0 {
		return maxColumnWidth
	}
	w := width/n - 4
	if w < minColumnWidth {
		return minColumnWidth
	}
	if w > maxColumnWidth {
		return maxColumnWidth
	}
	return w
}

// taskLine is the one-line representation of a task in a column.
func taskLine(t board.Task, width int) string {
	line := fmt.Sprintf("#%d %s", t.ID, t.Title)
	if t.PercentDone > 0 && !t.Done {
		line += fmt.Sprintf(" %d%%", int(t.PercentDone*100+0.5))
	}
	return ansi.Truncate(line, width, "…")
}

func renderColumn(col tasksync.Column, width int, style lipgloss.Style, selected int) string {
	var b strings.Builder
	title := fmt.Sprintf("%s (%d)", col.Bucket.Title, len(col.Tasks))
	b.WriteString(headerStyle.Render(ansi.Truncate(title, width, "…")))
	b.WriteString("\n")
	if len(col.Tasks) == 0 {
		b.WriteString(mutedStyle.Render("empty"))
	}
	for i, t := range col.Tasks {
		line := taskLine(t, width)
		switch {
		case i == selected:
			line = selectedStyle.Render(line)
		case t.Done:
			line = doneStyle.Render(line)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}
	return style.Width(width + 2).Render(b.String())
}

// RenderPlain lays the snapshot out as side-by-side bucket columns that fit
// in width cells. It is used for non-interactive board output.
func RenderPlain(snap *tasksync.Snapshot, width int) string {
	if len(snap.Columns) == 0 {
		return "No buckets in this view.\n"
	}

	w := columnWidth(width, len(snap.Columns))
	columns := make([]string, 0, len(snap.Columns))
	for _, col := range snap.Columns {
		columns = append(columns, renderColumn(col, w, columnStyle, -1))
	}

	out := lipgloss.JoinHorizontal(lipgloss.Top, columns...) + "\n"
	if n := len(snap.Unsorted); n > 0 {
		out += mutedStyle.Render(fmt.Sprintf("%d task(s) outside these buckets", n)) + "\n"
	}
	return out
}
