// Package analytics provides local SQLite-based analytics for tracking command
// usage and failure categories. Recording is opt-in.
package analytics

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

// Event represents a single analytics event
type Event struct {
	ID           int64
	Timestamp    int64
	InvocationID string
	Command      string
	Success      bool
	DurationMs   int64
	ErrorType    string
	Flags        string // JSON array of flag names, never values
}

// CommandStats aggregates the events of one command
type CommandStats struct {
	Command       string
	Runs          int64
	Failures      int64
	AvgDurationMs int64
}

// Summary is the aggregate shown by the stats command
type Summary struct {
	Total      int64
	Failures   int64
	FirstEvent time.Time
	LastEvent  time.Time
	Commands   []CommandStats
	ErrorTypes map[string]int64
}

// WriteSummary prints s as plain text.
func WriteSummary(w io.Writer, s *Summary, now time.Time) {
	if s.Total == 0 {
		_, _ = fmt.Fprintln(w, "No events recorded.")
		return
	}

	_, _ = fmt.Fprintf(w, "%s events, %s failed, first %s, last %s\n",
		humanize.Comma(s.Total), humanize.Comma(s.Failures),
		humanize.RelTime(s.FirstEvent, now, "ago", "from now"),
		humanize.RelTime(s.LastEvent, now, "ago", "from now"))

	for _, c := range s.Commands {
		_, _ = fmt.Fprintf(w, "  %-16s %6s runs  %4s failed  avg %dms\n",
			c.Command, humanize.Comma(c.Runs), humanize.Comma(c.Failures), c.AvgDurationMs)
	}
	for _, kind := range sortedKeys(s.ErrorTypes) {
		_, _ = fmt.Fprintf(w, "  error %-10s %s\n", kind, humanize.Comma(s.ErrorTypes[kind]))
	}
}
