// Package status maintains the machine-managed status block inside a task
// description.
package status

import (
	"strings"
	"time"
	"unicode"

	"kanbansync/internal/markdown"
)

// Markers already present on existing boards; do not change.
const (
	ManagedMarker = "<!-- vikunja-skill:managed -->"
	StartMarker   = "<!-- vikunja-skill:status-start -->"
	EndMarker     = "<!-- vikunja-skill:status-end -->"
)

// DateLayout is the ISO 8601 calendar date used for "Last updated".
const DateLayout = "2006-01-02"

// Codec builds and merges status blocks. Now defaults to time.Now.
type Codec struct {
	Now func() time.Time
}

// New returns a Codec using the wall clock.
func New() *Codec {
	return &Codec{Now: time.Now}
}

// Today is the date stamped into new blocks.
func (c *Codec) Today() string {
	now := time.Now
	if c != nil && c.Now != nil {
		now = c.Now
	}
	return now().Format(DateLayout)
}

// BuildBlock returns the delimited block. summaryHTML is inserted as is;
// progress is escaped.
func (c *Codec) BuildBlock(summaryHTML, progress string) string {
	lines := []string{
		StartMarker,
		"<p><strong>Summary:</strong></p>",
		summaryHTML,
		"<p><strong>Progress:</strong> " + markdown.EscapeHTML(progress) + "</p>",
		"<p><strong>Last updated:</strong> " + c.Today() + "</p>",
		EndMarker,
	}
	return strings.Join(lines, "\n")
}

// Merge replaces the existing status block in description, or appends a new
// one after a blank line when no complete block is found.
func (c *Codec) Merge(description, summaryHTML, progress string) string {
	block := c.BuildBlock(summaryHTML, progress)

	if before, after, ok := splitBlock(description); ok {
		before = strings.TrimRightFunc(before, unicode.IsSpace)
		after = strings.TrimLeftFunc(after, unicode.IsSpace)
		return strings.TrimSpace(before+"\n"+block+"\n"+after) + "\n"
	}

	return strings.TrimRightFunc(description, unicode.IsSpace) + "\n\n" + block + "\n"
}

// splitBlock returns the text around the first start marker and the end
// marker that follows it.
func splitBlock(description string) (before, after string, ok bool) {
	start := strings.Index(description, StartMarker)
	if start < 0 {
		return "", "", false
	}
	rest := description[start+len(StartMarker):]
	end := strings.Index(rest, EndMarker)
	if end < 0 {
		return "", "", false
	}
	return description[:start], rest[end+len(EndMarker):], true
}

// IsManaged reports whether the description carries the managed marker.
// Unmanaged descriptions are never rewritten.
func IsManaged(description string) bool {
	return strings.Contains(description, ManagedMarker)
}

// CountBlocks returns the number of start markers in description.
func CountBlocks(description string) int {
	return strings.Count(description, StartMarker)
}

// ProgressText formats done/total for the block, or the placeholder when
// total is not positive.
func ProgressText(done, total, percent int) string {
	if total <= 0 {
		return markdown.Placeholder
	}
	return formatProgress(done, total, percent)
}
