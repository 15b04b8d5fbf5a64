// Package markdown renders the small plain-text subset accepted on the command
// line (paragraphs and nested bullet lists) into HTML fragments for task
// descriptions and comments.
package markdown

import (
	"html"
	"strings"
	"unicode"
)

// Placeholder is rendered for empty fields.
const Placeholder = "—"

// MaxListDepth is the deepest nesting level emitted for bullet lists (levels 0..MaxListDepth).
const MaxListDepth = 2

const (
	uncheckedBox = "☐"
	checkedBox   = "☑"
)

// listItem is one bullet line after the first pass.
type listItem struct {
	level   int
	content string
}

// EscapeHTML escapes &, <, >, and both quote characters.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

// NormalizeField returns the trimmed value, or the placeholder when the value
// is nil or blank.
func NormalizeField(value *string) string {
	if value == nil {
		return Placeholder
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return Placeholder
	}
	return v
}

// RenderBlock converts free text into an HTML fragment.
//
// When every non-blank line starts with a "-" or "*" bullet the text becomes a
// nested <ul> tree; otherwise it becomes a single paragraph with <br> between
// lines. Text content is always escaped before markup is added.
func RenderBlock(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "<p>" + Placeholder + "</p>"
	}

	allBullets := true
	for _, line := range lines {
		if !isListLine(line) {
			allBullets = false
			break
		}
	}
	if allBullets {
		return renderList(lines)
	}

	escaped := make([]string, len(lines))
	for i, line := range lines {
		escaped[i] = EscapeHTML(strings.TrimSpace(line))
	}
	return "<p>" + strings.Join(escaped, "<br>") + "</p>"
}

func isListLine(line string) bool {
	stripped := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(stripped, "-") || strings.HasPrefix(stripped, "*")
}

func leadingSpaces(line string) int {
	return len(line) - len(strings.TrimLeft(line, " "))
}

// renderList runs both passes: levels and content first, then tag emission.
func renderList(lines []string) string {
	expanded := make([]string, len(lines))
	base := -1
	for i, line := range lines {
		expanded[i] = strings.ReplaceAll(line, "\t", "  ")
		if n := leadingSpaces(expanded[i]); base < 0 || n < base {
			base = n
		}
	}

	items := make([]listItem, 0, len(expanded))
	for _, line := range expanded {
		level := (leadingSpaces(line) - base) / 2
		if level > MaxListDepth {
			level = MaxListDepth
		}

		content := strings.TrimLeftFunc(line, unicode.IsSpace)
		if strings.HasPrefix(content, "-") || strings.HasPrefix(content, "*") {
			content = strings.TrimPrefix(content[1:], " ")
		}
		items = append(items, listItem{level: level, content: applyCheckbox(content)})
	}

	return emitList(items)
}

// applyCheckbox swaps a leading "[ ]" or "[x]" for a box glyph.
func applyCheckbox(content string) string {
	if len(content) < 3 {
		return content
	}
	switch strings.ToLower(content[:3]) {
	case "[ ]":
		return uncheckedBox + " " + strings.TrimLeftFunc(content[3:], unicode.IsSpace)
	case "[x]":
		return checkedBox + " " + strings.TrimLeftFunc(content[3:], unicode.IsSpace)
	}
	return content
}

// emitList writes a well-formed <ul> tree. openLI[d] records whether an <li>
// is open at depth d; the stack length is always current depth + 1.
func emitList(items []listItem) string {
	var sb strings.Builder
	sb.WriteString("<ul>")
	openLI := []bool{false}

	closeDepth := func() {
		top := len(openLI) - 1
		if openLI[top] {
			sb.WriteString("</li>")
		}
		sb.WriteString("</ul>")
		openLI = openLI[:top]
	}

	for _, item := range items {
		for len(openLI)-1 < item.level {
			sb.WriteString("<ul>")
			openLI = append(openLI, false)
		}
		for len(openLI)-1 > item.level {
			closeDepth()
		}

		top := len(openLI) - 1
		if openLI[top] {
			sb.WriteString("</li>")
		}
		sb.WriteString("<li>")
		sb.WriteString(EscapeHTML(item.content))
		openLI[top] = true
	}

	for len(openLI) > 0 {
		closeDepth()
	}
	return sb.String()
}
