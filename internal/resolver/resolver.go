// Package resolver finds the task a caller created on an earlier run, using
// only the hints supplied on the command line.
package resolver

import (
	"fmt"
	"strings"

	"kanbansync/board"
	"kanbansync/internal/utils"
)

// Hint is the per-invocation match key. Empty fields are absent.
type Hint struct {
	PRNumber string
	Branch   string
	Title    string
}

// Empty reports whether no hint was supplied.
func (h Hint) Empty() bool {
	return h.PRNumber == "" && h.Branch == "" && h.Title == ""
}

// PRLabel is the label attached to tasks linked to pull request n.
func PRLabel(prNumber string) string {
	return "pr-" + prNumber
}

// PRPrefix is the title prefix of tasks created for pull request n.
func PRPrefix(prNumber string) string {
	return fmt.Sprintf("[PR-%s]", prNumber)
}

// BranchMarker is the marker embedded in the title of tasks created for a branch.
func BranchMarker(branch string) string {
	return fmt.Sprintf("[branch:%s]", branch)
}

// Resolve returns the first task in fetch order matching the hint, or nil.
//
// Rules are tried in order: PR label, PR title prefix, branch marker in title
// or description, then exact title. The title rule only applies when neither a
// PR number nor a branch was given.
func Resolve(tasks []board.Task, h Hint) *board.Task {
	if h.PRNumber != "" {
		label := PRLabel(h.PRNumber)
		for i := range tasks {
			if tasks[i].HasLabel(label) {
				utils.Debugf("resolver: task %d matched label %s", tasks[i].ID, label)
				return &tasks[i]
			}
		}
		prefix := PRPrefix(h.PRNumber)
		for i := range tasks {
			if strings.HasPrefix(tasks[i].Title, prefix) {
				utils.Debugf("resolver: task %d matched title prefix %s", tasks[i].ID, prefix)
				return &tasks[i]
			}
		}
	}

	if h.Branch != "" {
		marker := BranchMarker(h.Branch)
		for i := range tasks {
			if strings.Contains(tasks[i].Title, marker) || strings.Contains(tasks[i].Description, marker) {
				utils.Debugf("resolver: task %d matched branch marker %s", tasks[i].ID, marker)
				return &tasks[i]
			}
		}
	}

	if h.Title != "" && h.PRNumber == "" && h.Branch == "" {
		want := board.NormalizeTitle(h.Title)
		for i := range tasks {
			if board.NormalizeTitle(tasks[i].Title) == want {
				utils.Debugf("resolver: task %d matched title", tasks[i].ID)
				return &tasks[i]
			}
		}
	}

	utils.Debugf("resolver: no match among %d tasks", len(tasks))
	return nil
}
