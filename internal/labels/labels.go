// Package labels attaches board labels to tasks without creating duplicates.
package labels

import (
	"context"
	"fmt"
	"strings"

	"kanbansync/board"
	"kanbansync/internal/utils"
)

// Store is the subset of board.Gateway used for label bookkeeping.
type Store interface {
	ListLabels(ctx context.Context) ([]board.Label, error)
	CreateLabel(ctx context.Context, title string) (*board.Label, error)
	GetTask(ctx context.Context, taskID int64) (*board.Task, error)
	AddLabelToTask(ctx context.Context, taskID, labelID int64) error
}

// ParseList splits a comma separated list, trimming entries and dropping
// empty ones.
func ParseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnsureLabelID returns the id of the label titled name, creating it when no
// label matches case-insensitively.
//
// Lookup and creation are not atomic: two processes racing on the same new
// title may both create it. The board does not reject duplicates.
func EnsureLabelID(ctx context.Context, s Store, name string) (int64, error) {
	existing, err := s.ListLabels(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list labels: %w", err)
	}
	if l := board.FindLabelByTitle(existing, name); l != nil {
		return l.ID, nil
	}

	created, err := s.CreateLabel(ctx, strings.TrimSpace(name))
	if err != nil {
		return 0, fmt.Errorf("failed to create label %q: %w", name, err)
	}
	utils.Debugf("created label %q (id %d)", created.Title, created.ID)
	return created.ID, nil
}

// EnsureLabelsForTask attaches every label in names that the task does not
// already carry. Existing labels are left untouched.
func EnsureLabelsForTask(ctx context.Context, s Store, taskID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	attached := make(map[string]bool, len(task.Labels))
	for _, l := range task.Labels {
		attached[board.NormalizeTitle(l.Title)] = true
	}

	for _, name := range names {
		key := board.NormalizeTitle(name)
		if key == "" || attached[key] {
			continue
		}
		id, err := EnsureLabelID(ctx, s, name)
		if err != nil {
			return err
		}
		if err := s.AddLabelToTask(ctx, taskID, id); err != nil {
			return fmt.Errorf("failed to attach label %q to task %d: %w", name, taskID, err)
		}
		attached[key] = true
	}
	return nil
}
