// Package board defines the kanban board entities and the Gateway interface
// used to reach a remote board service.
package board

import (
	"context"
	"encoding/json"
	"strings"
)

// Project is a top-level container of tasks
type Project struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// View is a presentation of a project (list, kanban, ...)
type View struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Title     string `json:"title"`
	Kind      string `json:"view_kind,omitempty"`
}

// Bucket is a named column within a kanban view
type Bucket struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Label is a board-wide tag. Titles compare case-insensitively.
type Label struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Task is a board task. Fields the board returns but this package does not
// model are kept in extra so that a full-object update sends them back.
type Task struct {
	ID          int64
	ProjectID   int64
	Title       string
	Description string
	BucketID    int64
	PercentDone float64
	Done        bool
	Labels      []Label

	extra map[string]json.RawMessage
}

// modelled lists the wire keys owned by the typed fields of Task
var modelled = []string{"id", "project_id", "title", "description", "bucket_id", "percent_done", "done", "labels"}

type taskWire struct {
	ID          int64   `json:"id,omitempty"`
	ProjectID   int64   `json:"project_id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	BucketID    int64   `json:"bucket_id,omitempty"`
	PercentDone float64 `json:"percent_done"`
	Done        bool    `json:"done"`
	Labels      []Label `json:"labels"`
}

// UnmarshalJSON decodes the modelled fields and retains everything else.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w taskWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range modelled {
		delete(raw, k)
	}

	*t = Task{
		ID:          w.ID,
		ProjectID:   w.ProjectID,
		Title:       w.Title,
		Description: w.Description,
		BucketID:    w.BucketID,
		PercentDone: w.PercentDone,
		Done:        w.Done,
		Labels:      w.Labels,
		extra:       raw,
	}
	return nil
}

// MarshalJSON encodes the complete task, unmodelled fields included.
func (t Task) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(t.extra)+len(modelled))
	for k, v := range t.extra {
		out[k] = v
	}
	if t.ID != 0 {
		out["id"] = t.ID
	}
	if t.ProjectID != 0 {
		out["project_id"] = t.ProjectID
	}
	if t.BucketID != 0 {
		out["bucket_id"] = t.BucketID
	}
	out["title"] = t.Title
	out["description"] = t.Description
	out["percent_done"] = t.PercentDone
	out["done"] = t.Done
	labels := t.Labels
	if labels == nil {
		labels = []Label{}
	}
	out["labels"] = labels
	return json.Marshal(out)
}

// HasLabel reports whether the task carries a label with the given title
// (case-insensitive, trimmed).
func (t *Task) HasLabel(title string) bool {
	return t.LabelID(title) != 0
}

// LabelID returns the id of the attached label with the given title, or 0.
func (t *Task) LabelID(title string) int64 {
	want := NormalizeTitle(title)
	for _, l := range t.Labels {
		if NormalizeTitle(l.Title) == want {
			return l.ID
		}
	}
	return 0
}

// Gateway is the narrow interface to the remote board service.
// Every method performs exactly one logical remote operation; pagination is
// handled inside ListTasks.
type Gateway interface {
	// Structure lookups
	ListProjects(ctx context.Context) ([]Project, error)
	ListViews(ctx context.Context, projectID int64) ([]View, error)
	ListBuckets(ctx context.Context, projectID, viewID int64) ([]Bucket, error)

	// Task operations
	ListTasks(ctx context.Context, projectID, viewID int64) ([]Task, error)
	GetTask(ctx context.Context, taskID int64) (*Task, error)
	CreateTask(ctx context.Context, projectID int64, task *Task) (*Task, error)
	UpdateTask(ctx context.Context, task *Task) (*Task, error) // full-object replace

	// Label operations
	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, title string) (*Label, error)
	AddLabelToTask(ctx context.Context, taskID, labelID int64) error
	RemoveLabelFromTask(ctx context.Context, taskID, labelID int64) error
	ReplaceTaskLabels(ctx context.Context, taskID int64, labelIDs []int64) error

	// Comments
	AddComment(ctx context.Context, taskID int64, comment string) error

	// Connection management
	Close() error
}

// NormalizeTitle is the comparison key for board titles.
func NormalizeTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
