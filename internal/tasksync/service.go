// Package tasksync implements the kanbansync commands on top of a
// board.Gateway: finding or creating the task for a unit of work, reporting
// progress into it, linking pull requests, moving it between buckets and
// editing its labels.
package tasksync

import (
	"context"
	"fmt"
	"strings"

	"kanbansync/board"
	"kanbansync/internal/markdown"
	"kanbansync/internal/resolver"
	"kanbansync/internal/status"
	"kanbansync/internal/templates"
	"kanbansync/internal/utils"
)

// Target names the project, view and default bucket commands operate on.
// A non-zero id skips the name lookup.
type Target struct {
	Project   string
	ProjectID int64
	View      string
	ViewID    int64
	Bucket    string
}

// Selector identifies an existing task, either directly by id or through
// resolver hints.
type Selector struct {
	TaskID int64
	resolver.Hint
}

func (s Selector) empty() bool {
	return s.TaskID == 0 && s.Hint.Empty()
}

// Service runs task operations against one board.
type Service struct {
	gw        board.Gateway
	target    Target
	codec     *status.Codec
	templates *templates.Set
}

// Option configures a Service
type Option func(*Service)

// WithCodec replaces the status codec, mostly to pin the clock in tests.
func WithCodec(c *status.Codec) Option {
	return func(s *Service) {
		s.codec = c
	}
}

// WithTemplates replaces the embedded templates.
func WithTemplates(t *templates.Set) Option {
	return func(s *Service) {
		s.templates = t
	}
}

// New creates a Service
func New(gw board.Gateway, target Target, opts ...Option) *Service {
	s := &Service{
		gw:        gw,
		target:    target,
		codec:     status.New(),
		templates: templates.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scope resolves the project and view ids. projectID overrides the target
// when non-zero.
func (s *Service) scope(ctx context.Context, projectID int64) (int64, int64, error) {
	if projectID == 0 {
		projectID = s.target.ProjectID
	}
	if projectID == 0 {
		id, err := board.FindProjectID(ctx, s.gw, s.target.Project)
		if err != nil {
			return 0, 0, err
		}
		projectID = id
	}

	viewID := s.target.ViewID
	if viewID == 0 {
		id, err := board.FindViewID(ctx, s.gw, projectID, s.target.View)
		if err != nil {
			return 0, 0, err
		}
		viewID = id
	}
	utils.Debugf("scope: project %d, view %d", projectID, viewID)
	return projectID, viewID, nil
}

// lookup returns the task named by sel, or nil when the hints match nothing.
func (s *Service) lookup(ctx context.Context, sel Selector) (*board.Task, error) {
	if sel.TaskID != 0 {
		return s.gw.GetTask(ctx, sel.TaskID)
	}

	projectID, viewID, err := s.scope(ctx, 0)
	if err != nil {
		return nil, err
	}
	tasks, err := s.gw.ListTasks(ctx, projectID, viewID)
	if err != nil {
		return nil, err
	}
	return resolver.Resolve(tasks, sel.Hint), nil
}

// mustFind is lookup for commands that never create.
func (s *Service) mustFind(ctx context.Context, sel Selector, purpose string) (*board.Task, error) {
	if sel.empty() {
		return nil, utils.ErrInvalidArg("one of --task-id, --pr-number, --branch or --title is required")
	}
	task, err := s.lookup(ctx, sel)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, utils.ErrTaskNotFound(purpose)
	}
	return task, nil
}

// renderField renders an optional free-text field, substituting the
// placeholder when it is missing or blank.
func renderField(value *string) string {
	return markdown.RenderBlock(markdown.NormalizeField(value))
}

// prReference is the text used for a PR in comments and descriptions.
func prReference(prURL, prNumber string) string {
	if prURL = strings.TrimSpace(prURL); prURL != "" {
		return prURL
	}
	if prNumber = strings.TrimSpace(prNumber); prNumber != "" {
		return fmt.Sprintf("PR #%s", prNumber)
	}
	return ""
}
