package tasksync

import (
	"context"
	"fmt"
	"strings"

	"kanbansync/board"
	"kanbansync/internal/labels"
	"kanbansync/internal/markdown"
	"kanbansync/internal/resolver"
	"kanbansync/internal/status"
	"kanbansync/internal/templates"
	"kanbansync/internal/utils"
)

// Actions reported by EnsureTask.
const (
	ActionFound   = "found"
	ActionCreated = "created"
)

const (
	initialSummary  = "Not started"
	initialProgress = "0/0 (0%)"
)

// EnsureTaskRequest describes the task to find or create. Title doubles as
// the title hint; Description, when set, is used instead of the template.
type EnsureTaskRequest struct {
	Selector
	Description  *string
	Goal         *string
	Requirements *string
	Solution     *string
	Definition   *string
	Bucket       string
	PRURL        string
	Labels       []string
}

// EnsureResult is printed by ensure-task
type EnsureResult struct {
	Action string      `json:"action"`
	TaskID int64       `json:"task_id"`
	Task   *board.Task `json:"task"`
}

// EnsureTask returns the task matching req, creating it when nothing
// matches. An existing task is reported as is, without further changes.
func (s *Service) EnsureTask(ctx context.Context, req EnsureTaskRequest) (*EnsureResult, error) {
	if req.TaskID != 0 {
		task, err := s.gw.GetTask(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
		return &EnsureResult{Action: ActionFound, TaskID: task.ID, Task: task}, nil
	}

	if strings.TrimSpace(req.Title) == "" {
		return nil, utils.ErrInvalidArg("--title is required")
	}

	projectID, viewID, err := s.scope(ctx, 0)
	if err != nil {
		return nil, err
	}
	tasks, err := s.gw.ListTasks(ctx, projectID, viewID)
	if err != nil {
		return nil, err
	}
	if existing := resolver.Resolve(tasks, req.Hint); existing != nil {
		return &EnsureResult{Action: ActionFound, TaskID: existing.ID, Task: existing}, nil
	}

	bucketName := req.Bucket
	if bucketName == "" {
		bucketName = s.target.Bucket
	}
	bucketID, err := board.FindBucketID(ctx, s.gw, projectID, viewID, bucketName)
	if err != nil {
		return nil, err
	}

	description, err := s.newDescription(req)
	if err != nil {
		return nil, err
	}

	created, err := s.gw.CreateTask(ctx, projectID, &board.Task{
		Title:       taskTitle(req.Title, req.PRNumber, req.Branch),
		Description: description,
		BucketID:    bucketID,
	})
	if err != nil {
		return nil, err
	}
	utils.Debugf("created task %d in bucket %q", created.ID, bucketName)

	if req.PRNumber != "" {
		labelID, err := labels.EnsureLabelID(ctx, s.gw, resolver.PRLabel(req.PRNumber))
		if err != nil {
			return nil, err
		}
		if err := s.gw.AddLabelToTask(ctx, created.ID, labelID); err != nil {
			return nil, err
		}
	}
	if req.PRURL != "" {
		if err := s.gw.AddComment(ctx, created.ID, "PR: "+req.PRURL); err != nil {
			return nil, err
		}
	}
	if len(req.Labels) > 0 {
		if err := labels.EnsureLabelsForTask(ctx, s.gw, created.ID, req.Labels); err != nil {
			return nil, err
		}
	}

	return &EnsureResult{Action: ActionCreated, TaskID: created.ID, Task: created}, nil
}

// taskTitle adds the PR prefix and branch marker used by the resolver.
func taskTitle(title, prNumber, branch string) string {
	if prNumber != "" && !strings.HasPrefix(title, "[PR-") {
		title = resolver.PRPrefix(prNumber) + " " + title
	}
	if branch != "" {
		title = title + " " + resolver.BranchMarker(branch)
	}
	return title
}

func (s *Service) newDescription(req EnsureTaskRequest) (string, error) {
	if req.Description != nil && *req.Description != "" {
		description := *req.Description
		if !status.IsManaged(description) {
			description = status.ManagedMarker + "\n\n" + description
		}
		return description, nil
	}

	var prSection string
	if ref := prReference(req.PRURL, req.PRNumber); ref != "" {
		prSection = "<h3>PR</h3>\n" + markdown.RenderBlock(ref)
	}

	description, err := s.templates.Description(templates.DescriptionData{
		GoalHTML:             renderField(req.Goal),
		RequirementsHTML:     renderField(req.Requirements),
		SolutionHTML:         renderField(req.Solution),
		DefinitionOfDoneHTML: renderField(req.Definition),
		PRSectionHTML:        prSection,
		SummaryHTML:          markdown.RenderBlock(initialSummary),
		Progress:             initialProgress,
		Date:                 s.codec.Today(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to build description: %w", err)
	}
	return description, nil
}
