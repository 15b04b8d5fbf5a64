package tasksync

import (
	"context"
	"fmt"

	"kanbansync/board"
	"kanbansync/internal/labels"
	"kanbansync/internal/resolver"
	"kanbansync/internal/status"
	"kanbansync/internal/templates"
	"kanbansync/internal/utils"
)

// Actions reported by the update commands.
const (
	ActionProgressUpdated = "progress-updated"
	ActionLinkedPR        = "linked-pr"
	ActionMoved           = "moved"
	ActionLabelsUpdated   = "labels-updated"
)

// ProgressRequest is a progress report for an existing task.
type ProgressRequest struct {
	Selector
	Done       int
	Total      int
	Summary    *string
	Completed  *string
	InProgress *string
	Next       *string
	Blockers   *string
}

// ProgressResult is printed by progress-update
type ProgressResult struct {
	Action      string `json:"action"`
	TaskID      int64  `json:"task_id"`
	PercentDone int    `json:"percent_done"`
}

// ProgressUpdate posts a progress comment, sets percent_done and, for
// managed descriptions, rewrites the status block.
func (s *Service) ProgressUpdate(ctx context.Context, req ProgressRequest) (*ProgressResult, error) {
	task, err := s.mustFind(ctx, req.Selector, "progress update")
	if err != nil {
		return nil, err
	}

	ratio := status.Ratio(req.Done, req.Total)
	percent := status.Percent(ratio)
	summaryHTML := renderField(req.Summary)

	comment, err := s.templates.Comment(templates.CommentData{
		SummaryHTML:    summaryHTML,
		CompletedHTML:  renderField(req.Completed),
		InProgressHTML: renderField(req.InProgress),
		NextStepsHTML:  renderField(req.Next),
		BlockersHTML:   renderField(req.Blockers),
		Done:           req.Done,
		Total:          req.Total,
		Percent:        percent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build progress comment: %w", err)
	}
	if err := s.gw.AddComment(ctx, task.ID, comment); err != nil {
		return nil, err
	}

	// Re-read so the update carries whatever changed since the lookup.
	current, err := s.gw.GetTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	current.PercentDone = ratio
	if status.IsManaged(current.Description) {
		current.Description = s.codec.Merge(current.Description, summaryHTML,
			status.ProgressText(req.Done, req.Total, percent))
	} else {
		utils.Debugf("task %d is not managed; description left as is", current.ID)
	}
	if _, err := s.gw.UpdateTask(ctx, current); err != nil {
		return nil, err
	}

	return &ProgressResult{Action: ActionProgressUpdated, TaskID: task.ID, PercentDone: percent}, nil
}

// LinkPRRequest links a pull request to an existing task.
type LinkPRRequest struct {
	Selector
	PRURL string
}

// TaskResult is printed by commands that only report the task id
type TaskResult struct {
	Action string `json:"action"`
	TaskID int64  `json:"task_id"`
}

// LinkPR attaches the pr-N label and comments with the PR reference.
func (s *Service) LinkPR(ctx context.Context, req LinkPRRequest) (*TaskResult, error) {
	task, err := s.mustFind(ctx, req.Selector, "PR link")
	if err != nil {
		return nil, err
	}

	if req.PRNumber != "" {
		if err := labels.EnsureLabelsForTask(ctx, s.gw, task.ID, []string{resolver.PRLabel(req.PRNumber)}); err != nil {
			return nil, err
		}
	}
	if ref := prReference(req.PRURL, req.PRNumber); ref != "" {
		if err := s.gw.AddComment(ctx, task.ID, "PR: "+ref); err != nil {
			return nil, err
		}
	}

	return &TaskResult{Action: ActionLinkedPR, TaskID: task.ID}, nil
}

// MoveRequest moves an existing task to the bucket named To.
type MoveRequest struct {
	Selector
	To string
}

// MoveResult is printed by move-task
type MoveResult struct {
	Action   string `json:"action"`
	TaskID   int64  `json:"task_id"`
	BucketID int64  `json:"bucket_id"`
}

// MoveTask sets the task's bucket. With a task id the task's own project is
// used unless a project id was configured.
func (s *Service) MoveTask(ctx context.Context, req MoveRequest) (*MoveResult, error) {
	if req.To == "" {
		return nil, utils.ErrInvalidArg("--to is required")
	}
	if req.empty() {
		return nil, utils.ErrInvalidArg("one of --task-id, --pr-number, --branch or --title is required")
	}

	var task *board.Task
	projectID := s.target.ProjectID
	if req.TaskID != 0 {
		t, err := s.gw.GetTask(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
		task = t
		if projectID == 0 {
			projectID = t.ProjectID
		}
	}

	projectID, viewID, err := s.scope(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if task == nil {
		tasks, err := s.gw.ListTasks(ctx, projectID, viewID)
		if err != nil {
			return nil, err
		}
		task = resolver.Resolve(tasks, req.Hint)
		if task == nil {
			return nil, utils.ErrTaskNotFound("move")
		}
	}

	bucketID, err := board.FindBucketID(ctx, s.gw, projectID, viewID, req.To)
	if err != nil {
		return nil, err
	}

	current, err := s.gw.GetTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	current.BucketID = bucketID
	if _, err := s.gw.UpdateTask(ctx, current); err != nil {
		return nil, err
	}

	return &MoveResult{Action: ActionMoved, TaskID: task.ID, BucketID: bucketID}, nil
}

// LabelsRequest edits the labels of an existing task. Add, Remove and
// Replace apply in that order.
type LabelsRequest struct {
	Selector
	Add     []string
	Remove  []string
	Replace []string
}

// Labels applies req. Removing a label the task does not carry is a no-op.
func (s *Service) Labels(ctx context.Context, req LabelsRequest) (*TaskResult, error) {
	task, err := s.mustFind(ctx, req.Selector, "labels")
	if err != nil {
		return nil, err
	}

	if len(req.Add) > 0 {
		if err := labels.EnsureLabelsForTask(ctx, s.gw, task.ID, req.Add); err != nil {
			return nil, err
		}
	}

	for _, name := range req.Remove {
		labelID := task.LabelID(name)
		if labelID == 0 {
			utils.Debugf("label %q not attached to task %d", name, task.ID)
			continue
		}
		if err := s.gw.RemoveLabelFromTask(ctx, task.ID, labelID); err != nil {
			return nil, err
		}
	}

	if len(req.Replace) > 0 {
		ids := make([]int64, 0, len(req.Replace))
		for _, name := range req.Replace {
			id, err := labels.EnsureLabelID(ctx, s.gw, name)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		if err := s.gw.ReplaceTaskLabels(ctx, task.ID, ids); err != nil {
			return nil, err
		}
	}

	return &TaskResult{Action: ActionLabelsUpdated, TaskID: task.ID}, nil
}
