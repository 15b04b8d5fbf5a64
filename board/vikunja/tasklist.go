package vikunja

import (
	"bytes"
	"encoding/json"
	"fmt"

	"kanbansync/board"
)

// taskList is the normalized body of a view task listing. The API answers
// with one of three shapes depending on the view kind:
//
//	[ {task}, ... ]                        list, table and gantt views
//	[ {bucket, "tasks": [...]}, ... ]      kanban views
//	{ "tasks": [...] }                     some proxies and older releases
//
// grouped is set for the bucket shape, which is never paginated.
type taskList struct {
	tasks   []board.Task
	grouped bool
}

type bucketWithTasks struct {
	ID    int64        `json:"id"`
	Title string       `json:"title"`
	Tasks []board.Task `json:"tasks"`
}

// UnmarshalJSON decodes any of the supported shapes.
func (l *taskList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*l = taskList{}

	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		return nil

	case data[0] == '{':
		var obj struct {
			Tasks []board.Task `json:"tasks"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("failed to decode task object: %w", err)
		}
		l.tasks = obj.Tasks
		return nil

	case data[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("failed to decode task list: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		if !isBucket(items[0]) {
			var tasks []board.Task
			if err := json.Unmarshal(data, &tasks); err != nil {
				return fmt.Errorf("failed to decode task list: %w", err)
			}
			l.tasks = tasks
			return nil
		}

		var buckets []bucketWithTasks
		if err := json.Unmarshal(data, &buckets); err != nil {
			return fmt.Errorf("failed to decode bucket list: %w", err)
		}
		l.grouped = true
		for _, b := range buckets {
			for _, t := range b.Tasks {
				if t.BucketID == 0 {
					t.BucketID = b.ID
				}
				l.tasks = append(l.tasks, t)
			}
		}
		return nil
	}

	return fmt.Errorf("unexpected task list shape starting with %q", data[0])
}

// isBucket reports whether a list element carries a "tasks" key.
func isBucket(item json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(item, &probe); err != nil {
		return false
	}
	_, ok := probe["tasks"]
	return ok
}
