package tasksync

import (
	"context"

	"kanbansync/board"
)

// Column is one bucket with its tasks in board order.
type Column struct {
	Bucket board.Bucket
	Tasks  []board.Task
}

// Snapshot is a read-only picture of a kanban view.
type Snapshot struct {
	ProjectID int64
	ViewID    int64
	Columns   []Column
	// Unsorted holds tasks whose bucket is not part of the view.
	Unsorted []board.Task
}

// Snapshot fetches the buckets and tasks of the target view.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	projectID, viewID, err := s.scope(ctx, 0)
	if err != nil {
		return nil, err
	}
	buckets, err := s.gw.ListBuckets(ctx, projectID, viewID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.gw.ListTasks(ctx, projectID, viewID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{ProjectID: projectID, ViewID: viewID, Columns: make([]Column, len(buckets))}
	index := make(map[int64]int, len(buckets))
	for i, b := range buckets {
		snap.Columns[i] = Column{Bucket: b}
		index[b.ID] = i
	}
	for _, t := range tasks {
		if i, ok := index[t.BucketID]; ok {
			snap.Columns[i].Tasks = append(snap.Columns[i].Tasks, t)
		} else {
			snap.Unsorted = append(snap.Unsorted, t)
		}
	}
	return snap, nil
}
