package board

import (
	"context"

	"kanbansync/internal/utils"
)

// FindProjectByTitle searches for a project by title (case-insensitive, trimmed).
// Returns nil if no match is found.
func FindProjectByTitle(projects []Project, title string) *Project {
	want := NormalizeTitle(title)
	for i := range projects {
		if NormalizeTitle(projects[i].Title) == want {
			return &projects[i]
		}
	}
	return nil
}

// FindViewByTitle searches for a view by title (case-insensitive, trimmed).
func FindViewByTitle(views []View, title string) *View {
	want := NormalizeTitle(title)
	for i := range views {
		if NormalizeTitle(views[i].Title) == want {
			return &views[i]
		}
	}
	return nil
}

// FindBucketByTitle searches for a bucket by title (case-insensitive, trimmed).
func FindBucketByTitle(buckets []Bucket, title string) *Bucket {
	want := NormalizeTitle(title)
	for i := range buckets {
		if NormalizeTitle(buckets[i].Title) == want {
			return &buckets[i]
		}
	}
	return nil
}

// FindLabelByTitle searches for a label by title (case-insensitive, trimmed).
func FindLabelByTitle(labels []Label, title string) *Label {
	want := NormalizeTitle(title)
	for i := range labels {
		if NormalizeTitle(labels[i].Title) == want {
			return &labels[i]
		}
	}
	return nil
}

// FindProjectID resolves a project title to its id.
func FindProjectID(ctx context.Context, g Gateway, name string) (int64, error) {
	projects, err := g.ListProjects(ctx)
	if err != nil {
		return 0, err
	}
	p := FindProjectByTitle(projects, name)
	if p == nil {
		return 0, utils.ErrProjectNotFound(name)
	}
	return p.ID, nil
}

// FindViewID resolves a view title within a project to its id.
func FindViewID(ctx context.Context, g Gateway, projectID int64, name string) (int64, error) {
	views, err := g.ListViews(ctx, projectID)
	if err != nil {
		return 0, err
	}
	v := FindViewByTitle(views, name)
	if v == nil {
		return 0, utils.ErrViewNotFound(name)
	}
	return v.ID, nil
}

// FindBucketID resolves a bucket title within a (project, view) pair to its id.
func FindBucketID(ctx context.Context, g Gateway, projectID, viewID int64, name string) (int64, error) {
	buckets, err := g.ListBuckets(ctx, projectID, viewID)
	if err != nil {
		return 0, err
	}
	b := FindBucketByTitle(buckets, name)
	if b == nil {
		return 0, utils.ErrBucketNotFound(name)
	}
	return b.ID, nil
}
