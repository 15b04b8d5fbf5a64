package tasksync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kanbansync/board"
	"kanbansync/board/vikunja"
	"kanbansync/internal/resolver"
	"kanbansync/internal/status"
	"kanbansync/internal/testutil"
	"kanbansync/internal/utils"
)

var fixedDay = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *testutil.FakeVikunja, testutil.Seed) {
	t.Helper()
	f := testutil.NewFakeVikunja(t)
	seed := f.SeedBoard()
	c, err := vikunja.New(vikunja.Config{BaseURL: f.URL(), Token: f.Token(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	svc := New(c, Target{Project: "Internal TODO", View: "Kanban", Bucket: "Backlog"},
		WithCodec(&status.Codec{Now: func() time.Time { return fixedDay }}))
	return svc, f, seed
}

func strPtr(s string) *string { return &s }

func byPR(n string) Selector {
	return Selector{Hint: resolver.Hint{PRNumber: n}}
}

func TestEnsureTaskCreatesThenFinds(t *testing.T) {
	svc, f, seed := newService(t)
	ctx := context.Background()

	req := EnsureTaskRequest{
		Selector: Selector{Hint: resolver.Hint{PRNumber: "42", Title: "Build X"}},
		Goal:     strPtr("Ship the thing"),
		PRURL:    "https://git.example.com/pr/42",
	}
	first, err := svc.EnsureTask(ctx, req)
	if err != nil {
		t.Fatalf("first EnsureTask() error = %v", err)
	}
	if first.Action != ActionCreated {
		t.Fatalf("first action = %q, want created", first.Action)
	}

	task, ok := f.Task(first.TaskID)
	if !ok {
		t.Fatal("task not stored")
	}
	if task.Title != "[PR-42] Build X" {
		t.Errorf("title = %q", task.Title)
	}
	if !task.HasLabel("pr-42") {
		t.Errorf("labels = %+v, want pr-42", task.Labels)
	}
	if task.BucketID != seed.Buckets["Backlog"] {
		t.Errorf("bucket = %d, want Backlog (%d)", task.BucketID, seed.Buckets["Backlog"])
	}
	if !status.IsManaged(task.Description) {
		t.Errorf("description is not managed:\n%s", task.Description)
	}
	for _, want := range []string{"<p>Ship the thing</p>", "<h3>PR</h3>", "2026-03-01", "0/0 (0%)"} {
		if !strings.Contains(task.Description, want) {
			t.Errorf("description missing %q:\n%s", want, task.Description)
		}
	}
	if comments := f.Comments(first.TaskID); len(comments) != 1 || comments[0] != "PR: https://git.example.com/pr/42" {
		t.Errorf("comments = %q", comments)
	}

	second, err := svc.EnsureTask(ctx, req)
	if err != nil {
		t.Fatalf("second EnsureTask() error = %v", err)
	}
	if second.Action != ActionFound || second.TaskID != first.TaskID {
		t.Errorf("second = %s %d, want found %d", second.Action, second.TaskID, first.TaskID)
	}
	if n := len(f.Tasks()); n != 1 {
		t.Errorf("%d tasks on the board, want 1", n)
	}
}

func TestEnsureTaskTitleDecoration(t *testing.T) {
	tests := []struct {
		title, pr, branch, want string
	}{
		{"Build X", "", "", "Build X"},
		{"Build X", "7", "", "[PR-7] Build X"},
		{"[PR-7] Build X", "7", "", "[PR-7] Build X"},
		{"Build X", "", "feat/x", "Build X [branch:feat/x]"},
		{"Build X", "7", "feat/x", "[PR-7] Build X [branch:feat/x]"},
	}
	for _, tt := range tests {
		if got := taskTitle(tt.title, tt.pr, tt.branch); got != tt.want {
			t.Errorf("taskTitle(%q, %q, %q) = %q, want %q", tt.title, tt.pr, tt.branch, got, tt.want)
		}
	}
}

func TestEnsureTaskExplicitDescription(t *testing.T) {
	svc, f, seed := newService(t)

	res, err := svc.EnsureTask(context.Background(), EnsureTaskRequest{
		Selector:    Selector{Hint: resolver.Hint{Title: "Plain", Branch: "fix/y"}},
		Description: strPtr("hand written"),
		Bucket:      "in progress",
		Labels:      []string{"backend", "Backend", "infra"},
	})
	if err != nil {
		t.Fatal(err)
	}
	task, _ := f.Task(res.TaskID)
	if task.Description != status.ManagedMarker+"\n\nhand written" {
		t.Errorf("description = %q", task.Description)
	}
	if task.BucketID != seed.Buckets["In Progress"] {
		t.Errorf("bucket = %d", task.BucketID)
	}
	if len(task.Labels) != 2 || !task.HasLabel("backend") || !task.HasLabel("infra") {
		t.Errorf("labels = %+v", task.Labels)
	}

	// Found again through the branch marker.
	again, err := svc.EnsureTask(context.Background(), EnsureTaskRequest{
		Selector: Selector{Hint: resolver.Hint{Title: "Other title", Branch: "fix/y"}},
	})
	if err != nil || again.TaskID != res.TaskID {
		t.Errorf("branch lookup = %+v, %v", again, err)
	}
}

func TestEnsureTaskByID(t *testing.T) {
	svc, f, seed := newService(t)
	id := f.AddTask(seed.ProjectID, map[string]interface{}{"title": "Existing"})

	res, err := svc.EnsureTask(context.Background(), EnsureTaskRequest{Selector: Selector{TaskID: id}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != ActionFound || res.Task.Title != "Existing" {
		t.Errorf("result = %+v", res)
	}
}

func TestEnsureTaskErrors(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.EnsureTask(ctx, EnsureTaskRequest{}); !errors.Is(err, utils.ErrInvalidArgument) {
		t.Errorf("missing title: %v", err)
	}
	_, err := svc.EnsureTask(ctx, EnsureTaskRequest{
		Selector: Selector{Hint: resolver.Hint{Title: "x"}},
		Bucket:   "Nowhere",
	})
	if !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("missing bucket: %v", err)
	}
}

func TestProgressUpdateManaged(t *testing.T) {
	svc, f, _ := newService(t)
	ctx := context.Background()

	created, err := svc.EnsureTask(ctx, EnsureTaskRequest{
		Selector: Selector{Hint: resolver.Hint{PRNumber: "5", Title: "Progress me"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		res, err := svc.ProgressUpdate(ctx, ProgressRequest{
			Selector: byPR("5"),
			Done:     3,
			Total:    4,
			Summary:  strPtr("- parser\n- [x] tests"),
		})
		if err != nil {
			t.Fatalf("ProgressUpdate() error = %v", err)
		}
		if res.PercentDone != 75 || res.TaskID != created.TaskID {
			t.Errorf("result = %+v", res)
		}
	}

	task, _ := f.Task(created.TaskID)
	if task.PercentDone != 0.75 {
		t.Errorf("percent_done = %v, want 0.75", task.PercentDone)
	}
	if n := status.CountBlocks(task.Description); n != 1 {
		t.Errorf("%d status blocks after repeated updates, want 1:\n%s", n, task.Description)
	}
	for _, want := range []string{"3/4 (75%)", "<ul><li>parser</li><li>☑ tests</li></ul>", "<h3>Goal</h3>"} {
		if !strings.Contains(task.Description, want) {
			t.Errorf("description missing %q:\n%s", want, task.Description)
		}
	}
	if _, ok := f.TaskField(created.TaskID, "identifier"); !ok {
		t.Error("full update dropped the identifier field")
	}
	if n := len(f.Comments(created.TaskID)); n != 3 {
		t.Errorf("%d comments, want 3", n)
	}
	if c := f.Comments(created.TaskID)[0]; !strings.Contains(c, "3/4 (75%)") || !strings.Contains(c, "<p>—</p>") {
		t.Errorf("comment = %q", c)
	}
}

func TestProgressUpdateUnmanaged(t *testing.T) {
	svc, f, seed := newService(t)
	id := f.AddTask(seed.ProjectID, map[string]interface{}{
		"title":       "Human task",
		"description": "<p>mine</p>",
	})

	res, err := svc.ProgressUpdate(context.Background(), ProgressRequest{
		Selector: Selector{Hint: resolver.Hint{Title: "human task"}},
		Done:     5,
		Total:    0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.PercentDone != 0 {
		t.Errorf("percent = %d", res.PercentDone)
	}
	task, _ := f.Task(id)
	if task.Description != "<p>mine</p>" {
		t.Errorf("unmanaged description rewritten: %q", task.Description)
	}
}

func TestProgressUpdateNotFound(t *testing.T) {
	svc, f, _ := newService(t)
	ctx := context.Background()

	_, err := svc.ProgressUpdate(ctx, ProgressRequest{Selector: Selector{Hint: resolver.Hint{Branch: "nope"}}, Total: 1})
	if !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("got %v, want not found", err)
	}
	if _, err := svc.ProgressUpdate(ctx, ProgressRequest{Total: 1}); !errors.Is(err, utils.ErrInvalidArgument) {
		t.Errorf("empty selector: got %v", err)
	}
	if n := f.CountRequests("PUT", "/api/v1/tasks/1/comments"); n != 0 {
		t.Errorf("no comment expected, got %d", n)
	}
}

func TestLinkPR(t *testing.T) {
	svc, f, seed := newService(t)
	ctx := context.Background()
	id := f.AddTask(seed.ProjectID, map[string]interface{}{"title": "Work [branch:feat/z]"})

	sel := Selector{Hint: resolver.Hint{PRNumber: "9", Branch: "feat/z"}}
	for i := 0; i < 2; i++ {
		res, err := svc.LinkPR(ctx, LinkPRRequest{Selector: sel})
		if err != nil {
			t.Fatalf("LinkPR() error = %v", err)
		}
		if res.TaskID != id || res.Action != ActionLinkedPR {
			t.Errorf("result = %+v", res)
		}
	}

	task, _ := f.Task(id)
	if len(task.Labels) != 1 || !task.HasLabel("pr-9") {
		t.Errorf("labels = %+v", task.Labels)
	}
	comments := f.Comments(id)
	if len(comments) != 2 || comments[0] != "PR: PR #9" {
		t.Errorf("comments = %q", comments)
	}
}

func TestMoveTaskProjectPrecedence(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	seed := f.SeedBoard()
	other := f.AddProject("Other")
	otherView := f.AddView(other, "Kanban", "kanban")
	otherDone := f.AddBucket(otherView, "Done")
	id := f.AddTask(other, map[string]interface{}{"title": "Elsewhere"})

	c, err := vikunja.New(vikunja.Config{BaseURL: f.URL(), Token: f.Token(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	tests := []struct {
		name   string
		target Target
		want   int64
	}{
		{"configured project id wins", Target{ProjectID: seed.ProjectID, View: "Kanban"}, seed.Buckets["Done"]},
		{"task project without configured id", Target{Project: "Internal TODO", View: "Kanban"}, otherDone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(c, tt.target)
			res, err := svc.MoveTask(ctx, MoveRequest{Selector: Selector{TaskID: id}, To: "Done"})
			if err != nil {
				t.Fatalf("MoveTask() error = %v", err)
			}
			if res.BucketID != tt.want {
				t.Errorf("bucket = %d, want %d", res.BucketID, tt.want)
			}
		})
	}
}

func TestMoveTask(t *testing.T) {
	svc, f, seed := newService(t)
	ctx := context.Background()
	id := f.AddTask(seed.ProjectID, map[string]interface{}{"title": "[PR-3] Move me", "hex_color": "ff0000"})

	res, err := svc.MoveTask(ctx, MoveRequest{Selector: byPR("3"), To: "done"})
	if err != nil {
		t.Fatal(err)
	}
	if res.BucketID != seed.Buckets["Done"] || res.TaskID != id {
		t.Errorf("result = %+v", res)
	}
	task, _ := f.Task(id)
	if task.BucketID != seed.Buckets["Done"] {
		t.Errorf("bucket = %d", task.BucketID)
	}
	if v, _ := f.TaskField(id, "hex_color"); v != "ff0000" {
		t.Errorf("hex_color = %v", v)
	}

	// By id, the project comes from the task.
	if _, err := svc.MoveTask(ctx, MoveRequest{Selector: Selector{TaskID: id}, To: "In Progress"}); err != nil {
		t.Fatal(err)
	}
	task, _ = f.Task(id)
	if task.BucketID != seed.Buckets["In Progress"] {
		t.Errorf("bucket = %d", task.BucketID)
	}

	if _, err := svc.MoveTask(ctx, MoveRequest{Selector: byPR("3"), To: "Archive"}); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("unknown bucket: %v", err)
	}
	if _, err := svc.MoveTask(ctx, MoveRequest{Selector: byPR("404"), To: "Done"}); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("unknown task: %v", err)
	}
	if _, err := svc.MoveTask(ctx, MoveRequest{Selector: byPR("3")}); !errors.Is(err, utils.ErrInvalidArgument) {
		t.Errorf("missing --to: %v", err)
	}
}

func TestLabels(t *testing.T) {
	svc, f, seed := newService(t)
	ctx := context.Background()
	id := f.AddTask(seed.ProjectID, map[string]interface{}{"title": "Tagged"})
	sel := Selector{TaskID: id}

	if _, err := svc.Labels(ctx, LabelsRequest{Selector: sel, Add: []string{"a", "b"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Labels(ctx, LabelsRequest{Selector: sel, Add: []string{"A"}, Remove: []string{"b", "zzz"}}); err != nil {
		t.Fatal(err)
	}
	task, _ := f.Task(id)
	if len(task.Labels) != 1 || !task.HasLabel("a") {
		t.Errorf("labels after add/remove = %+v", task.Labels)
	}

	if _, err := svc.Labels(ctx, LabelsRequest{Selector: sel, Replace: []string{"x", "b"}}); err != nil {
		t.Fatal(err)
	}
	task, _ = f.Task(id)
	if len(task.Labels) != 2 || !task.HasLabel("x") || !task.HasLabel("b") || task.HasLabel("a") {
		t.Errorf("labels after replace = %+v", task.Labels)
	}

	titles := map[string]int{}
	for _, l := range f.Labels() {
		titles[board.NormalizeTitle(l.Title)]++
	}
	for name, n := range titles {
		if n != 1 {
			t.Errorf("label %q exists %d times", name, n)
		}
	}
}

func TestSnapshot(t *testing.T) {
	svc, f, seed := newService(t)
	f.AddTask(seed.ProjectID, map[string]interface{}{"title": "one"})
	f.AddTask(seed.ProjectID, map[string]interface{}{"title": "two", "bucket_id": seed.Buckets["Done"]})

	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Columns) != 3 {
		t.Fatalf("columns = %d", len(snap.Columns))
	}
	if snap.Columns[0].Bucket.Title != "Backlog" || len(snap.Columns[0].Tasks) != 1 {
		t.Errorf("backlog column = %+v", snap.Columns[0])
	}
	if len(snap.Columns[2].Tasks) != 1 || snap.Columns[2].Tasks[0].Title != "two" {
		t.Errorf("done column = %+v", snap.Columns[2])
	}
}
