package vikunja

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kanbansync/board"
	"kanbansync/internal/testutil"
	"kanbansync/internal/utils"
)

func newTestClient(t *testing.T, f *testutil.FakeVikunja) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: f.URL() + "/", Token: f.Token(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewRequiresConnectionSettings(t *testing.T) {
	if _, err := New(Config{Token: "x"}); !errors.Is(err, utils.ErrConfig) {
		t.Errorf("missing base URL: got %v, want config error", err)
	}
	if _, err := New(Config{BaseURL: "http://localhost"}); !errors.Is(err, utils.ErrConfig) {
		t.Errorf("missing token: got %v, want config error", err)
	}
}

func TestStructureLookups(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	seed := f.SeedBoard()
	c := newTestClient(t, f)
	ctx := context.Background()

	projectID, err := board.FindProjectID(ctx, c, "  internal todo ")
	if err != nil || projectID != seed.ProjectID {
		t.Fatalf("FindProjectID() = %d, %v; want %d", projectID, err, seed.ProjectID)
	}

	viewID, err := board.FindViewID(ctx, c, projectID, "KANBAN")
	if err != nil || viewID != seed.ViewID {
		t.Fatalf("FindViewID() = %d, %v; want %d", viewID, err, seed.ViewID)
	}

	bucketID, err := board.FindBucketID(ctx, c, projectID, viewID, "in progress")
	if err != nil || bucketID != seed.Buckets["In Progress"] {
		t.Fatalf("FindBucketID() = %d, %v; want %d", bucketID, err, seed.Buckets["In Progress"])
	}

	if _, err := board.FindBucketID(ctx, c, projectID, viewID, "Review"); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("missing bucket: got %v, want not found", err)
	}
	if _, err := board.FindProjectID(ctx, c, "Nope"); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("missing project: got %v, want not found", err)
	}

	log := f.RequestLog()
	if len(log) != 5 || log[0] != "GET /api/v1/projects" {
		t.Errorf("unexpected request log: %v", log)
	}
}

func TestAuthFailureIsAPIError(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	c, err := New(Config{BaseURL: f.URL(), Token: "wrong"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.ListProjects(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Method != http.MethodGet {
		t.Errorf("unexpected error fields: %+v", apiErr)
	}
	if !strings.Contains(apiErr.URL, "/api/v1/projects?page=1&per_page=100") {
		t.Errorf("URL = %q", apiErr.URL)
	}
	if utils.Category(err) != "auth" {
		t.Errorf("Category() = %q, want auth", utils.Category(err))
	}
}

func TestAPIErrorBodyIsFoldedToOneLine(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	seed := f.SeedBoard()
	c := newTestClient(t, f)

	f.FailNext(http.MethodGet, "/api/v1/projects/1/views", http.StatusInternalServerError)
	_, err := c.ListViews(context.Background(), seed.ProjectID)
	if err == nil {
		t.Fatal("expected error")
	}
	line := utils.OneLine(err)
	if strings.Contains(line, "\n") {
		t.Errorf("OneLine kept newline: %q", line)
	}
	if !strings.Contains(line, "HTTP 500 Internal Server Error for GET") || !strings.Contains(line, "injected failure second line") {
		t.Errorf("unexpected message: %q", line)
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Token: "t", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ListLabels(context.Background())
	if err == nil || !strings.Contains(err.Error(), "network error for GET") {
		t.Fatalf("expected network error, got %v", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Error("network failures should not be APIError")
	}
}

func TestListTasksPaginates(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	seed := f.SeedBoard()
	for i := 0; i < TasksPerPage+5; i++ {
		f.AddTask(seed.ProjectID, map[string]interface{}{"title": "t"})
	}
	c := newTestClient(t, f)

	tasks, err := c.ListTasks(context.Background(), seed.ProjectID, seed.ViewID)
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != TasksPerPage+5 {
		t.Errorf("got %d tasks, want %d", len(tasks), TasksPerPage+5)
	}
	path := "/api/v1/projects/1/views/3/tasks"
	if n := f.CountRequests(http.MethodGet, path); n != 2 {
		t.Errorf("expected 2 pages, got %d requests (%v)", n, f.RequestLog())
	}
}

func TestListTasksExactPageFetchesEmptyPage(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	seed := f.SeedBoard()
	for i := 0; i < TasksPerPage; i++ {
		f.AddTask(seed.ProjectID, map[string]interface{}{"title": "t"})
	}
	c := newTestClient(t, f)

	tasks, err := c.ListTasks(context.Background(), seed.ProjectID, seed.ViewID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != TasksPerPage {
		t.Errorf("got %d tasks", len(tasks))
	}
	if n := f.CountRequests(http.MethodGet, "/api/v1/projects/1/views/3/tasks"); n != 2 {
		t.Errorf("expected a second, empty page request; got %d", n)
	}
}

func TestListTasksBucketGrouped(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	seed := f.SeedBoard()
	f.GroupKanban = true
	a := f.AddTask(seed.ProjectID, map[string]interface{}{"title": "a", "bucket_id": seed.Buckets["Done"]})
	b := f.AddTask(seed.ProjectID, map[string]interface{}{"title": "b"})
	c := newTestClient(t, f)

	tasks, err := c.ListTasks(context.Background(), seed.ProjectID, seed.ViewID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	// Bucket order: Backlog first, Done last.
	if tasks[0].ID != b || tasks[1].ID != a {
		t.Errorf("unexpected order: %d, %d", tasks[0].ID, tasks[1].ID)
	}
	if tasks[1].BucketID != seed.Buckets["Done"] {
		t.Errorf("bucket id = %d", tasks[1].BucketID)
	}
	if n := f.CountRequests(http.MethodGet, "/api/v1/projects/1/views/3/tasks"); n != 1 {
		t.Errorf("grouped listing should not paginate, got %d requests", n)
	}
}

func TestListTasksWrappedObject(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	seed := f.SeedBoard()
	f.WrapTasks = true
	f.AddTask(seed.ProjectID, map[string]interface{}{"title": "wrapped"})
	c := newTestClient(t, f)

	tasks, err := c.ListTasks(context.Background(), seed.ProjectID, seed.ViewID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Title != "wrapped" {
		t.Errorf("unexpected tasks: %+v", tasks)
	}
}

func TestTaskListShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		titles  []string
		grouped bool
		wantErr bool
	}{
		{"null", `null`, nil, false, false},
		{"empty array", `[]`, nil, false, false},
		{"flat", `[{"id":1,"title":"a"},{"id":2,"title":"b"}]`, []string{"a", "b"}, false, false},
		{"grouped", `[{"id":9,"title":"Todo","tasks":[{"id":1,"title":"a"}]},{"id":10,"title":"Done","tasks":null}]`, []string{"a"}, true, false},
		{"object", `{"tasks":[{"id":3,"title":"c"}]}`, []string{"c"}, false, false},
		{"scalar", `"nope"`, nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l taskList
			err := json.Unmarshal([]byte(tt.body), &l)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			var titles []string
			for _, task := range l.tasks {
				titles = append(titles, task.Title)
			}
			if strings.Join(titles, ",") != strings.Join(tt.titles, ",") {
				t.Errorf("titles = %v, want %v", titles, tt.titles)
			}
			if l.grouped != tt.grouped {
				t.Errorf("grouped = %v, want %v", l.grouped, tt.grouped)
			}
		})
	}
}

func TestCreateGetUpdateTask(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	seed := f.SeedBoard()
	c := newTestClient(t, f)
	ctx := context.Background()

	created, err := c.CreateTask(ctx, seed.ProjectID, &board.Task{
		Title:       "Build X",
		Description: "<p>d</p>",
		BucketID:    seed.Buckets["Backlog"],
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if created.ID == 0 || created.ProjectID != seed.ProjectID || created.BucketID != seed.Buckets["Backlog"] {
		t.Fatalf("unexpected created task: %+v", created)
	}

	got, err := c.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.BucketID = seed.Buckets["Done"]
	got.PercentDone = 0.5
	if _, err := c.UpdateTask(ctx, got); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}

	stored, _ := f.Task(created.ID)
	if stored.BucketID != seed.Buckets["Done"] || stored.PercentDone != 0.5 || stored.Title != "Build X" {
		t.Errorf("update not applied: %+v", stored)
	}
	// Fields the client does not model must survive the full-object replace.
	if v, ok := f.TaskField(created.ID, "identifier"); !ok || v != "#"+jsonNumber(created.ID) {
		t.Errorf("identifier lost or changed: %v (%v)", v, ok)
	}
	if _, ok := f.TaskField(created.ID, "hex_color"); !ok {
		t.Error("hex_color lost on update")
	}
}

func TestUpdateTaskRequiresID(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	c := newTestClient(t, f)
	if _, err := c.UpdateTask(context.Background(), &board.Task{Title: "x"}); !errors.Is(err, utils.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
	if len(f.RequestLog()) != 0 {
		t.Error("no request should be sent")
	}
}

func TestGetTaskNotFound(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	c := newTestClient(t, f)
	_, err := c.GetTask(context.Background(), 404)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsNotFound() {
		t.Errorf("expected 404 APIError, got %v", err)
	}
}

func TestLabelOperations(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	seed := f.SeedBoard()
	taskID := f.AddTask(seed.ProjectID, map[string]interface{}{"title": "t"})
	c := newTestClient(t, f)
	ctx := context.Background()

	a, err := c.CreateLabel(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.CreateLabel(ctx, "beta")
	if err != nil {
		t.Fatal(err)
	}

	labels, err := c.ListLabels(ctx)
	if err != nil || len(labels) != 2 {
		t.Fatalf("ListLabels() = %v, %v", labels, err)
	}

	if err := c.AddLabelToTask(ctx, taskID, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := c.AddLabelToTask(ctx, taskID, b.ID); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveLabelFromTask(ctx, taskID, a.ID); err != nil {
		t.Fatal(err)
	}
	task, _ := f.Task(taskID)
	if len(task.Labels) != 1 || !task.HasLabel("BETA") {
		t.Errorf("labels after remove = %+v", task.Labels)
	}

	if err := c.ReplaceTaskLabels(ctx, taskID, []int64{a.ID}); err != nil {
		t.Fatal(err)
	}
	task, _ = f.Task(taskID)
	if len(task.Labels) != 1 || task.LabelID("alpha") != a.ID {
		t.Errorf("labels after replace = %+v", task.Labels)
	}

	if err := c.ReplaceTaskLabels(ctx, taskID, nil); err != nil {
		t.Fatal(err)
	}
	task, _ = f.Task(taskID)
	if len(task.Labels) != 0 {
		t.Errorf("labels after clearing = %+v", task.Labels)
	}
}

func TestAddComment(t *testing.T) {
	f := testutil.NewFakeVikunja(t)
	seed := f.SeedBoard()
	taskID := f.AddTask(seed.ProjectID, map[string]interface{}{"title": "t"})
	c := newTestClient(t, f)

	if err := c.AddComment(context.Background(), taskID, "<p>PR: <a>x</a></p>"); err != nil {
		t.Fatal(err)
	}
	comments := f.Comments(taskID)
	if len(comments) != 1 || comments[0] != "<p>PR: <a>x</a></p>" {
		t.Errorf("comments = %v", comments)
	}
}

func jsonNumber(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}

func TestCloseReleasesIdleConnections(t *testing.T) {
	closed := make(chan struct{}, 1)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateClosed {
			select {
			case closed <- struct{}{}:
			default:
			}
		}
	}
	srv.Start()
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Token: "t", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListLabels(context.Background()); err != nil {
		t.Fatalf("ListLabels() error = %v", err)
	}

	select {
	case <-closed:
		t.Fatal("connection closed before Close()")
	case <-time.After(50 * time.Millisecond):
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("idle connection still open after Close()")
	}
}
