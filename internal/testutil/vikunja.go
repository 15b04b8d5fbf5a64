// Package testutil provides an in-memory Vikunja API server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"kanbansync/board"
)

// DefaultToken is the bearer token accepted by a FakeVikunja unless changed.
const DefaultToken = "test-token"

// FakeVikunja simulates the subset of the Vikunja REST API v1 used by
// kanbansync. Tasks are stored as raw JSON objects so that a full-object
// update which drops fields is observable.
type FakeVikunja struct {
	server *httptest.Server
	token  string

	mu         sync.Mutex
	nextID     int64
	projects   []board.Project
	views      []board.View
	buckets    map[int64][]board.Bucket // view id -> buckets
	tasks      []map[string]interface{} // creation order
	taskLabels map[int64][]int64
	labels     []board.Label
	comments   map[int64][]string
	requestLog []string
	failures   map[string]int

	// GroupKanban makes task listings of kanban views answer with buckets
	// holding their tasks, as Vikunja does.
	GroupKanban bool
	// WrapTasks makes flat task listings answer with {"tasks": [...]}.
	WrapTasks bool
}

// NewFakeVikunja starts a fake server that is closed when the test ends.
func NewFakeVikunja(t *testing.T) *FakeVikunja {
	t.Helper()

	f := &FakeVikunja{
		token:      DefaultToken,
		nextID:     1,
		buckets:    make(map[int64][]board.Bucket),
		taskLabels: make(map[int64][]int64),
		comments:   make(map[int64][]string),
		failures:   make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/projects", f.handleListProjects)
	mux.HandleFunc("GET /api/v1/projects/{project}/views", f.handleListViews)
	mux.HandleFunc("GET /api/v1/projects/{project}/views/{view}/buckets", f.handleListBuckets)
	mux.HandleFunc("GET /api/v1/projects/{project}/views/{view}/tasks", f.handleListTasks)
	mux.HandleFunc("PUT /api/v1/projects/{project}/tasks", f.handleCreateTask)
	mux.HandleFunc("GET /api/v1/tasks/{task}", f.handleGetTask)
	mux.HandleFunc("POST /api/v1/tasks/{task}", f.handleUpdateTask)
	mux.HandleFunc("GET /api/v1/labels", f.handleListLabels)
	mux.HandleFunc("PUT /api/v1/labels", f.handleCreateLabel)
	mux.HandleFunc("PUT /api/v1/tasks/{task}/labels", f.handleAddLabel)
	mux.HandleFunc("DELETE /api/v1/tasks/{task}/labels/{label}", f.handleRemoveLabel)
	mux.HandleFunc("POST /api/v1/tasks/{task}/labels/bulk", f.handleBulkLabels)
	mux.HandleFunc("PUT /api/v1/tasks/{task}/comments", f.handleAddComment)

	f.server = httptest.NewServer(f.middleware(mux))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the instance root (without /api/v1).
func (f *FakeVikunja) URL() string {
	return f.server.URL
}

// Token returns the accepted bearer token.
func (f *FakeVikunja) Token() string {
	return f.token
}

func (f *FakeVikunja) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		key := r.Method + " " + r.URL.Path
		f.requestLog = append(f.requestLog, key)
		status, fail := f.failures[key]
		if fail {
			delete(f.failures, key)
		}
		f.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+f.token {
			writeError(w, http.StatusUnauthorized, "missing, malformed, expired or otherwise invalid token provided")
			return
		}
		if fail {
			w.WriteHeader(status)
			_, _ = fmt.Fprint(w, "injected failure\nsecond line")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Seeding and inspection
// =============================================================================

// Seed holds the ids created by SeedBoard.
type Seed struct {
	ProjectID int64
	ViewID    int64
	Buckets   map[string]int64
}

// SeedBoard creates project "Internal TODO" with a list view and a kanban
// view "Kanban" holding the buckets Backlog, In Progress and Done.
func (f *FakeVikunja) SeedBoard() Seed {
	p := f.AddProject("Internal TODO")
	f.AddView(p, "List", "list")
	v := f.AddView(p, "Kanban", "kanban")
	s := Seed{ProjectID: p, ViewID: v, Buckets: map[string]int64{}}
	for _, name := range []string{"Backlog", "In Progress", "Done"} {
		s.Buckets[name] = f.AddBucket(v, name)
	}
	return s
}

func (f *FakeVikunja) newID() int64 {
	id := f.nextID
	f.nextID++
	return id
}

// AddProject adds a project and returns its id.
func (f *FakeVikunja) AddProject(title string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.newID()
	f.projects = append(f.projects, board.Project{ID: id, Title: title})
	return id
}

// AddView adds a view to a project and returns its id.
func (f *FakeVikunja) AddView(projectID int64, title, kind string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.newID()
	f.views = append(f.views, board.View{ID: id, ProjectID: projectID, Title: title, Kind: kind})
	return id
}

// AddBucket adds a bucket to a view and returns its id.
func (f *FakeVikunja) AddBucket(viewID int64, title string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.newID()
	f.buckets[viewID] = append(f.buckets[viewID], board.Bucket{ID: id, Title: title})
	return id
}

// AddLabel adds a label and returns its id. Duplicate titles are allowed.
func (f *FakeVikunja) AddLabel(title string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.newID()
	f.labels = append(f.labels, board.Label{ID: id, Title: title})
	return id
}

// AddTask stores a task with the given fields and returns its id. Missing
// server-side fields (done, percent_done, priority, ...) are filled in.
func (f *FakeVikunja) AddTask(projectID int64, fields map[string]interface{}) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertTask(projectID, fields)
}

// AttachLabel attaches a label to a task.
func (f *FakeVikunja) AttachLabel(taskID, labelID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskLabels[taskID] = append(f.taskLabels[taskID], labelID)
}

// FailNext makes the next request matching method and path (including the
// /api/v1 prefix) answer with status.
func (f *FakeVikunja) FailNext(method, path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+path] = status
}

// Task returns the stored task as the API would render it.
func (f *FakeVikunja) Task(id int64) (board.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := f.findTask(id)
	if raw == nil {
		return board.Task{}, false
	}
	return decodeTask(f.renderTask(raw)), true
}

// TaskField returns a raw field of the stored task.
func (f *FakeVikunja) TaskField(id int64, key string) (interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := f.findTask(id)
	if raw == nil {
		return nil, false
	}
	v, ok := raw[key]
	return v, ok
}

// Tasks returns every stored task in creation order.
func (f *FakeVikunja) Tasks() []board.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]board.Task, 0, len(f.tasks))
	for _, raw := range f.tasks {
		out = append(out, decodeTask(f.renderTask(raw)))
	}
	return out
}

// Labels returns every label.
func (f *FakeVikunja) Labels() []board.Label {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]board.Label(nil), f.labels...)
}

// Comments returns the comments posted on a task.
func (f *FakeVikunja) Comments(taskID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments[taskID]...)
}

// RequestLog returns "METHOD path" for every request received.
func (f *FakeVikunja) RequestLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.requestLog...)
}

// CountRequests returns how many requests matched "METHOD path".
func (f *FakeVikunja) CountRequests(method, path string) int {
	n := 0
	for _, entry := range f.RequestLog() {
		if entry == method+" "+path {
			n++
		}
	}
	return n
}

// =============================================================================
// Handlers
// =============================================================================

func (f *FakeVikunja) handleListProjects(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, f.projects)
}

func (f *FakeVikunja) handleListViews(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	projectID, ok := f.projectFromPath(w, r)
	if !ok {
		return
	}
	views := []board.View{}
	for _, v := range f.views {
		if v.ProjectID == projectID {
			views = append(views, v)
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (f *FakeVikunja) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	view, ok := f.viewFromPath(w, r)
	if !ok {
		return
	}
	buckets := f.buckets[view.ID]
	if buckets == nil {
		buckets = []board.Bucket{}
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (f *FakeVikunja) handleListTasks(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	view, ok := f.viewFromPath(w, r)
	if !ok {
		return
	}

	var inProject []map[string]interface{}
	for _, raw := range f.tasks {
		if toInt64(raw["project_id"]) == view.ProjectID {
			inProject = append(inProject, f.renderTask(raw))
		}
	}

	if f.GroupKanban && view.Kind == "kanban" {
		type bucketTasks struct {
			ID    int64                    `json:"id"`
			Title string                   `json:"title"`
			Tasks []map[string]interface{} `json:"tasks"`
		}
		var out []bucketTasks
		for _, b := range f.buckets[view.ID] {
			bt := bucketTasks{ID: b.ID, Title: b.Title, Tasks: []map[string]interface{}{}}
			for _, t := range inProject {
				if toInt64(t["bucket_id"]) == b.ID {
					bt.Tasks = append(bt.Tasks, t)
				}
			}
			out = append(out, bt)
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	start := (page - 1) * perPage
	chunk := []map[string]interface{}{}
	if start < len(inProject) {
		end := start + perPage
		if end > len(inProject) {
			end = len(inProject)
		}
		chunk = inProject[start:end]
	}

	if f.WrapTasks {
		writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": chunk})
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (f *FakeVikunja) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	projectID, ok := f.projectFromPath(w, r)
	if !ok {
		return
	}
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if title, _ := body["title"].(string); strings.TrimSpace(title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	delete(body, "id")
	delete(body, "labels")

	id := f.insertTask(projectID, body)
	writeJSON(w, http.StatusCreated, f.renderTask(f.findTask(id)))
}

func (f *FakeVikunja) handleGetTask(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.taskFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.renderTask(raw))
}

// handleUpdateTask replaces every stored field with the request body. Fields
// missing from the body are lost, as with the real API. Labels are managed
// through their own endpoints and ignored here.
func (f *FakeVikunja) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.taskFromPath(w, r)
	if !ok {
		return
	}
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	id := raw["id"]
	projectID := raw["project_id"]
	for k := range raw {
		delete(raw, k)
	}
	for k, v := range body {
		raw[k] = v
	}
	delete(raw, "labels")
	raw["id"] = id
	if _, ok := raw["project_id"]; !ok {
		raw["project_id"] = projectID
	}
	raw["updated"] = time.Now().UTC().Format(time.RFC3339)

	writeJSON(w, http.StatusOK, f.renderTask(raw))
}

func (f *FakeVikunja) handleListLabels(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	labels := f.labels
	if labels == nil {
		labels = []board.Label{}
	}
	writeJSON(w, http.StatusOK, labels)
}

func (f *FakeVikunja) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	l := board.Label{ID: f.newID(), Title: body.Title}
	f.labels = append(f.labels, l)
	writeJSON(w, http.StatusCreated, l)
}

func (f *FakeVikunja) handleAddLabel(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.taskFromPath(w, r)
	if !ok {
		return
	}
	var body struct {
		LabelID int64 `json:"label_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || f.findLabel(body.LabelID) == nil {
		writeError(w, http.StatusNotFound, "label does not exist")
		return
	}
	taskID := toInt64(raw["id"])
	for _, id := range f.taskLabels[taskID] {
		if id == body.LabelID {
			writeError(w, http.StatusBadRequest, "this label already exists on the task")
			return
		}
	}
	f.taskLabels[taskID] = append(f.taskLabels[taskID], body.LabelID)
	writeJSON(w, http.StatusCreated, body)
}

func (f *FakeVikunja) handleRemoveLabel(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.taskFromPath(w, r)
	if !ok {
		return
	}
	labelID, err := strconv.ParseInt(r.PathValue("label"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid label id")
		return
	}
	taskID := toInt64(raw["id"])
	ids := f.taskLabels[taskID]
	for i, id := range ids {
		if id == labelID {
			f.taskLabels[taskID] = append(ids[:i:i], ids[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully deleted."})
			return
		}
	}
	writeError(w, http.StatusNotFound, "label is not attached to the task")
}

func (f *FakeVikunja) handleBulkLabels(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.taskFromPath(w, r)
	if !ok {
		return
	}
	var body struct {
		Labels []struct {
			ID int64 `json:"id"`
		} `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	ids := make([]int64, 0, len(body.Labels))
	for _, l := range body.Labels {
		if f.findLabel(l.ID) == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("label %d does not exist", l.ID))
			return
		}
		ids = append(ids, l.ID)
	}
	f.taskLabels[toInt64(raw["id"])] = ids
	writeJSON(w, http.StatusCreated, body)
}

func (f *FakeVikunja) handleAddComment(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.taskFromPath(w, r)
	if !ok {
		return
	}
	var body struct {
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	taskID := toInt64(raw["id"])
	f.comments[taskID] = append(f.comments[taskID], body.Comment)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": f.newID(), "comment": body.Comment})
}

// =============================================================================
// Helpers (callers hold f.mu)
// =============================================================================

func (f *FakeVikunja) insertTask(projectID int64, fields map[string]interface{}) int64 {
	id := f.newID()
	raw := map[string]interface{}{
		"title":        "",
		"description":  "",
		"done":         false,
		"percent_done": 0.0,
		"priority":     0,
		"hex_color":    "",
		"identifier":   fmt.Sprintf("#%d", id),
		"created":      time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		raw[k] = v
	}
	raw["id"] = id
	raw["project_id"] = projectID
	if toInt64(raw["bucket_id"]) == 0 {
		raw["bucket_id"] = f.defaultBucket(projectID)
	}
	f.tasks = append(f.tasks, raw)
	return id
}

// defaultBucket is the first bucket of the project's first kanban view.
func (f *FakeVikunja) defaultBucket(projectID int64) int64 {
	for _, v := range f.views {
		if v.ProjectID == projectID && v.Kind == "kanban" && len(f.buckets[v.ID]) > 0 {
			return f.buckets[v.ID][0].ID
		}
	}
	return 0
}

// renderTask returns a copy of the stored task with its labels expanded.
// Tasks without labels render "labels": null like the real API.
func (f *FakeVikunja) renderTask(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}
	ids := f.taskLabels[toInt64(raw["id"])]
	if len(ids) == 0 {
		out["labels"] = nil
		return out
	}
	labels := make([]board.Label, 0, len(ids))
	for _, id := range ids {
		if l := f.findLabel(id); l != nil {
			labels = append(labels, *l)
		}
	}
	sort.SliceStable(labels, func(i, j int) bool { return labels[i].ID < labels[j].ID })
	out["labels"] = labels
	return out
}

func (f *FakeVikunja) findTask(id int64) map[string]interface{} {
	for _, raw := range f.tasks {
		if toInt64(raw["id"]) == id {
			return raw
		}
	}
	return nil
}

func (f *FakeVikunja) findLabel(id int64) *board.Label {
	for i := range f.labels {
		if f.labels[i].ID == id {
			return &f.labels[i]
		}
	}
	return nil
}

func (f *FakeVikunja) projectFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("project"), 10, 64)
	if err == nil {
		for _, p := range f.projects {
			if p.ID == id {
				return id, true
			}
		}
	}
	writeError(w, http.StatusNotFound, "The project does not exist.")
	return 0, false
}

func (f *FakeVikunja) viewFromPath(w http.ResponseWriter, r *http.Request) (board.View, bool) {
	projectID, ok := f.projectFromPath(w, r)
	if !ok {
		return board.View{}, false
	}
	id, err := strconv.ParseInt(r.PathValue("view"), 10, 64)
	if err == nil {
		for _, v := range f.views {
			if v.ID == id && v.ProjectID == projectID {
				return v, true
			}
		}
	}
	writeError(w, http.StatusNotFound, "The project view does not exist.")
	return board.View{}, false
}

func (f *FakeVikunja) taskFromPath(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	id, err := strconv.ParseInt(r.PathValue("task"), 10, 64)
	if err == nil {
		if raw := f.findTask(id); raw != nil {
			return raw, true
		}
	}
	writeError(w, http.StatusNotFound, "The task does not exist.")
	return nil, false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"code": status * 10, "message": message})
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}

func decodeTask(raw map[string]interface{}) board.Task {
	data, _ := json.Marshal(raw)
	var t board.Task
	_ = json.Unmarshal(data, &t)
	return t
}
