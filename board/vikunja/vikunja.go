// Package vikunja implements board.Gateway for the Vikunja REST API v1.
package vikunja

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kanbansync/board"
	"kanbansync/internal/utils"
)

const (
	// APIPrefix is appended to the configured base URL
	APIPrefix = "/api/v1"
	// TasksPerPage is the page size used when listing view tasks
	TasksPerPage = 100
	// DefaultTimeout bounds every HTTP round-trip
	DefaultTimeout = 30 * time.Second

	projectsPerPage = 100
	labelsPerPage   = 250
)

// Config holds Vikunja connection settings
type Config struct {
	BaseURL string // instance root, without /api/v1
	Token   string
	Timeout time.Duration
}

// Client implements board.Gateway using the Vikunja REST API
type Client struct {
	config  Config
	client  *http.Client
	baseURL string
}

// New creates a new Vikunja client
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, utils.ErrMissingSetting("base URL", "VIKUNJA_BASE_URL", "--base-url")
	}
	if cfg.Token == "" {
		return nil, utils.ErrMissingSetting("API token", "VIKUNJA_API_TOKEN", "--token")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		config:  cfg,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/") + APIPrefix,
	}, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.client.CloseIdleConnections()
	return nil
}

// doRequest performs one authenticated request and decodes a 2xx JSON body
// into out (when out is non-nil). Non-2xx responses become *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	utils.Debugf("%s %s", method, endpoint)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("network error for %s %s: %w", method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response for %s %s: %w", method, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(method, endpoint, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response for %s %s: %w", method, endpoint, err)
	}
	return nil
}

func pageQuery(page, perPage int) url.Values {
	return url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}
}

// =============================================================================
// Structure Lookups
// =============================================================================

// ListProjects returns the projects visible to the token (first page only)
func (c *Client) ListProjects(ctx context.Context) ([]board.Project, error) {
	var projects []board.Project
	if err := c.doRequest(ctx, http.MethodGet, "/projects", pageQuery(1, projectsPerPage), nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// ListViews returns the views of a project
func (c *Client) ListViews(ctx context.Context, projectID int64) ([]board.View, error) {
	var views []board.View
	path := fmt.Sprintf("/projects/%d/views", projectID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// ListBuckets returns the buckets of a kanban view
func (c *Client) ListBuckets(ctx context.Context, projectID, viewID int64) ([]board.Bucket, error) {
	var buckets []board.Bucket
	path := fmt.Sprintf("/projects/%d/views/%d/buckets", projectID, viewID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &buckets); err != nil {
		return nil, err
	}
	return buckets, nil
}

// =============================================================================
// Task Operations
// =============================================================================

// ListTasks returns every task of a view in board order. Flat listings are
// fetched page by page until an empty or short page; bucket-grouped listings
// arrive complete in one response.
func (c *Client) ListTasks(ctx context.Context, projectID, viewID int64) ([]board.Task, error) {
	path := fmt.Sprintf("/projects/%d/views/%d/tasks", projectID, viewID)

	var all []board.Task
	for page := 1; ; page++ {
		var chunk taskList
		if err := c.doRequest(ctx, http.MethodGet, path, pageQuery(page, TasksPerPage), nil, &chunk); err != nil {
			return nil, err
		}
		if len(chunk.tasks) == 0 {
			break
		}
		all = append(all, chunk.tasks...)
		if chunk.grouped || len(chunk.tasks) < TasksPerPage {
			break
		}
	}

	utils.Debugf("fetched %d tasks from project %d view %d", len(all), projectID, viewID)
	return all, nil
}

// GetTask returns a task by id
func (c *Client) GetTask(ctx context.Context, taskID int64) (*board.Task, error) {
	var task board.Task
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/tasks/%d", taskID), nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask creates a task in a project. Only title, description and
// bucket_id are sent.
func (c *Client) CreateTask(ctx context.Context, projectID int64, task *board.Task) (*board.Task, error) {
	body := map[string]interface{}{
		"title":       task.Title,
		"description": task.Description,
	}
	if task.BucketID != 0 {
		body["bucket_id"] = task.BucketID
	}

	var created board.Task
	path := fmt.Sprintf("/projects/%d/tasks", projectID)
	if err := c.doRequest(ctx, http.MethodPut, path, nil, body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTask replaces the task on the server with the given object. Callers
// must send a task obtained from GetTask so unmodelled fields survive.
func (c *Client) UpdateTask(ctx context.Context, task *board.Task) (*board.Task, error) {
	if task.ID == 0 {
		return nil, utils.ErrInvalidArg("cannot update task without id")
	}

	var updated board.Task
	if err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/tasks/%d", task.ID), nil, task, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// =============================================================================
// Label Operations
// =============================================================================

// ListLabels returns the labels visible to the token (first page only)
func (c *Client) ListLabels(ctx context.Context) ([]board.Label, error) {
	var labels []board.Label
	if err := c.doRequest(ctx, http.MethodGet, "/labels", pageQuery(1, labelsPerPage), nil, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// CreateLabel creates a label. The API does not reject duplicate titles.
func (c *Client) CreateLabel(ctx context.Context, title string) (*board.Label, error) {
	var created board.Label
	if err := c.doRequest(ctx, http.MethodPut, "/labels", nil, map[string]string{"title": title}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// AddLabelToTask attaches an existing label to a task
func (c *Client) AddLabelToTask(ctx context.Context, taskID, labelID int64) error {
	body := map[string]int64{"label_id": labelID}
	return c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/tasks/%d/labels", taskID), nil, body, nil)
}

// RemoveLabelFromTask detaches a label from a task; the label itself is kept
func (c *Client) RemoveLabelFromTask(ctx context.Context, taskID, labelID int64) error {
	path := fmt.Sprintf("/tasks/%d/labels/%d", taskID, labelID)
	return c.doRequest(ctx, http.MethodDelete, path, nil, nil, nil)
}

// ReplaceTaskLabels sets the task's labels to exactly labelIDs
func (c *Client) ReplaceTaskLabels(ctx context.Context, taskID int64, labelIDs []int64) error {
	type labelRef struct {
		ID int64 `json:"id"`
	}
	refs := make([]labelRef, len(labelIDs))
	for i, id := range labelIDs {
		refs[i] = labelRef{ID: id}
	}
	body := map[string]interface{}{"labels": refs}
	return c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/tasks/%d/labels/bulk", taskID), nil, body, nil)
}

// =============================================================================
// Comments
// =============================================================================

// AddComment posts an HTML comment on a task
func (c *Client) AddComment(ctx context.Context, taskID int64, comment string) error {
	body := map[string]string{"comment": comment}
	return c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/tasks/%d/comments", taskID), nil, body, nil)
}

// Verify interface compliance at compile time
var _ board.Gateway = (*Client)(nil)
