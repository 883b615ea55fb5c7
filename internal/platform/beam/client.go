package beam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/phrazzld/measure-hub/internal/config"
)

// requestSlack is added to the long-poll wait so the HTTP timeout never fires
// before the proxy answers an empty poll.
const requestSlack = 10 * time.Second

// Client talks to the task endpoints of a Beam proxy on behalf of one
// application id.
type Client struct {
	base       *url.URL
	appID      string
	apiKey     string
	waitTime   time.Duration
	strategy   FailureStrategy
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Beam client from cfg.
func NewClient(logger *slog.Logger, cfg config.BeamConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.AppID == "" {
		return nil, errors.New("beam app id cannot be empty")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid beam url %q: %w", cfg.URL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid beam url %q: scheme and host required", cfg.URL)
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.WaitTime + requestSlack

	return &Client{
		base:     base,
		appID:    cfg.AppID,
		apiKey:   cfg.APIKey,
		waitTime: cfg.WaitTime,
		strategy: FailureStrategy{Retry: Retry{
			BackoffMillisecs: cfg.RetryBackoff.Milliseconds(),
			MaxTries:         cfg.MaxTries,
		}},
		httpClient: httpClient,
		logger:     logger.With("component", "beam_client"),
	}, nil
}

// AppID returns the identity this client acts as.
func (c *Client) AppID() string {
	return c.appID
}

// Retrieve long-polls for tasks addressed to this client that have no result
// from it yet. An empty slice is a normal outcome.
func (c *Client) Retrieve(ctx context.Context) ([]Task, error) {
	q := url.Values{}
	q.Set("to", c.appID)
	q.Set("filter", "todo")
	q.Set("wait_count", "1")
	q.Set("wait_time", strconv.FormatInt(c.waitTime.Milliseconds(), 10))

	status, body, err := c.do(ctx, http.MethodGet, "/v1/tasks?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve tasks: %w", err)
	}

	switch status {
	case http.StatusOK, http.StatusPartialContent:
	default:
		return nil, statusError("retrieve", status, body)
	}

	var tasks []Task
	if len(bytes.TrimSpace(body)) == 0 {
		return tasks, nil
	}
	if err := json.Unmarshal(body, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode retrieved tasks: %w", err)
	}

	valid := tasks[:0]
	for _, task := range tasks {
		if err := validate.Struct(task); err != nil {
			c.logger.WarnContext(ctx, "skipping invalid broker task",
				"beam_task_id", task.ID,
				"from", task.From,
				"error", err)
			continue
		}
		valid = append(valid, task)
	}
	return valid, nil
}

// Create posts task. A task that already exists counts as created, which
// makes resending the same id safe.
func (c *Client) Create(ctx context.Context, task Task) error {
	if task.From == "" {
		task.From = c.appID
	}
	if task.FailureStrategy == nil {
		fs := c.strategy
		task.FailureStrategy = &fs
	}
	if err := validate.Struct(task); err != nil {
		return fmt.Errorf("%w: task %q: %w", ErrInvalidTask, task.ID, err)
	}

	status, body, err := c.do(ctx, http.MethodPost, "/v1/tasks", task)
	if err != nil {
		return fmt.Errorf("failed to create task %s: %w", task.ID, err)
	}

	switch status {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		c.logger.DebugContext(ctx, "task already exists", "beam_task_id", task.ID)
		return nil
	default:
		return statusError("create", status, body)
	}
}

// Claim marks task as seen without answering it. The proxy stops handing the
// task out afterwards; there is no way to undo a claim.
func (c *Client) Claim(ctx context.Context, task Task) error {
	return c.putResult(ctx, Result{
		From:   c.appID,
		To:     []string{task.From},
		Task:   task.ID,
		Status: StatusClaimed,
	})
}

// Answer submits a final result with a base64 encoded body for taskID.
func (c *Client) Answer(ctx context.Context, taskID string, to []string, status Status, body string) error {
	return c.putResult(ctx, Result{
		From:   c.appID,
		To:     to,
		Task:   taskID,
		Status: status,
		Body:   body,
	})
}

func (c *Client) putResult(ctx context.Context, result Result) error {
	if err := validate.Struct(result); err != nil {
		return fmt.Errorf("%w: %s result for task %q: %w", ErrInvalidTask, result.Status, result.Task, err)
	}
	path := "/v1/tasks/" + url.PathEscape(result.Task) + "/results/" + url.PathEscape(c.appID)
	status, body, err := c.do(ctx, http.MethodPut, path, result)
	if err != nil {
		return fmt.Errorf("failed to submit %s result for task %s: %w", result.Status, result.Task, err)
	}

	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return statusError(string(result.Status), status, body)
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("ApiKey %s %s", c.appID, c.apiKey))
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.DebugContext(ctx, "beam request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	return resp.StatusCode, body, nil
}

// statusError maps a non-success status: 4xx become *Error, the rest wrap
// ErrUnexpectedStatus.
func statusError(operation string, status int, body []byte) error {
	if status >= 400 && status < 500 {
		return &Error{StatusCode: status, Message: strings.TrimSpace(string(body))}
	}
	return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, operation, status)
}
