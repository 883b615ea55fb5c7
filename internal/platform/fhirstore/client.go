package fhirstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/phrazzld/measure-hub/internal/config"
	"github.com/phrazzld/measure-hub/internal/fhir"
	"github.com/phrazzld/measure-hub/internal/store"
)

const mediaType = "application/fhir+json"

// instantFormat renders search instants with millisecond precision, the
// granularity the response watermark advances by.
const instantFormat = "2006-01-02T15:04:05.000Z07:00"

// Client talks FHIR JSON over HTTP to the task store.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	pageSize   int
	logger     *slog.Logger
}

// NewClient creates a task store client for the server at cfg.URL.
func NewClient(logger *slog.Logger, cfg config.TaskStoreConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid task store url %q: %w", cfg.URL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid task store url %q: scheme and host required", cfg.URL)
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	return &Client{
		base:       base,
		httpClient: httpClient,
		pageSize:   pageSize,
		logger:     logger.With("component", "task_store_client"),
	}, nil
}

// FetchTask returns the task with id.
func (c *Client) FetchTask(ctx context.Context, id string) (*fhir.Task, error) {
	var t fhir.Task
	if err := c.read(ctx, "Task", id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// FetchOrganization returns the organization with id.
func (c *Client) FetchOrganization(ctx context.Context, id string) (*fhir.Organization, error) {
	var o fhir.Organization
	if err := c.read(ctx, "Organization", id, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// FetchEndpoint returns the endpoint with id.
func (c *Client) FetchEndpoint(ctx context.Context, id string) (*fhir.Endpoint, error) {
	var e fhir.Endpoint
	if err := c.read(ctx, "Endpoint", id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// FetchMeasureReport returns the measure report with id.
func (c *Client) FetchMeasureReport(ctx context.Context, id string) (*fhir.MeasureReport, error) {
	var m fhir.MeasureReport
	if err := c.read(ctx, "MeasureReport", id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateTask stores task, deduplicating on ifNoneExist when given.
func (c *Client) CreateTask(ctx context.Context, task *fhir.Task, ifNoneExist string) (*fhir.Task, error) {
	var created fhir.Task
	if err := c.create(ctx, "Task", task, ifNoneExist, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateMeasureReport stores report under a server-assigned id.
func (c *Client) CreateMeasureReport(ctx context.Context, report *fhir.MeasureReport) (*fhir.MeasureReport, error) {
	var created fhir.MeasureReport
	if err := c.create(ctx, "MeasureReport", report, "", &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// EnsureActivityDefinition creates def unless one with the same url exists.
func (c *Client) EnsureActivityDefinition(ctx context.Context, def *fhir.ActivityDefinition) (*fhir.ActivityDefinition, error) {
	var stored fhir.ActivityDefinition
	ifNoneExist := "url=" + url.QueryEscape(def.URL)
	if err := c.create(ctx, "ActivityDefinition", def, ifNoneExist, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// UpdateTask writes task conditionally on its current version.
func (c *Client) UpdateTask(ctx context.Context, task *fhir.Task) (*fhir.Task, error) {
	if task.ID == "" {
		return nil, store.NewStoreError("Task", "update", "task has no id", nil)
	}
	version := task.Version()
	if version == "" {
		return nil, store.NewStoreError("Task", "update", "task "+task.ID, store.ErrMissingVersion)
	}

	header := http.Header{}
	header.Set("If-Match", fmt.Sprintf(`W/"%s"`, version))

	status, body, err := c.do(ctx, http.MethodPut, c.resourceURL("Task", task.ID), task, header)
	if err != nil {
		return nil, store.NewStoreError("Task", "update", "request failed", err)
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		var updated fhir.Task
		if err := decode(body, "Task", &updated); err != nil {
			return nil, store.NewStoreError("Task", "update", "invalid response", err)
		}
		return &updated, nil
	case http.StatusConflict, http.StatusPreconditionFailed:
		c.logger.WarnContext(ctx, "task update rejected, version is stale",
			"task_id", task.ID,
			"version", version)
		return nil, store.NewStoreError("Task", "update",
			fmt.Sprintf("task %s version %s", task.ID, version), store.ErrConflict)
	case http.StatusNotFound, http.StatusGone:
		return nil, &store.ResourceNotFoundError{Type: "Task", ID: task.ID}
	default:
		return nil, unexpected("Task", "update", status, body)
	}
}

// SearchTasks streams all tasks matching filter page by page.
func (c *Client) SearchTasks(ctx context.Context, filter store.TaskFilter) iter.Seq2[*fhir.Task, error] {
	return func(yield func(*fhir.Task, error) bool) {
		next := c.base.String() + "/Task?" + c.taskQuery(filter).Encode()
		for next != "" {
			page, err := c.fetchPage(ctx, next)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, entry := range page.Entry {
				// Search results may include OperationOutcome or included resources.
				if fhir.ResourceTypeOf(entry.Resource) != "Task" {
					continue
				}
				var t fhir.Task
				if err := json.Unmarshal(entry.Resource, &t); err != nil {
					yield(nil, store.NewStoreError("Task", "search", "invalid task in result", err))
					return
				}
				if !yield(&t, nil) {
					return
				}
			}

			next, err = c.resolveLink(page.NextLink())
			if err != nil {
				yield(nil, store.NewStoreError("Task", "search", "invalid next link", err))
				return
			}
		}
	}
}

// Metadata fetches the capability statement, which doubles as a health check.
func (c *Client) Metadata(ctx context.Context) (*fhir.CapabilityStatement, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.base.String()+"/metadata", nil, nil)
	if err != nil {
		return nil, store.NewStoreError("CapabilityStatement", "read", "request failed", err)
	}
	if status != http.StatusOK {
		return nil, unexpected("CapabilityStatement", "read", status, body)
	}
	var cs fhir.CapabilityStatement
	if err := decode(body, "CapabilityStatement", &cs); err != nil {
		return nil, store.NewStoreError("CapabilityStatement", "read", "invalid response", err)
	}
	return &cs, nil
}

func (c *Client) taskQuery(filter store.TaskFilter) url.Values {
	q := url.Values{}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		q.Set("status", strings.Join(statuses, ","))
	}
	if filter.Code != nil {
		q.Set("code", filter.Code.System+"|"+filter.Code.Code)
	}
	if !filter.LastUpdatedFrom.IsZero() {
		q.Set("_lastUpdated", "ge"+filter.LastUpdatedFrom.UTC().Format(instantFormat))
	}
	q.Set("_count", strconv.Itoa(c.pageSize))
	return q
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*fhir.Bundle, error) {
	status, body, err := c.do(ctx, http.MethodGet, pageURL, nil, nil)
	if err != nil {
		return nil, store.NewStoreError("Task", "search", "request failed", err)
	}
	if status != http.StatusOK {
		return nil, unexpected("Task", "search", status, body)
	}
	var page fhir.Bundle
	if err := decode(body, "Bundle", &page); err != nil {
		return nil, store.NewStoreError("Task", "search", "invalid response", err)
	}
	return &page, nil
}

// resolveLink makes a paging link absolute against the base URL.
func (c *Client) resolveLink(link string) (string, error) {
	if link == "" {
		return "", nil
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	return c.base.ResolveReference(u).String(), nil
}

func (c *Client) read(ctx context.Context, resourceType, id string, out any) error {
	if id == "" {
		return &store.ResourceNotFoundError{Type: resourceType, ID: id}
	}
	status, body, err := c.do(ctx, http.MethodGet, c.resourceURL(resourceType, id), nil, nil)
	if err != nil {
		return store.NewStoreError(resourceType, "read", "request failed", err)
	}

	switch status {
	case http.StatusOK:
		if err := decode(body, resourceType, out); err != nil {
			return store.NewStoreError(resourceType, "read", "invalid response", err)
		}
		return nil
	case http.StatusNotFound, http.StatusGone:
		return &store.ResourceNotFoundError{Type: resourceType, ID: id}
	default:
		return unexpected(resourceType, "read", status, body)
	}
}

func (c *Client) create(ctx context.Context, resourceType string, resource any, ifNoneExist string, out any) error {
	var header http.Header
	if ifNoneExist != "" {
		header = http.Header{}
		header.Set("If-None-Exist", ifNoneExist)
	}

	status, body, location, err := c.doWithLocation(ctx, http.MethodPost, c.base.String()+"/"+resourceType, resource, header)
	if err != nil {
		return store.NewStoreError(resourceType, "create", "request failed", err)
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
	default:
		return unexpected(resourceType, "create", status, body)
	}

	if status == http.StatusOK {
		c.logger.DebugContext(ctx, "create matched an existing resource",
			"resource_type", resourceType,
			"if_none_exist", ifNoneExist)
	}

	if len(bytes.TrimSpace(body)) > 0 {
		if err := decode(body, resourceType, out); err != nil {
			return store.NewStoreError(resourceType, "create", "invalid response", err)
		}
		return nil
	}

	// The server did not return a representation; follow the Location header.
	id := idFromLocation(location, resourceType)
	if id == "" {
		return store.NewStoreError(resourceType, "create", "response carries neither body nor location", nil)
	}
	return c.read(ctx, resourceType, id, out)
}

func (c *Client) resourceURL(resourceType, id string) string {
	return c.base.String() + "/" + resourceType + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, target string, payload any, header http.Header) (int, []byte, error) {
	status, body, _, err := c.doWithLocation(ctx, method, target, payload, header)
	return status, body, err
}

func (c *Client) doWithLocation(ctx context.Context, method, target string, payload any, header http.Header) (int, []byte, string, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return 0, nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", mediaType)
	if payload != nil {
		req.Header.Set("Content-Type", mediaType)
		req.Header.Set("Prefer", "return=representation")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.DebugContext(ctx, "task store request",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	return resp.StatusCode, body, resp.Header.Get("Location"), nil
}

func decode(body []byte, resourceType string, out any) error {
	return fhir.Decode(body, resourceType, out)
}

// unexpected maps a non-success status to the store error taxonomy.
func unexpected(resourceType, operation string, status int, body []byte) error {
	if status == http.StatusBadRequest {
		var outcome fhir.OperationOutcome
		if err := fhir.Decode(body, "OperationOutcome", &outcome); err != nil {
			outcome = *fhir.NewErrorOutcome(strings.TrimSpace(string(body)))
		}
		return &store.BadRequestError{Outcome: &outcome}
	}
	return store.NewStoreError(resourceType, operation, fmt.Sprintf("unexpected status %d", status), nil)
}

// idFromLocation extracts the id from "[base]/Type/id/_history/v".
func idFromLocation(location, resourceType string) string {
	_, id, ok := fhir.Reference{Reference: location, Type: resourceType}.TypeAndID()
	if !ok {
		return ""
	}
	return id
}

var _ store.TaskStore = (*Client)(nil)
