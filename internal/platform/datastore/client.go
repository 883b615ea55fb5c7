package datastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/phrazzld/measure-hub/internal/config"
	"github.com/phrazzld/measure-hub/internal/fhir"
)

// ErrEvaluationFailed is returned when the data store did not produce a
// MeasureReport.
var ErrEvaluationFailed = errors.New("measure evaluation failed")

// Client evaluates measures with the $evaluate-measure operation of a FHIR
// data store.
type Client struct {
	base        *url.URL
	periodStart string
	periodEnd   string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a data store client from cfg.
func NewClient(logger *slog.Logger, cfg config.DataStoreConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid data store url %q: %w", cfg.URL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid data store url %q: scheme and host required", cfg.URL)
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout

	return &Client{
		base:        base,
		periodStart: cfg.PeriodStart,
		periodEnd:   cfg.PeriodEnd,
		httpClient:  httpClient,
		logger:      logger.With("component", "data_store_client"),
	}, nil
}

// Evaluate runs the measure with canonical measureURL over the configured
// period and returns the report.
func (c *Client) Evaluate(ctx context.Context, measureURL string) (*fhir.MeasureReport, error) {
	q := url.Values{}
	q.Set("measure", measureURL)
	q.Set("periodStart", c.periodStart)
	q.Set("periodEnd", c.periodEnd)
	target := c.base.String() + "/Measure/$evaluate-measure?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluationFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.InfoContext(ctx, "measure evaluated",
		"measure", measureURL,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		var outcome fhir.OperationOutcome
		if err := fhir.Decode(body, "OperationOutcome", &outcome); err == nil && outcome.Summary() != "" {
			return nil, fmt.Errorf("%w: %s", ErrEvaluationFailed, outcome.Summary())
		}
		return nil, fmt.Errorf("%w: data store returned %d", ErrEvaluationFailed, resp.StatusCode)
	}

	var report fhir.MeasureReport
	if err := fhir.Decode(body, "MeasureReport", &report); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluationFailed, err)
	}
	return &report, nil
}
