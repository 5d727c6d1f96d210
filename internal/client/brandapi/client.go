package brandapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/brandpulse-backend/internal/analytics"
	"github.com/yungbote/brandpulse-backend/internal/pkg/httpx"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultMaxAttempts  = 30

	maxResponseBytes = 16 << 20
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

type Options struct {
	// BaseURL includes the API prefix, e.g. https://api.example.com/api.
	BaseURL      string
	HTTPClient   *http.Client
	PollInterval time.Duration
	MaxAttempts  int
	Logger       *logger.Logger
}

type Client struct {
	baseURL     string
	http        *http.Client
	interval    time.Duration
	maxAttempts int
	log         *logger.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("brandapi: base URL required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("brandapi: invalid base URL: %w", err)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Client{
		baseURL:     base,
		http:        opts.HTTPClient,
		interval:    opts.PollInterval,
		maxAttempts: opts.MaxAttempts,
		log:         opts.Logger.With("client", "BrandAPI"),
		sleep:       httpx.Sleep,
	}, nil
}

type StartOptions struct {
	Pipelines []string `json:"pipelines,omitempty"`
	Providers []string `json:"providers,omitempty"`
}

type StartResult struct {
	Success          bool   `json:"success"`
	BatchExecutionID string `json:"batchExecutionId"`
	AlreadyRunning   bool   `json:"alreadyRunning,omitempty"`
	JobID            string `json:"jobId,omitempty"`
}

type BatchExecution struct {
	ID           string             `json:"id"`
	ProjectID    string             `json:"projectId"`
	Status       string             `json:"status"`
	Stage        string             `json:"stage,omitempty"`
	Progress     int                `json:"progress"`
	Error        string             `json:"error,omitempty"`
	Pipelines    []string           `json:"pipelines,omitempty"`
	Providers    []string           `json:"providers,omitempty"`
	StartedAt    *time.Time         `json:"startedAt,omitempty"`
	CompletedAt  *time.Time         `json:"completedAt,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	FinalResults []analytics.Result `json:"finalResults"`
}

func (e *BatchExecution) Terminal() bool {
	switch e.Status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// StartBatch calls POST /batch/process/{projectID}.
func (c *Client) StartBatch(ctx context.Context, projectID string, opts StartOptions) (*StartResult, error) {
	var body any
	if len(opts.Pipelines) > 0 || len(opts.Providers) > 0 {
		body = opts
	}
	var out StartResult
	if err := c.do(ctx, http.MethodPost, "/batch/process/"+url.PathEscape(projectID), body, &out); err != nil {
		return nil, err
	}
	if out.BatchExecutionID == "" {
		return nil, &APIError{Code: "missing_batch_execution_id", Message: "The server did not return a batch execution id."}
	}
	return &out, nil
}

// GetBatchExecution calls GET /batch-executions/{id}.
func (c *Client) GetBatchExecution(ctx context.Context, id string) (*BatchExecution, error) {
	var out struct {
		BatchExecution *BatchExecution `json:"batchExecution"`
	}
	if err := c.do(ctx, http.MethodGet, "/batch-executions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	if out.BatchExecution == nil {
		return nil, &APIError{Code: "missing_batch_execution", Message: "The server returned no batch execution."}
	}
	return out.BatchExecution, nil
}

// WaitForCompletion waits one interval before every poll and gives up after
// MaxAttempts polls with ErrPollTimeout.
func (c *Client) WaitForCompletion(ctx context.Context, id string) (*BatchExecution, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.sleep(ctx, c.interval); err != nil {
			return nil, err
		}
		exec, err := c.GetBatchExecution(ctx, id)
		if err != nil {
			return nil, err
		}
		switch exec.Status {
		case StatusCompleted:
			return exec, nil
		case StatusFailed, StatusCanceled:
			return exec, &BatchError{ExecutionID: id, Status: exec.Status, Message: exec.Error}
		}
		c.log.Debug("batch still running",
			"batch_execution_id", id,
			"status", exec.Status,
			"stage", exec.Stage,
			"progress", exec.Progress,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
		)
	}
	return nil, fmt.Errorf("%w: %s after %d polls", ErrPollTimeout, id, c.maxAttempts)
}

// RunBatch starts (or joins) the project's execution, waits for it, and
// builds the report from its final results.
func (c *Client) RunBatch(ctx context.Context, projectID string, opts StartOptions) (*analytics.Report, *BatchExecution, error) {
	started, err := c.StartBatch(ctx, projectID, opts)
	if err != nil {
		return nil, nil, err
	}
	if started.AlreadyRunning {
		c.log.Info("joining running batch", "project_id", projectID, "batch_execution_id", started.BatchExecutionID)
	}
	exec, err := c.WaitForCompletion(ctx, started.BatchExecutionID)
	if err != nil {
		return nil, exec, err
	}
	report, err := analytics.BuildReport(exec.FinalResults)
	if err != nil {
		return nil, exec, err
	}
	return report, exec, nil
}

type envelope struct {
	Success *bool `json:"success"`
	Error   *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
	Message string `json:"message"`
}

func (e envelope) message() (string, string) {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message, e.Error.Code
	}
	if e.Error != nil {
		return e.Message, e.Error.Code
	}
	return e.Message, ""
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("brandapi: encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("brandapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("brandapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("brandapi: read response: %w", err)
	}

	var env envelope
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, code := env.message()
		return &HTTPError{StatusCode: resp.StatusCode, Code: code, Message: msg, Body: string(raw)}
	}
	if env.Success != nil && !*env.Success {
		msg, code := env.message()
		return &APIError{Code: code, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("brandapi: decode response: %w", err)
	}
	return nil
}

// CancelBatch calls POST /batch-executions/{id}/cancel.
func (c *Client) CancelBatch(ctx context.Context, id string) (*BatchExecution, error) {
	var out struct {
		BatchExecution *BatchExecution `json:"batchExecution"`
	}
	if err := c.do(ctx, http.MethodPost, "/batch-executions/"+url.PathEscape(id)+"/cancel", nil, &out); err != nil {
		return nil, err
	}
	return out.BatchExecution, nil
}

// GetReport fetches the server-side report of a completed execution.
func (c *Client) GetReport(ctx context.Context, id string) (*analytics.Report, error) {
	var out struct {
		Report *analytics.Report `json:"report"`
	}
	if err := c.do(ctx, http.MethodGet, "/batch-executions/"+url.PathEscape(id)+"/report", nil, &out); err != nil {
		return nil, err
	}
	if out.Report == nil {
		return nil, &APIError{Code: "missing_report", Message: "The server returned no report."}
	}
	return out.Report, nil
}
