package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/brandpulse-backend/internal/observability"
	"github.com/yungbote/brandpulse-backend/internal/pkg/httpx"
	"github.com/yungbote/brandpulse-backend/internal/platform/llm"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/platform/promptstyle"
)

const apiVersion = "2023-06-01"

type Config struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	Temperature *float64
	MaxTokens   int
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "anthropic"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.anthropic.com/v1"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5"
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Client talks to the Messages API.
type Client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

var _ llm.Provider = (*Client)(nil)

func New(log *logger.Logger, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: missing api key", cfg.Name)
	}
	return &Client{
		log:        log.With("client", "AnthropicClient", "provider", cfg.Name),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *Client) Name() string  { return c.cfg.Name }
func (c *Client) Model() string { return c.cfg.Model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return llm.Response{}, fmt.Errorf("%s: empty prompt", c.cfg.Name)
	}
	body := messagesRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		System:      promptstyle.ApplySystem(req.System, "text"),
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if body.Temperature == nil {
		body.Temperature = c.cfg.Temperature
	}

	start := time.Now()
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		resp, raw, err := c.doOnce(ctx, body)
		if err == nil {
			var out messagesResponse
			if uErr := json.Unmarshal(raw, &out); uErr != nil {
				c.observe(strconv.Itoa(resp.StatusCode), start, 0, 0)
				return llm.Response{}, fmt.Errorf("%s decode error: %w", c.cfg.Name, uErr)
			}
			c.observe(strconv.Itoa(resp.StatusCode), start, out.Usage.InputTokens, out.Usage.OutputTokens)
			if out.Error != nil {
				return llm.Response{}, fmt.Errorf("%s: %s", c.cfg.Name, out.Error.Message)
			}
			var sb strings.Builder
			for _, part := range out.Content {
				if part.Type == "text" {
					sb.WriteString(part.Text)
				}
			}
			text := strings.TrimSpace(sb.String())
			if text == "" {
				return llm.Response{}, fmt.Errorf("%s: empty response", c.cfg.Name)
			}
			model := out.Model
			if model == "" {
				model = c.cfg.Model
			}
			return llm.Response{Text: text, Model: model, InputTokens: out.Usage.InputTokens, OutputTokens: out.Usage.OutputTokens}, nil
		}

		if attempt >= c.cfg.MaxRetries || !httpx.IsRetryableError(err) {
			c.observe(statusOf(resp, err), start, 0, 0)
			return llm.Response{}, err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 20*time.Second))
		c.log.Warn("LLM request retrying", "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
		if sErr := httpx.Sleep(ctx, sleepFor); sErr != nil {
			return llm.Response{}, sErr
		}
		backoff *= 2
	}
}

func (c *Client) doOnce(ctx context.Context, body messagesRequest) (*http.Response, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	// 529 is the overloaded status.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := resp.StatusCode
		if code == 529 {
			code = http.StatusServiceUnavailable
		}
		return resp, raw, &httpx.StatusError{Service: c.cfg.Name, StatusCode: code, Body: string(raw)}
	}
	return resp, raw, nil
}

func statusOf(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return strconv.Itoa(se.StatusCode)
	}
	return "error"
}

func (c *Client) observe(status string, start time.Time, in, out int) {
	if m := observability.Current(); m != nil {
		m.ObserveLLMRequest(c.cfg.Name, c.cfg.Model, status, time.Since(start), in, out)
	}
}
