package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/brandpulse-backend/internal/observability"
	"github.com/yungbote/brandpulse-backend/internal/pkg/httpx"
	"github.com/yungbote/brandpulse-backend/internal/platform/llm"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/platform/promptstyle"
)

// API selects the wire protocol.
type API string

const (
	// APIResponses is OpenAI's /v1/responses endpoint.
	APIResponses API = "responses"
	// APIChat is /chat/completions, spoken by OpenAI-compatible vendors (Perplexity, Mistral).
	APIChat API = "chat"
)

type Config struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	API         API
	Timeout     time.Duration
	MaxRetries  int
	Temperature *float64
	MaxTokens   int
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "openai"
	}
	if c.API == "" {
		c.API = APIResponses
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Client answers prompts through the OpenAI API or a compatible endpoint.
type Client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client

	// Models that rejected temperature once are remembered and sent without it.
	noTempMu   sync.RWMutex
	noTempSeen map[string]time.Time
	noTempTTL  time.Duration
}

var _ llm.Provider = (*Client)(nil)

func New(log *logger.Logger, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: missing api key", cfg.Name)
	}
	return &Client{
		log:        log.With("client", "OpenAIClient", "provider", cfg.Name),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		noTempSeen: map[string]time.Time{},
		noTempTTL:  6 * time.Hour,
	}, nil
}

func (c *Client) Name() string  { return c.cfg.Name }
func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return llm.Response{}, fmt.Errorf("%s: empty prompt", c.cfg.Name)
	}
	if req.Temperature == nil {
		req.Temperature = c.cfg.Temperature
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.cfg.MaxTokens
	}
	req.System = promptstyle.ApplySystem(req.System, "text")
	if c.cfg.API == APIChat {
		return c.completeChat(ctx, req)
	}
	return c.completeResponses(ctx, req)
}

// ---- responses API ----

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model           string         `json:"model"`
	Input           []inputMessage `json:"input"`
	Temperature     *float64       `json:"temperature,omitempty"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
}

type responsesResponse struct {
	Model  string `json:"model"`
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func (c *Client) completeResponses(ctx context.Context, req llm.Request) (llm.Response, error) {
	body := &responsesRequest{Model: c.cfg.Model, MaxOutputTokens: req.MaxTokens}
	if req.System != "" {
		body.Input = append(body.Input, inputMessage{Role: "system", Content: req.System})
	}
	body.Input = append(body.Input, inputMessage{Role: "user", Content: req.Prompt})
	if !c.modelIsNoTemp(body.Model) {
		body.Temperature = req.Temperature
	}

	var resp responsesResponse
	err := c.doWithTempFallback(ctx, "/v1/responses", body, &body.Temperature, &resp)
	if err != nil {
		return llm.Response{}, err
	}
	if resp.Refusal != "" {
		return llm.Response{}, fmt.Errorf("%s: model refused: %s", c.cfg.Name, resp.Refusal)
	}
	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return llm.Response{}, fmt.Errorf("%s: no output_text found in response", c.cfg.Name)
	}
	return llm.Response{
		Text:         text,
		Model:        firstNonEmpty(resp.Model, c.cfg.Model),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// ---- chat completions API ----

type chatRequest struct {
	Model       string         `json:"model"`
	Messages    []inputMessage `json:"messages"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Client) completeChat(ctx context.Context, req llm.Request) (llm.Response, error) {
	body := &chatRequest{Model: c.cfg.Model, MaxTokens: req.MaxTokens}
	if req.System != "" {
		body.Messages = append(body.Messages, inputMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, inputMessage{Role: "user", Content: req.Prompt})
	if !c.modelIsNoTemp(body.Model) {
		body.Temperature = req.Temperature
	}

	var resp chatResponse
	if err := c.doWithTempFallback(ctx, c.chatPath(), body, &body.Temperature, &resp); err != nil {
		return llm.Response{}, err
	}
	var text strings.Builder
	for _, ch := range resp.Choices {
		text.WriteString(ch.Message.Content)
	}
	if strings.TrimSpace(text.String()) == "" {
		return llm.Response{}, fmt.Errorf("%s: empty completion", c.cfg.Name)
	}
	return llm.Response{
		Text:         text.String(),
		Model:        firstNonEmpty(resp.Model, c.cfg.Model),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// chatPath keeps /v1 when the base URL is bare OpenAI and drops it for vendors that mount at root.
func (c *Client) chatPath() string {
	if strings.HasSuffix(c.cfg.BaseURL, "/v1") || !strings.Contains(c.cfg.BaseURL, "api.openai.com") {
		return "/chat/completions"
	}
	return "/v1/chat/completions"
}

// ---- transport ----

func (c *Client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpx.StatusError{Service: c.cfg.Name, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *Client) do(ctx context.Context, path string, body any, out any) error {
	backoff := 1 * time.Second
	start := time.Now()

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				c.observe(statusFromResp(resp, nil), start, 0, 0)
				return fmt.Errorf("%s decode error: %w", c.cfg.Name, uErr)
			}
			in, outTok := usageFromRaw(raw)
			c.observe(statusFromResp(resp, nil), start, in, outTok)
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			c.observe(statusFromResp(resp, err), start, 0, 0)
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("LLM request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if sErr := httpx.Sleep(ctx, sleepFor); sErr != nil {
			return sErr
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

// doWithTempFallback retries exactly once without temperature if the model rejects it.
func (c *Client) doWithTempFallback(ctx context.Context, path string, body any, temp **float64, out any) error {
	err := c.do(ctx, path, body, out)
	if err == nil || *temp == nil || !isUnsupportedTemperatureMessage(err.Error()) {
		return err
	}
	c.noteNoTempModel(c.cfg.Model)
	*temp = nil
	return c.do(ctx, path, body, out)
}

func (c *Client) observe(status string, start time.Time, in, out int) {
	if m := observability.Current(); m != nil {
		m.ObserveLLMRequest(c.cfg.Name, c.cfg.Model, status, time.Since(start), in, out)
	}
}

func (c *Client) modelIsNoTemp(model string) bool {
	key := strings.ToLower(strings.TrimSpace(model))
	if strings.HasPrefix(key, "o1") || strings.HasPrefix(key, "o3") || strings.HasPrefix(key, "o4") {
		return true
	}
	c.noTempMu.RLock()
	seen, ok := c.noTempSeen[key]
	c.noTempMu.RUnlock()
	return ok && time.Since(seen) < c.noTempTTL
}

func (c *Client) noteNoTempModel(model string) {
	c.noTempMu.Lock()
	c.noTempSeen[strings.ToLower(strings.TrimSpace(model))] = time.Now().UTC()
	c.noTempMu.Unlock()
}

func isUnsupportedTemperatureMessage(s string) bool {
	msg := strings.ToLower(s)
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, frag := range []string{
		"unsupported parameter",
		"unknown parameter",
		"unrecognized parameter",
		"not supported",
		"does not support",
		"only the default",
		"unsupported_value",
	} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

func usageFromRaw(raw []byte) (int, int) {
	var u struct {
		Usage map[string]any `json:"usage"`
	}
	if err := json.Unmarshal(raw, &u); err != nil || u.Usage == nil {
		return 0, 0
	}
	in := intFromAny(u.Usage["input_tokens"]) + intFromAny(u.Usage["prompt_tokens"])
	out := intFromAny(u.Usage["output_tokens"]) + intFromAny(u.Usage["completion_tokens"])
	return in, out
}

func intFromAny(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		n, _ := strconv.Atoi(t)
		return n
	}
	return 0
}

func statusFromResp(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	if err != nil {
		return "error"
	}
	return "unknown"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
