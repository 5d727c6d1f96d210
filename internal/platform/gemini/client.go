package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/yungbote/brandpulse-backend/internal/observability"
	"github.com/yungbote/brandpulse-backend/internal/pkg/httpx"
	"github.com/yungbote/brandpulse-backend/internal/platform/llm"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/platform/promptstyle"
)

type Config struct {
	Name        string
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	Temperature *float64
	MaxTokens   int
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "gemini"
	}
	if c.Model == "" {
		c.Model = "gemini-2.5-flash"
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Client answers prompts through the Gemini API via the genai SDK.
type Client struct {
	log    *logger.Logger
	cfg    Config
	client *genai.Client
}

var _ llm.Provider = (*Client)(nil)

func New(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: missing api key", cfg.Name)
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.BaseURL, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%s: create genai client: %w", cfg.Name, err)
	}
	return &Client{
		log:    log.With("client", "GeminiClient", "provider", cfg.Name),
		cfg:    cfg,
		client: client,
	}, nil
}

func (c *Client) Name() string  { return c.cfg.Name }
func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return llm.Response{}, fmt.Errorf("%s: empty prompt", c.cfg.Name)
	}
	temp := req.Temperature
	if temp == nil {
		temp = c.cfg.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}

	gcfg := &genai.GenerateContentConfig{}
	if sys := promptstyle.ApplySystem(req.System, "text"); sys != "" {
		gcfg.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	if temp != nil {
		t := float32(*temp)
		gcfg.Temperature = &t
	}
	if maxTokens > 0 {
		gcfg.MaxOutputTokens = int32(maxTokens)
	}

	start := time.Now()
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(req.Prompt), gcfg)
		if err == nil {
			out := llm.Response{Text: strings.TrimSpace(resp.Text()), Model: c.cfg.Model}
			if resp.ModelVersion != "" {
				out.Model = resp.ModelVersion
			}
			if resp.UsageMetadata != nil {
				out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
				out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
			c.observe("200", start, out.InputTokens, out.OutputTokens)
			if out.Text == "" {
				return out, fmt.Errorf("%s: empty response", c.cfg.Name)
			}
			return out, nil
		}

		err = asStatusError(c.cfg.Name, err)
		if attempt >= c.cfg.MaxRetries || !httpx.IsRetryableError(err) {
			c.observe(statusOf(err), start, 0, 0)
			return llm.Response{}, err
		}
		sleepFor := httpx.JitterSleep(backoff)
		c.log.Warn("LLM request retrying", "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
		if sErr := httpx.Sleep(ctx, sleepFor); sErr != nil {
			return llm.Response{}, sErr
		}
		backoff *= 2
	}
}

// asStatusError maps genai API errors onto httpx.StatusError so retry rules are shared.
func asStatusError(name string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &httpx.StatusError{Service: name, StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &httpx.StatusError{Service: name, StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return err
}

func statusOf(err error) string {
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
