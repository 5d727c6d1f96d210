package analyzer

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

type RemoteConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Remote delegates scoring to an external service at BaseURL/analyze/:pipeline.
type Remote struct {
	log        *logger.Logger
	cfg        RemoteConfig
	httpClient *http.Client
}

func NewRemote(log *logger.Logger, cfg RemoteConfig) (*Remote, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote analyzer: ANALYZER_URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("remote analyzer: bad url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	return &Remote{
		log:        log.With("client", "RemoteAnalyzer"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (r *Remote) Analyze(ctx context.Context, in Input) (json.RawMessage, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	endpoint := r.cfg.BaseURL + "/analyze/" + url.PathEscape(in.Pipeline)
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		resp, raw, err := r.post(ctx, endpoint, body)
		if err == nil {
			out, nErr := analytics.NormalizeJSON(raw)
			if nErr != nil {
				return nil, fmt.Errorf("remote analyzer %s: %w", in.Pipeline, nErr)
			}
			return out, nil
		}
		if attempt >= r.cfg.MaxRetries || !httpx.IsRetryableError(err) {
			return nil, fmt.Errorf("remote analyzer %s: %w", in.Pipeline, err)
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		r.log.Warn("analyzer request retrying", "pipeline", in.Pipeline, "attempt", attempt+1, "error", err.Error())
		if sErr := httpx.Sleep(ctx, sleepFor); sErr != nil {
			return nil, sErr
		}
		backoff *= 2
	}
}

func (r *Remote) post(ctx context.Context, endpoint string, body []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpx.StatusError{Service: "analyzer", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}
