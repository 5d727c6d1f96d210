package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/brandpulse-backend/internal/pkg/httpx"
	"github.com/yungbote/brandpulse-backend/internal/platform/llm"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

func TestCompleteRetriesOverloaded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "k-test", r.Header.Get("x-api-key"))
		require.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var body messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "claude-test", body.Model)
		require.Len(t, body.Messages, 1)

		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(529)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "claude-test-2025",
			"content": []any{map[string]any{"type": "text", "text": "WINNER: Acme"}},
			"usage":   map[string]any{"input_tokens": 9, "output_tokens": 4},
		})
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), Config{APIKey: "k-test", BaseURL: srv.URL + "/v1", Model: "claude-test", MaxRetries: 1})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), llm.Request{Prompt: "Acme or Zoom?"})
	require.NoError(t, err)
	require.Equal(t, "WINNER: Acme", out.Text)
	require.Equal(t, "claude-test-2025", out.Model)
	require.Equal(t, 9, out.InputTokens)
	require.EqualValues(t, 2, calls.Load())
}

func TestCompleteClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 3})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), llm.Request{Prompt: "x"})
	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusBadRequest, se.StatusCode)
	require.EqualValues(t, 1, calls.Load())
}

func TestEmptyPrompt(t *testing.T) {
	c, err := New(logger.Nop(), Config{APIKey: "k"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), llm.Request{})
	require.Error(t, err)
}
