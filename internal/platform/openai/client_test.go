package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/brandpulse-backend/internal/platform/llm"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

func TestResponsesDropsRejectedTemperature(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/responses", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if calls.Add(1) == 1 {
			require.Contains(t, body, "temperature")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature' is not supported with this model."}}`))
			return
		}
		require.NotContains(t, body, "temperature")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-test",
			"output": []any{map[string]any{
				"type": "message",
				"role": "assistant",
				"content": []any{
					map[string]any{"type": "output_text", "text": "Acme is a leading brand."},
				},
			}},
			"usage": map[string]any{"input_tokens": 11, "output_tokens": 6},
		})
	}))
	defer srv.Close()

	temp := 0.2
	c, err := New(logger.Nop(), Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test", Temperature: &temp})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), llm.Request{System: "Be brief.", Prompt: "Who leads running shoes?"})
	require.NoError(t, err)
	require.Equal(t, "Acme is a leading brand.", out.Text)
	require.Equal(t, 11, out.InputTokens)
	require.Equal(t, 6, out.OutputTokens)
	require.EqualValues(t, 2, calls.Load())
	require.True(t, c.modelIsNoTemp("gpt-test"))
}

func TestChatCompletionsRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "sonar", body.Model)
		require.Equal(t, "user", body.Messages[len(body.Messages)-1].Role)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "sonar",
			"choices": []any{map[string]any{"message": map[string]any{"content": "WINNER: Acme"}}},
			"usage":   map[string]any{"prompt_tokens": 5, "completion_tokens": 3},
		})
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), Config{Name: "perplexity", APIKey: "k", BaseURL: srv.URL, Model: "sonar", API: APIChat, MaxRetries: 2})
	require.NoError(t, err)
	require.Equal(t, "perplexity", c.Name())

	out, err := c.Complete(context.Background(), llm.Request{Prompt: "Acme or Zoom?"})
	require.NoError(t, err)
	require.Equal(t, "WINNER: Acme", out.Text)
	require.Equal(t, 5, out.InputTokens)
	require.EqualValues(t, 2, calls.Load())
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(logger.Nop(), Config{})
	require.Error(t, err)
}

func TestUnsupportedTemperatureMessage(t *testing.T) {
	require.True(t, isUnsupportedTemperatureMessage("Unsupported value: 'temperature' does not support 0.2"))
	require.False(t, isUnsupportedTemperatureMessage("rate limited"))
}
