package brandapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type pollServer struct {
	statuses []string
	polls    atomic.Int32
	starts   atomic.Int32
	errMsg   string
	results  string
}

func (p *pollServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/batch/process/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.starts.Add(1)
		require.Equal(t, "p1", r.PathValue("id"))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"success":true,"batchExecutionId":"e1"}`))
	})
	mux.HandleFunc("GET /api/batch-executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		n := int(p.polls.Add(1))
		status := p.statuses[len(p.statuses)-1]
		if n <= len(p.statuses) {
			status = p.statuses[n-1]
		}
		results := "[]"
		if status == StatusCompleted {
			results = p.results
		}
		body := `{"success":true,"batchExecution":{"id":"e1","projectId":"p1","status":"` + status +
			`","progress":50,"error":` + jsonString(p.errMsg) + `,"createdAt":"2026-01-02T03:04:05Z","finalResults":` + results + `}}`
		_, _ = w.Write([]byte(body))
	})
	return mux
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func newTestClient(t *testing.T, h http.Handler, maxAttempts int) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/api/", PollInterval: 10 * time.Second, MaxAttempts: maxAttempts})
	require.NoError(t, err)
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return c, &slept
}

const completedResults = `[
	{"id":"r1","resultType":"visibility","result":"{\"brand\":\"Acme\",\"providers\":[{\"provider\":\"openai\",\"prompts\":4,\"mentions\":2}]}"},
	{"id":"r2","resultType":"sentiment","result":{"providers":[{"provider":"openai","scores":[0.5,0.7]}]}},
	{"id":"r3","resultType":"competition","result":{"brand":"Acme","matchups":[{"competitor":"Globex","provider":"openai","outcome":"win"}]}}
]`

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	c, err := New(Options{BaseURL: "http://x/api"})
	require.NoError(t, err)
	require.Equal(t, DefaultPollInterval, c.interval)
	require.Equal(t, DefaultMaxAttempts, c.maxAttempts)
}

func TestRunBatchPollsUntilCompleted(t *testing.T) {
	ps := &pollServer{statuses: []string{StatusPending, StatusRunning, StatusCompleted}, results: completedResults}
	c, slept := newTestClient(t, ps.handler(t), 30)

	report, exec, err := c.RunBatch(context.Background(), "p1", StartOptions{})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, exec.Status)
	require.Len(t, exec.FinalResults, 3)
	require.EqualValues(t, 1, ps.starts.Load())
	require.EqualValues(t, 3, ps.polls.Load())
	if diff := cmp.Diff([]time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second}, *slept); diff != "" {
		t.Fatalf("sleep schedule mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, report.Visibility)
	require.Equal(t, "Acme", report.Visibility.Brand)
	require.InDelta(t, 0.5, report.Visibility.OverallMentionRate, 1e-9)
	require.NotNil(t, report.Sentiment)
	require.NotNil(t, report.Comparison)
	require.Nil(t, report.Accuracy)
	require.Equal(t, []string{"accuracy"}, report.Missing)
}

func TestWaitForCompletionTimesOut(t *testing.T) {
	ps := &pollServer{statuses: []string{StatusRunning}}
	c, slept := newTestClient(t, ps.handler(t), 3)

	_, err := c.WaitForCompletion(context.Background(), "e1")
	require.ErrorIs(t, err, ErrPollTimeout)
	require.EqualValues(t, 3, ps.polls.Load())
	require.Len(t, *slept, 3)
	require.Contains(t, UserMessage(err), "longer than expected")
}

func TestWaitForCompletionFailedStatus(t *testing.T) {
	ps := &pollServer{statuses: []string{StatusRunning, StatusFailed}, errMsg: "all providers failed"}
	c, _ := newTestClient(t, ps.handler(t), 30)

	exec, err := c.WaitForCompletion(context.Background(), "e1")
	require.ErrorIs(t, err, ErrBatchFailed)
	require.NotNil(t, exec)
	var be *BatchError
	require.True(t, errors.As(err, &be))
	require.Equal(t, StatusFailed, be.Status)
	require.Equal(t, "The analysis failed: all providers failed", UserMessage(err))
}

func TestWaitForCompletionCanceledStatus(t *testing.T) {
	ps := &pollServer{statuses: []string{StatusCanceled}}
	c, _ := newTestClient(t, ps.handler(t), 30)

	_, err := c.WaitForCompletion(context.Background(), "e1")
	require.ErrorIs(t, err, ErrBatchFailed)
	require.Equal(t, "The analysis was canceled.", UserMessage(err))
}

func TestWaitForCompletionStopsOnContext(t *testing.T) {
	ps := &pollServer{statuses: []string{StatusRunning}}
	c, _ := newTestClient(t, ps.handler(t), 30)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.WaitForCompletion(ctx, "e1")
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 0, ps.polls.Load())
}

func TestErrorResponses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/batch/process/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":{"message":"project missing not found","code":"project_not_found"}}`))
		case "unsuccessful":
			_, _ = w.Write([]byte(`{"success":false,"error":{"message":"no LLM providers are configured","code":"no_providers"}}`))
		case "broken":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`upstream down`))
		case "empty":
			_, _ = w.Write([]byte(`{"success":true}`))
		}
	})
	c, _ := newTestClient(t, mux, 30)
	ctx := context.Background()

	_, err := c.StartBatch(ctx, "missing", StartOptions{})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	require.Equal(t, "project_not_found", httpErr.Code)
	require.Equal(t, "project missing not found", UserMessage(err))

	_, err = c.StartBatch(ctx, "unsuccessful", StartOptions{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "no LLM providers are configured", UserMessage(err))

	_, err = c.StartBatch(ctx, "broken", StartOptions{})
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, "upstream down", httpErr.Body)
	require.Contains(t, UserMessage(err), "server is having trouble")

	_, err = c.StartBatch(ctx, "empty", StartOptions{})
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "missing_batch_execution_id", apiErr.Code)
}

func TestStartBatchSendsOptions(t *testing.T) {
	var got StartOptions
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/batch/process/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"batchExecutionId":"e9","alreadyRunning":true}`))
	})
	c, _ := newTestClient(t, mux, 30)

	res, err := c.StartBatch(context.Background(), "p1", StartOptions{Pipelines: []string{"sentiment"}, Providers: []string{"openai"}})
	require.NoError(t, err)
	require.True(t, res.AlreadyRunning)
	require.Equal(t, "e9", res.BatchExecutionID)
	if diff := cmp.Diff(StartOptions{Pipelines: []string{"sentiment"}, Providers: []string{"openai"}}, got); diff != "" {
		t.Fatalf("request body mismatch (-want +got):\n%s", diff)
	}
}
