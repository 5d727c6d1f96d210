package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func fakeAPI(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/batch/process/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"batchExecutionId":"e1","alreadyRunning":true}`))
	})
	mux.HandleFunc("GET /api/batch-executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"batchExecution":{"id":"e1","projectId":"p1","status":"completed","progress":100,
			"createdAt":"2026-01-02T03:04:05Z","finalResults":[
			{"resultType":"visibility","result":"{\"brand\":\"Acme\",\"providers\":[{\"provider\":\"openai\",\"prompts\":2,\"mentions\":1}]}"},
			{"resultType":"alignment","result":{"providers":[{"provider":"openai","checks":[{"attribute":"lightweight","matched":true}]}]}}]}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBatchStartAlreadyRunning(t *testing.T) {
	srv := fakeAPI(t)
	out, err := runCLI(t, "--base-url", srv.URL+"/api", "batch", "start", "p1", "--pipeline", "sentiment")
	require.NoError(t, err)
	require.Equal(t, "already running: e1\n", out)
}

func TestReportPrintsViews(t *testing.T) {
	srv := fakeAPI(t)
	out, err := runCLI(t, "--base-url", srv.URL+"/api", "report", "e1")
	require.NoError(t, err)
	require.Contains(t, out, "VISIBILITY  mention rate 50.0%")
	require.Contains(t, out, "ACCURACY  average 100.0%")
	require.Contains(t, out, "no results for: sentiment, comparison")
}

func TestBatchRunJSON(t *testing.T) {
	srv := fakeAPI(t)
	out, err := runCLI(t, "--base-url", srv.URL+"/api", "--interval", "1ms", "batch", "run", "p1", "--json")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "{"))
	require.Contains(t, out, `"overallMentionRate": 0.5`)
}

func TestBatchStatusRequiresArg(t *testing.T) {
	_, err := runCLI(t, "batch", "status")
	require.Error(t, err)
}
