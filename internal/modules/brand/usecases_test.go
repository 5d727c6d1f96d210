package brand

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/brandpulse-backend/internal/analytics"
	"github.com/yungbote/brandpulse-backend/internal/data/repos"
	"github.com/yungbote/brandpulse-backend/internal/data/repos/testutil"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/llm"
)

type scriptedProvider struct {
	name string
	fn   func(req llm.Request) (llm.Response, error)
}

func (p scriptedProvider) Name() string  { return p.name }
func (p scriptedProvider) Model() string { return p.name + "-1" }
func (p scriptedProvider) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	return p.fn(req)
}

// answers echoes a fixed verdict per pipeline, recognised by the system prompt.
func answers(req llm.Request) (llm.Response, error) {
	switch {
	case strings.Contains(req.System, "SENTIMENT_JSON"):
		return llm.Response{Text: "Solid.\nSENTIMENT_JSON: {\"score\": 0.6, \"label\": \"positive\"}"}, nil
	case strings.Contains(req.System, "WINNER"):
		return llm.Response{Text: "Close call.\nWINNER: Acme"}, nil
	}
	return llm.Response{Text: "I would pick Acme or Zoom for running shoes in Germany."}, nil
}

type recordingArchive struct {
	mu    sync.Mutex
	count int
}

func (a *recordingArchive) Archive(ctx context.Context, exec *types.BatchExecution, project *types.Project, results []*types.BatchResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count += len(results)
	return nil
}

type fixture struct {
	db      *gorm.DB
	repos   repos.Repos
	project *types.Project
	uc      Usecases
	archive *recordingArchive
}

func newFixture(t *testing.T, providers ...llm.Provider) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	r := repos.New(db, log)
	reg := llm.NewRegistry()
	for _, p := range providers {
		if err := reg.Register(p); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	archive := &recordingArchive{}
	f := &fixture{
		db:      db,
		repos:   r,
		project: testutil.SeedProject(t, db, "Acme", "Zoom"),
		archive: archive,
	}
	f.uc = New(UsecasesDeps{
		DB:          db,
		Log:         log,
		Providers:   reg,
		Projects:    r.Project,
		PromptSets:  r.PromptSet,
		Executions:  r.BatchExecution,
		Results:     r.BatchResult,
		Responses:   r.ProviderResponse,
		Archive:     archive,
		Concurrency: 2,
	})
	return f
}

func (f *fixture) prompts(t *testing.T, pipeline string, prompts ...string) {
	t.Helper()
	if _, err := f.repos.PromptSet.Upsert(dbctx.New(context.Background()), &types.PromptSet{
		ProjectID: f.project.ID, PipelineType: pipeline, Prompts: prompts,
	}); err != nil {
		t.Fatalf("prompts: %v", err)
	}
}

func (f *fixture) execution(t *testing.T) *types.BatchExecution {
	t.Helper()
	exec := &types.BatchExecution{ProjectID: f.project.ID}
	if err := f.repos.BatchExecution.Create(dbctx.New(context.Background()), exec); err != nil {
		t.Fatalf("create execution: %v", err)
	}
	return exec
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *types.BatchExecution {
	t.Helper()
	exec, err := f.repos.BatchExecution.GetByID(dbctx.New(context.Background()), id)
	if err != nil || exec == nil {
		t.Fatalf("reload: %v %v", exec, err)
	}
	return exec
}

func TestRunBatchCompletes(t *testing.T) {
	f := newFixture(t,
		scriptedProvider{name: "openai", fn: answers},
		scriptedProvider{name: "gemini", fn: answers},
	)
	f.prompts(t, brand.PipelineSpontaneous, "Best {industry} in {market}?")
	f.prompts(t, brand.PipelineSentiment, "What do you think of {brand}?")
	f.prompts(t, brand.PipelineComparison, "{brand} or {competitor}?")
	exec := f.execution(t)

	var stages []string
	out, err := f.uc.RunBatch(context.Background(), RunBatchInput{
		ExecutionID: exec.ID,
		Progress:    func(stage string, pct int, msg string) { stages = append(stages, stage) },
	})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if out.Status != brand.BatchStatusCompleted || out.Calls != 6 || out.FailedCalls != 0 {
		t.Fatalf("unexpected output: %+v", out)
	}
	if len(out.Skipped) != 1 || out.Skipped[0] != brand.PipelineAccuracy {
		t.Fatalf("accuracy should be skipped: %+v", out.Skipped)
	}
	if len(stages) != 5 {
		t.Fatalf("expected start + 4 pipeline stages, got %v", stages)
	}

	got := f.reload(t, exec.ID)
	if got.Status != brand.BatchStatusCompleted || got.Progress != 100 || got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatalf("execution not completed: %+v", got)
	}
	if len(got.Providers) != 2 || got.Providers[0] != "gemini" {
		t.Fatalf("providers not recorded: %v", got.Providers)
	}

	rows, _ := f.repos.BatchResult.ListByExecution(dbctx.New(context.Background()), exec.ID)
	if len(rows) != 4 {
		t.Fatalf("expected 4 results, got %d", len(rows))
	}
	results := make([]analytics.Result, 0, len(rows))
	for _, r := range rows {
		results = append(results, analytics.Result{ResultType: r.ResultType, Result: json.RawMessage(r.Result)})
	}
	rep, err := analytics.BuildReport(results)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if rep.Visibility == nil || rep.Visibility.OverallMentionRate != 1 {
		t.Fatalf("visibility: %+v", rep.Visibility)
	}
	if rep.Sentiment == nil || rep.Sentiment.AverageScore != 0.6 {
		t.Fatalf("sentiment: %+v", rep.Sentiment)
	}
	if rep.Comparison == nil || rep.Comparison.OverallWinRate != 1 {
		t.Fatalf("comparison: %+v", rep.Comparison)
	}
	if rep.Accuracy != nil || len(rep.Missing) != 1 {
		t.Fatalf("accuracy should be missing: %+v", rep)
	}

	responses, _ := f.repos.ProviderResponse.ListByExecution(dbctx.New(context.Background()), exec.ID, "")
	if len(responses) != 6 {
		t.Fatalf("expected 6 stored responses, got %d", len(responses))
	}
	if f.archive.count != 4 {
		t.Fatalf("archive should receive 4 results, got %d", f.archive.count)
	}

	// A finished execution is not run again.
	again, err := f.uc.RunBatch(context.Background(), RunBatchInput{ExecutionID: exec.ID})
	if err != nil || again.Status != brand.BatchStatusCompleted || again.Calls != 0 {
		t.Fatalf("rerun: %+v %v", again, err)
	}
}

func TestRunBatchFailsWhenEveryCallFails(t *testing.T) {
	f := newFixture(t, scriptedProvider{name: "openai", fn: func(llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("401 unauthorized")
	}})
	f.prompts(t, brand.PipelineSpontaneous, "Best {industry}?")
	exec := f.execution(t)

	_, err := f.uc.RunBatch(context.Background(), RunBatchInput{ExecutionID: exec.ID})
	if !errors.Is(err, ErrAllCallsFailed) {
		t.Fatalf("expected ErrAllCallsFailed, got %v", err)
	}
	got := f.reload(t, exec.ID)
	if got.Status != brand.BatchStatusFailed || got.Error == "" {
		t.Fatalf("execution should be failed: %+v", got)
	}
}

func TestRunBatchWithoutProviders(t *testing.T) {
	f := newFixture(t)
	exec := f.execution(t)
	_, err := f.uc.RunBatch(context.Background(), RunBatchInput{ExecutionID: exec.ID})
	if !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
	if got := f.reload(t, exec.ID); got.Status != brand.BatchStatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestRunBatchStopsWhenCanceled(t *testing.T) {
	f := newFixture(t, scriptedProvider{name: "openai", fn: answers})
	f.prompts(t, brand.PipelineSpontaneous, "Best {industry}?")
	exec := f.execution(t)

	calls := 0
	out, err := f.uc.RunBatch(context.Background(), RunBatchInput{
		ExecutionID: exec.ID,
		Canceled: func() bool {
			calls++
			if calls == 1 {
				return false
			}
			// Simulate a cancel request landing while the first pipeline ran.
			_, _ = f.repos.BatchExecution.UpdateUnlessTerminal(dbctx.New(context.Background()), exec.ID, map[string]interface{}{"status": brand.BatchStatusCanceled})
			return false
		},
	})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if out.Status != brand.BatchStatusCanceled {
		t.Fatalf("expected canceled output, got %+v", out)
	}
	if got := f.reload(t, exec.ID); got.Status != brand.BatchStatusCanceled {
		t.Fatalf("canceled execution was overwritten: %s", got.Status)
	}
}

func TestRunBatchUnknownExecution(t *testing.T) {
	f := newFixture(t)
	if _, err := f.uc.RunBatch(context.Background(), RunBatchInput{ExecutionID: uuid.New()}); !errors.Is(err, ErrExecutionNotFound) {
		t.Fatalf("expected ErrExecutionNotFound, got %v", err)
	}
}

func TestRunBatchCancelsExecutionWhenJobCanceled(t *testing.T) {
	f := newFixture(t, scriptedProvider{name: "openai", fn: answers})
	f.prompts(t, brand.PipelineSpontaneous, "Best {industry}?")
	exec := f.execution(t)

	out, err := f.uc.RunBatch(context.Background(), RunBatchInput{
		ExecutionID: exec.ID,
		Canceled:    func() bool { return true },
	})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if out.Status != brand.BatchStatusCanceled || out.Calls != 0 {
		t.Fatalf("unexpected output: %+v", out)
	}
	got := f.reload(t, exec.ID)
	if got.Status != brand.BatchStatusCanceled || got.CompletedAt == nil {
		t.Fatalf("execution should be canceled: %+v", got)
	}
	active, err := f.repos.BatchExecution.GetActiveForProject(dbctx.New(context.Background()), f.project.ID)
	if err != nil || active != nil {
		t.Fatalf("project still has an active execution: %+v %v", active, err)
	}
}

func TestRunBatchFailsWhenWorkerStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, scriptedProvider{name: "openai", fn: func(req llm.Request) (llm.Response, error) {
		cancel()
		return answers(req)
	}})
	f.prompts(t, brand.PipelineSpontaneous, "Best {industry}?")
	exec := f.execution(t)

	_, err := f.uc.RunBatch(ctx, RunBatchInput{ExecutionID: exec.ID})
	if !errors.Is(err, ErrWorkerStopped) {
		t.Fatalf("expected ErrWorkerStopped, got %v", err)
	}
	got := f.reload(t, exec.ID)
	if got.Status != brand.BatchStatusFailed || !strings.Contains(got.Error, "worker stopped") {
		t.Fatalf("execution should be failed: %+v", got)
	}
}

type failingResults struct {
	repos.BatchResultRepo
}

func (failingResults) Upsert(dbctx.Context, *types.BatchResult) error {
	return errors.New("disk full")
}

func TestRunBatchFailsWhenResultCannotBeStored(t *testing.T) {
	f := newFixture(t, scriptedProvider{name: "openai", fn: answers})
	f.prompts(t, brand.PipelineSpontaneous, "Best {industry}?")
	exec := f.execution(t)

	deps := f.uc.deps
	deps.Results = failingResults{BatchResultRepo: deps.Results}
	uc := New(deps)

	_, err := uc.RunBatch(context.Background(), RunBatchInput{ExecutionID: exec.ID})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected store error, got %v", err)
	}
	got := f.reload(t, exec.ID)
	if got.Status != brand.BatchStatusFailed || !strings.Contains(got.Error, "store spontaneous result") {
		t.Fatalf("execution should be failed: %+v", got)
	}
}
