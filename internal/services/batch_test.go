package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/brandpulse-backend/internal/data/graph"
	"github.com/yungbote/brandpulse-backend/internal/data/repos"
	"github.com/yungbote/brandpulse-backend/internal/data/repos/testutil"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
	jobstatus "github.com/yungbote/brandpulse-backend/internal/domain/jobs"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/apierr"
	"github.com/yungbote/brandpulse-backend/internal/platform/llm"
)

type stubProvider struct{ name string }

func (p stubProvider) Name() string  { return p.name }
func (p stubProvider) Model() string { return p.name + "-1" }
func (p stubProvider) Complete(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{Text: "ok"}, nil
}

type batchFixture struct {
	repos   repos.Repos
	project *types.Project
	jobs    JobService
	svc     BatchService
}

func newBatchFixture(t *testing.T, providers ...string) *batchFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	r := repos.New(db, log)
	reg := llm.NewRegistry()
	for _, name := range providers {
		if err := reg.Register(stubProvider{name: name}); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	jobs := NewJobService(db, log, r.JobRun, NewJobNotifier(nil), nil, "")
	return &batchFixture{
		repos:   r,
		project: testutil.SeedProject(t, db, "Acme", "Zoom", "Stride"),
		jobs:    jobs,
		svc: NewBatchService(BatchServiceDeps{
			DB:         db,
			Log:        log,
			Projects:   r.Project,
			Executions: r.BatchExecution,
			Results:    r.BatchResult,
			Responses:  r.ProviderResponse,
			Jobs:       jobs,
			Providers:  reg,
			Notify:     NewBatchNotifier(nil),
		}),
	}
}

func (f *batchFixture) complete(t *testing.T, id uuid.UUID, results map[string]string) {
	t.Helper()
	dbc := dbctx.New(context.Background())
	for kind, raw := range results {
		if err := f.repos.BatchResult.Upsert(dbc, &types.BatchResult{
			BatchExecutionID: id,
			ResultType:       kind,
			Result:           datatypes.JSON(raw),
		}); err != nil {
			t.Fatalf("upsert result: %v", err)
		}
	}
	if _, err := f.repos.BatchExecution.UpdateUnlessTerminal(dbc, id, map[string]interface{}{
		"status":       brand.BatchStatusCompleted,
		"progress":     100,
		"completed_at": time.Now().UTC(),
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func statusOf(err error) int {
	s, _ := apierr.Status(err)
	return s
}

func TestStartBatchIsIdempotent(t *testing.T) {
	f := newBatchFixture(t, "openai", "gemini")
	ctx := context.Background()

	first, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{Pipelines: []string{"visibility", "competition"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if first.AlreadyRunning || first.JobID == nil {
		t.Fatalf("unexpected first start: %+v", first)
	}

	exec, err := f.repos.BatchExecution.GetByID(dbctx.New(ctx), first.BatchExecutionID)
	if err != nil || exec == nil {
		t.Fatalf("load execution: %v", err)
	}
	if exec.Status != brand.BatchStatusPending {
		t.Fatalf("status = %q", exec.Status)
	}
	if len(exec.Pipelines) != 2 || exec.Pipelines[0] != brand.PipelineSpontaneous || exec.Pipelines[1] != brand.PipelineComparison {
		t.Fatalf("pipelines = %v", exec.Pipelines)
	}
	if exec.JobRunID == nil || *exec.JobRunID != *first.JobID {
		t.Fatalf("job link missing: %v", exec.JobRunID)
	}
	job, err := f.repos.JobRun.GetByID(dbctx.New(ctx), *first.JobID)
	if err != nil || job == nil {
		t.Fatalf("load job: %v", err)
	}
	if job.JobType != BatchProcessJobType || job.EntityType != BatchEntityType || job.Status != jobstatus.StatusQueued {
		t.Fatalf("unexpected job: %+v", job)
	}

	second, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{})
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !second.AlreadyRunning || second.BatchExecutionID != first.BatchExecutionID {
		t.Fatalf("expected alreadyRunning for %s, got %+v", first.BatchExecutionID, second)
	}

	// Joining wins over validating the new request.
	third, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{Providers: []string{"mystery"}, Pipelines: []string{"pricing"}})
	if err != nil {
		t.Fatalf("third Start: %v", err)
	}
	if !third.AlreadyRunning || third.BatchExecutionID != first.BatchExecutionID {
		t.Fatalf("expected alreadyRunning for %s, got %+v", first.BatchExecutionID, third)
	}
}

func TestStartBatchErrors(t *testing.T) {
	ctx := context.Background()

	f := newBatchFixture(t)
	if _, err := f.svc.Start(ctx, uuid.New(), StartBatchInput{}); statusOf(err) != http.StatusNotFound {
		t.Fatalf("missing project: %v", err)
	}
	if _, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("no providers: %v", err)
	}

	f = newBatchFixture(t, "openai")
	if _, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{Pipelines: []string{"pricing"}}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("unknown pipeline: %v", err)
	}
	if _, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{Providers: []string{"openai", "mystery"}}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("unknown provider: %v", err)
	}
}

func TestGetOnlyReturnsResultsWhenCompleted(t *testing.T) {
	f := newBatchFixture(t, "openai")
	ctx := context.Background()
	started, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.repos.BatchResult.Upsert(dbctx.New(ctx), &types.BatchResult{
		BatchExecutionID: started.BatchExecutionID,
		ResultType:       brand.PipelineSentiment,
		Result:           datatypes.JSON(`{"providers":[]}`),
	}); err != nil {
		t.Fatalf("seed partial result: %v", err)
	}

	view, err := f.svc.Get(ctx, started.BatchExecutionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.FinalResults == nil || len(view.FinalResults) != 0 {
		t.Fatalf("pending execution should expose no results, got %v", view.FinalResults)
	}

	f.complete(t, started.BatchExecutionID, map[string]string{
		brand.PipelineSpontaneous: `{"brand":"Acme","providers":[{"provider":"openai","prompts":4,"mentions":3,"positions":[1,2,1]}]}`,
	})
	view, err = f.svc.Get(ctx, started.BatchExecutionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.Status != brand.BatchStatusCompleted || len(view.FinalResults) != 2 {
		t.Fatalf("unexpected view: status=%s results=%d", view.Status, len(view.FinalResults))
	}

	if _, err := f.svc.Get(ctx, uuid.New()); statusOf(err) != http.StatusNotFound {
		t.Fatalf("unknown id: %v", err)
	}
}

func TestCancelBatch(t *testing.T) {
	f := newBatchFixture(t, "openai")
	ctx := context.Background()
	started, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	exec, err := f.svc.Cancel(ctx, started.BatchExecutionID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if exec.Status != brand.BatchStatusCanceled || exec.CompletedAt == nil {
		t.Fatalf("unexpected execution: %+v", exec)
	}
	job, err := f.repos.JobRun.GetByID(dbctx.New(ctx), *started.JobID)
	if err != nil || job == nil || job.Status != jobstatus.StatusCanceled {
		t.Fatalf("job not canceled: %+v %v", job, err)
	}

	_, err = f.svc.Cancel(ctx, started.BatchExecutionID)
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("second cancel should conflict, got %v", err)
	}

	next, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{})
	if err != nil || next.AlreadyRunning {
		t.Fatalf("a canceled execution should not block a new start: %+v %v", next, err)
	}
}

func TestCancelingJobCancelsPendingBatch(t *testing.T) {
	f := newBatchFixture(t, "openai")
	ctx := context.Background()
	started, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := f.jobs.Cancel(dbctx.New(ctx), *started.JobID); err != nil {
		t.Fatalf("cancel job: %v", err)
	}
	exec, err := f.repos.BatchExecution.GetByID(dbctx.New(ctx), started.BatchExecutionID)
	if err != nil || exec == nil {
		t.Fatalf("load execution: %v", err)
	}
	if exec.Status != brand.BatchStatusCanceled || exec.CompletedAt == nil {
		t.Fatalf("execution should follow its job: %+v", exec)
	}

	next, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{})
	if err != nil || next.AlreadyRunning {
		t.Fatalf("project still blocked: %+v %v", next, err)
	}
}

func TestReportChartAndResponses(t *testing.T) {
	f := newBatchFixture(t, "openai")
	ctx := context.Background()
	started, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.svc.Report(ctx, started.BatchExecutionID); statusOf(err) != http.StatusConflict {
		t.Fatalf("report before completion: %v", err)
	}

	if err := f.repos.ProviderResponse.CreateBatch(dbctx.New(ctx), []*types.ProviderResponse{
		{BatchExecutionID: started.BatchExecutionID, PipelineType: brand.PipelineSpontaneous, Provider: "openai", ResponseText: "Acme"},
		{BatchExecutionID: started.BatchExecutionID, PipelineType: brand.PipelineSentiment, Provider: "openai", ResponseText: "fine"},
	}); err != nil {
		t.Fatalf("seed responses: %v", err)
	}
	f.complete(t, started.BatchExecutionID, map[string]string{
		"visibility": `"{\"brand\":\"Acme\",\"providers\":[{\"provider\":\"openai\",\"prompts\":\"4\",\"mentions\":2}]}"`,
		"sentiment":  `{"skipped":true,"reason":"no prompts"}`,
	})

	report, err := f.svc.Report(ctx, started.BatchExecutionID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Visibility == nil || report.Visibility.OverallMentionRate != 0.5 {
		t.Fatalf("unexpected visibility: %+v", report.Visibility)
	}
	if report.Sentiment != nil {
		t.Fatalf("skipped sentiment should be nil")
	}

	png, err := f.svc.Chart(ctx, started.BatchExecutionID)
	if err != nil || len(png) < 8 || string(png[1:4]) != "PNG" {
		t.Fatalf("Chart: %d bytes %v", len(png), err)
	}

	all, err := f.svc.Responses(ctx, started.BatchExecutionID, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("Responses: %d %v", len(all), err)
	}
	vis, err := f.svc.Responses(ctx, started.BatchExecutionID, "visibility")
	if err != nil || len(vis) != 1 || vis[0].PipelineType != brand.PipelineSpontaneous {
		t.Fatalf("filtered Responses: %v %v", vis, err)
	}
	if _, err := f.svc.Responses(ctx, started.BatchExecutionID, "pricing"); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("unknown pipeline filter: %v", err)
	}
}

type fakeGraph struct {
	edges []graph.CompetitionEdge
	err   error
}

func (g fakeGraph) Enabled() bool { return true }
func (g fakeGraph) Edges(context.Context, *types.Project) ([]graph.CompetitionEdge, error) {
	return g.edges, g.err
}

func TestCompetitionGraphFallbacks(t *testing.T) {
	f := newBatchFixture(t, "openai")
	ctx := context.Background()

	view, err := f.svc.CompetitionGraph(ctx, f.project.ID)
	if err != nil {
		t.Fatalf("CompetitionGraph: %v", err)
	}
	if view.Source != graphSourceIdentityCard || len(view.Edges) != 2 {
		t.Fatalf("identity card fallback: %+v", view)
	}

	started, err := f.svc.Start(ctx, f.project.ID, StartBatchInput{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.complete(t, started.BatchExecutionID, map[string]string{
		"competition": `{"brand":"Acme","matchups":[{"competitor":"Zoom","provider":"openai","outcome":"win"}]}`,
	})
	view, err = f.svc.CompetitionGraph(ctx, f.project.ID)
	if err != nil {
		t.Fatalf("CompetitionGraph: %v", err)
	}
	if view.Source != graphSourceResults || view.BatchExecutionID == nil || *view.BatchExecutionID != started.BatchExecutionID {
		t.Fatalf("results fallback: %+v", view)
	}
	var zoom *graph.CompetitionEdge
	for i := range view.Edges {
		if view.Edges[i].Competitor == "Zoom" {
			zoom = &view.Edges[i]
		}
	}
	if zoom == nil || zoom.Wins != 1 || zoom.WinRate != 1 {
		t.Fatalf("zoom edge: %+v", zoom)
	}

	svc := f.svc.(*batchService)
	svc.deps.Graph = fakeGraph{edges: []graph.CompetitionEdge{{Brand: "Acme", Competitor: "Zoom", Losses: 2}}}
	view, err = svc.CompetitionGraph(ctx, f.project.ID)
	if err != nil || view.Source != graphSourceNeo4j || len(view.Edges) != 1 {
		t.Fatalf("graph source: %+v %v", view, err)
	}

	svc.deps.Graph = fakeGraph{err: errors.New("neo4j down")}
	view, err = svc.CompetitionGraph(ctx, f.project.ID)
	if err != nil || view.Source != graphSourceResults {
		t.Fatalf("graph error should fall back: %+v %v", view, err)
	}
}
