package brand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/brandpulse-backend/internal/data/repos"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
	"github.com/yungbote/brandpulse-backend/internal/modules/brand/analyzer"
	"github.com/yungbote/brandpulse-backend/internal/modules/brand/steps"
	"github.com/yungbote/brandpulse-backend/internal/observability"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/llm"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/services"
)

var (
	ErrExecutionNotFound = errors.New("batch execution not found")
	ErrProjectNotFound   = errors.New("project not found")
	ErrNoProviders       = errors.New("no usable LLM provider")
	ErrAllCallsFailed    = errors.New("every provider call failed")
	ErrWorkerStopped     = errors.New("worker stopped")
)

// ReportArchiver stores a finished execution's results outside the database.
type ReportArchiver interface {
	Archive(ctx context.Context, exec *types.BatchExecution, project *types.Project, results []*types.BatchResult) error
}

// GraphSync mirrors comparison outcomes into the competition graph.
type GraphSync interface {
	SyncComparison(ctx context.Context, project *types.Project, exec *types.BatchExecution, result json.RawMessage) error
}

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Providers *llm.Registry
	Analyzer  analyzer.Analyzer

	Projects   repos.ProjectRepo
	PromptSets repos.PromptSetRepo
	Executions repos.BatchExecutionRepo
	Results    repos.BatchResultRepo
	Responses  repos.ProviderResponseRepo

	Notify services.BatchNotifier

	// Optional.
	Archive ReportArchiver
	Graph   GraphSync

	Concurrency int
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases {
	if deps.Analyzer == nil {
		deps.Analyzer = analyzer.NewBuiltin()
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = 4
	}
	return Usecases{deps: deps}
}

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}

type RunBatchInput struct {
	ExecutionID uuid.UUID
	// Canceled is polled between pipelines in addition to the execution row.
	Canceled func() bool
	Progress func(stage string, pct int, msg string)
}

type RunBatchOutput struct {
	Status      string   `json:"status"`
	ResultTypes []string `json:"resultTypes"`
	Skipped     []string `json:"skipped,omitempty"`
	Calls       int      `json:"calls"`
	FailedCalls int      `json:"failedCalls"`
}

/*
RunBatch executes every requested pipeline of one batch execution:
expand prompts, fan out to providers, persist raw responses, analyze, and
store one result per pipeline. Execution failures are written to the row and
also returned. A canceled execution is left untouched; a canceled job cancels
its execution, and a stopped worker fails it.
*/
func (u Usecases) RunBatch(ctx context.Context, in RunBatchInput) (RunBatchOutput, error) {
	d := u.deps
	log := d.Log.With("batch_execution_id", in.ExecutionID.String())
	dbc := dbctx.New(ctx)
	start := time.Now()
	out := RunBatchOutput{ResultTypes: []string{}}

	exec, err := d.Executions.GetByID(dbc, in.ExecutionID)
	if err != nil {
		return out, fmt.Errorf("load batch execution: %w", err)
	}
	if exec == nil {
		return out, ErrExecutionNotFound
	}
	if brand.IsTerminalBatchStatus(exec.Status) {
		out.Status = exec.Status
		return out, nil
	}

	project, err := d.Projects.GetByID(dbc, exec.ProjectID)
	if err != nil {
		return u.fail(ctx, exec, start, fmt.Errorf("load project: %w", err))
	}
	if project == nil {
		return u.fail(ctx, exec, start, ErrProjectNotFound)
	}

	selection := []string(exec.Providers)
	if len(selection) == 0 {
		selection = project.Providers
	}
	var providers []llm.Provider
	if d.Providers != nil {
		var unknown []string
		providers, unknown = d.Providers.Select(selection)
		if len(unknown) > 0 {
			log.Warn("ignoring unknown providers", "providers", unknown)
		}
	}
	if len(providers) == 0 {
		return u.fail(ctx, exec, start, ErrNoProviders)
	}
	providerNames := make([]string, 0, len(providers))
	for _, p := range providers {
		providerNames = append(providerNames, p.Name())
	}
	pipelines, _ := brand.NormalizePipelines(exec.Pipelines)

	now := time.Now().UTC()
	ok, err := d.Executions.UpdateUnlessTerminal(dbc, exec.ID, map[string]interface{}{
		"status":     brand.BatchStatusRunning,
		"stage":      "starting",
		"progress":   1,
		"providers":  datatypes.JSONSlice[string](providerNames),
		"pipelines":  datatypes.JSONSlice[string](pipelines),
		"started_at": now,
	})
	if err != nil {
		return u.fail(ctx, exec, start, fmt.Errorf("mark running: %w", err))
	}
	if !ok {
		out.Status = brand.BatchStatusCanceled
		return out, nil
	}
	exec.Status = brand.BatchStatusRunning
	exec.Providers = providerNames
	exec.Pipelines = pipelines
	exec.StartedAt = &now
	u.notify().BatchStarted(exec)
	u.progress(in, "starting", 1, "Batch started")

	for i, pipeline := range pipelines {
		if stopped, res, err := u.stopIfCanceled(ctx, in, exec, start, out); stopped {
			log.Info("batch stopped between pipelines", "next_pipeline", pipeline, "status", res.Status)
			return res, err
		}
		pStart := time.Now()
		pct := 5 + (90*i)/len(pipelines)
		u.setStage(ctx, exec, pipeline, pct)
		u.progress(in, pipeline, pct, "Running "+pipeline+" pipeline")

		result, calls, failed, skipped, err := u.runPipeline(ctx, exec, project, providers, pipeline)
		if err != nil {
			if stopped, res, serr := u.stopIfCanceled(ctx, in, exec, start, out); stopped {
				return res, serr
			}
			return u.fail(ctx, exec, start, fmt.Errorf("%s pipeline: %w", pipeline, err))
		}
		out.Calls += calls
		out.FailedCalls += failed
		if skipped {
			out.Skipped = append(out.Skipped, pipeline)
		}
		if err := d.Results.Upsert(dbc, &types.BatchResult{
			BatchExecutionID: exec.ID,
			ResultType:       pipeline,
			Result:           datatypes.JSON(result),
		}); err != nil {
			if stopped, res, serr := u.stopIfCanceled(ctx, in, exec, start, out); stopped {
				return res, serr
			}
			return u.fail(ctx, exec, start, fmt.Errorf("store %s result: %w", pipeline, err))
		}
		out.ResultTypes = append(out.ResultTypes, pipeline)
		if m := observability.Current(); m != nil {
			m.ObservePipeline(pipeline, time.Since(pStart))
		}
	}

	if out.Calls > 0 && out.FailedCalls == out.Calls {
		return u.fail(ctx, exec, start, ErrAllCallsFailed)
	}

	done := time.Now().UTC()
	ok, err = d.Executions.UpdateUnlessTerminal(dbc, exec.ID, map[string]interface{}{
		"status":       brand.BatchStatusCompleted,
		"stage":        "done",
		"progress":     100,
		"error":        "",
		"completed_at": done,
	})
	if err != nil {
		return u.fail(ctx, exec, start, fmt.Errorf("mark completed: %w", err))
	}
	if !ok {
		out.Status = brand.BatchStatusCanceled
		return out, nil
	}
	exec.Status = brand.BatchStatusCompleted
	exec.Stage = "done"
	exec.Progress = 100
	exec.CompletedAt = &done
	out.Status = brand.BatchStatusCompleted

	u.afterComplete(ctx, log, exec, project)
	u.notify().BatchCompleted(exec)
	if m := observability.Current(); m != nil {
		m.ObserveBatch(brand.BatchStatusCompleted, time.Since(start))
	}
	log.Info("batch completed", "calls", out.Calls, "failed_calls", out.FailedCalls, "skipped", out.Skipped)
	return out, nil
}

var skippedResult = json.RawMessage(`{"skipped":true,"reason":"no prompts"}`)

func (u Usecases) runPipeline(ctx context.Context, exec *types.BatchExecution, project *types.Project, providers []llm.Provider, pipeline string) (json.RawMessage, int, int, bool, error) {
	d := u.deps
	dbc := dbctx.New(ctx)

	set, err := d.PromptSets.Get(dbc, project.ID, pipeline)
	if err != nil {
		return nil, 0, 0, false, fmt.Errorf("load prompts: %w", err)
	}
	var prompts []steps.ExpandedPrompt
	if set != nil {
		prompts = steps.ExpandPrompts(project, set.Prompts)
	}
	if len(prompts) == 0 {
		return skippedResult, 0, 0, true, nil
	}

	rows, err := steps.FanOut(ctx, d.Log, steps.FanOutInput{
		ExecutionID: exec.ID,
		Pipeline:    pipeline,
		System:      steps.SystemPrompt(pipeline, project),
		Prompts:     prompts,
		Providers:   providers,
		Concurrency: d.Concurrency,
	})
	if err != nil {
		return nil, 0, 0, false, err
	}
	failed := 0
	for _, r := range rows {
		if r.Failed() {
			failed++
		}
	}

	err = d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tdbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := d.Responses.DeleteByExecutionPipeline(tdbc, exec.ID, pipeline); err != nil {
			return err
		}
		return d.Responses.CreateBatch(tdbc, rows)
	})
	if err != nil {
		return nil, 0, 0, false, fmt.Errorf("store responses: %w", err)
	}

	result, err := d.Analyzer.Analyze(ctx, analyzer.Input{Pipeline: pipeline, Project: project, Responses: rows})
	if err != nil {
		return nil, 0, 0, false, err
	}
	return result, len(rows), failed, false, nil
}

func (u Usecases) fail(ctx context.Context, exec *types.BatchExecution, start time.Time, cause error) (RunBatchOutput, error) {
	d := u.deps
	msg := cause.Error()
	now := time.Now().UTC()
	ok, err := d.Executions.UpdateUnlessTerminal(dbctx.New(context.WithoutCancel(ctx)), exec.ID, map[string]interface{}{
		"status":       brand.BatchStatusFailed,
		"error":        msg,
		"completed_at": now,
	})
	if err != nil {
		d.Log.Error("mark batch failed", "batch_execution_id", exec.ID, "error", err)
	}
	out := RunBatchOutput{Status: brand.BatchStatusFailed, ResultTypes: []string{}}
	if err == nil && !ok {
		out.Status = brand.BatchStatusCanceled
		return out, nil
	}
	exec.Status = brand.BatchStatusFailed
	exec.Error = msg
	exec.CompletedAt = &now
	u.notify().BatchFailed(exec, msg)
	if m := observability.Current(); m != nil {
		m.ObserveBatch(brand.BatchStatusFailed, time.Since(start))
	}
	return out, cause
}

func (u Usecases) afterComplete(ctx context.Context, log *logger.Logger, exec *types.BatchExecution, project *types.Project) {
	d := u.deps
	if d.Archive == nil && d.Graph == nil {
		return
	}
	results, err := d.Results.ListByExecution(dbctx.New(ctx), exec.ID)
	if err != nil {
		log.Warn("load results for archive failed", "error", err)
		return
	}
	if d.Archive != nil {
		if err := d.Archive.Archive(ctx, exec, project, results); err != nil {
			log.Warn("report archive failed", "error", err)
		}
	}
	if d.Graph != nil {
		for _, r := range results {
			if r.ResultType != brand.PipelineComparison {
				continue
			}
			if err := d.Graph.SyncComparison(ctx, project, exec, json.RawMessage(r.Result)); err != nil {
				log.Warn("competition graph sync failed", "error", err)
			}
		}
	}
}

func (u Usecases) setStage(ctx context.Context, exec *types.BatchExecution, stage string, pct int) {
	ok, err := u.deps.Executions.UpdateUnlessTerminal(dbctx.New(ctx), exec.ID, map[string]interface{}{
		"stage":    stage,
		"progress": pct,
	})
	if err != nil {
		u.deps.Log.Warn("batch progress update failed", "batch_execution_id", exec.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	exec.Stage = stage
	exec.Progress = pct
	u.notify().BatchProgress(exec, stage, pct)
}

// stopIfCanceled ends the run when the execution was canceled, the worker is
// shutting down (ctx done, execution failed) or the job row was canceled
// (execution canceled). The execution never stays pending or running.
func (u Usecases) stopIfCanceled(ctx context.Context, in RunBatchInput, exec *types.BatchExecution, start time.Time, out RunBatchOutput) (bool, RunBatchOutput, error) {
	jobCanceled := in.Canceled != nil && in.Canceled()
	wctx := context.WithoutCancel(ctx)
	if cur, err := u.deps.Executions.GetByID(dbctx.New(wctx), exec.ID); err == nil && cur != nil && brand.IsTerminalBatchStatus(cur.Status) {
		out.Status = cur.Status
		return true, out, nil
	}
	if err := ctx.Err(); err != nil {
		res, ferr := u.fail(ctx, exec, start, fmt.Errorf("%w: %v", ErrWorkerStopped, err))
		return true, res, ferr
	}
	if jobCanceled {
		res, cerr := u.cancel(ctx, exec, start, "batch job canceled")
		return true, res, cerr
	}
	return false, out, nil
}

func (u Usecases) cancel(ctx context.Context, exec *types.BatchExecution, start time.Time, reason string) (RunBatchOutput, error) {
	d := u.deps
	now := time.Now().UTC()
	out := RunBatchOutput{Status: brand.BatchStatusCanceled, ResultTypes: []string{}}
	ok, err := d.Executions.UpdateUnlessTerminal(dbctx.New(context.WithoutCancel(ctx)), exec.ID, map[string]interface{}{
		"status":       brand.BatchStatusCanceled,
		"stage":        "canceled",
		"error":        reason,
		"completed_at": now,
	})
	if err != nil {
		return out, fmt.Errorf("mark canceled: %w", err)
	}
	if !ok {
		return out, nil
	}
	exec.Status = brand.BatchStatusCanceled
	exec.Error = reason
	exec.CompletedAt = &now
	u.notify().BatchFailed(exec, reason)
	if m := observability.Current(); m != nil {
		m.ObserveBatch(brand.BatchStatusCanceled, time.Since(start))
	}
	return out, nil
}

func (u Usecases) progress(in RunBatchInput, stage string, pct int, msg string) {
	if in.Progress != nil {
		in.Progress(stage, pct, msg)
	}
}

func (u Usecases) notify() services.BatchNotifier {
	if u.deps.Notify == nil {
		return nopBatchNotifier{}
	}
	return u.deps.Notify
}

type nopBatchNotifier struct{}

func (nopBatchNotifier) BatchStarted(*types.BatchExecution)               {}
func (nopBatchNotifier) BatchProgress(*types.BatchExecution, string, int) {}
func (nopBatchNotifier) BatchCompleted(*types.BatchExecution)             {}
func (nopBatchNotifier) BatchFailed(*types.BatchExecution, string)        {}
