package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/brandpulse-backend/internal/analytics"
	"github.com/yungbote/brandpulse-backend/internal/data/graph"
	"github.com/yungbote/brandpulse-backend/internal/data/repos"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/apierr"
	"github.com/yungbote/brandpulse-backend/internal/platform/llm"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

const (
	BatchProcessJobType     = "batch_process"
	BatchEntityType         = "batch_execution"
	defaultHistoryLimit     = 20
	maxHistoryLimit         = 100
	graphSourceNeo4j        = "neo4j"
	graphSourceResults      = "results"
	graphSourceIdentityCard = "identity_card"
)

type StartBatchInput struct {
	Pipelines []string `json:"pipelines"`
	Providers []string `json:"providers"`
}

type StartBatchResult struct {
	BatchExecutionID uuid.UUID  `json:"batchExecutionId"`
	AlreadyRunning   bool       `json:"alreadyRunning,omitempty"`
	JobID            *uuid.UUID `json:"jobId,omitempty"`
}

// BatchExecutionView is an execution as polled by clients. FinalResults stays
// empty until the execution completes.
type BatchExecutionView struct {
	*types.BatchExecution
	FinalResults []*types.BatchResult `json:"finalResults"`
}

type CompetitionGraphView struct {
	ProjectID        uuid.UUID               `json:"projectId"`
	Brand            string                  `json:"brand"`
	Source           string                  `json:"source"`
	BatchExecutionID *uuid.UUID              `json:"batchExecutionId,omitempty"`
	Edges            []graph.CompetitionEdge `json:"edges"`
}

// CompetitionGraphReader reads stored competitor edges.
type CompetitionGraphReader interface {
	Enabled() bool
	Edges(ctx context.Context, project *types.Project) ([]graph.CompetitionEdge, error)
}

type BatchService interface {
	Start(ctx context.Context, projectID uuid.UUID, in StartBatchInput) (*StartBatchResult, error)
	Get(ctx context.Context, id uuid.UUID) (*BatchExecutionView, error)
	History(ctx context.Context, projectID uuid.UUID, limit int) ([]*types.BatchExecution, error)
	Cancel(ctx context.Context, id uuid.UUID) (*types.BatchExecution, error)
	Responses(ctx context.Context, id uuid.UUID, pipeline string) ([]*types.ProviderResponse, error)
	Report(ctx context.Context, id uuid.UUID) (*analytics.Report, error)
	Chart(ctx context.Context, id uuid.UUID) ([]byte, error)
	CompetitionGraph(ctx context.Context, projectID uuid.UUID) (*CompetitionGraphView, error)
}

type BatchServiceDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Projects   repos.ProjectRepo
	Executions repos.BatchExecutionRepo
	Results    repos.BatchResultRepo
	Responses  repos.ProviderResponseRepo

	Jobs      JobService
	Providers *llm.Registry
	Notify    BatchNotifier

	// Optional.
	Graph CompetitionGraphReader
}

type batchService struct {
	deps BatchServiceDeps
	log  *logger.Logger
}

func NewBatchService(deps BatchServiceDeps) BatchService {
	s := &batchService{deps: deps, log: deps.Log.With("service", "BatchService")}
	if deps.Jobs != nil {
		deps.Jobs.OnCancel(BatchProcessJobType, s.cancelForJob)
	}
	return s
}

func (s *batchService) Start(ctx context.Context, projectID uuid.UUID, in StartBatchInput) (*StartBatchResult, error) {
	d := s.deps
	project, err := d.Projects.GetByID(dbctx.New(ctx), projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apierr.NotFound("project_not_found", "project %s not found", projectID)
	}

	// a running execution is joined before the request itself is validated
	if active, err := d.Executions.GetActiveForProject(dbctx.New(ctx), projectID); err != nil {
		return nil, err
	} else if active != nil {
		s.log.Info("batch already running", "project_id", projectID, "batch_execution_id", active.ID)
		return &StartBatchResult{BatchExecutionID: active.ID, AlreadyRunning: true, JobID: active.JobRunID}, nil
	}

	pipelines, unknown := brand.NormalizePipelines(in.Pipelines)
	if len(unknown) > 0 {
		return nil, apierr.Invalid("unknown_pipeline", "unknown pipelines: %v", unknown)
	}
	providerNames, err := s.resolveProviders(project, in.Providers)
	if err != nil {
		return nil, err
	}

	var (
		result StartBatchResult
		job    *types.JobRun
	)
	err = d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tdbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if tx.Dialector.Name() == "postgres" {
			// serialises concurrent starts for the same project
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", projectID).
				Find(&types.Project{}).Error; err != nil {
				return err
			}
		}
		active, err := d.Executions.GetActiveForProject(tdbc, projectID)
		if err != nil {
			return err
		}
		if active != nil {
			result = StartBatchResult{BatchExecutionID: active.ID, AlreadyRunning: true, JobID: active.JobRunID}
			return nil
		}

		exec := &types.BatchExecution{
			ProjectID: projectID,
			Status:    brand.BatchStatusPending,
			Stage:     "queued",
			Pipelines: pipelines,
			Providers: providerNames,
		}
		if err := d.Executions.Create(tdbc, exec); err != nil {
			return fmt.Errorf("create batch execution: %w", err)
		}
		entityID := exec.ID
		job, err = d.Jobs.Enqueue(tdbc, projectID, BatchProcessJobType, BatchEntityType, &entityID, map[string]any{
			"batch_execution_id": exec.ID.String(),
		})
		if err != nil {
			return fmt.Errorf("enqueue batch job: %w", err)
		}
		if _, err := d.Executions.UpdateUnlessTerminal(tdbc, exec.ID, map[string]interface{}{"job_run_id": job.ID}); err != nil {
			return err
		}
		result = StartBatchResult{BatchExecutionID: exec.ID, JobID: &job.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadyRunning {
		s.log.Info("batch already running", "project_id", projectID, "batch_execution_id", result.BatchExecutionID)
		return &result, nil
	}

	if err := d.Jobs.Dispatch(dbctx.New(ctx), job.ID); err != nil {
		now := time.Now().UTC()
		_, _ = d.Executions.UpdateUnlessTerminal(dbctx.New(context.WithoutCancel(ctx)), result.BatchExecutionID, map[string]interface{}{
			"status":       brand.BatchStatusFailed,
			"error":        "could not dispatch batch job",
			"completed_at": now,
		})
		return nil, fmt.Errorf("dispatch batch job: %w", err)
	}
	s.log.Info("batch started",
		"project_id", projectID,
		"batch_execution_id", result.BatchExecutionID,
		"job_id", job.ID,
		"pipelines", pipelines,
		"providers", providerNames,
	)
	return &result, nil
}

// resolveProviders picks the request's providers, else the project's default
// set, else every configured provider.
func (s *batchService) resolveProviders(project *types.Project, requested []string) ([]string, error) {
	selection := CleanNames(requested)
	explicit := len(selection) > 0
	if !explicit {
		selection = project.Providers
	}
	var (
		selected []llm.Provider
		unknown  []string
	)
	if s.deps.Providers != nil {
		selected, unknown = s.deps.Providers.Select(selection)
	}
	if explicit && len(unknown) > 0 {
		return nil, apierr.Invalid("unknown_provider", "unknown providers: %v", unknown)
	}
	if len(selected) == 0 {
		return nil, apierr.Invalid("no_providers", "no LLM providers are configured")
	}
	names := make([]string, 0, len(selected))
	for _, p := range selected {
		names = append(names, p.Name())
	}
	return names, nil
}

func (s *batchService) load(ctx context.Context, id uuid.UUID) (*types.BatchExecution, error) {
	exec, err := s.deps.Executions.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, apierr.NotFound("batch_execution_not_found", "batch execution %s not found", id)
	}
	return exec, nil
}

func (s *batchService) loadProject(ctx context.Context, id uuid.UUID) (*types.Project, error) {
	p, err := s.deps.Projects.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apierr.NotFound("project_not_found", "project %s not found", id)
	}
	return p, nil
}

func (s *batchService) Get(ctx context.Context, id uuid.UUID) (*BatchExecutionView, error) {
	exec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &BatchExecutionView{BatchExecution: exec, FinalResults: []*types.BatchResult{}}
	if exec.Status != brand.BatchStatusCompleted {
		return view, nil
	}
	results, err := s.deps.Results.ListByExecution(dbctx.New(ctx), exec.ID)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	if results != nil {
		view.FinalResults = results
	}
	return view, nil
}

func (s *batchService) History(ctx context.Context, projectID uuid.UUID, limit int) ([]*types.BatchExecution, error) {
	if _, err := s.loadProject(ctx, projectID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.deps.Executions.ListByProject(dbctx.New(ctx), projectID, limit)
}

func (s *batchService) Cancel(ctx context.Context, id uuid.UUID) (*types.BatchExecution, error) {
	d := s.deps
	exec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if brand.IsTerminalBatchStatus(exec.Status) {
		return nil, apierr.Conflict("batch_not_cancelable", "batch execution is already %s", exec.Status)
	}
	now := time.Now().UTC()
	ok, err := d.Executions.UpdateUnlessTerminal(dbctx.New(ctx), id, map[string]interface{}{
		"status":       brand.BatchStatusCanceled,
		"stage":        "canceled",
		"error":        "canceled by user",
		"completed_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		latest, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apierr.Conflict("batch_not_cancelable", "batch execution is already %s", latest.Status)
	}
	if exec.JobRunID != nil && d.Jobs != nil {
		if _, err := d.Jobs.Cancel(dbctx.New(ctx), *exec.JobRunID); err != nil {
			s.log.Warn("cancel job failed", "job_id", *exec.JobRunID, "error", err)
		}
	}
	exec, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Notify != nil {
		d.Notify.BatchFailed(exec, "canceled by user")
	}
	s.log.Info("batch canceled", "batch_execution_id", id)
	return exec, nil
}

// cancelForJob cancels the execution behind a canceled batch_process job, so
// a job canceled before any worker claimed it does not leave the project blocked.
func (s *batchService) cancelForJob(dbc dbctx.Context, job *types.JobRun) {
	if job == nil || job.EntityType != BatchEntityType || job.EntityID == nil {
		return
	}
	ctx := context.Background()
	if dbc.Ctx != nil {
		ctx = context.WithoutCancel(dbc.Ctx)
	}
	now := time.Now().UTC()
	ok, err := s.deps.Executions.UpdateUnlessTerminal(dbctx.New(ctx), *job.EntityID, map[string]interface{}{
		"status":       brand.BatchStatusCanceled,
		"stage":        "canceled",
		"error":        "batch job canceled",
		"completed_at": now,
	})
	if err != nil {
		s.log.Warn("cancel batch for job failed", "job_id", job.ID, "batch_execution_id", *job.EntityID, "error", err)
		return
	}
	if !ok {
		return
	}
	exec, err := s.deps.Executions.GetByID(dbctx.New(ctx), *job.EntityID)
	if err != nil || exec == nil {
		return
	}
	if s.deps.Notify != nil {
		s.deps.Notify.BatchFailed(exec, "batch job canceled")
	}
	s.log.Info("batch canceled with its job", "job_id", job.ID, "batch_execution_id", exec.ID)
}

func (s *batchService) Responses(ctx context.Context, id uuid.UUID, pipeline string) ([]*types.ProviderResponse, error) {
	canonical := ""
	if pipeline != "" {
		c, ok := brand.CanonicalPipeline(pipeline)
		if !ok {
			return nil, apierr.Invalid("unknown_pipeline", "unknown pipeline %q", pipeline)
		}
		canonical = c
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.deps.Responses.ListByExecution(dbctx.New(ctx), id, canonical)
}

func (s *batchService) Report(ctx context.Context, id uuid.UUID) (*analytics.Report, error) {
	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if view.Status != brand.BatchStatusCompleted {
		return nil, apierr.Conflict("batch_not_completed", "batch execution is %s", view.Status)
	}
	report, err := analytics.BuildReport(ToAnalyticsResults(view.FinalResults))
	if err != nil {
		if errors.Is(err, analytics.ErrMalformedResult) {
			return nil, apierr.New(http.StatusUnprocessableEntity, "malformed_result", err)
		}
		return nil, err
	}
	return report, nil
}

func (s *batchService) Chart(ctx context.Context, id uuid.UUID) ([]byte, error) {
	report, err := s.Report(ctx, id)
	if err != nil {
		return nil, err
	}
	return VisibilityChart(report.Visibility)
}

// CompetitionGraph prefers the graph store and falls back to the latest
// completed comparison result, then to the bare identity card.
func (s *batchService) CompetitionGraph(ctx context.Context, projectID uuid.UUID) (*CompetitionGraphView, error) {
	d := s.deps
	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := &CompetitionGraphView{ProjectID: project.ID, Brand: project.Name, Edges: []graph.CompetitionEdge{}}

	if d.Graph != nil && d.Graph.Enabled() {
		edges, err := d.Graph.Edges(ctx, project)
		if err != nil {
			s.log.Warn("graph read failed; deriving from results", "project_id", projectID, "error", err)
		} else if len(edges) > 0 {
			out.Source = graphSourceNeo4j
			out.Edges = edges
			return out, nil
		}
	}

	dbc := dbctx.New(ctx)
	exec, err := d.Executions.GetLatestForProject(dbc, projectID, brand.BatchStatusCompleted)
	if err != nil {
		return nil, err
	}
	var view *analytics.ComparisonView
	execID := uuid.Nil
	if exec != nil {
		results, err := d.Results.ListByExecution(dbc, exec.ID)
		if err != nil {
			return nil, err
		}
		if res, ok := analytics.FindResult(ToAnalyticsResults(results), brand.PipelineComparison); ok {
			view, err = analytics.Comparison(res.Result)
			if err != nil {
				return nil, apierr.New(http.StatusUnprocessableEntity, "malformed_result", err)
			}
		}
	}
	if view != nil {
		execID = exec.ID
		out.Source = graphSourceResults
		out.BatchExecutionID = &execID
	} else {
		out.Source = graphSourceIdentityCard
	}
	if edges := graph.EdgesFromComparison(project, view, execID); edges != nil {
		out.Edges = edges
	}
	return out, nil
}
