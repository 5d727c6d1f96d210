package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/brandpulse-backend/internal/data/repos"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	jobstatus "github.com/yungbote/brandpulse-backend/internal/domain/jobs"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/apierr"
	"github.com/yungbote/brandpulse-backend/internal/platform/ctxutil"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

// JobWorkflowName must match the workflow the temporal worker registers.
const JobWorkflowName = "job_run"

type JobService interface {
	Enqueue(dbc dbctx.Context, projectID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error
	GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	GetLatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error)
	Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	// OnCancel registers fn to run after a job of jobType is canceled.
	OnCancel(jobType string, fn JobCancelHook)
}

type JobCancelHook func(dbc dbctx.Context, job *types.JobRun)

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify JobNotifier

	temporal          temporalsdkclient.Client
	temporalTaskQueue string

	hooksMu     sync.RWMutex
	cancelHooks map[string][]JobCancelHook
}

// NewJobService builds the job service. A nil temporal client leaves queued
// rows for the database worker to claim.
func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	notify JobNotifier,
	tc temporalsdkclient.Client,
	taskQueue string,
) JobService {
	return &jobService{
		db:                db,
		log:               baseLog.With("service", "JobService"),
		repo:              repo,
		notify:            notify,
		temporal:          tc,
		temporalTaskQueue: strings.TrimSpace(taskQueue),
		cancelHooks:       map[string][]JobCancelHook{},
	}
}

func (s *jobService) OnCancel(jobType string, fn JobCancelHook) {
	if fn == nil || jobType == "" {
		return
	}
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.cancelHooks[jobType] = append(s.cancelHooks[jobType], fn)
}

func (s *jobService) Enqueue(dbc dbctx.Context, projectID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if projectID == uuid.Nil {
		return nil, apierr.Invalid("missing_project_id", "missing project_id")
	}
	if jobType == "" {
		return nil, apierr.Invalid("missing_job_type", "missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if _, ok := payload["trace_id"]; !ok && td.TraceID != "" {
			payload["trace_id"] = td.TraceID
		}
		if _, ok := payload["request_id"]; !ok && td.RequestID != "" {
			payload["request_id"] = td.RequestID
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:         uuid.New(),
		ProjectID:  projectID,
		JobType:    jobType,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     jobstatus.StatusQueued,
		Stage:      "queued",
		Message:    "Queued",
		Payload:    datatypes.JSON(b),
		Result:     datatypes.JSON([]byte(`{}`)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.repo.Create(dbctx.Context{Ctx: dbc.Ctx, Tx: dbc.DB(s.db)}, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.notify.JobCreated(projectID, job)

	// Inside a real transaction the caller dispatches after commit.
	if isDBTransaction(dbc.Tx) {
		s.log.Debug("Job enqueued inside transaction; awaiting dispatch after commit", "job_id", job.ID, "job_type", job.JobType)
		return job, nil
	}
	if err := s.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

// Dispatch starts the temporal workflow for a queued job. Without temporal it is a no-op.
func (s *jobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if s == nil || s.temporal == nil {
		return nil
	}
	if jobID == uuid.Nil {
		return apierr.Invalid("missing_job_id", "missing job id")
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	err := s.startTemporalJobWorkflow(ctx, jobID)
	if err == nil {
		return nil
	}
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return nil
	}

	now := time.Now().UTC()
	_ = s.repo.UpdateFields(dbctx.Context{Ctx: ctx}, jobID, map[string]interface{}{
		"status":        jobstatus.StatusFailed,
		"stage":         "dispatch",
		"message":       "",
		"error":         err.Error(),
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	})
	if j, rerr := s.repo.GetByID(dbctx.Context{Ctx: ctx}, jobID); rerr == nil && j != nil {
		s.notify.JobFailed(j.ProjectID, j, "dispatch", err.Error())
	}
	return fmt.Errorf("start temporal workflow: %w", err)
}

func (s *jobService) GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, apierr.Invalid("missing_job_id", "missing job id")
	}
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apierr.NotFound("job_not_found", "job %s not found", jobID)
	}
	return job, nil
}

func (s *jobService) GetLatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	job, err := s.repo.GetLatestByEntity(dbc, entityType, entityID, jobType)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apierr.NotFound("job_not_found", "no %s job for %s %s", jobType, entityType, entityID)
	}
	return job, nil
}

// Cancel marks a non-terminal job canceled. Terminal jobs are returned unchanged.
func (s *jobService) Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := s.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if jobstatus.IsTerminalStatus(job.Status) {
		return job, nil
	}
	now := time.Now().UTC()
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, jobID, []string{jobstatus.StatusSucceeded, jobstatus.StatusFailed, jobstatus.StatusCanceled}, map[string]interface{}{
		"status":       jobstatus.StatusCanceled,
		"message":      "Canceled",
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.GetByID(dbc, jobID)
	}
	job.Status = jobstatus.StatusCanceled
	job.Message = "Canceled"
	job.LockedAt = nil
	job.HeartbeatAt = &now
	job.UpdatedAt = now
	s.notify.JobCanceled(job.ProjectID, job)

	s.hooksMu.RLock()
	hooks := s.cancelHooks[job.JobType]
	s.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(dbc, job)
	}

	if s.temporal != nil {
		ctx := dbc.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if cerr := s.temporal.CancelWorkflow(ctx, jobID.String(), ""); cerr != nil {
			s.log.Debug("Cancel workflow failed", "job_id", jobID, "error", cerr)
		}
	}
	return job, nil
}

func (s *jobService) startTemporalJobWorkflow(ctx context.Context, jobID uuid.UUID) error {
	tq := s.temporalTaskQueue
	if tq == "" {
		tq = "brandpulse"
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             tq,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    1,
		},
	}
	_, err := s.temporal.ExecuteWorkflow(ctx, opts, JobWorkflowName)
	return err
}
