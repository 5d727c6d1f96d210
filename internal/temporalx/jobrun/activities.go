package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"gorm.io/gorm"

	"github.com/yungbote/brandpulse-backend/internal/data/repos"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	jobstatus "github.com/yungbote/brandpulse-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/brandpulse-backend/internal/jobs/runtime"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/services"
)

type Activities struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Jobs     repos.JobRunRepo
	Registry *jobrt.Registry
	Notify   services.JobNotifier

	// Heartbeat overrides the temporal heartbeat; tests run activities outside a worker.
	Heartbeat func(ctx context.Context)
}

// Tick runs the job's handler once unless the row is already terminal.
func (a *Activities) Tick(ctx context.Context, jobID string) (TickResult, error) {
	res := TickResult{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.DB == nil || a.Jobs == nil || a.Registry == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(res.JobID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id")
	}
	job, err := a.Jobs.GetByID(dbctx.Context{Ctx: ctx, Tx: a.DB}, id)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, fmt.Errorf("jobrun: job not found")
	}
	if jobstatus.IsTerminalStatus(job.Status) {
		return fill(res, job), nil
	}

	stop := a.startHeartbeat(ctx, id)
	defer stop()

	now := time.Now().UTC()
	ok, err := a.Jobs.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx, Tx: a.DB}, id, []string{jobstatus.StatusCanceled}, map[string]interface{}{
		"status":       jobstatus.StatusRunning,
		"attempts":     gorm.Expr("attempts + 1"),
		"locked_at":    now,
		"heartbeat_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return res, err
	}
	if !ok {
		job.Status = jobstatus.StatusCanceled
		return fill(res, job), nil
	}
	job.Status = jobstatus.StatusRunning
	job.LockedAt = &now
	job.HeartbeatAt = &now

	jc := jobrt.NewContext(ctx, a.DB, job, a.Jobs, a.Notify)
	h, found := a.Registry.Get(job.JobType)
	returnedNil := false
	if !found {
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
	} else {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.Log.Error("Job handler panic", "job_id", id, "job_type", job.JobType, "panic", r)
					jc.Fail("panic", fmt.Errorf("panic: unexpected error"))
				}
			}()
			if runErr := h.Run(jc); runErr != nil {
				jc.Fail("run", runErr)
				return
			}
			returnedNil = true
		}()
	}

	updated, err := a.Jobs.GetByID(dbctx.Context{Ctx: ctx, Tx: a.DB}, id)
	if err != nil {
		return res, err
	}
	if updated == nil {
		return res, fmt.Errorf("jobrun: job not found after tick")
	}
	// A handler that returns nil without a terminal transition would tick forever.
	if returnedNil && updated.Status == jobstatus.StatusRunning {
		a.Log.Warn("Job handler returned nil without terminal status; marking succeeded", "job_id", id, "job_type", updated.JobType)
		jc.Succeed("done", nil)
		if again, rerr := a.Jobs.GetByID(dbctx.Context{Ctx: ctx, Tx: a.DB}, id); rerr == nil && again != nil {
			updated = again
		}
	}
	return fill(res, updated), nil
}

func fill(res TickResult, job *types.JobRun) TickResult {
	res.Status = job.Status
	res.Stage = job.Stage
	res.Progress = job.Progress
	res.Message = job.Message
	return res
}

func (a *Activities) startHeartbeat(ctx context.Context, jobID uuid.UUID) func() {
	beat := a.Heartbeat
	if beat == nil {
		beat = func(ctx context.Context) { activity.RecordHeartbeat(ctx) }
	}
	done := make(chan struct{})
	go func() {
		temporalHB := time.NewTicker(10 * time.Second)
		defer temporalHB.Stop()
		dbHB := time.NewTicker(30 * time.Second)
		defer dbHB.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-temporalHB.C:
				beat(ctx)
			case <-dbHB.C:
				_ = a.Jobs.Heartbeat(dbctx.Context{Ctx: ctx, Tx: a.DB}, jobID)
			}
		}
	}()
	return func() { close(done) }
}
