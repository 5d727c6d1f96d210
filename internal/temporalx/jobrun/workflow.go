package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"

	jobstatus "github.com/yungbote/brandpulse-backend/internal/domain/jobs"
)

// Workflow ticks the job until it reaches a terminal status. The workflow ID is the job ID.
func Workflow(ctx workflow.Context) error {
	jobID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if jobID == "" {
		return fmt.Errorf("jobrun: missing job_id")
	}

	const (
		pollInterval = 2 * time.Second
		maxTicks     = 500
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 6 * time.Hour,
		HeartbeatTimeout:    time.Minute,
	})

	for tick := 1; ; tick++ {
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, jobID).Get(ctx, &out); err != nil {
			return err
		}
		switch out.Status {
		case jobstatus.StatusSucceeded, jobstatus.StatusCanceled:
			return nil
		case jobstatus.StatusFailed:
			return fmt.Errorf("job failed (stage=%s)", out.Stage)
		}
		if tick >= maxTicks {
			return workflow.NewContinueAsNewError(ctx, Workflow)
		}
		if err := workflow.Sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}
