package batch_process

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
	jobrt "github.com/yungbote/brandpulse-backend/internal/jobs/runtime"
	brandmod "github.com/yungbote/brandpulse-backend/internal/modules/brand"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	execID, ok := jc.PayloadUUID("batch_execution_id")
	if !ok && jc.Job.EntityID != nil {
		execID, ok = *jc.Job.EntityID, true
	}
	if !ok || execID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing batch_execution_id"))
		return nil
	}

	jc.Progress("load", 1, "Loading batch execution")
	out, err := p.batches.RunBatch(jc.Ctx, brandmod.RunBatchInput{
		ExecutionID: execID,
		Canceled:    jc.Canceled,
		Progress:    jc.Progress,
	})
	if err != nil {
		jc.Fail("batch", err)
		return nil
	}
	if out.Status == brand.BatchStatusCanceled {
		p.log.Info("batch execution canceled", "batch_execution_id", execID)
	}
	jc.Succeed("done", map[string]any{
		"batch_execution_id": execID.String(),
		"status":             out.Status,
		"result_types":       out.ResultTypes,
		"skipped":            out.Skipped,
		"calls":              out.Calls,
		"failed_calls":       out.FailedCalls,
	})
	return nil
}
