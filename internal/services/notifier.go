package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/realtime"
)

// =========================
// Job notifier
// =========================

type JobNotifier interface {
	JobCreated(projectID uuid.UUID, job *types.JobRun)
	JobProgress(projectID uuid.UUID, job *types.JobRun, stage string, progress int, message string)
	JobFailed(projectID uuid.UUID, job *types.JobRun, stage string, errorMessage string)
	JobDone(projectID uuid.UUID, job *types.JobRun)
	JobCanceled(projectID uuid.UUID, job *types.JobRun)
}

type jobNotifier struct {
	emit SSEEmitter
}

func NewJobNotifier(emit SSEEmitter) JobNotifier {
	return &jobNotifier{emit: emit}
}

func (n *jobNotifier) send(projectID uuid.UUID, event realtime.SSEEvent, data map[string]any) {
	if n == nil || n.emit == nil || projectID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.ProjectChannel(projectID),
		Event:   event,
		Data:    data,
	})
}

func (n *jobNotifier) JobCreated(projectID uuid.UUID, job *types.JobRun) {
	n.send(projectID, realtime.SSEEventJobCreated, map[string]any{"job": job})
}

func (n *jobNotifier) JobProgress(projectID uuid.UUID, job *types.JobRun, stage string, progress int, message string) {
	n.send(projectID, realtime.SSEEventJobProgress, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *jobNotifier) JobFailed(projectID uuid.UUID, job *types.JobRun, stage string, errorMessage string) {
	n.send(projectID, realtime.SSEEventJobFailed, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
		"stage":    stage,
		"error":    errorMessage,
	})
}

func (n *jobNotifier) JobDone(projectID uuid.UUID, job *types.JobRun) {
	n.send(projectID, realtime.SSEEventJobDone, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
	})
}

func (n *jobNotifier) JobCanceled(projectID uuid.UUID, job *types.JobRun) {
	n.send(projectID, realtime.SSEEventJobCanceled, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
	})
}

// =========================
// Batch notifier
// =========================

type BatchNotifier interface {
	BatchStarted(exec *types.BatchExecution)
	BatchProgress(exec *types.BatchExecution, stage string, progress int)
	BatchCompleted(exec *types.BatchExecution)
	BatchFailed(exec *types.BatchExecution, errorMessage string)
}

type batchNotifier struct {
	emit SSEEmitter
}

func NewBatchNotifier(emit SSEEmitter) BatchNotifier {
	return &batchNotifier{emit: emit}
}

func (n *batchNotifier) send(exec *types.BatchExecution, event realtime.SSEEvent, data map[string]any) {
	if n == nil || n.emit == nil || exec == nil || exec.ProjectID == uuid.Nil {
		return
	}
	data["batchExecutionId"] = exec.ID
	data["status"] = exec.Status
	for _, ch := range []string{realtime.ProjectChannel(exec.ProjectID), realtime.BatchChannel(exec.ID)} {
		n.emit.Emit(context.Background(), realtime.SSEMessage{Channel: ch, Event: event, Data: data})
	}
}

func (n *batchNotifier) BatchStarted(exec *types.BatchExecution) {
	n.send(exec, realtime.SSEEventBatchStarted, map[string]any{})
}

func (n *batchNotifier) BatchProgress(exec *types.BatchExecution, stage string, progress int) {
	n.send(exec, realtime.SSEEventBatchProgress, map[string]any{"stage": stage, "progress": progress})
}

func (n *batchNotifier) BatchCompleted(exec *types.BatchExecution) {
	n.send(exec, realtime.SSEEventBatchCompleted, map[string]any{})
}

func (n *batchNotifier) BatchFailed(exec *types.BatchExecution, errorMessage string) {
	n.send(exec, realtime.SSEEventBatchFailed, map[string]any{"error": errorMessage})
}

// =========================
// helpers
// =========================

func safeJobID(job *types.JobRun) uuid.UUID {
	if job == nil {
		return uuid.Nil
	}
	return job.ID
}

func safeJobType(job *types.JobRun) string {
	if job == nil {
		return ""
	}
	return job.JobType
}
