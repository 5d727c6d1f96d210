package realtime

import "github.com/google/uuid"

type SSEEvent string

const (
	SSEEventJobCreated  SSEEvent = "JobCreated"
	SSEEventJobProgress SSEEvent = "JobProgress"
	SSEEventJobFailed   SSEEvent = "JobFailed"
	SSEEventJobDone     SSEEvent = "JobDone"
	SSEEventJobCanceled SSEEvent = "JobCanceled"

	SSEEventBatchStarted   SSEEvent = "BatchStarted"
	SSEEventBatchProgress  SSEEvent = "BatchProgress"
	SSEEventBatchCompleted SSEEvent = "BatchCompleted"
	SSEEventBatchFailed    SSEEvent = "BatchFailed"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// ProjectChannel is the channel clients subscribe to for a project's batch updates.
func ProjectChannel(projectID uuid.UUID) string {
	return "project:" + projectID.String()
}

// BatchChannel carries the updates of a single batch execution.
func BatchChannel(execID uuid.UUID) string {
	return "batch:" + execID.String()
}
