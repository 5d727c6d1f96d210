package brand

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	BatchStatusPending   = "pending"
	BatchStatusRunning   = "running"
	BatchStatusCompleted = "completed"
	BatchStatusFailed    = "failed"
	BatchStatusCanceled  = "canceled"
)

// ActiveBatchStatuses are the statuses that block a new execution for the same project.
var ActiveBatchStatuses = []string{BatchStatusPending, BatchStatusRunning}

// TerminalBatchStatuses never transition again.
var TerminalBatchStatuses = []string{BatchStatusCompleted, BatchStatusFailed, BatchStatusCanceled}

func IsTerminalBatchStatus(status string) bool {
	for _, s := range TerminalBatchStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type BatchExecution struct {
	ID          uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID   uuid.UUID                   `gorm:"type:uuid;not null;index" json:"projectId"`
	JobRunID    *uuid.UUID                  `gorm:"type:uuid;column:job_run_id;index" json:"jobRunId,omitempty"`
	Status      string                      `gorm:"column:status;not null;index" json:"status"`
	Stage       string                      `gorm:"column:stage" json:"stage,omitempty"`
	Progress    int                         `gorm:"column:progress;not null;default:0" json:"progress"`
	Pipelines   datatypes.JSONSlice[string] `gorm:"column:pipelines" json:"pipelines"`
	Providers   datatypes.JSONSlice[string] `gorm:"column:providers" json:"providers"`
	Error       string                      `gorm:"column:error" json:"error,omitempty"`
	StartedAt   *time.Time                  `gorm:"column:started_at" json:"startedAt,omitempty"`
	CompletedAt *time.Time                  `gorm:"column:completed_at" json:"completedAt,omitempty"`
	CreatedAt   time.Time                   `gorm:"not null;index" json:"createdAt"`
	UpdatedAt   time.Time                   `gorm:"not null" json:"updatedAt"`
}

func (BatchExecution) TableName() string { return "batch_execution" }

func (b *BatchExecution) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// BatchResult is the analysis output of one pipeline for one execution.
type BatchResult struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BatchExecutionID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_batch_result_exec_type" json:"batchExecutionId"`
	ResultType       string         `gorm:"column:result_type;not null;uniqueIndex:idx_batch_result_exec_type" json:"resultType"`
	Result           datatypes.JSON `gorm:"column:result" json:"result"`
	CreatedAt        time.Time      `gorm:"not null" json:"createdAt"`
}

func (BatchResult) TableName() string { return "batch_result" }

func (r *BatchResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ProviderResponse is one raw answer from an LLM provider to one expanded prompt.
type ProviderResponse struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BatchExecutionID uuid.UUID `gorm:"type:uuid;not null;index" json:"batchExecutionId"`
	PipelineType     string    `gorm:"column:pipeline_type;not null;index" json:"pipelineType"`
	Provider         string    `gorm:"column:provider;not null" json:"provider"`
	Model            string    `gorm:"column:model" json:"model"`
	Prompt           string    `gorm:"column:prompt" json:"prompt"`
	PromptIndex      int       `gorm:"column:prompt_index" json:"promptIndex"`
	Subject          string    `gorm:"column:subject" json:"subject,omitempty"`
	ResponseText     string    `gorm:"column:response_text" json:"responseText"`
	Error            string    `gorm:"column:error" json:"error,omitempty"`
	InputTokens      int       `gorm:"column:input_tokens" json:"inputTokens"`
	OutputTokens     int       `gorm:"column:output_tokens" json:"outputTokens"`
	LatencyMS        int64     `gorm:"column:latency_ms" json:"latencyMs"`
	CreatedAt        time.Time `gorm:"not null" json:"createdAt"`
}

func (ProviderResponse) TableName() string { return "provider_response" }

func (r *ProviderResponse) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Failed reports whether the provider call produced no usable text.
func (r *ProviderResponse) Failed() bool {
	return r.Error != "" || r.ResponseText == ""
}
