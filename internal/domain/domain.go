package domain

import (
	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
	"github.com/yungbote/brandpulse-backend/internal/domain/jobs"
)

type Project = brand.Project
type PromptSet = brand.PromptSet
type BatchExecution = brand.BatchExecution
type BatchResult = brand.BatchResult
type ProviderResponse = brand.ProviderResponse

type JobRun = jobs.JobRun

// Models lists every persisted model for migrations.
func Models() []any {
	return []any{
		&Project{},
		&PromptSet{},
		&BatchExecution{},
		&BatchResult{},
		&ProviderResponse{},
		&JobRun{},
	}
}
