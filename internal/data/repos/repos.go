package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/brandpulse-backend/internal/data/repos/brand"
	"github.com/yungbote/brandpulse-backend/internal/data/repos/jobs"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

type ProjectRepo = brand.ProjectRepo
type PromptSetRepo = brand.PromptSetRepo
type BatchExecutionRepo = brand.BatchExecutionRepo
type BatchResultRepo = brand.BatchResultRepo
type ProviderResponseRepo = brand.ProviderResponseRepo

type JobRunRepo = jobs.JobRunRepo

// Repos groups every repository over one database handle.
type Repos struct {
	Project          ProjectRepo
	PromptSet        PromptSetRepo
	BatchExecution   BatchExecutionRepo
	BatchResult      BatchResultRepo
	ProviderResponse ProviderResponseRepo
	JobRun           JobRunRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Project:          brand.NewProjectRepo(db, log),
		PromptSet:        brand.NewPromptSetRepo(db, log),
		BatchExecution:   brand.NewBatchExecutionRepo(db, log),
		BatchResult:      brand.NewBatchResultRepo(db, log),
		ProviderResponse: brand.NewProviderResponseRepo(db, log),
		JobRun:           jobs.NewJobRunRepo(db, log),
	}
}
