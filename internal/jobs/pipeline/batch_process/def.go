package batch_process

import (
	"gorm.io/gorm"

	brandmod "github.com/yungbote/brandpulse-backend/internal/modules/brand"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/services"
)

// JobType is the job_run.job_type this handler claims.
const JobType = services.BatchProcessJobType

type Pipeline struct {
	db  *gorm.DB
	log *logger.Logger

	batches brandmod.Usecases
}

func New(db *gorm.DB, baseLog *logger.Logger, batches brandmod.Usecases) *Pipeline {
	log := baseLog.With("job", JobType)
	return &Pipeline{
		db:      db,
		log:     log,
		batches: batches.WithLog(log),
	}
}

func (p *Pipeline) Type() string { return JobType }
