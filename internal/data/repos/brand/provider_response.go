package brand

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

type ProviderResponseRepo interface {
	CreateBatch(dbc dbctx.Context, rows []*types.ProviderResponse) error
	ListByExecution(dbc dbctx.Context, execID uuid.UUID, pipelineType string) ([]*types.ProviderResponse, error)
	DeleteByExecutionPipeline(dbc dbctx.Context, execID uuid.UUID, pipelineType string) error
}

type providerResponseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProviderResponseRepo(db *gorm.DB, baseLog *logger.Logger) ProviderResponseRepo {
	return &providerResponseRepo{db: db, log: baseLog.With("repo", "ProviderResponseRepo")}
}

func (r *providerResponseRepo) CreateBatch(dbc dbctx.Context, rows []*types.ProviderResponse) error {
	if len(rows) == 0 {
		return nil
	}
	return dbc.DB(r.db).CreateInBatches(rows, 100).Error
}

func (r *providerResponseRepo) ListByExecution(dbc dbctx.Context, execID uuid.UUID, pipelineType string) ([]*types.ProviderResponse, error) {
	q := dbc.DB(r.db).Where("batch_execution_id = ?", execID)
	if pipelineType != "" {
		q = q.Where("pipeline_type = ?", pipelineType)
	}
	var out []*types.ProviderResponse
	if err := q.Order("pipeline_type ASC, prompt_index ASC, provider ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByExecutionPipeline clears a pipeline's rows so a retried job does not duplicate them.
func (r *providerResponseRepo) DeleteByExecutionPipeline(dbc dbctx.Context, execID uuid.UUID, pipelineType string) error {
	return dbc.DB(r.db).
		Where("batch_execution_id = ? AND pipeline_type = ?", execID, pipelineType).
		Delete(&types.ProviderResponse{}).Error
}
