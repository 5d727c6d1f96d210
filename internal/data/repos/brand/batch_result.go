package brand

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

type BatchResultRepo interface {
	Upsert(dbc dbctx.Context, res *types.BatchResult) error
	ListByExecution(dbc dbctx.Context, execID uuid.UUID) ([]*types.BatchResult, error)
}

type batchResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchResultRepo(db *gorm.DB, baseLog *logger.Logger) BatchResultRepo {
	return &batchResultRepo{db: db, log: baseLog.With("repo", "BatchResultRepo")}
}

func (r *batchResultRepo) Upsert(dbc dbctx.Context, res *types.BatchResult) error {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	return dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "batch_execution_id"}, {Name: "result_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"result", "created_at"}),
	}).Create(res).Error
}

func (r *batchResultRepo) ListByExecution(dbc dbctx.Context, execID uuid.UUID) ([]*types.BatchResult, error) {
	var out []*types.BatchResult
	err := dbc.DB(r.db).
		Where("batch_execution_id = ?", execID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
