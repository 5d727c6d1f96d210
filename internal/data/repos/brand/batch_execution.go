package brand

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

type BatchExecutionRepo interface {
	Create(dbc dbctx.Context, exec *types.BatchExecution) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.BatchExecution, error)
	GetActiveForProject(dbc dbctx.Context, projectID uuid.UUID) (*types.BatchExecution, error)
	GetLatestForProject(dbc dbctx.Context, projectID uuid.UUID, status string) (*types.BatchExecution, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID, limit int) ([]*types.BatchExecution, error)
	LatestByProjects(dbc dbctx.Context, projectIDs []uuid.UUID) (map[uuid.UUID]*types.BatchExecution, error)
	// UpdateUnlessTerminal never rewrites a completed, failed, or canceled row.
	UpdateUnlessTerminal(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error)
}

type batchExecutionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchExecutionRepo(db *gorm.DB, baseLog *logger.Logger) BatchExecutionRepo {
	return &batchExecutionRepo{db: db, log: baseLog.With("repo", "BatchExecutionRepo")}
}

func (r *batchExecutionRepo) Create(dbc dbctx.Context, exec *types.BatchExecution) error {
	if exec.Status == "" {
		exec.Status = brand.BatchStatusPending
	}
	return dbc.DB(r.db).Create(exec).Error
}

func (r *batchExecutionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.BatchExecution, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("id = ?", id))
}

func (r *batchExecutionRepo) GetActiveForProject(dbc dbctx.Context, projectID uuid.UUID) (*types.BatchExecution, error) {
	return r.first(dbc.DB(r.db).
		Where("project_id = ? AND status IN ?", projectID, brand.ActiveBatchStatuses).
		Order("created_at DESC"))
}

// GetLatestForProject returns the newest execution, optionally restricted to one status.
func (r *batchExecutionRepo) GetLatestForProject(dbc dbctx.Context, projectID uuid.UUID, status string) (*types.BatchExecution, error) {
	q := dbc.DB(r.db).Where("project_id = ?", projectID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return r.first(q.Order("created_at DESC"))
}

func (r *batchExecutionRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID, limit int) ([]*types.BatchExecution, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var out []*types.BatchExecution
	err := dbc.DB(r.db).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *batchExecutionRepo) LatestByProjects(dbc dbctx.Context, projectIDs []uuid.UUID) (map[uuid.UUID]*types.BatchExecution, error) {
	out := map[uuid.UUID]*types.BatchExecution{}
	if len(projectIDs) == 0 {
		return out, nil
	}
	var rows []*types.BatchExecution
	err := dbc.DB(r.db).
		Where("project_id IN ?", projectIDs).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if _, seen := out[row.ProjectID]; !seen {
			out[row.ProjectID] = row
		}
	}
	return out, nil
}

func (r *batchExecutionRepo) UpdateUnlessTerminal(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := dbc.DB(r.db).
		Model(&types.BatchExecution{}).
		Where("id = ? AND status NOT IN ?", id, brand.TerminalBatchStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *batchExecutionRepo) first(q *gorm.DB) (*types.BatchExecution, error) {
	var exec types.BatchExecution
	if err := q.Limit(1).Find(&exec).Error; err != nil {
		return nil, err
	}
	if exec.ID == uuid.Nil {
		return nil, nil
	}
	return &exec, nil
}
