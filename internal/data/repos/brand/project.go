package brand

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

type ProjectRepo interface {
	Create(dbc dbctx.Context, p *types.Project) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error)
	List(dbc dbctx.Context, limit, offset int) ([]*types.Project, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) (bool, error)
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{db: db, log: baseLog.With("repo", "ProjectRepo")}
}

func (r *projectRepo) Create(dbc dbctx.Context, p *types.Project) error {
	return dbc.DB(r.db).Create(p).Error
}

// GetByID returns nil, nil when the project does not exist.
func (r *projectRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var p types.Project
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

func (r *projectRepo) List(dbc dbctx.Context, limit, offset int) ([]*types.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*types.Project
	err := dbc.DB(r.db).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return dbc.DB(r.db).Model(&types.Project{}).Where("id = ?", id).Updates(updates).Error
}

func (r *projectRepo) Delete(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	res := dbc.DB(r.db).Where("id = ?", id).Delete(&types.Project{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
