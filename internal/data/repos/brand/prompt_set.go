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

type PromptSetRepo interface {
	// Upsert replaces the prompts of (project, pipeline) and bumps the version.
	Upsert(dbc dbctx.Context, set *types.PromptSet) (*types.PromptSet, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.PromptSet, error)
	Get(dbc dbctx.Context, projectID uuid.UUID, pipelineType string) (*types.PromptSet, error)
}

type promptSetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPromptSetRepo(db *gorm.DB, baseLog *logger.Logger) PromptSetRepo {
	return &promptSetRepo{db: db, log: baseLog.With("repo", "PromptSetRepo")}
}

func (r *promptSetRepo) Upsert(dbc dbctx.Context, set *types.PromptSet) (*types.PromptSet, error) {
	if set.Version <= 0 {
		set.Version = 1
	}
	if set.Source == "" {
		set.Source = "manual"
	}
	now := time.Now().UTC()
	set.UpdatedAt = now
	if set.CreatedAt.IsZero() {
		set.CreatedAt = now
	}
	err := dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}, {Name: "pipeline_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"prompts":    set.Prompts,
			"source":     set.Source,
			"version":    gorm.Expr("prompt_set.version + 1"),
			"updated_at": now,
		}),
	}).Create(set).Error
	if err != nil {
		return nil, err
	}
	return r.Get(dbc, set.ProjectID, set.PipelineType)
}

func (r *promptSetRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.PromptSet, error) {
	var out []*types.PromptSet
	err := dbc.DB(r.db).
		Where("project_id = ?", projectID).
		Order("pipeline_type ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *promptSetRepo) Get(dbc dbctx.Context, projectID uuid.UUID, pipelineType string) (*types.PromptSet, error) {
	var set types.PromptSet
	err := dbc.DB(r.db).
		Where("project_id = ? AND pipeline_type = ?", projectID, pipelineType).
		Limit(1).
		Find(&set).Error
	if err != nil {
		return nil, err
	}
	if set.ID == uuid.Nil {
		return nil, nil
	}
	return &set, nil
}
