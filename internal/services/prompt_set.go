package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/brandpulse-backend/internal/data/repos"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/apierr"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

const (
	PromptSourceManual    = "manual"
	PromptSourceGenerated = "generated"
)

type PromptSetInput struct {
	Prompts []string `json:"prompts"`
	Source  string   `json:"source"`
}

type PromptSetService interface {
	Replace(ctx context.Context, projectID uuid.UUID, pipeline string, in PromptSetInput) (*types.PromptSet, error)
	List(ctx context.Context, projectID uuid.UUID) ([]*types.PromptSet, error)
}

type promptSetService struct {
	db       *gorm.DB
	log      *logger.Logger
	projects repos.ProjectRepo
	sets     repos.PromptSetRepo
}

func NewPromptSetService(db *gorm.DB, baseLog *logger.Logger, projects repos.ProjectRepo, sets repos.PromptSetRepo) PromptSetService {
	return &promptSetService{
		db:       db,
		log:      baseLog.With("service", "PromptSetService"),
		projects: projects,
		sets:     sets,
	}
}

func (s *promptSetService) Replace(ctx context.Context, projectID uuid.UUID, pipeline string, in PromptSetInput) (*types.PromptSet, error) {
	canonical, ok := brand.CanonicalPipeline(pipeline)
	if !ok {
		return nil, apierr.Invalid("unknown_pipeline", "unknown pipeline %q", pipeline)
	}
	prompts := make([]string, 0, len(in.Prompts))
	for _, p := range in.Prompts {
		if p = strings.TrimSpace(p); p != "" {
			prompts = append(prompts, p)
		}
	}
	if len(prompts) == 0 {
		return nil, apierr.Invalid("empty_prompts", "at least one prompt is required")
	}
	// comparison verdicts are scored per competitor
	if canonical == brand.PipelineComparison {
		for i, p := range prompts {
			if !strings.Contains(p, brand.CompetitorPlaceholder) {
				return nil, apierr.Invalid("missing_competitor_placeholder", "comparison prompt %d must contain %s", i+1, brand.CompetitorPlaceholder)
			}
		}
	}
	source := strings.ToLower(strings.TrimSpace(in.Source))
	switch source {
	case "":
		source = PromptSourceManual
	case PromptSourceManual, PromptSourceGenerated:
	default:
		return nil, apierr.Invalid("invalid_source", "unknown prompt source %q", in.Source)
	}

	dbc := dbctx.New(ctx)
	project, err := s.projects.GetByID(dbc, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apierr.NotFound("project_not_found", "project %s not found", projectID)
	}

	set, err := s.sets.Upsert(dbc, &types.PromptSet{
		ProjectID:    projectID,
		PipelineType: canonical,
		Prompts:      prompts,
		Source:       source,
	})
	if err != nil {
		return nil, fmt.Errorf("save prompt set: %w", apierr.FromDB(err, "prompt_set"))
	}
	s.log.Info("prompt set replaced", "project_id", projectID, "pipeline", canonical, "prompts", len(prompts), "version", set.Version)
	return set, nil
}

func (s *promptSetService) List(ctx context.Context, projectID uuid.UUID) ([]*types.PromptSet, error) {
	dbc := dbctx.New(ctx)
	project, err := s.projects.GetByID(dbc, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apierr.NotFound("project_not_found", "project %s not found", projectID)
	}
	return s.sets.ListByProject(dbc, projectID)
}
