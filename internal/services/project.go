package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/brandpulse-backend/internal/data/repos"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/apierr"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

type ProjectInput struct {
	Name        string   `json:"name"`
	Industry    string   `json:"industry"`
	Market      string   `json:"market"`
	Website     string   `json:"website"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Competitors []string `json:"competitors"`
	Attributes  []string `json:"attributes"`
	Providers   []string `json:"providers"`
}

// ProjectPatch updates only the fields that are set.
type ProjectPatch struct {
	Name        *string   `json:"name"`
	Industry    *string   `json:"industry"`
	Market      *string   `json:"market"`
	Website     *string   `json:"website"`
	Description *string   `json:"description"`
	Language    *string   `json:"language"`
	Competitors *[]string `json:"competitors"`
	Attributes  *[]string `json:"attributes"`
	Providers   *[]string `json:"providers"`
}

type BatchSummary struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type ProjectSummary struct {
	*types.Project
	LatestBatch *BatchSummary `json:"latestBatch,omitempty"`
}

type ProjectService interface {
	Create(ctx context.Context, in ProjectInput) (*types.Project, error)
	List(ctx context.Context, limit, offset int) ([]ProjectSummary, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Project, error)
	Update(ctx context.Context, id uuid.UUID, patch ProjectPatch) (*types.Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type projectService struct {
	db         *gorm.DB
	log        *logger.Logger
	projects   repos.ProjectRepo
	executions repos.BatchExecutionRepo
}

func NewProjectService(db *gorm.DB, baseLog *logger.Logger, projects repos.ProjectRepo, executions repos.BatchExecutionRepo) ProjectService {
	return &projectService{
		db:         db,
		log:        baseLog.With("service", "ProjectService"),
		projects:   projects,
		executions: executions,
	}
}

func (s *projectService) Create(ctx context.Context, in ProjectInput) (*types.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apierr.Invalid("missing_name", "project name is required")
	}
	p := &types.Project{
		Name:        name,
		Industry:    strings.TrimSpace(in.Industry),
		Market:      strings.TrimSpace(in.Market),
		Website:     strings.TrimSpace(in.Website),
		Description: strings.TrimSpace(in.Description),
		Language:    strings.TrimSpace(in.Language),
		Competitors: CleanNames(in.Competitors),
		Attributes:  CleanNames(in.Attributes),
		Providers:   CleanNames(in.Providers),
	}
	if err := s.projects.Create(dbctx.New(ctx), p); err != nil {
		return nil, apierr.FromDB(err, "project")
	}
	s.log.Info("project created", "project_id", p.ID, "name", p.Name)
	return p, nil
}

func (s *projectService) List(ctx context.Context, limit, offset int) ([]ProjectSummary, error) {
	dbc := dbctx.New(ctx)
	projects, err := s.projects.List(dbc, limit, offset)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	latest, err := s.executions.LatestByProjects(dbc, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		sum := ProjectSummary{Project: p}
		if e := latest[p.ID]; e != nil {
			sum.LatestBatch = &BatchSummary{
				ID:          e.ID,
				Status:      e.Status,
				Progress:    e.Progress,
				CreatedAt:   e.CreatedAt,
				CompletedAt: e.CompletedAt,
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *projectService) Get(ctx context.Context, id uuid.UUID) (*types.Project, error) {
	p, err := s.projects.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apierr.NotFound("project_not_found", "project %s not found", id)
	}
	return p, nil
}

func (s *projectService) Update(ctx context.Context, id uuid.UUID, patch ProjectPatch) (*types.Project, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apierr.Invalid("missing_name", "project name cannot be empty")
		}
		updates["name"] = name
	}
	setString := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	setString("industry", patch.Industry)
	setString("market", patch.Market)
	setString("website", patch.Website)
	setString("description", patch.Description)
	setString("language", patch.Language)

	setList := func(col string, v *[]string) {
		if v != nil {
			updates[col] = datatypes.JSONSlice[string](CleanNames(*v))
		}
	}
	setList("competitors", patch.Competitors)
	setList("attributes", patch.Attributes)
	setList("providers", patch.Providers)

	if len(updates) > 0 {
		if err := s.projects.UpdateFields(dbctx.New(ctx), id, updates); err != nil {
			return nil, apierr.FromDB(err, "project")
		}
	}
	return s.Get(ctx, id)
}

func (s *projectService) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := s.projects.Delete(dbctx.New(ctx), id)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.NotFound("project_not_found", "project %s not found", id)
	}
	s.log.Info("project deleted", "project_id", id)
	return nil
}

// CleanNames trims, drops blanks, and dedupes case-insensitively keeping first spelling.
func CleanNames(in []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
