package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/brandpulse-backend/internal/data/graph"
	"github.com/yungbote/brandpulse-backend/internal/data/repos"
	"github.com/yungbote/brandpulse-backend/internal/jobs/pipeline/batch_process"
	jobruntime "github.com/yungbote/brandpulse-backend/internal/jobs/runtime"
	"github.com/yungbote/brandpulse-backend/internal/jobs/worker"
	brandmod "github.com/yungbote/brandpulse-backend/internal/modules/brand"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/services"
	"github.com/yungbote/brandpulse-backend/internal/temporalx/temporalworker"
)

type Services struct {
	// Jobs + notifications
	JobNotifier   services.JobNotifier
	BatchNotifier services.BatchNotifier
	JobService    services.JobService

	// Domain
	Project   services.ProjectService
	PromptSet services.PromptSetService
	Batch     services.BatchService
	Archive   *services.ReportArchive
	Brand     brandmod.Usecases

	// Job infra; at most one of these runs.
	JobRegistry    *jobruntime.Registry
	JobWorker      *worker.Worker
	TemporalWorker *temporalworker.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, rs repos.Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	// Every process publishes through the bus; API processes forward it into the local hub.
	emitter := &services.BusEmitter{Bus: clients.SSEBus, Log: log}
	jobNotifier := services.NewJobNotifier(emitter)
	batchNotifier := services.NewBatchNotifier(emitter)

	jobService := services.NewJobService(db, log, rs.JobRun, jobNotifier, clients.Temporal, cfg.Temporal.TaskQueue)

	competition := graph.NewCompetitionGraph(clients.Neo4j, log)

	var archive *services.ReportArchive
	if clients.Reports != nil {
		archive = services.NewReportArchive(clients.Reports, log)
	}

	deps := brandmod.UsecasesDeps{
		DB:          db,
		Log:         log,
		Providers:   clients.Providers,
		Analyzer:    clients.Analyzer,
		Projects:    rs.Project,
		PromptSets:  rs.PromptSet,
		Executions:  rs.BatchExecution,
		Results:     rs.BatchResult,
		Responses:   rs.ProviderResponse,
		Notify:      batchNotifier,
		Concurrency: cfg.BatchConcurrency,
	}
	if archive != nil {
		deps.Archive = archive
	}
	if competition.Enabled() {
		deps.Graph = competition
	}
	brandUsecases := brandmod.New(deps)

	batchDeps := services.BatchServiceDeps{
		DB:         db,
		Log:        log,
		Projects:   rs.Project,
		Executions: rs.BatchExecution,
		Results:    rs.BatchResult,
		Responses:  rs.ProviderResponse,
		Jobs:       jobService,
		Providers:  clients.Providers,
		Notify:     batchNotifier,
	}
	if competition.Enabled() {
		batchDeps.Graph = competition
	}
	batchService := services.NewBatchService(batchDeps)

	projectService := services.NewProjectService(db, log, rs.Project, rs.BatchExecution)
	promptSetService := services.NewPromptSetService(db, log, rs.Project, rs.PromptSet)

	// Job registry
	jobRegistry := jobruntime.NewRegistry()
	if err := jobRegistry.Register(batch_process.New(db, log, brandUsecases)); err != nil {
		return Services{}, err
	}

	var (
		jobWorker      *worker.Worker
		temporalRunner *temporalworker.Runner
	)
	if cfg.RunWorker {
		if clients.Temporal != nil {
			w, err := temporalworker.NewRunner(log, cfg.Temporal, clients.Temporal, db, rs.JobRun, jobRegistry, jobNotifier)
			if err != nil {
				return Services{}, fmt.Errorf("init temporal worker: %w", err)
			}
			temporalRunner = w
		} else {
			jobWorker = worker.NewWorker(db, log, rs.JobRun, jobRegistry, jobNotifier, cfg.Worker)
		}
	}

	return Services{
		JobNotifier:    jobNotifier,
		BatchNotifier:  batchNotifier,
		JobService:     jobService,
		Project:        projectService,
		PromptSet:      promptSetService,
		Batch:          batchService,
		Archive:        archive,
		Brand:          brandUsecases,
		JobRegistry:    jobRegistry,
		JobWorker:      jobWorker,
		TemporalWorker: temporalRunner,
	}, nil
}
