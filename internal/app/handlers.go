package app

import (
	apphttp "github.com/yungbote/brandpulse-backend/internal/http"
	httpH "github.com/yungbote/brandpulse-backend/internal/http/handlers"
	"github.com/yungbote/brandpulse-backend/internal/observability"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Realtime *httpH.RealtimeHandler
	Project  *httpH.ProjectHandler
	Batch    *httpH.BatchHandler
	Job      *httpH.JobHandler
}

func wireHandlers(log *logger.Logger, services Services, sseHub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(),
		Realtime: httpH.NewRealtimeHandler(log, sseHub),
		Project:  httpH.NewProjectHandler(services.Project, services.PromptSet),
		Batch:    httpH.NewBatchHandler(services.Batch),
		Job:      httpH.NewJobHandler(services.JobService),
	}
}

func routerConfig(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers) apphttp.RouterConfig {
	return apphttp.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     serviceName,
		Tracing:         cfg.Otel.Enabled,
		CORSOrigins:     cfg.CORSOrigins,
		SSLRedirect:     cfg.SSLRedirect,
		HealthHandler:   handlers.Health,
		RealtimeHandler: handlers.Realtime,
		ProjectHandler:  handlers.Project,
		BatchHandler:    handlers.Batch,
		JobHandler:      handlers.Job,
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers) *apphttp.Server {
	return apphttp.NewServer(routerConfig(log, cfg, metrics, handlers))
}
