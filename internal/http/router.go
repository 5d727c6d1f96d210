package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/brandpulse-backend/internal/http/handlers"
	httpMW "github.com/yungbote/brandpulse-backend/internal/http/middleware"
	"github.com/yungbote/brandpulse-backend/internal/observability"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	Tracing     bool
	CORSOrigins []string
	SSLRedirect bool

	ProjectHandler  *httpH.ProjectHandler
	BatchHandler    *httpH.BatchHandler
	JobHandler      *httpH.JobHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing {
		name := cfg.ServiceName
		if name == "" {
			name = "brandpulse-api"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.SecureHeaders(cfg.SSLRedirect))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		// Projects + prompt sets
		if cfg.ProjectHandler != nil {
			api.POST("/projects", cfg.ProjectHandler.CreateProject)
			api.GET("/projects", cfg.ProjectHandler.ListProjects)
			api.GET("/projects/:id", cfg.ProjectHandler.GetProject)
			api.PATCH("/projects/:id", cfg.ProjectHandler.UpdateProject)
			api.DELETE("/projects/:id", cfg.ProjectHandler.DeleteProject)
			api.GET("/projects/:id/prompt-sets", cfg.ProjectHandler.ListPromptSets)
			api.PUT("/projects/:id/prompt-sets/:pipeline", cfg.ProjectHandler.ReplacePromptSet)
		}

		// Batch executions
		if cfg.BatchHandler != nil {
			api.POST("/batch/process/:id", cfg.BatchHandler.StartBatch)
			api.GET("/batch-executions/:id", cfg.BatchHandler.GetBatchExecution)
			api.POST("/batch-executions/:id/cancel", cfg.BatchHandler.CancelBatchExecution)
			api.GET("/batch-executions/:id/responses", cfg.BatchHandler.ListResponses)
			api.GET("/batch-executions/:id/report", cfg.BatchHandler.GetReport)
			api.GET("/batch-executions/:id/chart.png", cfg.BatchHandler.GetChart)
			api.GET("/projects/:id/batch-executions", cfg.BatchHandler.ListBatchExecutions)
			api.GET("/projects/:id/competition-graph", cfg.BatchHandler.GetCompetitionGraph)
		}

		// Job
		if cfg.JobHandler != nil {
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
			api.POST("/jobs/:id/cancel", cfg.JobHandler.CancelJob)
		}
	}

	return r
}
