package app

import (
	"time"

	"github.com/yungbote/brandpulse-backend/internal/data/db"
	"github.com/yungbote/brandpulse-backend/internal/jobs/worker"
	"github.com/yungbote/brandpulse-backend/internal/modules/brand/analyzer"
	"github.com/yungbote/brandpulse-backend/internal/observability"
	"github.com/yungbote/brandpulse-backend/internal/platform/envutil"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/platform/neo4jdb"
	"github.com/yungbote/brandpulse-backend/internal/realtime/bus"
	"github.com/yungbote/brandpulse-backend/internal/temporalx"
)

const serviceName = "brandpulse-api"

type Config struct {
	Port      string
	RunServer bool
	RunWorker bool

	CORSOrigins     []string
	SSLRedirect     bool
	ShutdownTimeout time.Duration

	ProvidersConfig  string
	Analyzer         analyzer.Config
	BatchConcurrency int

	Postgres db.PostgresConfig
	Redis    bus.RedisConfig
	Temporal temporalx.Config
	Worker   worker.Config
	Neo4j    neo4jdb.Config
	Otel     observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:      envutil.String("PORT", "8080"),
		RunServer: envutil.Bool("RUN_SERVER", true),
		RunWorker: envutil.Bool("RUN_WORKER", true),

		CORSOrigins:     envutil.List("CORS_ALLOWED_ORIGINS", nil),
		SSLRedirect:     envutil.Bool("SSL_REDIRECT", false),
		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 20*time.Second),

		ProvidersConfig: envutil.String("PROVIDERS_CONFIG", ""),
		Analyzer: analyzer.Config{
			Mode: envutil.String("ANALYZER_MODE", analyzer.ModeBuiltin),
			URL:  envutil.String("ANALYZER_URL", ""),
		},
		BatchConcurrency: envutil.Int("BATCH_PROVIDER_CONCURRENCY", 4),

		Postgres: db.PostgresConfigFromEnv(),
		Redis:    bus.RedisConfigFromEnv(),
		Temporal: temporalx.LoadConfig(),
		Worker:   worker.ConfigFromEnv(),
		Neo4j:    neo4jdb.ConfigFromEnv(),
		Otel:     observability.OtelConfigFromEnv(serviceName),
	}
	if !cfg.RunServer && !cfg.RunWorker {
		log.Warn("RUN_SERVER and RUN_WORKER are both false; enabling the server")
		cfg.RunServer = true
	}
	log.Info("Config loaded",
		"port", cfg.Port,
		"run_server", cfg.RunServer,
		"run_worker", cfg.RunWorker,
		"analyzer_mode", cfg.Analyzer.Mode,
		"batch_concurrency", cfg.BatchConcurrency,
		"temporal", cfg.Temporal.Enabled(),
		"redis", cfg.Redis.Addr != "",
		"neo4j", cfg.Neo4j.URI != "",
	)
	return cfg
}
