package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/brandpulse-backend/internal/data/db"
	"github.com/yungbote/brandpulse-backend/internal/data/repos"
	apphttp "github.com/yungbote/brandpulse-backend/internal/http"
	"github.com/yungbote/brandpulse-backend/internal/observability"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  Clients
	Repos    repos.Repos
	Services Services
	SSEHub   *realtime.SSEHub
	Server   *apphttp.Server
	Metrics  *observability.Metrics

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)
	metrics := observability.Init(log)

	pg, err := db.NewPostgresService(log, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, clients)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		return nil, err
	}

	ssehub := realtime.NewSSEHub(log)
	var server *apphttp.Server
	if cfg.RunServer {
		handlerset := wireHandlers(log, serviceset, ssehub)
		server = wireServer(log, cfg, metrics, handlerset)
	}

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		SSEHub:       ssehub,
		Server:       server,
		Metrics:      metrics,
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background loops: the SSE forwarder, the job worker and metric collectors.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Cfg.RunServer && a.Clients.SSEBus != nil {
		if err := a.Clients.SSEBus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start SSE forwarder: %w", err)
		}
	}

	if a.Services.TemporalWorker != nil {
		if err := a.Services.TemporalWorker.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	}
	if w := a.Services.JobWorker; w != nil {
		w.Start(ctx)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			w.Wait()
		}()
	}

	if m := a.Metrics; m != nil {
		m.StartPostgresCollector(a.Log, a.DB)
		if a.Clients.Redis != nil {
			m.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
		}
		jobs := a.Repos.JobRun
		m.StartJobQueueCollector(ctx, a.Log, func(ctx context.Context) (map[string]int64, error) {
			return jobs.CountByStatus(dbctx.Context{Ctx: ctx})
		})
	}
	return nil
}

// Run serves HTTP until Shutdown. Worker-only processes block until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return errors.New("app not initialized")
	}
	if a.Server == nil {
		<-ctx.Done()
		return nil
	}
	a.Log.Info("Server listening", "port", a.Cfg.Port)
	return a.Server.Run(":" + a.Cfg.Port)
}

// Shutdown stops the server, waits for workers to drain and releases clients.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for job worker: %w", ctx.Err()))
	}

	a.Clients.Close()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	return errors.Join(errs...)
}
