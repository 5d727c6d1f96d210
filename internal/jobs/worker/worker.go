package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/brandpulse-backend/internal/data/repos"
	"github.com/yungbote/brandpulse-backend/internal/jobs/runtime"
	"github.com/yungbote/brandpulse-backend/internal/observability"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/platform/envutil"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/services"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
	Heartbeat    time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Concurrency:  envutil.Int("WORKER_CONCURRENCY", 4),
		PollInterval: envutil.Duration("WORKER_POLL_INTERVAL", time.Second),
		MaxAttempts:  envutil.Int("JOB_MAX_ATTEMPTS", 1),
		RetryDelay:   envutil.Duration("JOB_RETRY_DELAY", 30*time.Second),
		StaleRunning: envutil.Duration("JOB_STALE_RUNNING", 30*time.Minute),
		Heartbeat:    30 * time.Second,
	}
}

func (c Config) normalized() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 30 * time.Minute
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 30 * time.Second
	}
	return c
}

// Worker polls job_run for claimable rows and runs them through the registry.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	cfg      Config

	wg sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify services.JobNotifier, cfg Config) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		cfg:      cfg.normalized(),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "max_attempts", w.cfg.MaxAttempts)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

// Wait blocks until every loop has observed ctx cancellation.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			for w.RunOnce(ctx) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job ran.
func (w *Worker) RunOnce(ctx context.Context) bool {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx, Tx: w.db}, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("ClaimNextRunnable failed", "error", err)
		}
		return false
	}
	if job == nil {
		return false
	}

	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return true
	}

	stop := w.startHeartbeat(ctx, jc)
	defer stop()

	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
				jc.Fail("panic", fmt.Errorf("panic: unexpected error"))
			}
		}()
		if runErr := h.Run(jc); runErr != nil {
			jc.Fail("run", runErr)
		}
	}()
	if m := observability.Current(); m != nil {
		m.ObserveJob(job.JobType, jc.Job.Status, time.Since(start))
	}
	return true
}

func (w *Worker) startHeartbeat(ctx context.Context, jc *runtime.Context) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(w.cfg.Heartbeat)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				_ = w.repo.Heartbeat(dbctx.Context{Ctx: ctx, Tx: w.db}, jc.Job.ID)
			}
		}
	}()
	return func() { close(done) }
}
