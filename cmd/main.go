package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/brandpulse-backend/internal/app"
	"github.com/yungbote/brandpulse-backend/internal/platform/envutil"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

func main() {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log)
	if err != nil {
		log.Error("App init failed", "error", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		log.Error("App start failed", "error", err)
		shutdown(a, log)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("Server failed", "error", err)
		}
	}
	shutdown(a, log)
}

func shutdown(a *app.App, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		log.Warn("Shutdown incomplete", "error", err)
		return
	}
	log.Info("Shutdown complete")
}
