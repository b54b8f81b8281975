package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fortuna/pomona/internal/api/rest"
	"github.com/fortuna/pomona/internal/app"
	"github.com/fortuna/pomona/internal/config"
	"github.com/fortuna/pomona/internal/logging"
)

const (
	serviceName    = "pomona"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "json").WithError(err).Fatal("Failed to load configuration")
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.Infof("Starting %s v%s - projection refresh service", serviceName, serviceVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to start")
	}
	defer a.Close()

	if cfg.Scheduler.Enabled {
		if err := a.Orchestrator.Start(ctx); err != nil {
			log.WithError(err).Fatal("Failed to start scheduler")
		}
		log.WithField("timezone", a.Location.String()).Info("✓ Scheduler started")
	} else {
		log.Info("Scheduler disabled, jobs run only on demand")
	}

	insightSvc, projectionSvc, refreshSvc, healthSvc := a.Services()
	handler := rest.NewHandler(insightSvc, projectionSvc, refreshSvc, healthSvc, log)
	restServer := rest.NewServer(cfg.RESTPort, handler, a.Metrics, log)

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("REST API listening on :%s", cfg.RESTPort)
		if err := restServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-serverErr:
		log.WithError(err).Error("REST server error")
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("REST API server shutdown error")
	}
	if cfg.Scheduler.Enabled {
		a.Orchestrator.Stop()
	}

	log.Info("Pomona stopped")
	if exitCode != 0 {
		a.Close()
		os.Exit(exitCode)
	}
}
