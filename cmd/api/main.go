package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/symptom-intake/cmd/mainconfig"
	"github.com/wolfman30/symptom-intake/internal/api/router"
	"github.com/wolfman30/symptom-intake/internal/app/bootstrap"
	"github.com/wolfman30/symptom-intake/internal/catalog"
	appconfig "github.com/wolfman30/symptom-intake/internal/config"
	"github.com/wolfman30/symptom-intake/internal/intake"
	"github.com/wolfman30/symptom-intake/internal/webchat"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting symptom intake API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	reg, metricsHandler := setupMetrics()
	hub := webchat.NewHub(logger)
	rt, err := bootstrap.BuildRuntime(ctx, cfg, awsCfg, reg, logger, bootstrap.WithResultListener(hub))
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("failed to close runtime", "error", err)
		}
	}()

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	rt.Start(workersCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      buildRouter(cfg, rt, hub, metricsHandler, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	stopWorkers()
	rt.Dispatcher.Wait()
	logger.Info("server stopped")
}

func buildRouter(cfg *appconfig.Config, rt *bootstrap.Runtime, hub *webchat.Hub, metricsHandler http.Handler, logger *logging.Logger) http.Handler {
	return router.New(&router.Config{
		Logger:             logger,
		IntakeHandler:      intake.NewHandler(rt.Service, rt.Dispatcher, logger),
		CatalogAdmin:       catalog.NewAdminHandler(rt.Catalog, logger),
		Webchat:            webchat.NewHandler(rt.Service, rt.Dispatcher, hub, logger),
		MetricsHandler:     metricsHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ReadinessChecks:    rt.Checks,
	})
}

func setupMetrics() (*prometheus.Registry, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
