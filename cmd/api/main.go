package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/mjamiv/plan-viz/internal/adapters/http"
	"github.com/mjamiv/plan-viz/internal/bootstrap"
	"github.com/mjamiv/plan-viz/internal/config"
	"github.com/mjamiv/plan-viz/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger("api", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		app.IngestUC,
		app.AnalyzeUC,
		app.ResultsUC,
		app.MetricsUC,
		httpadapter.Defaults{
			OpenAIAPIKey: cfg.OpenAIAPIKey,
			VLMMaxPages:  cfg.VLMMaxPages,
		},
		app.FilesDir,
		app.Metrics.Handler(),
		app.Metrics.ObserveUploadSize,
	)

	handler := app.Metrics.Middleware("api", router.Handler())
	handler = httpadapter.Chain(handler, logger, cfg.AllowedOrigins, cfg.RateLimitRPS, cfg.RateLimitBurst)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: handler,
		// Analysis requests block on model inference, so the write timeout
		// has to outlast the 120s provider client timeout.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown", "error", err)
	}
}
