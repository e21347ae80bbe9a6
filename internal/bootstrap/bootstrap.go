package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mjamiv/plan-viz/internal/config"
	"github.com/mjamiv/plan-viz/internal/core/ports"
	"github.com/mjamiv/plan-viz/internal/core/usecase"
	"github.com/mjamiv/plan-viz/internal/infrastructure/events/nats"
	"github.com/mjamiv/plan-viz/internal/infrastructure/provider/detect"
	"github.com/mjamiv/plan-viz/internal/infrastructure/provider/inference"
	"github.com/mjamiv/plan-viz/internal/infrastructure/provider/layout"
	"github.com/mjamiv/plan-viz/internal/infrastructure/provider/ocr"
	"github.com/mjamiv/plan-viz/internal/infrastructure/provider/vlm"
	"github.com/mjamiv/plan-viz/internal/infrastructure/render"
	"github.com/mjamiv/plan-viz/internal/infrastructure/repository/postgres"
	"github.com/mjamiv/plan-viz/internal/infrastructure/resilience"
	"github.com/mjamiv/plan-viz/internal/infrastructure/storage/localfs"
	"github.com/mjamiv/plan-viz/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	FilesDir string

	IngestUC  ports.DocumentIngestor
	AnalyzeUC ports.DocumentAnalyzer
	ResultsUC ports.ResultsReader
	MetricsUC ports.MetricsReader

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	docs := postgres.NewDocumentRepository(db)
	if err := docs.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	runs := postgres.NewRunRepository(db)

	store, err := localfs.New(cfg.DataDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init artifact store: %w", err)
	}
	if cfg.ResultsRetentionDays > 0 {
		store.CleanupResults(cfg.ResultsRetentionDays)
	}

	renderer := render.NewFitzRenderer()
	engine := ocr.NewTesseractEngine(cfg.TesseractPath, cfg.TesseractLang)
	guard := resilience.NewGuard(resilience.DefaultConfig())

	detectClient := inference.NewClient(cfg.DetectionURL, guard)
	layoutClient := inference.NewClient(cfg.LayoutURL, guard)
	ollamaClient := inference.NewClient(cfg.OllamaURL, guard)
	openaiClient := inference.NewClient(cfg.OpenAIURL, guard)

	catalog, err := vlm.LoadCatalog(cfg.VLMPromptsPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load prompt catalog: %w", err)
	}

	ocrGateway := ocr.NewGateway(renderer, engine)
	detectGateway := detect.NewGateway(renderer, detectClient, detect.Config{RenderDPI: cfg.RenderDPI})
	layoutGateway := layout.NewGateway(renderer, engine, layoutClient, layout.Config{RenderDPI: cfg.RenderDPI})
	vlmGateway := vlm.NewGateway(
		renderer,
		catalog,
		vlm.NewOllamaBackend(ollamaClient),
		vlm.NewOpenAIBackend(openaiClient),
		vlm.Config{DefaultMaxPages: cfg.VLMMaxPages, RenderDPI: cfg.RenderDPI},
	)

	httpMetrics := metrics.NewHTTPServerMetrics("api")

	var events ports.EventPublisher
	var publisher *nats.Publisher
	if cfg.NATSURL != "" {
		publisher, err = nats.New(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logger.Warn("run event publishing disabled", "error", err)
		} else {
			events = publisher
		}
	}

	ingestUC := usecase.NewUploadDocumentUseCase(docs, store, renderer)
	analyzeUC := usecase.NewAnalyzeDocumentUseCase(usecase.AnalyzeDeps{
		Docs:      docs,
		Runs:      runs,
		Artifacts: store,
		Renderer:  renderer,
		OCR:       ocrGateway,
		Detection: detectGateway,
		Layout:    layoutGateway,
		VLM:       vlmGateway,
		Events:    events,
		Observer:  httpMetrics,
		RenderDPI: cfg.RenderDPI,
		Logger:    logger,
	})
	resultsUC := usecase.NewResultsUseCase(docs, runs)
	metricsUC := usecase.NewMetricsUseCase(docs, runs)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: httpMetrics,

		FilesDir: store.BaseDir(),

		IngestUC:  ingestUC,
		AnalyzeUC: analyzeUC,
		ResultsUC: resultsUC,
		MetricsUC: metricsUC,

		closeFn: func() {
			if publisher != nil {
				publisher.Close()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
