package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/core/ports"
)

// RunObserver receives terminal run transitions for operational metrics.
type RunObserver interface {
	ObserveRun(stageType, provider string, status domain.RunStatus, elapsed time.Duration)
}

// AnalyzeDocumentUseCase is the run ledger orchestrator. Every method
// resolves the document, opens a run row with status=running, invokes exactly
// one provider gateway, and finalizes the run with the provider payload (or
// the error message on failure). Provider configuration and dependency
// errors never propagate to the caller: they become a failed run whose
// descriptor is still returned.
type AnalyzeDocumentUseCase struct {
	docs      ports.DocumentRepository
	runs      ports.RunRepository
	artifacts ports.ArtifactStore
	renderer  ports.PageRenderer

	ocr    ports.OCRGateway
	detect ports.DetectionGateway
	layout ports.LayoutGateway
	vlm    ports.VLMGateway

	events   ports.EventPublisher
	observer RunObserver
	dpi      int
	logger   *slog.Logger
}

type AnalyzeDeps struct {
	Docs      ports.DocumentRepository
	Runs      ports.RunRepository
	Artifacts ports.ArtifactStore
	Renderer  ports.PageRenderer
	OCR       ports.OCRGateway
	Detection ports.DetectionGateway
	Layout    ports.LayoutGateway
	VLM       ports.VLMGateway
	Events    ports.EventPublisher
	Observer  RunObserver
	RenderDPI int
	Logger    *slog.Logger
}

func NewAnalyzeDocumentUseCase(deps AnalyzeDeps) *AnalyzeDocumentUseCase {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RenderDPI <= 0 {
		deps.RenderDPI = 200
	}
	return &AnalyzeDocumentUseCase{
		docs:      deps.Docs,
		runs:      deps.Runs,
		artifacts: deps.Artifacts,
		renderer:  deps.Renderer,
		ocr:       deps.OCR,
		detect:    deps.Detection,
		layout:    deps.Layout,
		vlm:       deps.VLM,
		events:    deps.Events,
		observer:  deps.Observer,
		dpi:       deps.RenderDPI,
		logger:    deps.Logger,
	}
}

func (uc *AnalyzeDocumentUseCase) RenderPages(ctx context.Context, documentID string) (*domain.ProcessRun, error) {
	return uc.execute(ctx, documentID, "render", func(ctx context.Context, doc *domain.Document) (map[string]any, error) {
		pages, err := uc.renderer.RenderPages(ctx, doc.StoredPath, uc.artifacts.PagesDir(), uc.dpi)
		if err != nil {
			return nil, err
		}
		rendered := make([]any, 0, len(pages))
		for _, page := range pages {
			page.URL = uc.artifacts.URLFor(page.Path)
			rendered = append(rendered, map[string]any{
				"page":   page.Page,
				"path":   page.Path,
				"width":  page.Width,
				"height": page.Height,
				"url":    page.URL,
			})
		}
		return map[string]any{"pages": rendered}, nil
	})
}

func (uc *AnalyzeDocumentUseCase) RunOCR(ctx context.Context, documentID string, opts ports.AnalysisOptions) (*domain.ProcessRun, error) {
	stage := fmt.Sprintf("ocr:%s", opts.Provider)
	return uc.execute(ctx, documentID, stage, func(ctx context.Context, doc *domain.Document) (map[string]any, error) {
		return uc.ocr.Analyze(ctx, ports.OCRRequest{
			PDFPath:  doc.StoredPath,
			Provider: opts.Provider,
			DPI:      uc.dpi,
		})
	})
}

func (uc *AnalyzeDocumentUseCase) RunDetection(ctx context.Context, documentID string, opts ports.AnalysisOptions) (*domain.ProcessRun, error) {
	stage := fmt.Sprintf("detect:%s", opts.Provider)
	return uc.execute(ctx, documentID, stage, func(ctx context.Context, doc *domain.Document) (map[string]any, error) {
		return uc.detect.Analyze(ctx, ports.DetectionRequest{
			PDFPath:  doc.StoredPath,
			Provider: opts.Provider,
			Targets:  opts.Targets,
		})
	})
}

func (uc *AnalyzeDocumentUseCase) RunLayout(ctx context.Context, documentID string, opts ports.AnalysisOptions) (*domain.ProcessRun, error) {
	stage := fmt.Sprintf("layout:%s", opts.Provider)
	return uc.execute(ctx, documentID, stage, func(ctx context.Context, doc *domain.Document) (map[string]any, error) {
		return uc.layout.Analyze(ctx, ports.LayoutRequest{
			PDFPath:  doc.StoredPath,
			Provider: opts.Provider,
		})
	})
}

func (uc *AnalyzeDocumentUseCase) RunVLM(ctx context.Context, documentID string, opts ports.AnalysisOptions) (*domain.ProcessRun, error) {
	stage := fmt.Sprintf("vlm:%s:%s", opts.Model, opts.PromptKey)
	return uc.execute(ctx, documentID, stage, func(ctx context.Context, doc *domain.Document) (map[string]any, error) {
		return uc.vlm.Analyze(ctx, ports.VLMRequest{
			PDFPath:      doc.StoredPath,
			Provider:     opts.Provider,
			Model:        opts.Model,
			PromptKey:    opts.PromptKey,
			CustomPrompt: opts.CustomPrompt,
			APIKey:       opts.APIKey,
			MaxPages:     opts.MaxPages,
		})
	})
}

// execute runs the shared start/invoke/finalize lifecycle. The creation write
// and the terminal write are two sequential persistence operations; a crash
// between them leaves the run in "running" forever, which is accepted.
func (uc *AnalyzeDocumentUseCase) execute(
	ctx context.Context,
	documentID, stage string,
	invoke func(context.Context, *domain.Document) (map[string]any, error),
) (*domain.ProcessRun, error) {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}

	run := &domain.ProcessRun{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Stage:      stage,
		Status:     domain.StatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := uc.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	output, invokeErr := invoke(ctx, doc)
	if invokeErr != nil {
		output = map[string]any{"error": invokeErr.Error()}
		run.Status = domain.StatusFailed
		uc.logger.Warn("run failed",
			"run_id", run.ID,
			"document_id", doc.ID,
			"stage", stage,
			"error", invokeErr,
		)
	} else {
		if output == nil {
			output = map[string]any{}
		}
		run.Status = domain.StatusCompleted
	}

	finished := time.Now().UTC()
	run.FinishedAt = &finished

	// The artifact is written for failed runs too, so the error snapshot
	// survives on disk next to the relational record.
	stem := fmt.Sprintf("run_%s_%s", run.ID, domain.SanitizeStage(stage))
	if ref, artErr := uc.artifacts.WriteResult(ctx, stem, output); artErr != nil {
		uc.logger.Error("write run artifact", "run_id", run.ID, "error", artErr)
	} else {
		output["artifact"] = map[string]any{"path": ref.Path, "url": ref.URL}
	}

	run.Output = output
	if err := uc.runs.Finalize(ctx, run); err != nil {
		return nil, fmt.Errorf("finalize run: %w", err)
	}

	if uc.observer != nil {
		uc.observer.ObserveRun(domain.StageType(stage), domain.StageProvider(stage), run.Status, finished.Sub(run.StartedAt))
	}
	if uc.events != nil {
		if err := uc.events.PublishRunFinished(ctx, run); err != nil {
			uc.logger.Warn("publish run event", "run_id", run.ID, "error", err)
		}
	}
	return run, nil
}
