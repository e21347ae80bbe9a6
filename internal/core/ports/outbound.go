package ports

import (
	"context"
	"io"

	"github.com/mjamiv/plan-viz/internal/core/domain"
)

// DocumentRepository persists uploaded document metadata.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// Delete removes the document and, by cascade, every run that belongs to it.
	Delete(ctx context.Context, id string) error
}

// RunRepository persists the run ledger. Runs are append-only: a row is
// created once with status=running and finalized exactly once with a
// terminal status. There is no update path after finalization.
type RunRepository interface {
	Create(ctx context.Context, run *domain.ProcessRun) error
	GetByID(ctx context.Context, id string) (*domain.ProcessRun, error)
	Finalize(ctx context.Context, run *domain.ProcessRun) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.ProcessRun, error)
	ListByStageType(ctx context.Context, documentID, stageType string) ([]domain.ProcessRun, error)
}

// ArtifactRef points at a JSON artifact written under the results directory.
type ArtifactRef struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// ArtifactStore manages the on-disk tree of uploads, rendered pages and JSON
// result artifacts, and maps stored paths to serveable URLs.
type ArtifactStore interface {
	SaveUpload(ctx context.Context, filename string, data io.Reader) (string, error)
	WriteResult(ctx context.Context, stem string, payload map[string]any) (ArtifactRef, error)
	PagesDir() string
	URLFor(path string) string
}

// RenderedPage is one rasterized PDF page on disk.
type RenderedPage struct {
	Page   int    `json:"page"`
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url,omitempty"`
}

// PageRenderer rasterizes PDF pages and reads document metadata.
type PageRenderer interface {
	Metadata(ctx context.Context, pdfPath string) (map[string]any, int, error)
	RenderPages(ctx context.Context, pdfPath, outDir string, dpi int) ([]RenderedPage, error)
	RenderPage(ctx context.Context, pdfPath string, page, dpi int) ([]byte, int, int, error)
	PageCount(ctx context.Context, pdfPath string) (int, error)
}

// Provider gateway requests. Each gateway resolves the provider name itself
// and returns ErrConfiguration for names it does not recognize, or
// ErrDependency when the backing runtime or service is unavailable. The
// returned payload is stored verbatim by the run ledger.

type OCRRequest struct {
	PDFPath  string
	Provider string
	DPI      int
}

type DetectionRequest struct {
	PDFPath  string
	Provider string
	Targets  []string
}

type LayoutRequest struct {
	PDFPath  string
	Provider string
}

type VLMRequest struct {
	PDFPath      string
	Provider     string
	Model        string
	PromptKey    string
	CustomPrompt string
	APIKey       string
	MaxPages     int
}

type OCRGateway interface {
	Analyze(ctx context.Context, req OCRRequest) (map[string]any, error)
}

type DetectionGateway interface {
	Analyze(ctx context.Context, req DetectionRequest) (map[string]any, error)
}

type LayoutGateway interface {
	Analyze(ctx context.Context, req LayoutRequest) (map[string]any, error)
}

type VLMGateway interface {
	Analyze(ctx context.Context, req VLMRequest) (map[string]any, error)
}

// EventPublisher emits run lifecycle notifications for external listeners.
// Publishing is best effort and must never fail a run.
type EventPublisher interface {
	PublishRunFinished(ctx context.Context, run *domain.ProcessRun) error
}
