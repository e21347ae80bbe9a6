package ports

import (
	"context"
	"io"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/core/runmetrics"
)

// DocumentIngestor is the inbound contract for PDF upload.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.Document, error)
}

// AnalysisOptions carries the per-request provider selection for the four
// analysis endpoints. Fields not relevant to a capability are ignored by it.
type AnalysisOptions struct {
	Provider     string
	Targets      []string
	Model        string
	PromptKey    string
	CustomPrompt string
	APIKey       string
	MaxPages     int
}

// DocumentAnalyzer is the inbound contract for creating runs. Every method
// returns the run descriptor, including failed runs: provider configuration
// and dependency errors become a failed run, not a transport error.
type DocumentAnalyzer interface {
	RenderPages(ctx context.Context, documentID string) (*domain.ProcessRun, error)
	RunOCR(ctx context.Context, documentID string, opts AnalysisOptions) (*domain.ProcessRun, error)
	RunDetection(ctx context.Context, documentID string, opts AnalysisOptions) (*domain.ProcessRun, error)
	RunLayout(ctx context.Context, documentID string, opts AnalysisOptions) (*domain.ProcessRun, error)
	RunVLM(ctx context.Context, documentID string, opts AnalysisOptions) (*domain.ProcessRun, error)
}

// ResultsReader exposes stored documents, their runs and flattened exports.
type ResultsReader interface {
	Results(ctx context.Context, documentID string) (*domain.DocumentResults, error)
	ExportRows(ctx context.Context, documentID string) (*domain.Document, []runmetrics.Derived, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// MetricsReader derives and compares run metrics on read.
type MetricsReader interface {
	DocumentMetrics(ctx context.Context, documentID string) (*runmetrics.DocumentReport, error)
	CompareRuns(ctx context.Context, documentID, stageType string) (*runmetrics.ComparisonReport, error)
}
