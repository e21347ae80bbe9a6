package usecase

import (
	"context"
	"fmt"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/core/ports"
	"github.com/mjamiv/plan-viz/internal/core/runmetrics"
)

type ResultsUseCase struct {
	docs ports.DocumentRepository
	runs ports.RunRepository
}

func NewResultsUseCase(docs ports.DocumentRepository, runs ports.RunRepository) *ResultsUseCase {
	return &ResultsUseCase{docs: docs, runs: runs}
}

func (uc *ResultsUseCase) Results(ctx context.Context, documentID string) (*domain.DocumentResults, error) {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	runs, err := uc.runs.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return &domain.DocumentResults{Document: doc, Runs: runs}, nil
}

// ExportRows flattens every run of a document into derived metric rows for
// the CSV/JSON/XLSX exports.
func (uc *ResultsUseCase) ExportRows(ctx context.Context, documentID string) (*domain.Document, []runmetrics.Derived, error) {
	results, err := uc.Results(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	rows := make([]runmetrics.Derived, 0, len(results.Runs))
	for i := range results.Runs {
		rows = append(rows, runmetrics.Derive(&results.Runs[i]))
	}
	return results.Document, rows, nil
}

func (uc *ResultsUseCase) DeleteDocument(ctx context.Context, documentID string) error {
	if err := uc.docs.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
