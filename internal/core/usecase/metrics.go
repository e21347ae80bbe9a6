package usecase

import (
	"context"
	"fmt"

	"github.com/mjamiv/plan-viz/internal/core/ports"
	"github.com/mjamiv/plan-viz/internal/core/runmetrics"
)

type MetricsUseCase struct {
	docs ports.DocumentRepository
	runs ports.RunRepository
}

func NewMetricsUseCase(docs ports.DocumentRepository, runs ports.RunRepository) *MetricsUseCase {
	return &MetricsUseCase{docs: docs, runs: runs}
}

func (uc *MetricsUseCase) DocumentMetrics(ctx context.Context, documentID string) (*runmetrics.DocumentReport, error) {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	runs, err := uc.runs.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	derived := make([]runmetrics.Derived, 0, len(runs))
	for i := range runs {
		derived = append(derived, runmetrics.Derive(&runs[i]))
	}
	return &runmetrics.DocumentReport{
		DocumentID:       doc.ID,
		DocumentFilename: doc.Filename,
		TotalRuns:        len(runs),
		Runs:             derived,
		ByStage:          runmetrics.AggregateByStageType(runs),
	}, nil
}

func (uc *MetricsUseCase) CompareRuns(ctx context.Context, documentID, stageType string) (*runmetrics.ComparisonReport, error) {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	runs, err := uc.runs.ListByStageType(ctx, doc.ID, stageType)
	if err != nil {
		return nil, fmt.Errorf("list runs by stage type: %w", err)
	}

	report := &runmetrics.ComparisonReport{
		DocumentID: doc.ID,
		StageType:  stageType,
		Runs:       make([]runmetrics.Derived, 0, len(runs)),
	}
	if len(runs) == 0 {
		return report, nil
	}
	for i := range runs {
		report.Runs = append(report.Runs, runmetrics.Derive(&runs[i]))
	}
	summary := runmetrics.Compare(report.Runs)
	report.Summary = &summary
	return report, nil
}
