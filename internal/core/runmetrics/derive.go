// Package runmetrics derives normalized cross-provider metrics from the
// heterogeneous output payloads recorded in the run ledger. Everything here
// is computed on read and never persisted; malformed or missing payload
// fields degrade to nil, never to an error.
package runmetrics

import (
	"time"

	"github.com/mjamiv/plan-viz/internal/core/domain"
)

// Derived is the read-time projection over one run's output payload.
type Derived struct {
	RunID          string     `json:"run_id"`
	Stage          string     `json:"stage"`
	StageType      string     `json:"stage_type"`
	Provider       *string    `json:"provider"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	ElapsedMS      *int64     `json:"elapsed_ms"`
	PageCount      *int       `json:"page_count"`
	WordCount      *int       `json:"word_count"`
	DetectionCount *int       `json:"detection_count"`
	TokenCount     *int       `json:"token_count"`
	AvgConfidence  *float64   `json:"avg_confidence"`
	Model          *string    `json:"model"`
	PromptKey      *string    `json:"prompt_key"`
}

// Summary names the best performers among runs of one stage type.
type Summary struct {
	FastestProvider           *string  `json:"fastest_provider"`
	FastestElapsedMS          *int64   `json:"fastest_elapsed_ms"`
	HighestConfidenceProvider *string  `json:"highest_confidence_provider"`
	HighestConfidence         *float64 `json:"highest_confidence"`
}

// DocumentReport is the metrics view over every run of a document.
type DocumentReport struct {
	DocumentID       string               `json:"document_id"`
	DocumentFilename string               `json:"document_filename"`
	TotalRuns        int                  `json:"total_runs"`
	Runs             []Derived            `json:"runs"`
	ByStage          map[string][]Derived `json:"by_stage"`
}

// ComparisonReport compares runs of one stage type for a document.
type ComparisonReport struct {
	DocumentID string    `json:"document_id"`
	StageType  string    `json:"stage_type"`
	Runs       []Derived `json:"runs"`
	Summary    *Summary  `json:"summary,omitempty"`
}

// Derive projects a run's payload into normalized metrics. It is a pure
// function of the run and tolerates any payload shape, including nil output,
// non-list pages and missing metrics.
func Derive(run *domain.ProcessRun) Derived {
	d := Derived{
		RunID:      run.ID,
		Stage:      run.Stage,
		StageType:  domain.StageType(run.Stage),
		Status:     string(run.Status),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if p := domain.StageProvider(run.Stage); p != "" {
		d.Provider = &p
	}

	output := run.Output
	metrics := asMap(output["metrics"])
	pages := asSlice(output["pages"])

	var words, detections, tokens int
	var confidences []float64
	for _, raw := range pages {
		page := asMap(raw)
		if page == nil {
			continue
		}
		pageWords := asSlice(page["words"])
		words += len(pageWords)
		confidences = appendConfidences(confidences, pageWords, "confidence")

		pageDetections := asSlice(page["detections"])
		detections += len(pageDetections)
		confidences = appendConfidences(confidences, pageDetections, "confidence")

		pageTokens := asSlice(page["tokens"])
		tokens += len(pageTokens)
		confidences = appendConfidences(confidences, pageTokens, "score")
	}

	if ms, ok := asInt64(metrics["elapsed_ms"]); ok {
		d.ElapsedMS = &ms
	} else if run.FinishedAt != nil {
		ms := run.FinishedAt.Sub(run.StartedAt).Milliseconds()
		d.ElapsedMS = &ms
	}

	if n, ok := asInt(metrics["page_count"]); ok {
		d.PageCount = &n
	} else if len(pages) > 0 {
		n := len(pages)
		d.PageCount = &n
	}

	if n, ok := asInt(metrics["word_count"]); ok {
		d.WordCount = &n
	} else if words > 0 {
		d.WordCount = &words
	}
	if detections > 0 {
		d.DetectionCount = &detections
	}
	if tokens > 0 {
		d.TokenCount = &tokens
	}

	if len(confidences) > 0 {
		var sum float64
		for _, c := range confidences {
			sum += c
		}
		avg := sum / float64(len(confidences))
		d.AvgConfidence = &avg
	} else if avg, ok := asFloat(metrics["avg_confidence"]); ok {
		d.AvgConfidence = &avg
	}

	if model, ok := output["model"].(string); ok && model != "" {
		d.Model = &model
	}
	if key, ok := output["prompt_key"].(string); ok && key != "" {
		d.PromptKey = &key
	}
	return d
}

// AggregateByStageType groups derived metrics by the stage-type prefix of the
// stage label, preserving the input order inside each group.
func AggregateByStageType(runs []domain.ProcessRun) map[string][]Derived {
	byStage := make(map[string][]Derived)
	for i := range runs {
		d := Derive(&runs[i])
		byStage[d.StageType] = append(byStage[d.StageType], d)
	}
	return byStage
}

// Compare picks the fastest and the most confident run out of a set of
// derived metrics. Ties are broken by list order; both sides of the summary
// are nil when no run carries the relevant measurement.
func Compare(metrics []Derived) Summary {
	var fastest, mostConfident *Derived
	for i := range metrics {
		m := &metrics[i]
		if m.ElapsedMS != nil && (fastest == nil || *m.ElapsedMS < *fastest.ElapsedMS) {
			fastest = m
		}
		if m.AvgConfidence != nil && (mostConfident == nil || *m.AvgConfidence > *mostConfident.AvgConfidence) {
			mostConfident = m
		}
	}

	var summary Summary
	if fastest != nil {
		summary.FastestProvider = fastest.Provider
		summary.FastestElapsedMS = fastest.ElapsedMS
	}
	if mostConfident != nil {
		summary.HighestConfidenceProvider = mostConfident.Provider
		summary.HighestConfidence = mostConfident.AvgConfidence
	}
	return summary
}

func appendConfidences(confidences []float64, items []any, key string) []float64 {
	for _, raw := range items {
		item := asMap(raw)
		if item == nil {
			continue
		}
		if v, ok := asFloat(item[key]); ok {
			confidences = append(confidences, v)
		}
	}
	return confidences
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func asInt64(v any) (int64, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}
