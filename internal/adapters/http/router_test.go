package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/core/ports"
	"github.com/mjamiv/plan-viz/internal/core/runmetrics"
)

type fakeIngestor struct{}

func (fakeIngestor) Upload(_ context.Context, filename string, _ io.Reader) (*domain.Document, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return nil, domain.Errorf(domain.ErrInvalidInput, "only PDF uploads are supported")
	}
	return &domain.Document{ID: "doc-1", Filename: filename, PageCount: 2}, nil
}

type fakeAnalyzer struct {
	lastOpts ports.AnalysisOptions
}

func (f *fakeAnalyzer) run(documentID, stage string, opts ports.AnalysisOptions) (*domain.ProcessRun, error) {
	if documentID != "doc-1" {
		return nil, domain.Errorf(domain.ErrDocumentNotFound, "document %s not found", documentID)
	}
	f.lastOpts = opts

	now := time.Now().UTC()
	run := &domain.ProcessRun{
		ID:         "run-1",
		DocumentID: documentID,
		Stage:      stage,
		Status:     domain.StatusCompleted,
		StartedAt:  now,
		FinishedAt: &now,
		Output:     map[string]any{"pages": []any{}},
	}
	if opts.Provider == "bogus" {
		run.Status = domain.StatusFailed
		run.Output = map[string]any{"error": "Unknown OCR provider 'bogus'."}
	}
	return run, nil
}

func (f *fakeAnalyzer) RenderPages(_ context.Context, documentID string) (*domain.ProcessRun, error) {
	return f.run(documentID, "render", ports.AnalysisOptions{})
}

func (f *fakeAnalyzer) RunOCR(_ context.Context, documentID string, opts ports.AnalysisOptions) (*domain.ProcessRun, error) {
	return f.run(documentID, "ocr:"+opts.Provider, opts)
}

func (f *fakeAnalyzer) RunDetection(_ context.Context, documentID string, opts ports.AnalysisOptions) (*domain.ProcessRun, error) {
	return f.run(documentID, "detect:"+opts.Provider, opts)
}

func (f *fakeAnalyzer) RunLayout(_ context.Context, documentID string, opts ports.AnalysisOptions) (*domain.ProcessRun, error) {
	return f.run(documentID, "layout:"+opts.Provider, opts)
}

func (f *fakeAnalyzer) RunVLM(_ context.Context, documentID string, opts ports.AnalysisOptions) (*domain.ProcessRun, error) {
	return f.run(documentID, "vlm:"+opts.Model+":"+opts.PromptKey, opts)
}

type fakeResults struct {
	deleted []string
}

func (f *fakeResults) Results(_ context.Context, documentID string) (*domain.DocumentResults, error) {
	if documentID != "doc-1" {
		return nil, domain.Errorf(domain.ErrDocumentNotFound, "document %s not found", documentID)
	}
	return &domain.DocumentResults{
		Document: &domain.Document{ID: "doc-1", Filename: "plan.pdf"},
		Runs:     []domain.ProcessRun{{ID: "run-1", Stage: "render", Status: domain.StatusCompleted}},
	}, nil
}

func (f *fakeResults) ExportRows(_ context.Context, documentID string) (*domain.Document, []runmetrics.Derived, error) {
	if documentID != "doc-1" {
		return nil, nil, domain.Errorf(domain.ErrDocumentNotFound, "document %s not found", documentID)
	}
	provider := "tesseract"
	return &domain.Document{ID: "doc-1", Filename: "plan.pdf"},
		[]runmetrics.Derived{{RunID: "run-1", Stage: "ocr:tesseract", StageType: "ocr", Provider: &provider, Status: "completed"}},
		nil
}

func (f *fakeResults) DeleteDocument(_ context.Context, documentID string) error {
	if documentID != "doc-1" {
		return domain.Errorf(domain.ErrDocumentNotFound, "document %s not found", documentID)
	}
	f.deleted = append(f.deleted, documentID)
	return nil
}

type fakeMetrics struct{}

func (fakeMetrics) DocumentMetrics(_ context.Context, documentID string) (*runmetrics.DocumentReport, error) {
	if documentID != "doc-1" {
		return nil, domain.Errorf(domain.ErrDocumentNotFound, "document %s not found", documentID)
	}
	return &runmetrics.DocumentReport{DocumentID: documentID, TotalRuns: 1}, nil
}

func (fakeMetrics) CompareRuns(_ context.Context, documentID, stageType string) (*runmetrics.ComparisonReport, error) {
	if documentID != "doc-1" {
		return nil, domain.Errorf(domain.ErrDocumentNotFound, "document %s not found", documentID)
	}
	return &runmetrics.ComparisonReport{DocumentID: documentID, StageType: stageType}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *fakeAnalyzer, *fakeResults) {
	t.Helper()
	analyzer := &fakeAnalyzer{}
	results := &fakeResults{}
	router := NewRouter(
		fakeIngestor{},
		analyzer,
		results,
		fakeMetrics{},
		Defaults{OpenAIAPIKey: "env-key", VLMMaxPages: 5},
		t.TempDir(),
		nil,
		nil,
	)
	return router.Handler(), analyzer, results
}

func multipartBody(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.7")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestUploadPDF(t *testing.T) {
	handler, _, _ := newTestRouter(t)

	body, contentType := multipartBody(t, "plan.pdf")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", res.Code, res.Body.String())
	}
	var doc domain.Document
	if err := json.Unmarshal(res.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.ID != "doc-1" || doc.PageCount != 2 {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestUploadNonPDFRejected(t *testing.T) {
	handler, _, _ := newTestRouter(t)

	body, contentType := multipartBody(t, "notes.txt")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestUploadRequiresFileField(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}")))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestOCRUnknownProviderStillReturns200(t *testing.T) {
	handler, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/ocr/doc-1", strings.NewReader(`{"provider":"bogus"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	var run domain.ProcessRun
	if err := json.Unmarshal(res.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
	if run.Output["error"] != "Unknown OCR provider 'bogus'." {
		t.Fatalf("error payload = %v", run.Output)
	}
}

func TestOCRDefaultsToTesseract(t *testing.T) {
	handler, analyzer, _ := newTestRouter(t)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/ocr/doc-1", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if analyzer.lastOpts.Provider != "tesseract" {
		t.Fatalf("provider = %q", analyzer.lastOpts.Provider)
	}
}

func TestOCRUnknownDocumentIs404(t *testing.T) {
	handler, _, _ := newTestRouter(t)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/ocr/nope", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

func TestVLMAppliesServerDefaults(t *testing.T) {
	handler, analyzer, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/vlm/doc-1", strings.NewReader(`{"prompt_key":"title_block"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", res.Code, res.Body.String())
	}
	opts := analyzer.lastOpts
	if opts.Provider != "openai" || opts.Model != "gpt-4o" {
		t.Fatalf("defaults not applied: %+v", opts)
	}
	if opts.APIKey != "env-key" {
		t.Fatalf("api key fallback not applied: %q", opts.APIKey)
	}
	if opts.MaxPages != 5 {
		t.Fatalf("max pages default = %d", opts.MaxPages)
	}
}

func TestVLMRequiresPromptKey(t *testing.T) {
	handler, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/vlm/doc-1", strings.NewReader(`{"model":"gpt-4o"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestDetectionPassesTargets(t *testing.T) {
	handler, analyzer, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/detect/doc-1", strings.NewReader(`{"provider":"grounding_dino","targets":["door","window"]}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if len(analyzer.lastOpts.Targets) != 2 || analyzer.lastOpts.Targets[0] != "door" {
		t.Fatalf("targets = %v", analyzer.lastOpts.Targets)
	}
}

func TestResultsUnknownDocumentIs404(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/results/nope", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

func TestResultsDelete(t *testing.T) {
	handler, _, results := newTestRouter(t)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/results/doc-1", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if len(results.deleted) != 1 || results.deleted[0] != "doc-1" {
		t.Fatalf("deleted = %v", results.deleted)
	}
}

func TestExportCSVHasHeaderAndRow(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/results/doc-1/export.csv", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(res.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, body = %q", len(lines), res.Body.String())
	}
	if !strings.HasPrefix(lines[0], "run_id,stage,stage_type,provider,status") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "run-1,ocr:tesseract,ocr,tesseract,completed") {
		t.Fatalf("row = %q", lines[1])
	}
}

func TestExportJSONShape(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/results/doc-1/export.json", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	var payload struct {
		DocumentID string               `json:"document_id"`
		Runs       []runmetrics.Derived `json:"runs"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.DocumentID != "doc-1" || len(payload.Runs) != 1 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestExportXLSXContentType(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/results/doc-1/export.xlsx", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	want := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if ct := res.Header().Get("Content-Type"); ct != want {
		t.Fatalf("content type = %q", ct)
	}
	if res.Body.Len() == 0 {
		t.Fatal("empty workbook body")
	}
}

func TestCompareRoute(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics/doc-1/compare/ocr", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	var report runmetrics.ComparisonReport
	if err := json.Unmarshal(res.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.StageType != "ocr" {
		t.Fatalf("stage type = %q", report.StageType)
	}
}

func TestCompareRouteRejectsMalformedTail(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics/doc-1/summary", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

func TestAnalysisRoutesRequirePOST(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	for _, path := range []string{"/process/doc-1", "/ocr/doc-1", "/vlm/doc-1", "/layout/doc-1", "/detect/doc-1"} {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
		if res.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: status = %d, want 405", path, res.Code)
		}
	}
}
