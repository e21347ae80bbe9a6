// Package httpadapter exposes the processing pipeline over HTTP. Analysis
// endpoints are synchronous: the provider call runs inside the request and
// the response carries the finished run descriptor, failed runs included.
package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/mjamiv/plan-viz/internal/core/ports"
)

// Defaults carries server-side fallbacks applied to analysis requests.
type Defaults struct {
	OpenAIAPIKey string
	VLMMaxPages  int
}

type Router struct {
	ingestor ports.DocumentIngestor
	analyzer ports.DocumentAnalyzer
	results  ports.ResultsReader
	metrics  ports.MetricsReader
	defaults Defaults

	filesDir     string
	promHandler  http.Handler
	uploadSizeFn func(int64)
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	analyzer ports.DocumentAnalyzer,
	results ports.ResultsReader,
	metrics ports.MetricsReader,
	defaults Defaults,
	filesDir string,
	promHandler http.Handler,
	uploadSizeFn func(int64),
) *Router {
	return &Router{
		ingestor:     ingestor,
		analyzer:     analyzer,
		results:      results,
		metrics:      metrics,
		defaults:     defaults,
		filesDir:     filesDir,
		promHandler:  promHandler,
		uploadSizeFn: uploadSizeFn,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/upload", rt.uploadDocument)
	mux.HandleFunc("/process/", rt.renderPages)
	mux.HandleFunc("/ocr/", rt.runOCR)
	mux.HandleFunc("/vlm/", rt.runVLM)
	mux.HandleFunc("/layout/", rt.runLayout)
	mux.HandleFunc("/detect/", rt.runDetection)
	mux.HandleFunc("/results/", rt.resultsRoutes)
	mux.HandleFunc("/metrics/", rt.metricsRoutes)
	mux.Handle("/files/", http.StripPrefix("/files/", http.FileServer(http.Dir(rt.filesDir))))
	if rt.promHandler != nil {
		mux.Handle("/internal/metrics", rt.promHandler)
	}
	return mux
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestor.Upload(r.Context(), fileHeader.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.uploadSizeFn != nil {
		rt.uploadSizeFn(fileHeader.Size)
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) renderPages(w http.ResponseWriter, r *http.Request) {
	documentID, ok := rt.pathID(w, r, "/process/")
	if !ok {
		return
	}
	run, err := rt.analyzer.RenderPages(r.Context(), documentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) runOCR(w http.ResponseWriter, r *http.Request) {
	documentID, ok := rt.pathID(w, r, "/ocr/")
	if !ok {
		return
	}
	var req struct {
		Provider string `json:"provider"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Provider == "" {
		req.Provider = "tesseract"
	}

	run, err := rt.analyzer.RunOCR(r.Context(), documentID, ports.AnalysisOptions{Provider: req.Provider})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) runVLM(w http.ResponseWriter, r *http.Request) {
	documentID, ok := rt.pathID(w, r, "/vlm/")
	if !ok {
		return
	}
	var req struct {
		PromptKey    string `json:"prompt_key"`
		Model        string `json:"model"`
		Provider     string `json:"provider"`
		APIKey       string `json:"api_key"`
		MaxPages     int    `json:"max_pages"`
		CustomPrompt string `json:"custom_prompt"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PromptKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt_key is required"})
		return
	}
	if req.Provider == "" {
		req.Provider = "openai"
	}
	if req.Model == "" {
		req.Model = "gpt-4o"
	}
	if req.APIKey == "" {
		req.APIKey = rt.defaults.OpenAIAPIKey
	}
	if req.MaxPages <= 0 {
		req.MaxPages = rt.defaults.VLMMaxPages
	}

	run, err := rt.analyzer.RunVLM(r.Context(), documentID, ports.AnalysisOptions{
		Provider:     req.Provider,
		Model:        req.Model,
		PromptKey:    req.PromptKey,
		CustomPrompt: req.CustomPrompt,
		APIKey:       req.APIKey,
		MaxPages:     req.MaxPages,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) runLayout(w http.ResponseWriter, r *http.Request) {
	documentID, ok := rt.pathID(w, r, "/layout/")
	if !ok {
		return
	}
	var req struct {
		Provider string `json:"provider"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Provider == "" {
		req.Provider = "layoutlmv3"
	}

	run, err := rt.analyzer.RunLayout(r.Context(), documentID, ports.AnalysisOptions{Provider: req.Provider})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) runDetection(w http.ResponseWriter, r *http.Request) {
	documentID, ok := rt.pathID(w, r, "/detect/")
	if !ok {
		return
	}
	var req struct {
		Provider string   `json:"provider"`
		Targets  []string `json:"targets"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Provider == "" {
		req.Provider = "yolov8"
	}

	run, err := rt.analyzer.RunDetection(r.Context(), documentID, ports.AnalysisOptions{
		Provider: req.Provider,
		Targets:  req.Targets,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) resultsRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/results/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	documentID, tail := rest, ""
	if idx := strings.Index(rest, "/"); idx >= 0 {
		documentID, tail = rest[:idx], rest[idx+1:]
	}

	switch {
	case tail == "" && r.Method == http.MethodGet:
		rt.getResults(w, r, documentID)
	case tail == "" && r.Method == http.MethodDelete:
		rt.deleteDocument(w, r, documentID)
	case tail == "export.csv" && r.Method == http.MethodGet:
		rt.exportCSV(w, r, documentID)
	case tail == "export.json" && r.Method == http.MethodGet:
		rt.exportJSON(w, r, documentID)
	case tail == "export.xlsx" && r.Method == http.MethodGet:
		rt.exportXLSX(w, r, documentID)
	case tail != "":
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) getResults(w http.ResponseWriter, r *http.Request, documentID string) {
	results, err := rt.results.Results(r.Context(), documentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request, documentID string) {
	if err := rt.results.DeleteDocument(r.Context(), documentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "document_id": documentID})
}

func (rt *Router) exportJSON(w http.ResponseWriter, r *http.Request, documentID string) {
	doc, rows, err := rt.results.ExportRows(r.Context(), documentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": doc.ID,
		"filename":    doc.Filename,
		"runs":        rows,
	})
}

func (rt *Router) metricsRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/metrics/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	if idx := strings.Index(rest, "/"); idx >= 0 {
		documentID, tail := rest[:idx], rest[idx+1:]
		stageType, found := strings.CutPrefix(tail, "compare/")
		if !found || stageType == "" || strings.Contains(stageType, "/") {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		report, err := rt.metrics.CompareRuns(r.Context(), documentID, stageType)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := rt.metrics.DocumentMetrics(r.Context(), rest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// pathID validates the method and extracts the document id segment for the
// POST analysis routes.
func (rt *Router) pathID(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return "", false
	}
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return "", false
	}
	return id, true
}

// decodeBody decodes an optional JSON body. An empty body yields zero values
// so callers can apply their defaults.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func attachmentName(documentID, ext string) string {
	return fmt.Sprintf("attachment; filename=%s", path.Base(fmt.Sprintf("results_%s%s", documentID, ext)))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
