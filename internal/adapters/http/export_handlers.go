package httpadapter

import (
	"log/slog"
	"net/http"

	"github.com/mjamiv/plan-viz/internal/infrastructure/export"
)

func (rt *Router) exportCSV(w http.ResponseWriter, r *http.Request, documentID string) {
	doc, rows, err := rt.results.ExportRows(r.Context(), documentID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", attachmentName(doc.ID, ".csv"))
	if err := export.WriteCSV(w, rows); err != nil {
		// Headers are already out; the truncated body is all we can signal.
		slog.Error("stream csv export", "document_id", doc.ID, "error", err)
	}
}

func (rt *Router) exportXLSX(w http.ResponseWriter, r *http.Request, documentID string) {
	doc, rows, err := rt.results.ExportRows(r.Context(), documentID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachmentName(doc.ID, ".xlsx"))
	if err := export.WriteXLSX(w, doc.Filename, rows); err != nil {
		slog.Error("stream xlsx export", "document_id", doc.ID, "error", err)
	}
}
