// Package export flattens a document's derived run metrics into tabular
// downloads. CSV is a plain stream; XLSX adds a styled header and column
// sizing for spreadsheet users.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mjamiv/plan-viz/internal/core/runmetrics"
)

var columns = []string{
	"run_id",
	"stage",
	"stage_type",
	"provider",
	"status",
	"started_at",
	"finished_at",
	"elapsed_ms",
	"page_count",
	"word_count",
	"detection_count",
	"token_count",
	"avg_confidence",
	"model",
	"prompt_key",
}

// WriteCSV streams the rows as CSV with a header line. Missing measurements
// become empty cells.
func WriteCSV(w io.Writer, rows []runmetrics.Derived) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range rows {
		if err := cw.Write(rowCells(&rows[i])); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteXLSX writes the rows as a single-sheet workbook.
func WriteXLSX(w io.Writer, sheetTitle string, rows []runmetrics.Derived) error {
	book := excelize.NewFile()
	defer book.Close()

	const sheet = "Runs"
	if err := book.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if sheetTitle != "" {
		book.SetDocProps(&excelize.DocProperties{Title: sheetTitle})
	}

	headerStyle, err := book.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for col, name := range columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := book.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if err := book.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
	}

	for i := range rows {
		cells := rowCells(&rows[i])
		for col, value := range cells {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("row cell: %w", err)
			}
			if err := book.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
	}

	if err := book.SetColWidth(sheet, "A", "A", 38); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := book.SetColWidth(sheet, "B", "O", 18); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := book.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func rowCells(d *runmetrics.Derived) []string {
	return []string{
		d.RunID,
		d.Stage,
		d.StageType,
		strOrEmpty(d.Provider),
		d.Status,
		d.StartedAt.UTC().Format(time.RFC3339),
		timeOrEmpty(d.FinishedAt),
		int64OrEmpty(d.ElapsedMS),
		intOrEmpty(d.PageCount),
		intOrEmpty(d.WordCount),
		intOrEmpty(d.DetectionCount),
		intOrEmpty(d.TokenCount),
		floatOrEmpty(d.AvgConfidence),
		strOrEmpty(d.Model),
		strOrEmpty(d.PromptKey),
	}
}

func strOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func timeOrEmpty(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}

func intOrEmpty(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func int64OrEmpty(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func floatOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}
