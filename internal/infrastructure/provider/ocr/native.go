package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/mjamiv/plan-viz/internal/core/ports"
)

// runNative extracts the text layer embedded in the PDF itself. Coordinates
// come from the PDF content stream (point space, not rendered pixels) and no
// engine confidence exists, so every word carries a nil confidence.
func (g *Gateway) runNative(ctx context.Context, req ports.OCRRequest) (map[string]any, error) {
	start := time.Now()

	f, reader, err := pdf.Open(req.PDFPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf text layer: %w", err)
	}
	defer f.Close()

	pageCount := reader.NumPage()
	pages := make([]any, 0, pageCount)
	wordTotal := 0

	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		wordPayloads := []any{}
		page := reader.Page(pageNum)
		if !page.V.IsNull() {
			words := groupFragments(page.Content().Text)
			for _, word := range words {
				wordPayloads = append(wordPayloads, word.toPayload())
			}
			wordTotal += len(words)
		}
		pages = append(pages, map[string]any{"page": pageNum, "words": wordPayloads})
	}

	return map[string]any{
		"provider": "native",
		"pages":    pages,
		"metrics": map[string]any{
			"elapsed_ms": time.Since(start).Milliseconds(),
			"page_count": pageCount,
			"word_count": wordTotal,
		},
	}, nil
}

// groupFragments merges consecutive content-stream text fragments into words,
// splitting on whitespace fragments and on horizontal gaps wider than the
// current font size.
func groupFragments(fragments []pdf.Text) []Word {
	var words []Word
	var current []pdf.Text

	flush := func() {
		if len(current) == 0 {
			return
		}
		var text strings.Builder
		first, last := current[0], current[len(current)-1]
		minY, maxY := first.Y, first.Y
		for _, frag := range current {
			text.WriteString(frag.S)
			if frag.Y < minY {
				minY = frag.Y
			}
			if top := frag.Y + frag.FontSize; top > maxY {
				maxY = top
			}
		}
		trimmed := strings.TrimSpace(text.String())
		if trimmed != "" {
			words = append(words, Word{
				Text: trimmed,
				X0:   first.X,
				Y0:   minY,
				X1:   last.X + last.W,
				Y1:   maxY,
			})
		}
		current = current[:0]
	}

	for _, frag := range fragments {
		if strings.TrimSpace(frag.S) == "" {
			flush()
			continue
		}
		if len(current) > 0 {
			prev := current[len(current)-1]
			if frag.Y != prev.Y || frag.X-(prev.X+prev.W) > prev.FontSize {
				flush()
			}
		}
		current = append(current, frag)
	}
	flush()
	return words
}
