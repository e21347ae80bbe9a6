// Package ocr implements the OCR capability of the provider gateway. The
// tesseract provider shells out to the tesseract binary per rendered page;
// the native provider reads text embedded in the PDF without rasterizing.
package ocr

import (
	"context"
	"strings"
	"time"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/core/ports"
)

type Gateway struct {
	renderer ports.PageRenderer
	engine   *TesseractEngine
}

func NewGateway(renderer ports.PageRenderer, engine *TesseractEngine) *Gateway {
	return &Gateway{renderer: renderer, engine: engine}
}

func (g *Gateway) Analyze(ctx context.Context, req ports.OCRRequest) (map[string]any, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	switch provider {
	case "tesseract":
		return g.runTesseract(ctx, req)
	case "native":
		return g.runNative(ctx, req)
	case "paddleocr", "surya", "easyocr":
		return nil, domain.Errorf(domain.ErrDependency, "OCR provider '%s' is not configured yet.", provider)
	default:
		return nil, domain.Errorf(domain.ErrConfiguration, "Unknown OCR provider '%s'.", req.Provider)
	}
}

func (g *Gateway) runTesseract(ctx context.Context, req ports.OCRRequest) (map[string]any, error) {
	start := time.Now()

	pageCount, err := g.renderer.PageCount(ctx, req.PDFPath)
	if err != nil {
		return nil, err
	}

	pages := make([]any, 0, pageCount)
	wordTotal := 0
	var confSum float64
	var confCount int

	for page := 1; page <= pageCount; page++ {
		imagePNG, _, _, err := g.renderer.RenderPage(ctx, req.PDFPath, page, req.DPI)
		if err != nil {
			return nil, err
		}
		words, err := g.engine.WordsForImage(ctx, imagePNG)
		if err != nil {
			return nil, err
		}

		wordPayloads := make([]any, 0, len(words))
		for _, word := range words {
			wordPayloads = append(wordPayloads, word.toPayload())
			if word.Confidence != nil {
				confSum += *word.Confidence
				confCount++
			}
		}
		wordTotal += len(words)
		pages = append(pages, map[string]any{"page": page, "words": wordPayloads})
	}

	metrics := map[string]any{
		"elapsed_ms": time.Since(start).Milliseconds(),
		"page_count": pageCount,
		"word_count": wordTotal,
	}
	if confCount > 0 {
		metrics["avg_confidence"] = confSum / float64(confCount)
	}
	return map[string]any{
		"provider": "tesseract",
		"pages":    pages,
		"metrics":  metrics,
	}, nil
}
