// Package layout implements the layout-classification capability: OCR words
// from the local tesseract engine are paired with token labels from an
// external LayoutLM-style inference server, in the model's normalized
// 0-1000 coordinate space.
package layout

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/core/ports"
	"github.com/mjamiv/plan-viz/internal/infrastructure/provider/inference"
	"github.com/mjamiv/plan-viz/internal/infrastructure/provider/ocr"
)

type Config struct {
	Model     string
	RenderDPI int
}

type Gateway struct {
	renderer ports.PageRenderer
	engine   *ocr.TesseractEngine
	client   *inference.Client
	cfg      Config
}

func NewGateway(renderer ports.PageRenderer, engine *ocr.TesseractEngine, client *inference.Client, cfg Config) *Gateway {
	if cfg.Model == "" {
		cfg.Model = "microsoft/layoutlmv3-base-finetuned-funsd"
	}
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = 200
	}
	return &Gateway{renderer: renderer, engine: engine, client: client, cfg: cfg}
}

type layoutRequest struct {
	Model string   `json:"model"`
	Image string   `json:"image"`
	Words []string `json:"words"`
	Boxes [][]int  `json:"boxes"`
}

type layoutResponse struct {
	Model  string `json:"model"`
	Tokens []struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"tokens"`
}

func (g *Gateway) Analyze(ctx context.Context, req ports.LayoutRequest) (map[string]any, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider != "layoutlmv3" {
		return nil, domain.Errorf(domain.ErrConfiguration, "Unknown layout provider '%s'.", req.Provider)
	}
	if !g.client.Configured() {
		return nil, domain.Errorf(domain.ErrConfiguration, "layout service URL is not configured")
	}

	start := time.Now()
	pageCount, err := g.renderer.PageCount(ctx, req.PDFPath)
	if err != nil {
		return nil, err
	}

	modelName := g.cfg.Model
	pages := make([]any, 0, pageCount)
	var confSum float64
	var confCount int

	for page := 1; page <= pageCount; page++ {
		imagePNG, width, height, err := g.renderer.RenderPage(ctx, req.PDFPath, page, g.cfg.RenderDPI)
		if err != nil {
			return nil, err
		}
		words, err := g.engine.WordsForImage(ctx, imagePNG)
		if err != nil {
			return nil, err
		}
		// Pages with no recognizable text are not an error.
		if len(words) == 0 {
			pages = append(pages, map[string]any{"page": page, "tokens": []any{}, "note": "No OCR tokens."})
			continue
		}

		texts := make([]string, 0, len(words))
		boxes := make([][]int, 0, len(words))
		for _, word := range words {
			texts = append(texts, word.Text)
			boxes = append(boxes, normalizeBox(word, width, height))
		}

		var resp layoutResponse
		err = g.client.PostJSON(ctx, "/v1/layout", layoutRequest{
			Model: g.cfg.Model,
			Image: base64.StdEncoding.EncodeToString(imagePNG),
			Words: texts,
			Boxes: boxes,
		}, &resp, "layout."+provider)
		if err != nil {
			return nil, err
		}
		if resp.Model != "" {
			modelName = resp.Model
		}

		tokens := make([]any, 0, len(words))
		for i, word := range texts {
			if i >= len(resp.Tokens) {
				break
			}
			bbox := make([]any, 0, 4)
			for _, coord := range boxes[i] {
				bbox = append(bbox, coord)
			}
			tokens = append(tokens, map[string]any{
				"word":  word,
				"bbox":  bbox,
				"label": resp.Tokens[i].Label,
				"score": resp.Tokens[i].Score,
			})
			confSum += resp.Tokens[i].Score
			confCount++
		}
		pages = append(pages, map[string]any{
			"page":        page,
			"token_count": len(tokens),
			"tokens":      tokens,
		})
	}

	metrics := map[string]any{
		"elapsed_ms": time.Since(start).Milliseconds(),
		"page_count": pageCount,
	}
	if confCount > 0 {
		metrics["avg_confidence"] = confSum / float64(confCount)
	}
	return map[string]any{
		"provider": provider,
		"model":    modelName,
		"pages":    pages,
		"metrics":  metrics,
	}, nil
}

// normalizeBox scales pixel coordinates into the model's 0-1000 space.
func normalizeBox(word ocr.Word, width, height int) []int {
	if width <= 0 || height <= 0 {
		return []int{0, 0, 0, 0}
	}
	return []int{
		int(1000 * word.X0 / float64(width)),
		int(1000 * word.Y0 / float64(height)),
		int(1000 * word.X1 / float64(width)),
		int(1000 * word.Y1 / float64(height)),
	}
}
