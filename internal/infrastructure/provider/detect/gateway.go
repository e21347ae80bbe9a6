// Package detect implements the object-detection capability by sending
// rendered page images to an external inference server.
package detect

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/core/ports"
	"github.com/mjamiv/plan-viz/internal/infrastructure/provider/inference"
)

type Config struct {
	YOLOModel string
	DinoModel string
	RenderDPI int
}

type Gateway struct {
	renderer ports.PageRenderer
	client   *inference.Client
	cfg      Config
}

func NewGateway(renderer ports.PageRenderer, client *inference.Client, cfg Config) *Gateway {
	if cfg.YOLOModel == "" {
		cfg.YOLOModel = "yolov8n.pt"
	}
	if cfg.DinoModel == "" {
		cfg.DinoModel = "IDEA-Research/grounding-dino-base"
	}
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = 200
	}
	return &Gateway{renderer: renderer, client: client, cfg: cfg}
}

type detectRequest struct {
	Model  string   `json:"model"`
	Image  string   `json:"image"`
	Labels []string `json:"labels,omitempty"`
}

type detectResponse struct {
	Model      string `json:"model"`
	Detections []struct {
		Label      string    `json:"label"`
		Confidence float64   `json:"confidence"`
		BBox       []float64 `json:"bbox"`
	} `json:"detections"`
}

func (g *Gateway) Analyze(ctx context.Context, req ports.DetectionRequest) (map[string]any, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	switch provider {
	case "yolov8":
		return g.run(ctx, req, provider, g.cfg.YOLOModel, nil)
	case "grounding_dino":
		if len(req.Targets) == 0 {
			return nil, domain.Errorf(domain.ErrInvalidInput, "Grounding DINO requires target labels.")
		}
		// Grounding DINO takes the targets as its detection query; the
		// server only ever returns matching labels, so no allowlist pass.
		return g.run(ctx, req, provider, g.cfg.DinoModel, req.Targets)
	default:
		return nil, domain.Errorf(domain.ErrConfiguration, "Unknown detection provider '%s'.", req.Provider)
	}
}

func (g *Gateway) run(ctx context.Context, req ports.DetectionRequest, provider, model string, queryLabels []string) (map[string]any, error) {
	if !g.client.Configured() {
		return nil, domain.Errorf(domain.ErrConfiguration, "detection service URL is not configured")
	}

	start := time.Now()
	pageCount, err := g.renderer.PageCount(ctx, req.PDFPath)
	if err != nil {
		return nil, err
	}

	// Allowlist only applies when the model detects freely (yolov8).
	allow := map[string]bool{}
	if queryLabels == nil {
		for _, target := range req.Targets {
			allow[strings.ToLower(strings.TrimSpace(target))] = true
		}
	}

	modelName := model
	pages := make([]any, 0, pageCount)
	for page := 1; page <= pageCount; page++ {
		imagePNG, _, _, err := g.renderer.RenderPage(ctx, req.PDFPath, page, g.cfg.RenderDPI)
		if err != nil {
			return nil, err
		}

		var resp detectResponse
		err = g.client.PostJSON(ctx, "/v1/detect", detectRequest{
			Model:  model,
			Image:  base64.StdEncoding.EncodeToString(imagePNG),
			Labels: queryLabels,
		}, &resp, "detect."+provider)
		if err != nil {
			return nil, err
		}
		if resp.Model != "" {
			modelName = resp.Model
		}

		detections := make([]any, 0, len(resp.Detections))
		for _, det := range resp.Detections {
			if len(allow) > 0 && !allow[strings.ToLower(det.Label)] {
				continue
			}
			bbox := make([]any, 0, len(det.BBox))
			for _, coord := range det.BBox {
				bbox = append(bbox, coord)
			}
			detections = append(detections, map[string]any{
				"label":      det.Label,
				"confidence": det.Confidence,
				"bbox":       bbox,
			})
		}
		pages = append(pages, map[string]any{"page": page, "detections": detections})
	}

	return map[string]any{
		"provider": provider,
		"model":    modelName,
		"pages":    pages,
		"metrics": map[string]any{
			"elapsed_ms": time.Since(start).Milliseconds(),
			"page_count": pageCount,
		},
	}, nil
}
