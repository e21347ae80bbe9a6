// Package vlm implements the vision-language capability: each rendered page
// is sent to an Ollama or OpenAI-compatible backend with a catalog prompt,
// and the free-text answer is kept verbatim with a best-effort JSON parse.
package vlm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/core/ports"
)

type backend interface {
	generate(ctx context.Context, model, prompt, imageB64, apiKey string) (string, error)
}

type Config struct {
	DefaultMaxPages int
	RenderDPI       int
}

type Gateway struct {
	renderer ports.PageRenderer
	catalog  *Catalog
	ollama   backend
	openai   backend
	cfg      Config
}

func NewGateway(renderer ports.PageRenderer, catalog *Catalog, ollama, openai backend, cfg Config) *Gateway {
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = 200
	}
	return &Gateway{
		renderer: renderer,
		catalog:  catalog,
		ollama:   ollama,
		openai:   openai,
		cfg:      cfg,
	}
}

func (g *Gateway) Analyze(ctx context.Context, req ports.VLMRequest) (map[string]any, error) {
	prompt, err := g.catalog.Resolve(req.PromptKey, req.CustomPrompt)
	if err != nil {
		return nil, err
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	var be backend
	switch provider {
	case "ollama":
		be = g.ollama
	case "openai":
		if req.APIKey == "" {
			return nil, domain.Errorf(domain.ErrConfiguration, "An API key is required for the OpenAI provider.")
		}
		be = g.openai
	default:
		return nil, domain.Errorf(domain.ErrConfiguration, "Unknown VLM provider '%s'.", req.Provider)
	}

	pageCount, err := g.renderer.PageCount(ctx, req.PDFPath)
	if err != nil {
		return nil, err
	}
	limit := pageCount
	if req.MaxPages > 0 && req.MaxPages < limit {
		limit = req.MaxPages
	}
	if g.cfg.DefaultMaxPages > 0 && req.MaxPages <= 0 && g.cfg.DefaultMaxPages < limit {
		limit = g.cfg.DefaultMaxPages
	}

	fullPrompt := "Respond in JSON only. " + prompt
	pages := make([]any, 0, limit)
	var totalElapsed int64

	for page := 1; page <= limit; page++ {
		imagePNG, _, _, err := g.renderer.RenderPage(ctx, req.PDFPath, page, g.cfg.RenderDPI)
		if err != nil {
			return nil, err
		}

		// Each page round trip is timed on its own; the total below is
		// the sum of the per-page times, not wall time for the loop.
		pageStart := time.Now()
		text, err := be.generate(ctx, req.Model, fullPrompt, base64.StdEncoding.EncodeToString(imagePNG), req.APIKey)
		if err != nil {
			return nil, err
		}
		pageElapsed := time.Since(pageStart).Milliseconds()
		totalElapsed += pageElapsed

		entry := map[string]any{
			"page":       page,
			"raw":        text,
			"elapsed_ms": pageElapsed,
		}
		if parsed, ok := parseModelJSON(text); ok {
			entry["parsed"] = parsed
		} else {
			entry["parsed_error"] = "Failed to parse JSON from model response."
		}
		pages = append(pages, entry)
	}

	return map[string]any{
		"provider":   provider,
		"model":      req.Model,
		"prompt_key": req.PromptKey,
		"prompt":     prompt,
		"pages":      pages,
		"metrics": map[string]any{
			"elapsed_ms": totalElapsed,
			"page_count": len(pages),
		},
	}, nil
}

// parseModelJSON strips a surrounding markdown code fence, if any, and
// attempts to decode the remainder as JSON.
func parseModelJSON(raw string) (any, bool) {
	cleaned := stripCodeFence(raw)
	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the info string ("json" etc) on the opening fence line.
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
