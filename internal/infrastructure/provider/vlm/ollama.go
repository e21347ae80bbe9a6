package vlm

import (
	"context"
	"strings"

	"github.com/mjamiv/plan-viz/internal/infrastructure/provider/inference"
)

const defaultOllamaModel = "qwen2-vl:7b"

type OllamaBackend struct {
	client *inference.Client
}

func NewOllamaBackend(client *inference.Client) *OllamaBackend {
	return &OllamaBackend{client: client}
}

func (b *OllamaBackend) generate(ctx context.Context, model, prompt, imageB64, _ string) (string, error) {
	if model == "" {
		model = defaultOllamaModel
	}

	request := map[string]any{
		"model":  model,
		"prompt": prompt,
		"images": []string{imageB64},
		"stream": false,
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := b.client.PostJSON(ctx, "/api/generate", request, &response, "vlm.ollama"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
