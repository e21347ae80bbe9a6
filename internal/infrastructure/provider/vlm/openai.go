package vlm

import (
	"context"
	"strings"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/infrastructure/provider/inference"
)

const defaultOpenAIModel = "gpt-4o"

type OpenAIBackend struct {
	client *inference.Client
}

func NewOpenAIBackend(client *inference.Client) *OpenAIBackend {
	return &OpenAIBackend{client: client}
}

func (b *OpenAIBackend) generate(ctx context.Context, model, prompt, imageB64, apiKey string) (string, error) {
	if model == "" {
		model = defaultOpenAIModel
	}

	request := map[string]any{
		"model": model,
		"messages": []any{
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": prompt},
					map[string]any{
						"type":      "image_url",
						"image_url": map[string]any{"url": "data:image/png;base64," + imageB64},
					},
				},
			},
		},
	}
	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := b.client.PostJSONAuth(ctx, "/v1/chat/completions", apiKey, request, &response, "vlm.openai"); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", domain.Errorf(domain.ErrDependency, "OpenAI response contained no choices")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}
