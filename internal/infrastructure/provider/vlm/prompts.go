package vlm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mjamiv/plan-viz/internal/core/domain"
)

// defaultPrompts covers the construction-drawing questions the frontend
// offers out of the box. A YAML catalog file can add to or override them.
var defaultPrompts = map[string]string{
	"room_dimensions":   "List all room names and their dimensions.",
	"title_block":       "Identify the title block information.",
	"electrical_layout": "Describe the electrical layout.",
	"revision_history":  "Extract the revision history.",
	"drawing_scale":     "What scale is this drawing?",
}

type Catalog struct {
	prompts map[string]string
}

// LoadCatalog builds the prompt catalog from the defaults, overlaid with the
// optional YAML file at path (a flat key: prompt mapping).
func LoadCatalog(path string) (*Catalog, error) {
	prompts := make(map[string]string, len(defaultPrompts))
	for key, prompt := range defaultPrompts {
		prompts[key] = prompt
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompt catalog: %w", err)
		}
		var fromFile map[string]string
		if err := yaml.Unmarshal(raw, &fromFile); err != nil {
			return nil, fmt.Errorf("parse prompt catalog: %w", err)
		}
		for key, prompt := range fromFile {
			prompts[key] = prompt
		}
	}
	return &Catalog{prompts: prompts}, nil
}

// Resolve maps a prompt key to its text. The reserved key "custom" uses the
// caller-supplied prompt instead of the catalog.
func (c *Catalog) Resolve(promptKey, customPrompt string) (string, error) {
	if promptKey == "custom" {
		if customPrompt == "" {
			return "", domain.Errorf(domain.ErrInvalidInput, "custom_prompt is required when prompt_key is 'custom'.")
		}
		return customPrompt, nil
	}
	prompt, ok := c.prompts[promptKey]
	if !ok {
		return "", domain.Errorf(domain.ErrConfiguration, "Unknown prompt_key '%s'.", promptKey)
	}
	return prompt, nil
}
