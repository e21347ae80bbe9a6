package vlm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/core/ports"
)

type stubRenderer struct {
	pageCount int
	rendered  int
}

func (s *stubRenderer) Metadata(context.Context, string) (map[string]any, int, error) {
	return nil, s.pageCount, nil
}

func (s *stubRenderer) RenderPages(context.Context, string, string, int) ([]ports.RenderedPage, error) {
	return nil, nil
}

func (s *stubRenderer) RenderPage(context.Context, string, int, int) ([]byte, int, int, error) {
	s.rendered++
	return []byte{0x89}, 800, 600, nil
}

func (s *stubRenderer) PageCount(context.Context, string) (int, error) {
	return s.pageCount, nil
}

type stubBackend struct {
	responses []string
	calls     int
}

func (s *stubBackend) generate(context.Context, string, string, string, string) (string, error) {
	reply := s.responses[s.calls%len(s.responses)]
	s.calls++
	return reply, nil
}

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	return catalog
}

func TestLoadCatalogOverlaysYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "drawing_scale: \"Report the scale.\"\nsheet_index: \"List every sheet.\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if prompt, _ := catalog.Resolve("drawing_scale", ""); prompt != "Report the scale." {
		t.Fatalf("override lost: %q", prompt)
	}
	if prompt, _ := catalog.Resolve("sheet_index", ""); prompt != "List every sheet." {
		t.Fatalf("addition lost: %q", prompt)
	}
	if _, err := catalog.Resolve("room_dimensions", ""); err != nil {
		t.Fatalf("default removed: %v", err)
	}
}

func TestResolveCustomPrompt(t *testing.T) {
	catalog := mustCatalog(t)

	if _, err := catalog.Resolve("custom", ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	prompt, err := catalog.Resolve("custom", "Count the doors.")
	if err != nil || prompt != "Count the doors." {
		t.Fatalf("custom prompt = %q, err = %v", prompt, err)
	}
}

func TestResolveUnknownPromptKey(t *testing.T) {
	_, err := mustCatalog(t).Resolve("floor_area", "")
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if err.Error() != "Unknown prompt_key 'floor_area'." {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestAnalyzeUnknownProvider(t *testing.T) {
	gw := NewGateway(&stubRenderer{pageCount: 1}, mustCatalog(t), &stubBackend{}, &stubBackend{}, Config{})

	_, err := gw.Analyze(context.Background(), ports.VLMRequest{
		Provider:  "gemini",
		PromptKey: "title_block",
	})
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if err.Error() != "Unknown VLM provider 'gemini'." {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestAnalyzeOpenAIRequiresKey(t *testing.T) {
	gw := NewGateway(&stubRenderer{pageCount: 1}, mustCatalog(t), &stubBackend{}, &stubBackend{}, Config{})

	_, err := gw.Analyze(context.Background(), ports.VLMRequest{
		Provider:  "openai",
		PromptKey: "title_block",
	})
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if err.Error() != "An API key is required for the OpenAI provider." {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestAnalyzeCapsPagesAndParsesResponses(t *testing.T) {
	renderer := &stubRenderer{pageCount: 5}
	backend := &stubBackend{responses: []string{
		"```json\n{\"scale\": \"1/4\\\" = 1'\"}\n```",
		"The drawing does not state a scale.",
	}}
	gw := NewGateway(renderer, mustCatalog(t), backend, &stubBackend{}, Config{DefaultMaxPages: 3})

	output, err := gw.Analyze(context.Background(), ports.VLMRequest{
		Provider:  "ollama",
		Model:     "qwen2-vl:7b",
		PromptKey: "drawing_scale",
		MaxPages:  2,
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if renderer.rendered != 2 {
		t.Fatalf("rendered %d pages, want 2", renderer.rendered)
	}

	pages, ok := output["pages"].([]any)
	if !ok || len(pages) != 2 {
		t.Fatalf("pages = %v", output["pages"])
	}

	first, _ := pages[0].(map[string]any)
	parsed, ok := first["parsed"].(map[string]any)
	if !ok || parsed["scale"] != "1/4\" = 1'" {
		t.Fatalf("fenced JSON not parsed: %v", first)
	}

	second, _ := pages[1].(map[string]any)
	if second["parsed_error"] != "Failed to parse JSON from model response." {
		t.Fatalf("parse failure not surfaced: %v", second)
	}
	if second["raw"] != "The drawing does not state a scale." {
		t.Fatalf("raw text lost: %v", second["raw"])
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n[1,2]\n```", "[1,2]"},
		{"  ```json\n{}\n```  ", "{}"},
	}
	for _, tc := range cases {
		if got := stripCodeFence(tc.in); got != tc.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
