package layout

import (
	"context"
	"testing"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/core/ports"
	"github.com/mjamiv/plan-viz/internal/infrastructure/provider/inference"
	"github.com/mjamiv/plan-viz/internal/infrastructure/provider/ocr"
)

func TestAnalyzeUnknownProvider(t *testing.T) {
	gw := NewGateway(nil, ocr.NewTesseractEngine("", ""), inference.NewClient("", nil), Config{})

	_, err := gw.Analyze(context.Background(), ports.LayoutRequest{Provider: "donut"})
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if err.Error() != "Unknown layout provider 'donut'." {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestAnalyzeUnconfiguredService(t *testing.T) {
	gw := NewGateway(nil, ocr.NewTesseractEngine("", ""), inference.NewClient("", nil), Config{})

	_, err := gw.Analyze(context.Background(), ports.LayoutRequest{Provider: "layoutlmv3"})
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNormalizeBox(t *testing.T) {
	word := ocr.Word{X0: 100, Y0: 50, X1: 300, Y1: 150}
	box := normalizeBox(word, 1000, 500)
	want := []int{100, 100, 300, 300}
	for i := range want {
		if box[i] != want[i] {
			t.Fatalf("box = %v, want %v", box, want)
		}
	}

	if box := normalizeBox(word, 0, 0); box[2] != 0 {
		t.Fatalf("degenerate page must map to zero box, got %v", box)
	}
}
