package localfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func TestNewCreatesDirectoryTree(t *testing.T) {
	store := newStore(t)
	for _, dir := range []string{"uploads", "pages", "results"} {
		if _, err := os.Stat(filepath.Join(store.BaseDir(), dir)); err != nil {
			t.Fatalf("missing %s dir: %v", dir, err)
		}
	}
}

func TestSaveUploadKeepsExtensionOnly(t *testing.T) {
	store := newStore(t)

	path, err := store.SaveUpload(context.Background(), "Floor Plan v2.pdf", strings.NewReader("%PDF-1.7"))
	if err != nil {
		t.Fatalf("SaveUpload() error = %v", err)
	}
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".pdf") {
		t.Fatalf("stored name %q lacks .pdf", name)
	}
	if strings.Contains(name, " ") || strings.Contains(name, "-") {
		t.Fatalf("stored name %q not fully randomized", name)
	}
	raw, err := os.ReadFile(path)
	if err != nil || string(raw) != "%PDF-1.7" {
		t.Fatalf("stored content = %q, err = %v", raw, err)
	}
}

func TestWriteAndReadResultRoundTrip(t *testing.T) {
	store := newStore(t)

	payload := map[string]any{
		"provider": "tesseract",
		"pages":    []any{map[string]any{"page": float64(1), "words": []any{}}},
		"metrics":  map[string]any{"elapsed_ms": float64(42)},
	}
	ref, err := store.WriteResult(context.Background(), "run_abc_ocr_tesseract", payload)
	if err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}
	if ref.URL != "/files/results/run_abc_ocr_tesseract.json" {
		t.Fatalf("artifact url = %q", ref.URL)
	}

	got, err := store.ReadResult(context.Background(), ref.Path)
	if err != nil {
		t.Fatalf("ReadResult() error = %v", err)
	}
	if got["provider"] != "tesseract" {
		t.Fatalf("round trip lost provider: %v", got)
	}
	metrics, ok := got["metrics"].(map[string]any)
	if !ok || metrics["elapsed_ms"] != float64(42) {
		t.Fatalf("round trip lost metrics: %v", got)
	}
}

func TestURLForRejectsPathsOutsideBase(t *testing.T) {
	store := newStore(t)

	if url := store.URLFor(filepath.Join(store.PagesDir(), "p1.png")); url != "/files/pages/p1.png" {
		t.Fatalf("URLFor inside = %q", url)
	}
	if url := store.URLFor("/etc/passwd"); url != "" {
		t.Fatalf("URLFor outside = %q, want empty", url)
	}
}

func TestCleanupResultsRemovesOnlyExpired(t *testing.T) {
	store := newStore(t)

	old := filepath.Join(store.BaseDir(), "results", "old.json")
	fresh := filepath.Join(store.BaseDir(), "results", "fresh.json")
	for _, path := range []string{old, fresh} {
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			t.Fatalf("seed file: %v", err)
		}
	}
	stale := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	store.CleanupResults(2)

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expired artifact not removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh artifact removed: %v", err)
	}
}
