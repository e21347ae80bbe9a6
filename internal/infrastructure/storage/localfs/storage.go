// Package localfs implements the artifact store on the local filesystem:
// a data directory holding uploads/, pages/ and results/, served read-only
// under the /files URL prefix.
package localfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mjamiv/plan-viz/internal/core/ports"
)

const urlPrefix = "/files"

type Store struct {
	baseDir    string
	uploadsDir string
	pagesDir   string
	resultsDir string
}

func New(baseDir string) (*Store, error) {
	if baseDir == "" {
		baseDir = "./data"
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	s := &Store{
		baseDir:    abs,
		uploadsDir: filepath.Join(abs, "uploads"),
		pagesDir:   filepath.Join(abs, "pages"),
		resultsDir: filepath.Join(abs, "results"),
	}
	for _, dir := range []string{s.uploadsDir, s.pagesDir, s.resultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return s, nil
}

func (s *Store) BaseDir() string  { return s.baseDir }
func (s *Store) PagesDir() string { return s.pagesDir }

// SaveUpload stores an uploaded file under a fresh random name, keeping only
// the original extension. Random names keep stored paths unique even when
// the same file is uploaded twice.
func (s *Store) SaveUpload(_ context.Context, filename string, data io.Reader) (string, error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".pdf"
	}
	storedName := strings.ReplaceAll(uuid.NewString(), "-", "") + ext
	storedPath := filepath.Join(s.uploadsDir, storedName)

	f, err := os.Create(storedPath)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return storedPath, nil
}

func (s *Store) WriteResult(_ context.Context, stem string, payload map[string]any) (ports.ArtifactRef, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ports.ArtifactRef{}, fmt.Errorf("marshal result payload: %w", err)
	}

	path := filepath.Join(s.resultsDir, stem+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return ports.ArtifactRef{}, fmt.Errorf("write result artifact: %w", err)
	}
	return ports.ArtifactRef{Path: path, URL: s.URLFor(path)}, nil
}

func (s *Store) ReadResult(_ context.Context, path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read result artifact: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal result artifact: %w", err)
	}
	return payload, nil
}

// URLFor maps an absolute path inside the data directory to its serving URL.
// Paths outside the data directory map to "".
func (s *Store) URLFor(path string) string {
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return urlPrefix + "/" + filepath.ToSlash(rel)
}

// CleanupResults removes result artifacts older than maxAgeDays. Called once
// at startup when a retention window is configured.
func (s *Store) CleanupResults(maxAgeDays int) {
	if maxAgeDays <= 0 {
		return
	}
	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)

	entries, err := os.ReadDir(s.resultsDir)
	if err != nil {
		slog.Warn("read results dir for cleanup", "error", err)
		return
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.resultsDir, entry.Name())); err != nil {
			slog.Warn("remove expired result", "name", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("cleaned up expired results", "removed", removed, "max_age_days", maxAgeDays)
	}
}
