package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mjamiv/plan-viz/internal/core/domain"
)

// Word is one recognized word in image pixel space. Confidence is nil when
// the engine reported none.
type Word struct {
	Text           string
	X0, Y0, X1, Y1 float64
	Confidence     *float64
}

func (w Word) toPayload() map[string]any {
	entry := map[string]any{
		"text": w.Text,
		"bbox": []any{w.X0, w.Y0, w.X1, w.Y1},
	}
	if w.Confidence != nil {
		entry["confidence"] = *w.Confidence
	} else {
		entry["confidence"] = nil
	}
	return entry
}

// TesseractEngine shells out to the tesseract binary with TSV output to get
// word-level text, boxes and confidences.
type TesseractEngine struct {
	binary string
	lang   string
	runner Runner
}

func NewTesseractEngine(binary, lang string) *TesseractEngine {
	if binary == "" {
		binary = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	return &TesseractEngine{binary: binary, lang: lang, runner: execRunner{}}
}

// WordsForImage runs tesseract over a PNG image and parses its TSV output.
func (e *TesseractEngine) WordsForImage(ctx context.Context, imagePNG []byte) ([]Word, error) {
	tmp, err := os.CreateTemp("", "pv-ocr-*.png")
	if err != nil {
		return nil, fmt.Errorf("create temp image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(imagePNG); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp image: %w", err)
	}

	// tesseract <image> stdout -l <lang> --psm 6 tsv
	out, errb, err := e.runner.Run(ctx, e.binary, tmp.Name(), "stdout", "-l", e.lang, "--psm", "6", "tsv")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, domain.Errorf(domain.ErrDependency, "tesseract binary %q not found", e.binary)
		}
		return nil, domain.WrapError(domain.ErrDependency, "run tesseract", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(errb))))
	}
	return parseTSV(string(out)), nil
}

// parseTSV extracts word rows (level 5) from tesseract's TSV format:
// level page block par line word left top width height conf text.
func parseTSV(tsv string) []Word {
	var words []Word
	lines := strings.Split(tsv, "\n")
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		if fields[0] != "5" {
			continue
		}
		text := strings.TrimSpace(fields[11])
		if text == "" {
			continue
		}

		left, err1 := strconv.ParseFloat(fields[6], 64)
		top, err2 := strconv.ParseFloat(fields[7], 64)
		width, err3 := strconv.ParseFloat(fields[8], 64)
		height, err4 := strconv.ParseFloat(fields[9], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}

		word := Word{Text: text, X0: left, Y0: top, X1: left + width, Y1: top + height}
		if conf, err := strconv.ParseFloat(fields[10], 64); err == nil && conf >= 0 {
			scaled := conf / 100.0
			word.Confidence = &scaled
		}
		words = append(words, word)
	}
	return words
}
