// Package render rasterizes PDF pages and reads document metadata through
// MuPDF via go-fitz.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/core/ports"
)

type FitzRenderer struct{}

func NewFitzRenderer() *FitzRenderer {
	return &FitzRenderer{}
}

// Metadata returns the PDF's document properties plus its page count. The
// page count is also mirrored into the metadata map, matching the shape the
// upload endpoint reports.
func (r *FitzRenderer) Metadata(_ context.Context, pdfPath string) (map[string]any, int, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, 0, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	metadata := make(map[string]any)
	for key, value := range doc.Metadata() {
		if strings.TrimSpace(value) != "" {
			metadata[key] = value
		}
	}
	pageCount := doc.NumPage()
	metadata["page_count"] = pageCount
	return metadata, pageCount, nil
}

func (r *FitzRenderer) PageCount(_ context.Context, pdfPath string) (int, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// RenderPages rasterizes every page to a PNG file under outDir, named after
// the stored PDF so page images of different documents never collide.
func (r *FitzRenderer) RenderPages(ctx context.Context, pdfPath, outDir string, dpi int) ([]ports.RenderedPage, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	baseName := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	pages := make([]ports.RenderedPage, 0, doc.NumPage())

	for pageIndex := 0; pageIndex < doc.NumPage(); pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.ImageDPI(pageIndex, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", pageIndex+1, err)
		}

		outPath := filepath.Join(outDir, fmt.Sprintf("%s_page_%d.png", baseName, pageIndex+1))
		f, err := os.Create(outPath)
		if err != nil {
			return nil, fmt.Errorf("create page image %d: %w", pageIndex+1, err)
		}
		err = png.Encode(f, img)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("encode page image %d: %w", pageIndex+1, err)
		}

		bounds := img.Bounds()
		pages = append(pages, ports.RenderedPage{
			Page:   pageIndex + 1,
			Path:   outPath,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
	}
	return pages, nil
}

// RenderPage rasterizes a single 1-based page in memory and returns PNG
// bytes with the image dimensions.
func (r *FitzRenderer) RenderPage(_ context.Context, pdfPath string, page, dpi int) ([]byte, int, int, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return nil, 0, 0, domain.WrapError(domain.ErrInvalidInput, "render page",
			fmt.Errorf("page %d out of range 1..%d", page, doc.NumPage()))
	}

	img, err := doc.ImageDPI(page-1, float64(dpi))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("render page %d: %w", page, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, 0, 0, fmt.Errorf("encode page %d: %w", page, err)
	}
	bounds := img.Bounds()
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}
