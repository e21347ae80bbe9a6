package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/core/ports"
)

type UploadDocumentUseCase struct {
	docs      ports.DocumentRepository
	artifacts ports.ArtifactStore
	renderer  ports.PageRenderer
}

func NewUploadDocumentUseCase(
	docs ports.DocumentRepository,
	artifacts ports.ArtifactStore,
	renderer ports.PageRenderer,
) *UploadDocumentUseCase {
	return &UploadDocumentUseCase{
		docs:      docs,
		artifacts: artifacts,
		renderer:  renderer,
	}
}

func (uc *UploadDocumentUseCase) Upload(
	ctx context.Context,
	filename string,
	body io.Reader,
) (*domain.Document, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("only PDF uploads are supported"))
	}

	storedPath, err := uc.artifacts.SaveUpload(ctx, filename, body)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	metadata, pageCount, err := uc.renderer.Metadata(ctx, storedPath)
	if err != nil {
		return nil, fmt.Errorf("extract pdf metadata: %w", err)
	}

	doc := &domain.Document{
		ID:         uuid.NewString(),
		Filename:   filename,
		StoredPath: storedPath,
		UploadedAt: time.Now().UTC(),
		PageCount:  pageCount,
		Metadata:   metadata,
	}
	if err := uc.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}
