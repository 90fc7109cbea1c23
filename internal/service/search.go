package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pixvaultapp/pixvault-server/internal/domain"
	"github.com/pixvaultapp/pixvault-server/internal/errors"
	"github.com/pixvaultapp/pixvault-server/internal/search"
	"github.com/pixvaultapp/pixvault-server/internal/store"
)

// SearchService bridges the search index with the data store, handling
// document assembly, updates, and query execution. The store is the
// source of truth; anything here can be rebuilt by the reindex tool.
type SearchService struct {
	index  search.Index
	store  store.Store
	logger *slog.Logger
}

// NewSearchService wires the index to its backing store.
func NewSearchService(index search.Index, store store.Store, logger *slog.Logger) *SearchService {
	return &SearchService{
		index:  index,
		store:  store,
		logger: logger,
	}
}

// SearchImages runs an image query against the index.
func (s *SearchService) SearchImages(ctx context.Context, params search.ImageSearchParams) (*search.ImageResult, error) {
	return s.index.SearchImages(ctx, params)
}

// SearchTags runs a tag query against the index for autocomplete.
func (s *SearchService) SearchTags(ctx context.Context, query string, limit int) ([]*search.TagDocument, error) {
	return s.index.SearchTags(ctx, query, limit)
}

// BuildImageDocument assembles the search document for an image with
// denormalized metadata and tag fields. Images without generation
// metadata still index on filename and user tags.
func (s *SearchService) BuildImageDocument(ctx context.Context, img *domain.Image) (*search.ImageDocument, error) {
	_, meta, err := s.store.GetMetadata(ctx, img.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get metadata: %w", err)
	}

	assocs, err := s.store.GetImageTagDetails(ctx, img.ID)
	if err != nil {
		return nil, fmt.Errorf("get image tags: %w", err)
	}

	return search.BuildImageDocument(img, meta, assocs), nil
}

// IndexImage publishes the image's full document to the index.
// Call this when an image is created or its metadata changes.
func (s *SearchService) IndexImage(ctx context.Context, img *domain.Image) error {
	doc, err := s.BuildImageDocument(ctx, img)
	if err != nil {
		return fmt.Errorf("build document: %w", err)
	}

	if err := s.index.UpsertImages(ctx, []*search.ImageDocument{doc}); err != nil {
		return fmt.Errorf("index document: %w", err)
	}

	s.logger.Debug("indexed image", "id", img.ID, "tags", len(doc.Tags))
	return nil
}

// UpdateImageTags refreshes the tag fields of an indexed image after
// its associations changed. The document is rebuilt from the store so
// the patch reflects current state, not the caller's view of it.
func (s *SearchService) UpdateImageTags(ctx context.Context, imageID string) error {
	img, err := s.store.GetImageByID(ctx, imageID)
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}

	doc, err := s.BuildImageDocument(ctx, img)
	if err != nil {
		return fmt.Errorf("build document: %w", err)
	}

	patch := search.DocumentPatch{ID: imageID, Fields: doc.TagFields()}
	if err := s.index.UpdateImages(ctx, []search.DocumentPatch{patch}); err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	s.logger.Debug("updated image tags in index", "id", imageID, "tags", len(doc.Tags))
	return nil
}

// UpdateImageFlags patches the derivative flags of an indexed image
// after a repair run regenerated its lossless copy or sidecar.
func (s *SearchService) UpdateImageFlags(ctx context.Context, img *domain.Image) error {
	patch := search.DocumentPatch{
		ID: img.ID,
		Fields: map[string]any{
			search.FieldHasLossless: img.HasLossless,
			search.FieldHasSidecar:  img.HasSidecar,
		},
	}
	if err := s.index.UpdateImages(ctx, []search.DocumentPatch{patch}); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// RemoveImage removes an image from the index.
func (s *SearchService) RemoveImage(ctx context.Context, imageID string) error {
	return s.index.DeleteImage(ctx, imageID)
}
