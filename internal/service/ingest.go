package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json/v2"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/pixvaultapp/pixvault-server/internal/blob"
	"github.com/pixvaultapp/pixvault-server/internal/domain"
	"github.com/pixvaultapp/pixvault-server/internal/errors"
	"github.com/pixvaultapp/pixvault-server/internal/id"
	"github.com/pixvaultapp/pixvault-server/internal/media/images"
	"github.com/pixvaultapp/pixvault-server/internal/media/png"
	"github.com/pixvaultapp/pixvault-server/internal/metadata"
	"github.com/pixvaultapp/pixvault-server/internal/store"
)

// IngestOptions control the derivative artifacts written during ingest.
type IngestOptions struct {
	// Lossless enables the lossless derivative copy.
	Lossless bool
	// LosslessFormat is the derivative encoding: webp, avif, or png.
	LosslessFormat string
	// StrictDerivatives fails the ingest when a derivative cannot be
	// written. When false, failures are logged and the image lands with
	// the corresponding flag unset for the reindex tool to repair.
	StrictDerivatives bool
}

// IngestService runs the content-addressed ingestion pipeline: hash,
// dedupe, parse, store blobs, persist rows, re-evaluate tags, publish
// the search document. The content hash is the image's identity;
// everything downstream of the relational rows is rebuildable.
type IngestService struct {
	store    store.Store
	blobs    blob.Store
	registry *metadata.Registry
	tags     *TagService
	search   *SearchService
	opts     IngestOptions
	logger   *slog.Logger
}

func NewIngestService(
	store store.Store,
	blobs blob.Store,
	registry *metadata.Registry,
	tags *TagService,
	searchSvc *SearchService,
	opts IngestOptions,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		store:    store,
		blobs:    blobs,
		registry: registry,
		tags:     tags,
		search:   searchSvc,
		opts:     opts,
		logger:   logger,
	}
}

// Ingest runs one PNG through the full pipeline. Re-ingesting bytes
// already in the vault is a successful no-op reporting the existing
// image. Failures after the dedupe check surface as processing errors;
// an interrupted ingest leaves at worst an orphaned blob or an
// unindexed row, both closed by the reindex tool.
func (s *IngestService) Ingest(ctx context.Context, data []byte, filename string) (*domain.IngestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 1. Only PNGs carry the generation metadata this vault stores.
	if !png.HasSignature(data) {
		return nil, errors.InvalidImagef("%s is not a PNG", filename)
	}

	// 2. Content hash is identity; a known hash is a finished ingest.
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.store.GetImageByHash(ctx, hash)
	if err == nil {
		s.logger.Debug("duplicate image", "image_id", existing.ID, "hash", hash, "filename", filename)
		return &domain.IngestResult{Image: existing, Duplicate: true}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, errors.Wrap(err, errors.CodeProcessing, "look up image by hash")
	}

	// 3. Dimensions come from the header; metadata fills in only when
	// the header does not parse.
	width, height, dimErr := png.ReadDimensions(data)

	// 4. Parse generation metadata from the Comment chunk.
	rawComment, hasComment, err := png.ReadComment(data)
	if err != nil {
		return nil, err
	}

	format := metadata.FormatUnknown
	var meta *domain.GenerationMetadata
	if hasComment {
		format, meta = s.registry.Parse(rawComment)
	}
	if dimErr != nil && meta != nil {
		if meta.Width != nil {
			width = *meta.Width
		}
		if meta.Height != nil {
			height = *meta.Height
		}
	}

	// 5. Store the original.
	storageKey := blob.OriginalKey(hash)
	if err := s.blobs.Put(ctx, storageKey, data, "image/png"); err != nil {
		return nil, errors.Wrap(err, errors.CodeProcessing, "store original")
	}

	// Decode once for the derivative and the BlurHash.
	decoded, _, decodeErr := images.Decode(data)

	// 6. Lossless derivative.
	hasLossless := false
	if s.opts.Lossless {
		if err := s.writeLossless(ctx, hash, decoded, decodeErr); err != nil {
			if s.opts.StrictDerivatives {
				return nil, errors.Wrap(err, errors.CodeProcessing, "write lossless derivative")
			}
			s.logger.Warn("lossless derivative failed, continuing",
				"hash", hash, "filename", filename, "error", err)
		} else {
			hasLossless = true
		}
	}

	// 7. Metadata sidecar.
	now := time.Now().UTC()
	hasSidecar := false
	if err := s.writeSidecar(ctx, hash, format, meta, filename, now); err != nil {
		if s.opts.StrictDerivatives {
			return nil, errors.Wrap(err, errors.CodeProcessing, "write metadata sidecar")
		}
		s.logger.Warn("metadata sidecar failed, continuing",
			"hash", hash, "filename", filename, "error", err)
	} else {
		hasSidecar = true
	}

	// 8. BlurHash placeholder. Supplemental; never blocks the ingest.
	var blurHash string
	if decodeErr == nil {
		if bh, err := images.ComputeBlurHash(decoded); err != nil {
			s.logger.Warn("blurhash failed", "hash", hash, "error", err)
		} else {
			blurHash = bh
		}
	}

	// 9. Relational persist.
	imageID, err := id.Generate(id.PrefixImage)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeProcessing, "generate image id")
	}
	img := &domain.Image{
		ID:          imageID,
		Filename:    filename,
		StorageKey:  storageKey,
		FileHash:    hash,
		Width:       width,
		Height:      height,
		HasLossless: hasLossless,
		HasSidecar:  hasSidecar,
		BlurHash:    blurHash,
		CreatedAt:   now,
	}
	if err := s.store.CreateImage(ctx, img); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost a same-bytes race; the winner's row is the answer.
			winner, lookupErr := s.store.GetImageByHash(ctx, hash)
			if lookupErr == nil {
				return &domain.IngestResult{Image: winner, Duplicate: true}, nil
			}
		}
		return nil, errors.Wrap(err, errors.CodeProcessing, "persist image")
	}

	if meta != nil {
		if err := s.store.SaveMetadata(ctx, img.ID, string(format), meta); err != nil {
			return nil, errors.Wrap(err, errors.CodeProcessing, "persist metadata")
		}
	}

	// 10. Tag rows and associations.
	tagIDs, err := s.persistTags(ctx, img.ID, meta, now)
	if err != nil {
		return nil, err
	}

	// 11. Popularity re-evaluation, then the image document itself.
	s.tags.Invalidate(tagIDs...)
	if err := s.tags.ReevaluateTags(ctx, tagIDs); err != nil {
		return nil, errors.Wrap(err, errors.CodeProcessing, "reevaluate tags")
	}
	if err := s.search.IndexImage(ctx, img); err != nil {
		return nil, errors.Wrap(err, errors.CodeProcessing, "publish image document")
	}

	s.logger.Info("ingested image",
		"id", img.ID,
		"filename", filename,
		"hash", hash,
		"format", string(format),
		"tags", len(tagIDs),
		"lossless", hasLossless,
		"sidecar", hasSidecar,
	)

	return &domain.IngestResult{Image: img, TagCount: len(tagIDs)}, nil
}

func (s *IngestService) writeLossless(ctx context.Context, hash string, decoded image.Image, decodeErr error) error {
	if decodeErr != nil {
		return decodeErr
	}
	encoded, contentType, err := images.EncodeLossless(decoded, s.opts.LosslessFormat)
	if err != nil {
		return err
	}
	return s.blobs.Put(ctx, blob.LosslessKey(hash, s.opts.LosslessFormat), encoded, contentType)
}

func (s *IngestService) writeSidecar(ctx context.Context, hash string, format metadata.Format, meta *domain.GenerationMetadata, filename string, uploadedAt time.Time) error {
	doc := domain.SidecarDocument{
		Format:     string(format),
		Metadata:   meta,
		UploadedAt: uploadedAt,
		Filename:   filename,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	return s.blobs.Put(ctx, blob.SidecarKey(hash), payload, "application/json")
}

// persistTags finds or creates each parsed tag and upserts its
// association. Returns the touched tag IDs for re-evaluation.
func (s *IngestService) persistTags(ctx context.Context, imageID string, meta *domain.GenerationMetadata, now time.Time) ([]string, error) {
	if meta == nil || len(meta.Tags) == 0 {
		return nil, nil
	}

	tagIDs := make([]string, 0, len(meta.Tags))
	for _, wt := range meta.Tags {
		tag, _, err := s.store.FindOrCreateTag(ctx, wt.Name)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeProcessing, "find or create tag %q", wt.Name)
		}

		assoc := &domain.ImageTag{
			ImageID:    imageID,
			TagID:      tag.ID,
			Weight:     wt.Weight,
			IsNegative: wt.IsNegative,
			Source:     wt.Source,
			CreatedAt:  now,
		}
		if err := s.store.UpsertImageTag(ctx, assoc); err != nil {
			return nil, errors.Wrapf(err, errors.CodeProcessing, "associate tag %q", wt.Name)
		}

		tagIDs = append(tagIDs, tag.ID)
	}

	return tagIDs, nil
}

// Delete removes an image, its blobs, and its index document, then
// re-evaluates the tags it carried. The relational delete cascades to
// metadata and associations; blob and index removal are best effort
// since the rows are the source of truth.
func (s *IngestService) Delete(ctx context.Context, imageID string) error {
	img, err := s.store.GetImageByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errors.NotFoundf("image %s not found", imageID)
		}
		return fmt.Errorf("get image: %w", err)
	}

	assocs, err := s.store.GetImageTags(ctx, imageID)
	if err != nil {
		return fmt.Errorf("get image tags: %w", err)
	}
	tagIDs := make([]string, 0, len(assocs))
	for _, a := range assocs {
		tagIDs = append(tagIDs, a.TagID)
	}

	// The derivative format may have changed since ingest, so remove
	// every candidate key; deleting a missing key is a no-op.
	keys := []string{
		blob.OriginalKey(img.FileHash),
		blob.SidecarKey(img.FileHash),
		blob.LosslessKey(img.FileHash, "webp"),
		blob.LosslessKey(img.FileHash, "avif"),
		blob.LosslessKey(img.FileHash, "png"),
	}
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to delete blob", "key", key, "error", err)
		}
	}

	if err := s.store.DeleteImage(ctx, imageID); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}

	if err := s.search.RemoveImage(ctx, imageID); err != nil {
		s.logger.Warn("failed to remove image from index", "image_id", imageID, "error", err)
	}

	s.tags.Invalidate(tagIDs...)
	if err := s.tags.ReevaluateTags(ctx, tagIDs); err != nil {
		s.logger.Warn("failed to reevaluate tags after delete", "image_id", imageID, "error", err)
	}

	s.logger.Info("deleted image", "id", imageID, "filename", img.Filename)
	return nil
}
