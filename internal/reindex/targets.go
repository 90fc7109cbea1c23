package reindex

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"sort"

	"github.com/pixvaultapp/pixvault-server/internal/blob"
	"github.com/pixvaultapp/pixvault-server/internal/domain"
	"github.com/pixvaultapp/pixvault-server/internal/errors"
	"github.com/pixvaultapp/pixvault-server/internal/media/images"
	"github.com/pixvaultapp/pixvault-server/internal/metadata"
	"github.com/pixvaultapp/pixvault-server/internal/search"
	"github.com/pixvaultapp/pixvault-server/internal/service"
	"github.com/pixvaultapp/pixvault-server/internal/store"
)

// LosslessTarget regenerates the lossless derivative for every image
// flagged as missing one.
type LosslessTarget struct {
	store  store.Store
	blobs  blob.Store
	search *service.SearchService
	format string
	dryRun bool
}

func NewLosslessTarget(st store.Store, blobs blob.Store, searchSvc *service.SearchService, format string, dryRun bool) *LosslessTarget {
	return &LosslessTarget{store: st, blobs: blobs, search: searchSvc, format: format, dryRun: dryRun}
}

func (t *LosslessTarget) Name() string { return "lossless-derivative" }

func (t *LosslessTarget) Count(ctx context.Context) (int, error) {
	return t.store.CountImagesMissingLossless(ctx)
}

func (t *LosslessTarget) Prepare(context.Context) error { return nil }

func (t *LosslessTarget) NextBatch(ctx context.Context, afterID string, limit int) ([]Item, error) {
	imgs, err := t.store.ListImagesMissingLossless(ctx, afterID, limit)
	if err != nil {
		return nil, err
	}
	return imageItems(imgs), nil
}

func (t *LosslessTarget) Process(ctx context.Context, item Item) (Outcome, error) {
	img, outcome, err := currentImage(ctx, t.store, item.ID)
	if img == nil {
		return outcome, err
	}
	if img.HasLossless {
		return OutcomeSkipped, nil
	}
	if t.dryRun {
		return OutcomePlanned, nil
	}

	data, err := t.blobs.Get(ctx, blob.OriginalKey(img.FileHash))
	if err != nil {
		return OutcomeFailed, fmt.Errorf("load original: %w", err)
	}
	decoded, _, err := images.Decode(data)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("decode original: %w", err)
	}
	encoded, contentType, err := images.EncodeLossless(decoded, t.format)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("encode derivative: %w", err)
	}
	if err := t.blobs.Put(ctx, blob.LosslessKey(img.FileHash, t.format), encoded, contentType); err != nil {
		return OutcomeFailed, fmt.Errorf("store derivative: %w", err)
	}

	if err := t.store.SetImageLossless(ctx, img.ID, true); err != nil {
		return OutcomeFailed, fmt.Errorf("flag image: %w", err)
	}
	img.HasLossless = true
	if err := t.search.UpdateImageFlags(ctx, img); err != nil {
		return OutcomeFailed, fmt.Errorf("update index: %w", err)
	}
	return OutcomeUpdated, nil
}

// SidecarTarget rebuilds the metadata sidecar for every image flagged
// as missing one.
type SidecarTarget struct {
	store  store.Store
	blobs  blob.Store
	search *service.SearchService
	dryRun bool
}

func NewSidecarTarget(st store.Store, blobs blob.Store, searchSvc *service.SearchService, dryRun bool) *SidecarTarget {
	return &SidecarTarget{store: st, blobs: blobs, search: searchSvc, dryRun: dryRun}
}

func (t *SidecarTarget) Name() string { return "metadata-sidecar" }

func (t *SidecarTarget) Count(ctx context.Context) (int, error) {
	return t.store.CountImagesMissingSidecar(ctx)
}

func (t *SidecarTarget) Prepare(context.Context) error { return nil }

func (t *SidecarTarget) NextBatch(ctx context.Context, afterID string, limit int) ([]Item, error) {
	imgs, err := t.store.ListImagesMissingSidecar(ctx, afterID, limit)
	if err != nil {
		return nil, err
	}
	return imageItems(imgs), nil
}

func (t *SidecarTarget) Process(ctx context.Context, item Item) (Outcome, error) {
	img, outcome, err := currentImage(ctx, t.store, item.ID)
	if img == nil {
		return outcome, err
	}
	if img.HasSidecar {
		return OutcomeSkipped, nil
	}
	if t.dryRun {
		return OutcomePlanned, nil
	}

	// Images ingested without a comment still get a sidecar, so a
	// missing metadata row is not an error here.
	format, meta, err := t.store.GetMetadata(ctx, img.ID)
	if errors.Is(err, store.ErrNotFound) {
		format, meta = string(metadata.FormatUnknown), nil
	} else if err != nil {
		return OutcomeFailed, fmt.Errorf("get metadata: %w", err)
	}

	doc := domain.SidecarDocument{
		Format:     format,
		Metadata:   meta,
		UploadedAt: img.CreatedAt,
		Filename:   img.Filename,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("marshal sidecar: %w", err)
	}
	if err := t.blobs.Put(ctx, blob.SidecarKey(img.FileHash), payload, "application/json"); err != nil {
		return OutcomeFailed, fmt.Errorf("store sidecar: %w", err)
	}

	if err := t.store.SetImageSidecar(ctx, img.ID, true); err != nil {
		return OutcomeFailed, fmt.Errorf("flag image: %w", err)
	}
	img.HasSidecar = true
	if err := t.search.UpdateImageFlags(ctx, img); err != nil {
		return OutcomeFailed, fmt.Errorf("update index: %w", err)
	}
	return OutcomeUpdated, nil
}

// ImagesTarget upserts every image document from the relational store.
// It clears nothing, so documents for deleted images survive until
// deleted through the normal path.
type ImagesTarget struct {
	store  store.Store
	search *service.SearchService
	dryRun bool
}

func NewImagesTarget(st store.Store, searchSvc *service.SearchService, dryRun bool) *ImagesTarget {
	return &ImagesTarget{store: st, search: searchSvc, dryRun: dryRun}
}

func (t *ImagesTarget) Name() string { return "reindex-images" }

func (t *ImagesTarget) Count(ctx context.Context) (int, error) {
	return t.store.CountImages(ctx)
}

func (t *ImagesTarget) Prepare(context.Context) error { return nil }

func (t *ImagesTarget) NextBatch(ctx context.Context, afterID string, limit int) ([]Item, error) {
	imgs, err := t.store.ListImages(ctx, afterID, limit)
	if err != nil {
		return nil, err
	}
	return imageItems(imgs), nil
}

func (t *ImagesTarget) Process(ctx context.Context, item Item) (Outcome, error) {
	img, outcome, err := currentImage(ctx, t.store, item.ID)
	if img == nil {
		return outcome, err
	}
	if t.dryRun {
		return OutcomePlanned, nil
	}
	if err := t.search.IndexImage(ctx, img); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeUpdated, nil
}

// TagsTarget rebuilds the tag collection from scratch: clear it, then
// re-evaluate every tag and write the ones that qualify.
type TagsTarget struct {
	tags   *service.TagService
	index  search.Index
	dryRun bool

	cache []*domain.Tag
	byID  map[string]*domain.Tag
}

func NewTagsTarget(tags *service.TagService, index search.Index, dryRun bool) *TagsTarget {
	return &TagsTarget{tags: tags, index: index, dryRun: dryRun}
}

func (t *TagsTarget) Name() string { return "reindex-tags" }

func (t *TagsTarget) Count(ctx context.Context) (int, error) {
	if err := t.load(ctx); err != nil {
		return 0, err
	}
	return len(t.cache), nil
}

func (t *TagsTarget) Prepare(ctx context.Context) error {
	return t.index.ClearTags(ctx)
}

func (t *TagsTarget) NextBatch(ctx context.Context, afterID string, limit int) ([]Item, error) {
	if err := t.load(ctx); err != nil {
		return nil, err
	}

	start := 0
	if afterID != "" {
		start = sort.Search(len(t.cache), func(i int) bool { return t.cache[i].ID > afterID })
	}
	end := min(start+limit, len(t.cache))

	items := make([]Item, 0, end-start)
	for _, tag := range t.cache[start:end] {
		items = append(items, Item{ID: tag.ID, Label: tag.Name})
	}
	return items, nil
}

func (t *TagsTarget) Process(ctx context.Context, item Item) (Outcome, error) {
	tag, ok := t.byID[item.ID]
	if !ok {
		return OutcomeSkipped, nil
	}

	decision, err := t.tags.Evaluate(ctx, tag.ID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("evaluate tag: %w", err)
	}
	if !decision.ShouldIndex {
		// Absence is the correct index state after the clear.
		return OutcomeSkipped, nil
	}
	if t.dryRun {
		return OutcomePlanned, nil
	}

	doc := search.BuildTagDocument(tag, decision.DisplayCount)
	if err := t.index.UpsertTags(ctx, []*search.TagDocument{doc}); err != nil {
		return OutcomeFailed, fmt.Errorf("index tag: %w", err)
	}
	return OutcomeUpdated, nil
}

// load snapshots the tag table once per run, ordered by id for keyset
// paging.
func (t *TagsTarget) load(ctx context.Context) error {
	if t.cache != nil {
		return nil
	}

	tags, err := t.tags.ListTags(ctx)
	if err != nil {
		return err
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].ID < tags[j].ID })

	t.cache = tags
	t.byID = make(map[string]*domain.Tag, len(tags))
	for _, tag := range tags {
		t.byID[tag.ID] = tag
	}
	return nil
}

func imageItems(imgs []*domain.Image) []Item {
	items := make([]Item, 0, len(imgs))
	for _, img := range imgs {
		items = append(items, Item{ID: img.ID, Label: img.Filename})
	}
	return items
}

// currentImage refetches an image before repairing it. A row deleted
// since its batch was listed is a skip, not a failure.
func currentImage(ctx context.Context, st store.Store, id string) (*domain.Image, Outcome, error) {
	img, err := st.GetImageByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, OutcomeSkipped, nil
	}
	if err != nil {
		return nil, OutcomeFailed, fmt.Errorf("get image: %w", err)
	}
	return img, "", nil
}
