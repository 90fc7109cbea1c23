package search

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// BleveIndex implements Index with two on-disk Bleve indexes, one per
// collection. It serves embedded single-binary deployments and tests.
//
// All public methods are safe for concurrent use; the read-write mutex
// keeps searches off an index handle that a rebuild is swapping out.
type BleveIndex struct {
	images     bleve.Index
	tags       bleve.Index
	imagesPath string
	tagsPath   string
	logger     *slog.Logger
	mu         sync.RWMutex // Protects index handles during rebuild
}

// BleveOptions configures the embedded index.
type BleveOptions struct {
	DataPath string       // Directory for index storage
	Logger   *slog.Logger // Logger for operations (uses stderr if nil)
}

// mappingVersion is incremented whenever either index mapping changes.
// This triggers an automatic rebuild on startup when the version doesn't
// match; reindex-images and reindex-tags repopulate the empty indexes.
const mappingVersion = "1"

// NewBleveIndex creates or opens both collection indexes under
// opts.DataPath. A corrupted or outdated index is removed and recreated.
func NewBleveIndex(opts BleveOptions) (*BleveIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	if err := os.MkdirAll(opts.DataPath, 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	imagesPath := filepath.Join(opts.DataPath, ImagesCollection+".bleve")
	tagsPath := filepath.Join(opts.DataPath, TagsCollection+".bleve")
	versionPath := filepath.Join(opts.DataPath, "mapping.version")

	// A missing or mismatched version file means the on-disk mapping
	// predates the current one and the indexes must be rebuilt.
	needsRebuild := false
	existingVersion, readErr := os.ReadFile(versionPath)
	if readErr != nil {
		// Only force a rebuild when an index already exists; a fresh
		// data directory just creates new ones.
		if _, statErr := os.Stat(imagesPath); statErr == nil {
			logger.Info("index predates mapping versioning, rebuilding",
				"mapping_version", mappingVersion,
			)
			needsRebuild = true
		}
	} else if string(existingVersion) != mappingVersion {
		logger.Info("index mapping is outdated, rebuilding",
			"found_version", string(existingVersion),
			"mapping_version", mappingVersion,
		)
		needsRebuild = true
	}

	images, err := openBleveIndex(imagesPath, buildImageMapping, needsRebuild, logger)
	if err != nil {
		return nil, err
	}
	tags, err := openBleveIndex(tagsPath, buildTagMapping, needsRebuild, logger)
	if err != nil {
		images.Close()
		return nil, err
	}

	if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0644); writeErr != nil {
		logger.Warn("could not record index mapping version", "error", writeErr)
	}

	return &BleveIndex{
		images:     images,
		tags:       tags,
		imagesPath: imagesPath,
		tagsPath:   tagsPath,
		logger:     logger,
	}, nil
}

// openBleveIndex opens an existing index or creates a fresh one with
// the given mapping. An unreadable index is removed and recreated.
func openBleveIndex(path string, build func() mapping.IndexMapping, forceRebuild bool, logger *slog.Logger) (bleve.Index, error) {
	if !forceRebuild {
		index, err := bleve.Open(path)
		if err == nil {
			logger.Info("opened existing search index", "path", path)
			return index, nil
		}
		if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			logger.Warn("existing index is unreadable, recreating",
				"path", path,
				"error", err,
			)
		}
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove old index: %w", err)
	}

	index, err := bleve.New(path, build())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	logger.Info("created new search index", "path", path, "mapping_version", mappingVersion)
	return index, nil
}

// EnsureIndexes is satisfied at construction time for the embedded
// backend; both indexes exist once NewBleveIndex returns.
func (b *BleveIndex) EnsureIndexes(ctx context.Context) error {
	return nil
}

// Close closes both indexes and releases resources.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.images.Close(), b.tags.Close())
}

// UpsertImages adds or fully replaces image documents. Batches commit
// in chunks of 500 so a vault-wide reindex never holds every pending
// document in one Bleve batch.
func (b *BleveIndex) UpsertImages(ctx context.Context, docs []*ImageDocument) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	const batchSize = 500

	for i := 0; i < len(docs); i += batchSize {
		end := i + batchSize
		if end > len(docs) {
			end = len(docs)
		}

		batch := b.images.NewBatch()
		for _, doc := range docs[i:end] {
			m, err := imageDocMap(doc)
			if err != nil {
				return fmt.Errorf("encode %s: %w", doc.ID, err)
			}
			if err := batch.Index(doc.ID, m); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}

		if err := b.images.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// UpdateImages applies field-level patches by merging each patch into
// the document's stored source and reindexing the merged result.
// Patches for unindexed IDs are skipped; a full reindex repairs drift.
func (b *BleveIndex) UpdateImages(ctx context.Context, patches []DocumentPatch) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, patch := range patches {
		src, found, err := b.getSource(ctx, b.images, patch.ID)
		if err != nil {
			return err
		}
		if !found {
			b.logger.Warn("skipping update for unindexed image", "id", patch.ID)
			continue
		}

		var merged map[string]any
		if err := json.Unmarshal([]byte(src), &merged); err != nil {
			return fmt.Errorf("decode source %s: %w", patch.ID, err)
		}
		for field, value := range patch.Fields {
			merged[field] = value
		}

		raw, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode source %s: %w", patch.ID, err)
		}
		var doc ImageDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode merged document %s: %w", patch.ID, err)
		}

		m, err := imageDocMap(&doc)
		if err != nil {
			return fmt.Errorf("encode %s: %w", patch.ID, err)
		}
		if err := b.images.Index(patch.ID, m); err != nil {
			return fmt.Errorf("reindex %s: %w", patch.ID, err)
		}
	}

	return nil
}

// DeleteImage removes an image document from the index.
func (b *BleveIndex) DeleteImage(ctx context.Context, id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.images.Delete(id)
}

// UpsertTags adds or fully replaces tag documents in a batch.
func (b *BleveIndex) UpsertTags(ctx context.Context, docs []*TagDocument) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	const batchSize = 500

	for i := 0; i < len(docs); i += batchSize {
		end := i + batchSize
		if end > len(docs) {
			end = len(docs)
		}

		batch := b.tags.NewBatch()
		for _, doc := range docs[i:end] {
			m, err := tagDocMap(doc)
			if err != nil {
				return fmt.Errorf("encode %s: %w", doc.ID, err)
			}
			if err := batch.Index(doc.ID, m); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}

		if err := b.tags.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// DeleteTag removes a tag document from the index.
func (b *BleveIndex) DeleteTag(ctx context.Context, id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tags.Delete(id)
}

// ClearTags drops the tags index and creates a fresh empty one.
//
// IMPORTANT: This acquires an exclusive lock and blocks all other
// operations until the rebuild finishes.
func (b *BleveIndex) ClearTags(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.tags.Close(); err != nil {
		return fmt.Errorf("close tags index: %w", err)
	}
	if err := os.RemoveAll(b.tagsPath); err != nil {
		return fmt.Errorf("remove tags index: %w", err)
	}

	index, err := bleve.New(b.tagsPath, buildTagMapping())
	if err != nil {
		return fmt.Errorf("create tags index: %w", err)
	}

	b.tags = index
	b.logger.Info("cleared tags index", "path", b.tagsPath)

	return nil
}

// imageDocMap converts a document to its indexable map, attaching the
// stored source JSON.
func imageDocMap(doc *ImageDocument) (map[string]any, error) {
	src, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	m := doc.ToMap()
	m[sourceField] = string(src)
	return m, nil
}

func tagDocMap(doc *TagDocument) (map[string]any, error) {
	src, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	m := doc.ToMap()
	m[sourceField] = string(src)
	return m, nil
}
