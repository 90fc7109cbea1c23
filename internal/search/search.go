package search

import "context"

// DocumentPatch is a field-level update merged into an existing
// document by ID. Only the named fields change; everything else keeps
// its indexed value.
type DocumentPatch struct {
	ID     string
	Fields map[string]any
}

// ImageSearchParams configures an image search.
type ImageSearchParams struct {
	Query string   // Free text, matched against filename and tag names
	Tags  []string // Exact tag names the image must all carry

	// Dimension filters (0 = unbounded)
	MinWidth  int
	MinHeight int

	// Page window
	Limit  int
	Offset int

	// Sorting: "relevance" or "recent". Defaults to relevance when a
	// query is present, newest-first otherwise.
	SortBy string
}

// ImageResult is one page of image hits.
type ImageResult struct {
	Total uint64
	Hits  []*ImageDocument
}

// Index maintains the images and tags collections.
//
// Implementations: Meilisearch for deployments with an external search
// service, Bleve for embedded single-binary setups. Both expose the
// same write semantics so callers never branch on the backend.
type Index interface {
	// EnsureIndexes creates the collections and their attribute
	// configuration if missing. Safe to call on every startup.
	EnsureIndexes(ctx context.Context) error

	// UpsertImages adds or fully replaces image documents.
	UpsertImages(ctx context.Context, docs []*ImageDocument) error

	// UpdateImages applies field-level patches to existing image
	// documents. Patches for unknown IDs are skipped.
	UpdateImages(ctx context.Context, patches []DocumentPatch) error

	// DeleteImage removes an image document. Unknown IDs are not an error.
	DeleteImage(ctx context.Context, id string) error

	// UpsertTags adds or fully replaces tag documents.
	UpsertTags(ctx context.Context, docs []*TagDocument) error

	// DeleteTag removes a tag document. Unknown IDs are not an error.
	DeleteTag(ctx context.Context, id string) error

	// ClearTags removes every tag document, keeping the collection.
	ClearTags(ctx context.Context) error

	SearchImages(ctx context.Context, params ImageSearchParams) (*ImageResult, error)
	SearchTags(ctx context.Context, query string, limit int) ([]*TagDocument, error)

	Close() error
}
