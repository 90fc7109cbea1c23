package search

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"time"

	"github.com/meilisearch/meilisearch-go"
)

// MeiliOptions configure the Meilisearch-backed index.
type MeiliOptions struct {
	Host   string
	APIKey string
	Logger *slog.Logger
}

// MeiliIndex implements Index against an external Meilisearch server.
// Meilisearch tokenizes underscores natively, so tag names are
// word-searchable without the extra tokenized field the embedded
// backend needs.
type MeiliIndex struct {
	client *meilisearch.Client
	images *meilisearch.Index
	tags   *meilisearch.Index
	logger *slog.Logger
}

// NewMeiliIndex creates a client for the given host. The server is not
// contacted until EnsureIndexes or the first write.
func NewMeiliIndex(opts MeiliOptions) (*MeiliIndex, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("meilisearch host is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   opts.Host,
		APIKey: opts.APIKey,
	})

	return &MeiliIndex{
		client: client,
		images: client.Index(ImagesCollection),
		tags:   client.Index(TagsCollection),
		logger: logger.With(slog.String("component", "search")),
	}, nil
}

// EnsureIndexes creates the image and tag indexes if they do not exist
// and pushes attribute settings. Settings updates are idempotent.
func (m *MeiliIndex) EnsureIndexes(ctx context.Context) error {
	for _, uid := range []string{ImagesCollection, TagsCollection} {
		if err := m.ensureIndex(ctx, uid); err != nil {
			return err
		}
	}

	searchable := []string{"filename", "tags", "positiveTags", "userTags"}
	filterable := []string{
		"tags", "positiveTags", "negativeTags", "userTags",
		"seed", "width", "height",
		FieldHasLossless, FieldHasSidecar,
		"createdAt",
	}
	sortable := []string{"createdAt", "width", "height"}

	type settingsUpdate struct {
		name  string
		apply func() (*meilisearch.TaskInfo, error)
	}
	updates := []settingsUpdate{
		{"images searchable", func() (*meilisearch.TaskInfo, error) {
			return m.images.UpdateSearchableAttributes(&searchable)
		}},
		{"images filterable", func() (*meilisearch.TaskInfo, error) {
			return m.images.UpdateFilterableAttributes(&filterable)
		}},
		{"images sortable", func() (*meilisearch.TaskInfo, error) {
			return m.images.UpdateSortableAttributes(&sortable)
		}},
		{"tags searchable", func() (*meilisearch.TaskInfo, error) {
			return m.tags.UpdateSearchableAttributes(&[]string{"name", "tokenizedName"})
		}},
		{"tags sortable", func() (*meilisearch.TaskInfo, error) {
			return m.tags.UpdateSortableAttributes(&[]string{"count"})
		}},
	}
	for _, u := range updates {
		info, err := u.apply()
		if err != nil {
			return fmt.Errorf("update %s attributes: %w", u.name, err)
		}
		if err := m.waitForTask(ctx, info); err != nil {
			return fmt.Errorf("update %s attributes: %w", u.name, err)
		}
	}

	return nil
}

func (m *MeiliIndex) ensureIndex(ctx context.Context, uid string) error {
	if _, err := m.client.GetIndex(uid); err == nil {
		return nil
	}

	info, err := m.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        uid,
		PrimaryKey: "id",
	})
	if err != nil {
		return fmt.Errorf("create index %s: %w", uid, err)
	}
	if err := m.waitForTask(ctx, info); err != nil {
		return fmt.Errorf("create index %s: %w", uid, err)
	}

	m.logger.Info("created search index", slog.String("index", uid))
	return nil
}

// waitForTask blocks until the async task settles and checks it succeeded.
func (m *MeiliIndex) waitForTask(ctx context.Context, info *meilisearch.TaskInfo) error {
	task, err := m.client.WaitForTask(info.TaskUID, meilisearch.WaitParams{
		Context:  ctx,
		Interval: 50 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("wait for task %d: %w", info.TaskUID, err)
	}
	if task.Status != meilisearch.TaskStatusSucceeded {
		return fmt.Errorf("task %d finished %s: %s", info.TaskUID, task.Status, task.Error.Message)
	}
	return nil
}

// UpsertImages adds or fully replaces image documents.
func (m *MeiliIndex) UpsertImages(ctx context.Context, docs []*ImageDocument) error {
	if len(docs) == 0 {
		return nil
	}
	info, err := m.images.AddDocuments(docs)
	if err != nil {
		return fmt.Errorf("add image documents: %w", err)
	}
	return m.waitForTask(ctx, info)
}

// UpdateImages applies partial updates. Unlike a full upsert the
// untouched fields keep their indexed values, but an unknown ID would
// create a skeleton document, so those are filtered out first.
func (m *MeiliIndex) UpdateImages(ctx context.Context, patches []DocumentPatch) error {
	if len(patches) == 0 {
		return nil
	}

	partials := make([]map[string]any, 0, len(patches))
	for _, p := range patches {
		var existing map[string]any
		if err := m.images.GetDocument(p.ID, nil, &existing); err != nil {
			m.logger.Warn("skipping update for unindexed image", slog.String("id", p.ID))
			continue
		}
		partial := map[string]any{"id": p.ID}
		for k, v := range p.Fields {
			partial[k] = v
		}
		partials = append(partials, partial)
	}
	if len(partials) == 0 {
		return nil
	}

	info, err := m.images.UpdateDocuments(partials)
	if err != nil {
		return fmt.Errorf("update image documents: %w", err)
	}
	return m.waitForTask(ctx, info)
}

// DeleteImage removes one image document. Unknown IDs are not an error.
func (m *MeiliIndex) DeleteImage(ctx context.Context, id string) error {
	info, err := m.images.DeleteDocument(id)
	if err != nil {
		return fmt.Errorf("delete image document: %w", err)
	}
	return m.waitForTask(ctx, info)
}

// UpsertTags adds or replaces tag documents.
func (m *MeiliIndex) UpsertTags(ctx context.Context, docs []*TagDocument) error {
	if len(docs) == 0 {
		return nil
	}
	info, err := m.tags.AddDocuments(docs)
	if err != nil {
		return fmt.Errorf("add tag documents: %w", err)
	}
	return m.waitForTask(ctx, info)
}

// DeleteTag removes one tag document.
func (m *MeiliIndex) DeleteTag(ctx context.Context, id string) error {
	info, err := m.tags.DeleteDocument(id)
	if err != nil {
		return fmt.Errorf("delete tag document: %w", err)
	}
	return m.waitForTask(ctx, info)
}

// ClearTags drops every tag document so a rebuild starts clean.
func (m *MeiliIndex) ClearTags(ctx context.Context) error {
	info, err := m.tags.DeleteAllDocuments()
	if err != nil {
		return fmt.Errorf("clear tag documents: %w", err)
	}
	return m.waitForTask(ctx, info)
}

// SearchImages executes an image search. The v0.26 client does not
// thread contexts through search calls.
func (m *MeiliIndex) SearchImages(ctx context.Context, params ImageSearchParams) (*ImageResult, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	req := &meilisearch.SearchRequest{
		Limit:  int64(limit),
		Offset: int64(params.Offset),
	}

	var filters []string
	for _, tag := range params.Tags {
		filters = append(filters, fmt.Sprintf("tags = %q", tag))
	}
	if params.MinWidth > 0 {
		filters = append(filters, fmt.Sprintf("width >= %d", params.MinWidth))
	}
	if params.MinHeight > 0 {
		filters = append(filters, fmt.Sprintf("height >= %d", params.MinHeight))
	}
	if len(filters) > 0 {
		req.Filter = filters
	}

	switch params.SortBy {
	case "recent":
		req.Sort = []string{"createdAt:desc"}
	case "relevance":
		// Meilisearch default ranking.
	default:
		if params.Query == "" {
			req.Sort = []string{"createdAt:desc"}
		}
	}

	res, err := m.images.Search(params.Query, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &ImageResult{
		Total: uint64(res.EstimatedTotalHits),
		Hits:  make([]*ImageDocument, 0, len(res.Hits)),
	}
	for _, hit := range res.Hits {
		doc, err := decodeMeiliHit[ImageDocument](hit)
		if err != nil {
			return nil, err
		}
		result.Hits = append(result.Hits, doc)
	}

	return result, nil
}

// SearchTags finds tags by name.
func (m *MeiliIndex) SearchTags(ctx context.Context, query string, limit int) ([]*TagDocument, error) {
	if limit <= 0 {
		limit = 20
	}

	req := &meilisearch.SearchRequest{Limit: int64(limit)}
	if query == "" {
		req.Sort = []string{"count:desc"}
	}

	res, err := m.tags.Search(query, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	docs := make([]*TagDocument, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc, err := decodeMeiliHit[TagDocument](hit)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// Close is a no-op for the HTTP client.
func (m *MeiliIndex) Close() error {
	return nil
}

// decodeMeiliHit round-trips a raw hit through JSON into a typed document.
func decodeMeiliHit[T any](hit any) (*T, error) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return nil, fmt.Errorf("marshal hit: %w", err)
	}
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode hit: %w", err)
	}
	return &doc, nil
}
