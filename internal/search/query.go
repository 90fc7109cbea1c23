package search

import (
	"context"
	"encoding/json/v2"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/pixvaultapp/pixvault-server/internal/util"
)

// SearchImages executes an image search against the embedded index.
func (b *BleveIndex) SearchImages(ctx context.Context, params ImageSearchParams) (*ImageResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	searchQuery := buildImageQuery(params)
	req := bleve.NewSearchRequestOptions(searchQuery, limit, params.Offset, false)
	req.Fields = []string{sourceField}
	addImageSorting(req, params)

	res, err := b.images.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &ImageResult{
		Total: res.Total,
		Hits:  make([]*ImageDocument, 0, len(res.Hits)),
	}
	for _, hit := range res.Hits {
		var doc ImageDocument
		if err := decodeSource(hit.Fields, &doc); err != nil {
			return nil, fmt.Errorf("decode hit %s: %w", hit.ID, err)
		}
		result.Hits = append(result.Hits, &doc)
	}

	return result, nil
}

// SearchTags finds tags by name, hitting both the canonical form and
// the tokenized form so "red eyes" matches red_eyes.
func (b *BleveIndex) SearchTags(ctx context.Context, queryText string, limit int) ([]*TagDocument, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	var searchQuery query.Query
	if queryText == "" {
		searchQuery = bleve.NewMatchAllQuery()
	} else {
		normalized := util.NormalizeTagName(queryText)
		textQueries := []query.Query{}

		// Exact canonical name with highest boost.
		exact := bleve.NewTermQuery(normalized)
		exact.SetField("name")
		exact.SetBoost(3.0)
		textQueries = append(textQueries, exact)

		// Prefix query for autocomplete.
		prefix := bleve.NewPrefixQuery(normalized)
		prefix.SetField("name")
		prefix.SetBoost(1.5)
		textQueries = append(textQueries, prefix)

		// Word-level match on the tokenized form.
		words := bleve.NewMatchQuery(queryText)
		words.SetField("tokenizedName")
		textQueries = append(textQueries, words)

		searchQuery = bleve.NewDisjunctionQuery(textQueries...)
	}

	req := bleve.NewSearchRequestOptions(searchQuery, limit, 0, false)
	req.Fields = []string{sourceField}
	if queryText == "" {
		req.SortBy([]string{"-count"})
	} else {
		req.SortBy([]string{"-_score", "-count"})
	}

	res, err := b.tags.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	docs := make([]*TagDocument, 0, len(res.Hits))
	for _, hit := range res.Hits {
		var doc TagDocument
		if err := decodeSource(hit.Fields, &doc); err != nil {
			return nil, fmt.Errorf("decode hit %s: %w", hit.ID, err)
		}
		docs = append(docs, &doc)
	}

	return docs, nil
}

// buildImageQuery constructs the Bleve query from params.
func buildImageQuery(params ImageSearchParams) query.Query {
	var queries []query.Query

	// Free-text portion. An exact tag hit on the normalized query
	// scores highest, so a query that IS a tag name surfaces exactly
	// those images. Word-level tag matching covers multi-word queries
	// ("red eyes"), and a filename match catches images with no
	// useful tags.
	if params.Query != "" {
		textQueries := []query.Query{}

		exactTag := bleve.NewTermQuery(util.NormalizeTagName(params.Query))
		exactTag.SetField("tags")
		exactTag.SetBoost(3.0)
		textQueries = append(textQueries, exactTag)

		tagsMatch := bleve.NewMatchQuery(params.Query)
		tagsMatch.SetField("tagsText")
		tagsMatch.SetBoost(2.0)
		textQueries = append(textQueries, tagsMatch)

		filenameMatch := bleve.NewMatchQuery(params.Query)
		filenameMatch.SetField("filename")
		textQueries = append(textQueries, filenameMatch)

		// Any one of the text fields may satisfy the query.
		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	// Tag filters (every listed tag must be present)
	for _, tag := range params.Tags {
		tq := bleve.NewTermQuery(tag)
		tq.SetField("tags")
		queries = append(queries, tq)
	}

	// Dimension filters
	if params.MinWidth > 0 {
		min := float64(params.MinWidth)
		rangeQuery := bleve.NewNumericRangeQuery(&min, nil)
		rangeQuery.SetField("width")
		queries = append(queries, rangeQuery)
	}
	if params.MinHeight > 0 {
		min := float64(params.MinHeight)
		rangeQuery := bleve.NewNumericRangeQuery(&min, nil)
		rangeQuery.SetField("height")
		queries = append(queries, rangeQuery)
	}

	// Filters and the text portion must all hold.
	if len(queries) == 0 {
		return bleve.NewMatchAllQuery()
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

// addImageSorting configures sort order. Relevance needs a text query
// to produce meaningful scores, so queryless searches sort newest-first.
func addImageSorting(req *bleve.SearchRequest, params ImageSearchParams) {
	switch params.SortBy {
	case "recent":
		req.SortBy([]string{"-createdAt"})
	case "relevance":
		req.SortBy([]string{"-_score"})
	default:
		if params.Query != "" {
			req.SortBy([]string{"-_score"})
		} else {
			req.SortBy([]string{"-createdAt"})
		}
	}
}

// getSource fetches the stored source JSON for one document ID.
// Caller must hold the index lock.
func (b *BleveIndex) getSource(ctx context.Context, idx bleve.Index, id string) (string, bool, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{id}), 1, 0, false)
	req.Fields = []string{sourceField}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return "", false, fmt.Errorf("fetch document %s: %w", id, err)
	}
	if len(res.Hits) == 0 {
		return "", false, nil
	}

	src, ok := res.Hits[0].Fields[sourceField].(string)
	if !ok {
		return "", false, fmt.Errorf("document %s has no stored source", id)
	}
	return src, true, nil
}

// decodeSource unmarshals the stored document JSON from hit fields.
func decodeSource(fields map[string]interface{}, out any) error {
	src, ok := fields[sourceField].(string)
	if !ok {
		return fmt.Errorf("hit has no stored source")
	}
	return json.Unmarshal([]byte(src), out)
}
