// Package search maintains image and tag documents in a full-text
// index. Both document types are derived, rebuildable projections of
// the relational data, never the source of truth.
package search

import (
	"github.com/pixvaultapp/pixvault-server/internal/domain"
	"github.com/pixvaultapp/pixvault-server/internal/util"
)

// Collection names shared by all backends.
const (
	ImagesCollection = "images"
	TagsCollection   = "tags"
)

// Field names used in partial updates, shared so patch builders and
// backends can't drift apart.
const (
	FieldHasLossless = "hasLossless"
	FieldHasSidecar  = "hasSidecar"
	FieldBlurHash    = "blurHash"
)

// WeightedTagEntry carries the full association tuple for clients that
// need exact prompt reconstruction.
type WeightedTagEntry struct {
	Name       string  `json:"name"`
	Weight     float64 `json:"weight"`
	IsNegative bool    `json:"isNegative"`
	Source     string  `json:"source"`
}

// ImageDocument is the searchable projection of an image.
//
// Design note: tag names are denormalized into the document so a single
// query can match an image by any of its tags without joins. The four
// name arrays partition by provenance so clients can filter on who said
// what; weightedTags keeps the full tuples.
type ImageDocument struct {
	ID           string             `json:"id"`
	Filename     string             `json:"filename"`
	Tags         []string           `json:"tags,omitempty"`
	PositiveTags []string           `json:"positiveTags,omitempty"`
	NegativeTags []string           `json:"negativeTags,omitempty"`
	UserTags     []string           `json:"userTags,omitempty"`
	WeightedTags []WeightedTagEntry `json:"weightedTags,omitempty"`
	Seed         *int64             `json:"seed,omitempty"`
	Width        int                `json:"width"`
	Height       int                `json:"height"`
	HasLossless  bool               `json:"hasLossless"`
	HasSidecar   bool               `json:"hasSidecar"`
	BlurHash     string             `json:"blurHash,omitempty"` // Display only, never searched
	CreatedAt    int64              `json:"createdAt"`          // Unix millis
}

// TagDocument is the searchable projection of a tag. TokenizedName has
// `_`, `-`, and `:` replaced with spaces so a query for "red eyes"
// matches a tag stored as "red_eyes".
type TagDocument struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TokenizedName string `json:"tokenizedName"`
	Category      string `json:"category,omitempty"`
	Count         int    `json:"count"`
}

// BuildImageDocument assembles the image projection from the image row,
// its parsed metadata, and its tag associations.
//
// Partitioning: userTags holds names with a user source; negativeTags
// holds negative non-user names; positiveTags holds the remaining
// non-user names; tags holds everything.
func BuildImageDocument(img *domain.Image, meta *domain.GenerationMetadata, assocs []*domain.ImageTagDetail) *ImageDocument {
	doc := &ImageDocument{
		ID:          img.ID,
		Filename:    img.Filename,
		Width:       img.Width,
		Height:      img.Height,
		HasLossless: img.HasLossless,
		HasSidecar:  img.HasSidecar,
		BlurHash:    img.BlurHash,
		CreatedAt:   img.CreatedAt.UnixMilli(),
	}
	if meta != nil {
		doc.Seed = meta.Seed
	}

	for _, assoc := range assocs {
		doc.Tags = append(doc.Tags, assoc.Name)

		switch {
		case assoc.Source == domain.TagSourceUser:
			doc.UserTags = append(doc.UserTags, assoc.Name)
		case assoc.IsNegative:
			doc.NegativeTags = append(doc.NegativeTags, assoc.Name)
		default:
			doc.PositiveTags = append(doc.PositiveTags, assoc.Name)
		}

		doc.WeightedTags = append(doc.WeightedTags, WeightedTagEntry{
			Name:       assoc.Name,
			Weight:     assoc.Weight,
			IsNegative: assoc.IsNegative,
			Source:     string(assoc.Source),
		})
	}

	return doc
}

// BuildTagDocument assembles the tag projection with its display count.
func BuildTagDocument(tag *domain.Tag, count int) *TagDocument {
	return &TagDocument{
		ID:            tag.ID,
		Name:          tag.Name,
		TokenizedName: util.TokenizeTagName(tag.Name),
		Category:      tag.Category,
		Count:         count,
	}
}

// TagFields returns the tag projection fields as a partial update,
// overwriting all five arrays so removed associations disappear from
// the index.
func (d *ImageDocument) TagFields() map[string]any {
	weighted := d.WeightedTags
	if weighted == nil {
		weighted = []WeightedTagEntry{}
	}
	return map[string]any{
		"tags":         emptyIfNil(d.Tags),
		"positiveTags": emptyIfNil(d.PositiveTags),
		"negativeTags": emptyIfNil(d.NegativeTags),
		"userTags":     emptyIfNil(d.UserTags),
		"weightedTags": weighted,
	}
}

// ToMap converts the document to a map so field names match the index
// mapping instead of Go struct names. WeightedTags and BlurHash are
// display-only and travel in the stored source, not as indexed fields.
func (d *ImageDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":          d.ID,
		"filename":    d.Filename,
		"width":       d.Width,
		"height":      d.Height,
		"hasLossless": d.HasLossless,
		"hasSidecar":  d.HasSidecar,
		"createdAt":   d.CreatedAt,
	}

	if len(d.Tags) > 0 {
		m["tags"] = d.Tags
	}
	if len(d.PositiveTags) > 0 {
		m["positiveTags"] = d.PositiveTags
	}
	if len(d.NegativeTags) > 0 {
		m["negativeTags"] = d.NegativeTags
	}
	if len(d.UserTags) > 0 {
		m["userTags"] = d.UserTags
	}
	if d.Seed != nil {
		m["seed"] = *d.Seed
	}

	return m
}

// ToMap converts the document to a map so field names match the index
// mapping.
func (d *TagDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":            d.ID,
		"name":          d.Name,
		"tokenizedName": d.TokenizedName,
		"count":         d.Count,
	}
	if d.Category != "" {
		m["category"] = d.Category
	}
	return m
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
