// Package domain contains the core business entities for the PixVault image archive.
package domain

import "time"

// Image represents an archived generated image.
// One row exists per unique content hash; re-ingesting the same bytes
// returns the existing record instead of creating a new one.
type Image struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`     // Original filename as uploaded
	StorageKey  string    `json:"storage_key"`  // Blob key of the original PNG
	FileHash    string    `json:"file_hash"`    // Hex SHA-256 of the original bytes
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	HasLossless bool      `json:"has_lossless"` // Lossless derivative exists in blob storage
	HasSidecar  bool      `json:"has_sidecar"`  // Metadata sidecar exists in blob storage
	BlurHash    string    `json:"blur_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// GenerationMetadata holds the generation parameters embedded in a PNG
// by the producer. All scalar fields are nullable; a malformed or absent
// comment yields a value with every scalar nil and the raw comment kept
// verbatim for later re-parsing.
type GenerationMetadata struct {
	Prompt         *string  `json:"prompt,omitempty"`
	NegativePrompt *string  `json:"negative_prompt,omitempty"`
	Seed           *int64   `json:"seed,omitempty"` // int64: NovelAI seeds exceed 2^31
	Steps          *int     `json:"steps,omitempty"`
	Scale          *float64 `json:"scale,omitempty"`
	Sampler        *string  `json:"sampler,omitempty"`
	Width          *int     `json:"width,omitempty"`
	Height         *int     `json:"height,omitempty"`
	V4BaseCaption  *string  `json:"v4_base_caption,omitempty"`
	V4CharCaptions []string `json:"v4_char_captions,omitempty"` // In character order
	RawComment     string   `json:"raw_comment"`

	// Tags derived from the prompt fields. Persisted relationally and
	// indexed, never serialized into the sidecar.
	Tags []WeightedTag `json:"-"`
}

// HasGenerationData reports whether any generation parameter was
// actually recovered from the comment.
func (m *GenerationMetadata) HasGenerationData() bool {
	if m == nil {
		return false
	}
	return m.Prompt != nil || m.Seed != nil || m.Sampler != nil || m.V4BaseCaption != nil
}

// SidecarDocument is the JSON shape written next to each original as
// {hash}.metadata.json. Field names are part of the on-disk format.
type SidecarDocument struct {
	Format     string              `json:"format"`
	Metadata   *GenerationMetadata `json:"metadata"`
	UploadedAt time.Time           `json:"uploadedAt"`
	Filename   string              `json:"filename"`
}

// IngestResult reports the outcome of one ingestion.
type IngestResult struct {
	Image     *Image `json:"image"`
	Duplicate bool   `json:"duplicate"` // True when the hash was already archived
	TagCount  int    `json:"tag_count"` // Tags associated during this ingestion
}
