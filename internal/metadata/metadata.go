// Package metadata routes raw PNG comments to format-specific readers.
package metadata

import (
	"github.com/pixvaultapp/pixvault-server/internal/domain"
)

// Format identifies the producer whose comment format a reader parses.
type Format string

const (
	FormatNovelAI Format = "novelai"
	FormatUnknown Format = "unknown"
)

// Reader parses one producer's comment format. CanHandle must be cheap;
// Read must never fail, unparseable content degrades to a record with
// only the raw comment set.
type Reader interface {
	Format() Format
	CanHandle(rawComment string) bool
	Read(rawComment string) *domain.GenerationMetadata
}

// Registry holds an ordered list of readers. The first reader claiming
// a comment parses it; comments nobody claims are kept verbatim under
// FormatUnknown so a future reader can re-parse them.
type Registry struct {
	readers []Reader
}

// NewRegistry creates a registry trying readers in the given order.
func NewRegistry(readers ...Reader) *Registry {
	return &Registry{readers: readers}
}

// Parse decodes a raw comment with the first matching reader.
func (r *Registry) Parse(rawComment string) (Format, *domain.GenerationMetadata) {
	for _, reader := range r.readers {
		if reader.CanHandle(rawComment) {
			return reader.Format(), reader.Read(rawComment)
		}
	}
	return FormatUnknown, &domain.GenerationMetadata{RawComment: rawComment}
}
