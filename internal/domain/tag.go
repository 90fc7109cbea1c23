package domain

import (
	"strings"
	"time"
)

// TagSource identifies which prompt field a tag association came from.
type TagSource string

// Tag sources, in cross-field collection order.
const (
	TagSourcePrompt   TagSource = "prompt"
	TagSourceV4Base   TagSource = "v4_base"
	TagSourceV4Char   TagSource = "v4_char"
	TagSourceNegative TagSource = "negative"
	TagSourceUser     TagSource = "user"
)

// Valid reports whether s is a known tag source.
func (s TagSource) Valid() bool {
	switch s {
	case TagSourcePrompt, TagSourceV4Base, TagSourceV4Char, TagSourceNegative, TagSourceUser:
		return true
	}
	return false
}

// FromMetadata reports whether the source is a pipeline-derived one,
// as opposed to a tag a user attached by hand.
func (s TagSource) FromMetadata() bool {
	return s != TagSourceUser
}

// WeightedTag is one parsed tag occurrence: canonical name, emphasis
// weight, negative-prompt flag, and the field it was collected from.
type WeightedTag struct {
	Name       string    `json:"name"`
	Weight     float64   `json:"weight"`
	IsNegative bool      `json:"is_negative"`
	Source     TagSource `json:"source"`
}

// Tag represents a global tag shared across all images.
// Name is the source of truth; the canonical form is lowercase with
// underscores ("holding_hands", "artist:kazuo").
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"` // Derived from a name prefix at creation, immutable
	CreatedAt time.Time `json:"created_at"`
}

// ImageTag represents the many-to-many relationship between images and
// tags. The (ImageID, TagID) pair is unique; pipeline writes update the
// weight columns in place, user writes are idempotent no-ops.
type ImageTag struct {
	ImageID    string    `json:"image_id"`
	TagID      string    `json:"tag_id"`
	Weight     float64   `json:"weight"`
	IsNegative bool      `json:"is_negative"`
	Source     TagSource `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// ImageTagDetail is an image-tag association joined with its tag row,
// the shape search document assembly consumes.
type ImageTagDetail struct {
	TagID      string    `json:"tag_id"`
	Name       string    `json:"name"`
	Category   string    `json:"category,omitempty"`
	Weight     float64   `json:"weight"`
	IsNegative bool      `json:"is_negative"`
	Source     TagSource `json:"source"`
}

// ParseTagCategory extracts the category from a canonical tag name.
// A name like "artist:kazuo" yields "artist"; names without an
// alphabetic prefix before the first colon have no category.
func ParseTagCategory(name string) string {
	idx := strings.IndexByte(name, ':')
	if idx <= 0 || idx == len(name)-1 {
		return ""
	}
	prefix := name[:idx]
	for _, r := range prefix {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return prefix
}

// TagUsage aggregates association counts for one tag.
type TagUsage struct {
	UserCount    int `json:"user_count"`    // Associations added by users
	MetaPositive int `json:"meta_positive"` // Metadata associations with is_negative = false
	MetaNegative int `json:"meta_negative"` // Metadata associations with is_negative = true
}

// ShouldIndex reports whether the tag qualifies for the search index:
// any user usage qualifies outright, otherwise metadata usage must be
// majority-positive. A tag referenced only in negative prompts stays out.
func (u TagUsage) ShouldIndex() bool {
	if u.UserCount > 0 {
		return true
	}
	total := u.MetaPositive + u.MetaNegative
	if total == 0 {
		return false
	}
	return float64(u.MetaPositive)/float64(total) > 0.5
}

// DisplayCount is the count shown in tag search results: positive
// metadata usage plus user usage. Negative usage never counts.
func (u TagUsage) DisplayCount() int {
	return u.MetaPositive + u.UserCount
}
