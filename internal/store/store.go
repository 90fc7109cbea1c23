// Package store defines the persistence surface for images, generation
// metadata, and tags. The SQLite implementation lives in store/sqlite.
package store

import (
	"context"

	"github.com/pixvaultapp/pixvault-server/internal/domain"
)

// ImageStore persists image rows.
type ImageStore interface {
	// CreateImage inserts a new image. Returns ErrAlreadyExists when an
	// image with the same content hash or storage key is present.
	CreateImage(ctx context.Context, img *domain.Image) error
	GetImageByID(ctx context.Context, id string) (*domain.Image, error)
	GetImageByHash(ctx context.Context, hash string) (*domain.Image, error)
	// ListImages pages through all images by id keyset. Pass an empty
	// afterID for the first page; a short page means the end.
	ListImages(ctx context.Context, afterID string, limit int) ([]*domain.Image, error)
	// ListImagesMissingLossless pages through images whose lossless
	// derivative flag is unset.
	ListImagesMissingLossless(ctx context.Context, afterID string, limit int) ([]*domain.Image, error)
	// ListImagesMissingSidecar pages through images whose metadata
	// sidecar flag is unset.
	ListImagesMissingSidecar(ctx context.Context, afterID string, limit int) ([]*domain.Image, error)
	CountImages(ctx context.Context) (int, error)
	// CountImagesMissingLossless and CountImagesMissingSidecar size
	// repair runs over the corresponding List methods.
	CountImagesMissingLossless(ctx context.Context) (int, error)
	CountImagesMissingSidecar(ctx context.Context) (int, error)
	SetImageLossless(ctx context.Context, id string, hasLossless bool) error
	SetImageSidecar(ctx context.Context, id string, hasSidecar bool) error
	// DeleteImage removes an image; metadata and tag associations
	// cascade. Deleting an absent image is a no-op.
	DeleteImage(ctx context.Context, id string) error
}

// MetadataStore persists the generation metadata decoded from an
// image's embedded comment.
type MetadataStore interface {
	// SaveMetadata stores or replaces the metadata row for an image.
	SaveMetadata(ctx context.Context, imageID, format string, meta *domain.GenerationMetadata) error
	// GetMetadata returns the stored format and metadata. The returned
	// metadata carries no Tags; associations live in the tag store.
	GetMetadata(ctx context.Context, imageID string) (string, *domain.GenerationMetadata, error)
}

// TagStore persists tags and image-tag associations.
type TagStore interface {
	// CreateTag inserts a new tag. Returns ErrAlreadyExists on a
	// duplicate name.
	CreateTag(ctx context.Context, tag *domain.Tag) error
	GetTagByID(ctx context.Context, id string) (*domain.Tag, error)
	GetTagByName(ctx context.Context, name string) (*domain.Tag, error)
	ListTags(ctx context.Context) ([]*domain.Tag, error)
	// FindOrCreateTag returns the existing tag or creates it, deriving
	// the category from the name on first creation. Safe under
	// concurrent callers racing on the same name.
	FindOrCreateTag(ctx context.Context, name string) (*domain.Tag, bool, error)
	// UpsertImageTag writes a pipeline association; a second write for
	// the same (image, tag) pair updates weight, negativity, and source.
	UpsertImageTag(ctx context.Context, assoc *domain.ImageTag) error
	// AddUserImageTag records a user association. Reports whether a row
	// was added; tagging an already tagged pair is a no-op.
	AddUserImageTag(ctx context.Context, imageID, tagID string) (bool, error)
	GetImageTags(ctx context.Context, imageID string) ([]*domain.ImageTag, error)
	// GetImageTagDetails returns the image's associations joined with
	// their tag rows, for search document assembly.
	GetImageTagDetails(ctx context.Context, imageID string) ([]*domain.ImageTagDetail, error)
	// GetTagUsage counts an individual tag's associations by class.
	GetTagUsage(ctx context.Context, tagID string) (*domain.TagUsage, error)
}

// Store is the full persistence surface.
type Store interface {
	ImageStore
	MetadataStore
	TagStore
	Close() error
}
