package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/pixvaultapp/pixvault-server/internal/domain"
	"github.com/pixvaultapp/pixvault-server/internal/errors"
	"github.com/pixvaultapp/pixvault-server/internal/search"
	"github.com/pixvaultapp/pixvault-server/internal/store"
	"github.com/pixvaultapp/pixvault-server/internal/util"
)

// TagService owns tag popularity evaluation and user tagging.
// Tags are global: created lazily on first use by any image, never
// deleted automatically. Whether a tag appears in search at all is a
// recomputed decision, not stored state.
type TagService struct {
	store  store.Store
	index  search.Index
	search *SearchService
	usage  *cache.Cache
	logger *slog.Logger
}

// NewTagService creates a tag service. Usage counts are cached for
// cacheTTL; mutation paths invalidate explicitly so the TTL only bounds
// staleness from writes this process never saw.
func NewTagService(store store.Store, index search.Index, searchSvc *SearchService, cacheTTL time.Duration, logger *slog.Logger) *TagService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &TagService{
		store:  store,
		index:  index,
		search: searchSvc,
		usage:  cache.New(cacheTTL, 2*cacheTTL),
		logger: logger,
	}
}

// TagDecision is the outcome of the popularity rule for one tag.
type TagDecision struct {
	ShouldIndex  bool
	DisplayCount int
}

// ListTags returns all tags ordered by name.
func (s *TagService) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	return s.store.ListTags(ctx)
}

// Usage returns the tag's association counts, served from the cache.
func (s *TagService) Usage(ctx context.Context, tagID string) (*domain.TagUsage, error) {
	if v, ok := s.usage.Get(tagID); ok {
		return v.(*domain.TagUsage), nil
	}

	u, err := s.store.GetTagUsage(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("get tag usage: %w", err)
	}

	s.usage.Set(tagID, u, cache.DefaultExpiration)
	return u, nil
}

// Invalidate drops cached usage counts so the next evaluation re-reads
// the store. Every path that mutates associations calls this for the
// tags it touched.
func (s *TagService) Invalidate(tagIDs ...string) {
	for _, tagID := range tagIDs {
		s.usage.Delete(tagID)
	}
}

// Evaluate applies the popularity rule to one tag: any user usage
// qualifies it for the index, otherwise metadata usage must be
// majority-positive. The display count excludes negative usage.
func (s *TagService) Evaluate(ctx context.Context, tagID string) (*TagDecision, error) {
	u, err := s.Usage(ctx, tagID)
	if err != nil {
		return nil, err
	}
	return &TagDecision{
		ShouldIndex:  u.ShouldIndex(),
		DisplayCount: u.DisplayCount(),
	}, nil
}

// ReevaluateTags applies the popularity decision to the tag index for
// each given tag: qualifying tags are upserted with their current
// display count, the rest are removed. Removing a document that was
// never indexed is not an error, so the decision can be applied
// unconditionally.
func (s *TagService) ReevaluateTags(ctx context.Context, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}

	upserts := make([]*search.TagDocument, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		tag, err := s.store.GetTagByID(ctx, tagID)
		if errors.Is(err, store.ErrNotFound) {
			// Tag deleted since the caller collected IDs.
			if err := s.index.DeleteTag(ctx, tagID); err != nil {
				return fmt.Errorf("remove tag %s: %w", tagID, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("get tag %s: %w", tagID, err)
		}

		decision, err := s.Evaluate(ctx, tagID)
		if err != nil {
			return err
		}

		if !decision.ShouldIndex {
			if err := s.index.DeleteTag(ctx, tagID); err != nil {
				return fmt.Errorf("remove tag %s: %w", tagID, err)
			}
			s.logger.Debug("tag removed from index", "tag_id", tagID, "name", tag.Name)
			continue
		}

		upserts = append(upserts, search.BuildTagDocument(tag, decision.DisplayCount))
	}

	if len(upserts) > 0 {
		if err := s.index.UpsertTags(ctx, upserts); err != nil {
			return fmt.Errorf("upsert tag documents: %w", err)
		}
	}

	return nil
}

// AddUserTag attaches a tag to an image on a user's behalf, creating
// the tag if needed. Returns the tag and whether it was newly created.
// Tagging an already tagged image is an idempotent no-op.
func (s *TagService) AddUserTag(ctx context.Context, imageID, rawInput string) (*domain.Tag, bool, error) {
	// 1. Normalize input to the canonical name.
	name := util.NormalizeTagName(rawInput)
	if name == "" {
		return nil, false, errors.Validation("tag name is empty after normalization")
	}

	// 2. The image must exist.
	if _, err := s.store.GetImageByID(ctx, imageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, errors.NotFoundf("image %s not found", imageID)
		}
		return nil, false, fmt.Errorf("get image: %w", err)
	}

	// 3. Find or create the tag.
	tag, created, err := s.store.FindOrCreateTag(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("find or create tag: %w", err)
	}

	// 4. Record the association (idempotent).
	added, err := s.store.AddUserImageTag(ctx, imageID, tag.ID)
	if err != nil {
		return nil, false, fmt.Errorf("add user tag: %w", err)
	}

	// 5. Re-evaluate and sync the index (best effort; the reindex tool
	// repairs missed updates).
	s.Invalidate(tag.ID)
	if err := s.ReevaluateTags(ctx, []string{tag.ID}); err != nil {
		s.logger.Warn("failed to reevaluate tag after user tagging",
			"tag_id", tag.ID,
			"error", err,
		)
	}
	if added && s.search != nil {
		if err := s.search.UpdateImageTags(ctx, imageID); err != nil {
			s.logger.Warn("failed to update image tags in index",
				"image_id", imageID,
				"error", err,
			)
		}
	}

	s.logger.Info("user tag added",
		"tag", tag.Name,
		"image_id", imageID,
		"created", created,
		"added", added,
	)

	return tag, created, nil
}
