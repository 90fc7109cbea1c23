package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pixvaultapp/pixvault-server/internal/domain"
	"github.com/pixvaultapp/pixvault-server/internal/store"
)

// seedTag creates and inserts a tag with defaults suitable for testing.
func seedTag(t *testing.T, s *Store, name string) *domain.Tag {
	t.Helper()
	tag := &domain.Tag{
		ID:        "tag-" + name,
		Name:      name,
		Category:  domain.ParseTagCategory(name),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateTag(context.Background(), tag); err != nil {
		t.Fatalf("seed tag %s: %v", name, err)
	}
	return tag
}

func TestCreateTag_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tag := &domain.Tag{
		ID:        "tag-kantoku",
		Name:      "artist:kantoku",
		Category:  "artist",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateTag(ctx, tag); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	got, err := s.GetTagByID(ctx, "tag-kantoku")
	if err != nil {
		t.Fatalf("GetTagByID: %v", err)
	}

	if got.ID != tag.ID {
		t.Errorf("ID: got %q, want %q", got.ID, tag.ID)
	}
	if got.Name != tag.Name {
		t.Errorf("Name: got %q, want %q", got.Name, tag.Name)
	}
	if got.Category != "artist" {
		t.Errorf("Category: got %q, want %q", got.Category, "artist")
	}

	// The RFC3339Nano text column must give back the same instant.
	if got.CreatedAt.Unix() != tag.CreatedAt.Unix() {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, tag.CreatedAt)
	}
}

func TestGetTagByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedTag(t, s, "long_hair")

	got, err := s.GetTagByName(ctx, "long_hair")
	if err != nil {
		t.Fatalf("GetTagByName: %v", err)
	}
	if got.ID != "tag-long_hair" {
		t.Errorf("ID: got %q, want %q", got.ID, "tag-long_hair")
	}
	if got.Category != "" {
		t.Errorf("Category: got %q, want empty", got.Category)
	}
}

func TestGetTag_Missing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetTagByID(ctx, "tag-never-created")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetTagByID: expected ErrNotFound, got %v", err)
	}

	_, err = s.GetTagByName(ctx, "no_such_tag")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetTagByName: expected ErrNotFound, got %v", err)
	}
}

func TestCreateTag_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedTag(t, s, "1girl")

	// Different ID, same name should fail.
	dup := &domain.Tag{
		ID:        "tag-other",
		Name:      "1girl",
		CreatedAt: time.Now().UTC(),
	}
	err := s.CreateTag(ctx, dup)
	if err == nil {
		t.Fatal("expected error for duplicate name, got nil")
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestListTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedTag(t, s, "zettai_ryouiki")
	seedTag(t, s, "ahoge")
	seedTag(t, s, "masterpiece")

	got, err := s.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 tags, got %d", len(got))
	}

	// Verify sorted by name ASC.
	if got[0].Name != "ahoge" {
		t.Errorf("item 0: got name %q, want %q", got[0].Name, "ahoge")
	}
	if got[1].Name != "masterpiece" {
		t.Errorf("item 1: got name %q, want %q", got[1].Name, "masterpiece")
	}
	if got[2].Name != "zettai_ryouiki" {
		t.Errorf("item 2: got name %q, want %q", got[2].Name, "zettai_ryouiki")
	}
}

func TestFindOrCreateTag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// First call should create a new tag with a derived category.
	tag1, created, err := s.FindOrCreateTag(ctx, "artist:wlop")
	if err != nil {
		t.Fatalf("FindOrCreateTag (create): %v", err)
	}
	if !created {
		t.Error("expected created=true for new tag")
	}
	if tag1.ID == "" {
		t.Error("expected non-empty ID for created tag")
	}
	if tag1.Name != "artist:wlop" {
		t.Errorf("Name: got %q, want %q", tag1.Name, "artist:wlop")
	}
	if tag1.Category != "artist" {
		t.Errorf("Category: got %q, want %q", tag1.Category, "artist")
	}
	if tag1.CreatedAt.IsZero() {
		t.Error("CreatedAt: expected non-zero")
	}

	// The row must be readable back by name.
	fetched, err := s.GetTagByName(ctx, "artist:wlop")
	if err != nil {
		t.Fatalf("GetTagByName after create: %v", err)
	}
	if fetched.ID != tag1.ID {
		t.Errorf("persisted ID: got %q, want %q", fetched.ID, tag1.ID)
	}

	// Second call with the same name should find the existing tag.
	tag2, created2, err := s.FindOrCreateTag(ctx, "artist:wlop")
	if err != nil {
		t.Fatalf("FindOrCreateTag (find): %v", err)
	}
	if created2 {
		t.Error("expected created=false for existing tag")
	}
	if tag2.ID != tag1.ID {
		t.Errorf("expected same ID %q, got %q", tag1.ID, tag2.ID)
	}
}

func TestFindOrCreateTag_NoCategory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tag, created, err := s.FindOrCreateTag(ctx, "blue_sky")
	if err != nil {
		t.Fatalf("FindOrCreateTag: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}
	if tag.Category != "" {
		t.Errorf("Category: got %q, want empty", tag.Category)
	}
}

func TestUpsertImageTag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	img := seedImage(t, s, "aaa")
	tag := seedTag(t, s, "1girl")

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.UpsertImageTag(ctx, &domain.ImageTag{
		ImageID:    img.ID,
		TagID:      tag.ID,
		Weight:     1.1025,
		IsNegative: false,
		Source:     domain.TagSourcePrompt,
		CreatedAt:  first,
	}); err != nil {
		t.Fatalf("UpsertImageTag (insert): %v", err)
	}

	assocs, err := s.GetImageTags(ctx, img.ID)
	if err != nil {
		t.Fatalf("GetImageTags: %v", err)
	}
	if len(assocs) != 1 {
		t.Fatalf("expected 1 association, got %d", len(assocs))
	}
	if assocs[0].Weight != 1.1025 {
		t.Errorf("Weight: got %v, want 1.1025", assocs[0].Weight)
	}
	if assocs[0].Source != domain.TagSourcePrompt {
		t.Errorf("Source: got %q, want %q", assocs[0].Source, domain.TagSourcePrompt)
	}

	// A second write for the same pair updates weight, negativity and
	// source but keeps the original created_at.
	if err := s.UpsertImageTag(ctx, &domain.ImageTag{
		ImageID:    img.ID,
		TagID:      tag.ID,
		Weight:     0.95,
		IsNegative: true,
		Source:     domain.TagSourceNegative,
		CreatedAt:  time.Date(2026, 6, 7, 8, 9, 10, 0, time.UTC),
	}); err != nil {
		t.Fatalf("UpsertImageTag (update): %v", err)
	}

	assocs, err = s.GetImageTags(ctx, img.ID)
	if err != nil {
		t.Fatalf("GetImageTags after update: %v", err)
	}
	if len(assocs) != 1 {
		t.Fatalf("expected 1 association after update, got %d", len(assocs))
	}
	if assocs[0].Weight != 0.95 {
		t.Errorf("Weight after update: got %v, want 0.95", assocs[0].Weight)
	}
	if !assocs[0].IsNegative {
		t.Error("IsNegative after update: got false, want true")
	}
	if assocs[0].Source != domain.TagSourceNegative {
		t.Errorf("Source after update: got %q, want %q", assocs[0].Source, domain.TagSourceNegative)
	}
	if !assocs[0].CreatedAt.Equal(first) {
		t.Errorf("CreatedAt after update: got %v, want %v", assocs[0].CreatedAt, first)
	}
}

func TestAddUserImageTag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	img := seedImage(t, s, "aaa")
	tag := seedTag(t, s, "favorite")

	added, err := s.AddUserImageTag(ctx, img.ID, tag.ID)
	if err != nil {
		t.Fatalf("AddUserImageTag: %v", err)
	}
	if !added {
		t.Error("expected added=true for first tag")
	}

	// Tagging the same pair again is a no-op.
	added, err = s.AddUserImageTag(ctx, img.ID, tag.ID)
	if err != nil {
		t.Fatalf("AddUserImageTag (repeat): %v", err)
	}
	if added {
		t.Error("expected added=false for repeat tag")
	}

	assocs, err := s.GetImageTags(ctx, img.ID)
	if err != nil {
		t.Fatalf("GetImageTags: %v", err)
	}
	if len(assocs) != 1 {
		t.Fatalf("expected 1 association, got %d", len(assocs))
	}
	if assocs[0].Weight != 1.0 {
		t.Errorf("Weight: got %v, want 1.0", assocs[0].Weight)
	}
	if assocs[0].IsNegative {
		t.Error("IsNegative: got true, want false")
	}
	if assocs[0].Source != domain.TagSourceUser {
		t.Errorf("Source: got %q, want %q", assocs[0].Source, domain.TagSourceUser)
	}
}

func TestGetImageTagDetails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	img := seedImage(t, s, "aaa")
	zTag := seedTag(t, s, "zettai_ryouiki")
	aTag := seedTag(t, s, "artist:kantoku")

	if err := s.UpsertImageTag(ctx, &domain.ImageTag{
		ImageID: img.ID,
		TagID:   zTag.ID,
		Weight:  1.05,
		Source:  domain.TagSourcePrompt,
	}); err != nil {
		t.Fatalf("UpsertImageTag: %v", err)
	}
	if err := s.UpsertImageTag(ctx, &domain.ImageTag{
		ImageID:    img.ID,
		TagID:      aTag.ID,
		Weight:     1.0,
		IsNegative: true,
		Source:     domain.TagSourceNegative,
	}); err != nil {
		t.Fatalf("UpsertImageTag: %v", err)
	}

	details, err := s.GetImageTagDetails(ctx, img.ID)
	if err != nil {
		t.Fatalf("GetImageTagDetails: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(details))
	}

	// Ordered by tag name.
	if details[0].Name != "artist:kantoku" {
		t.Errorf("item 0: got name %q, want %q", details[0].Name, "artist:kantoku")
	}
	if details[0].Category != "artist" {
		t.Errorf("item 0: got category %q, want %q", details[0].Category, "artist")
	}
	if !details[0].IsNegative {
		t.Error("item 0: expected IsNegative true")
	}
	if details[1].Name != "zettai_ryouiki" {
		t.Errorf("item 1: got name %q, want %q", details[1].Name, "zettai_ryouiki")
	}
	if details[1].Weight != 1.05 {
		t.Errorf("item 1: got weight %v, want 1.05", details[1].Weight)
	}
	if details[1].Source != domain.TagSourcePrompt {
		t.Errorf("item 1: got source %q, want %q", details[1].Source, domain.TagSourcePrompt)
	}
}

func TestGetTagUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tag := seedTag(t, s, "1girl")

	// No associations yet.
	usage, err := s.GetTagUsage(ctx, tag.ID)
	if err != nil {
		t.Fatalf("GetTagUsage (empty): %v", err)
	}
	if usage.UserCount != 0 || usage.MetaPositive != 0 || usage.MetaNegative != 0 {
		t.Errorf("empty usage: got %+v, want zeros", usage)
	}
	if usage.ShouldIndex() {
		t.Error("unused tag should not be indexable")
	}

	// Two user taggings, three positive metadata hits, one negative.
	for i, hash := range []string{"u1", "u2"} {
		img := seedImage(t, s, hash)
		if _, err := s.AddUserImageTag(ctx, img.ID, tag.ID); err != nil {
			t.Fatalf("AddUserImageTag %d: %v", i, err)
		}
	}
	for _, tc := range []struct {
		hash     string
		source   domain.TagSource
		negative bool
	}{
		{"m1", domain.TagSourcePrompt, false},
		{"m2", domain.TagSourceV4Base, false},
		{"m3", domain.TagSourceV4Char, false},
		{"m4", domain.TagSourceNegative, true},
	} {
		img := seedImage(t, s, tc.hash)
		if err := s.UpsertImageTag(ctx, &domain.ImageTag{
			ImageID:    img.ID,
			TagID:      tag.ID,
			Weight:     1.0,
			IsNegative: tc.negative,
			Source:     tc.source,
		}); err != nil {
			t.Fatalf("UpsertImageTag %s: %v", tc.hash, err)
		}
	}

	usage, err = s.GetTagUsage(ctx, tag.ID)
	if err != nil {
		t.Fatalf("GetTagUsage: %v", err)
	}
	if usage.UserCount != 2 {
		t.Errorf("UserCount: got %d, want 2", usage.UserCount)
	}
	if usage.MetaPositive != 3 {
		t.Errorf("MetaPositive: got %d, want 3", usage.MetaPositive)
	}
	if usage.MetaNegative != 1 {
		t.Errorf("MetaNegative: got %d, want 1", usage.MetaNegative)
	}
	if !usage.ShouldIndex() {
		t.Error("tag with user taggings should be indexable")
	}
	if usage.DisplayCount() != 5 {
		t.Errorf("DisplayCount: got %d, want 5", usage.DisplayCount())
	}
}
