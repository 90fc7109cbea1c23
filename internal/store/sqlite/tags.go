package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pixvaultapp/pixvault-server/internal/domain"
	"github.com/pixvaultapp/pixvault-server/internal/id"
	"github.com/pixvaultapp/pixvault-server/internal/store"
)

// findOrCreateAttempts bounds the create/re-read loop under races.
const findOrCreateAttempts = 3

// tagColumns is the column list every tag SELECT shares, in the order
// scanTag reads them.
const tagColumns = `id, name, category, created_at`

// scanTag reads one tag row from a sql.Row or sql.Rows.
func scanTag(scanner interface{ Scan(dest ...any) error }) (*domain.Tag, error) {
	var t domain.Tag

	var (
		category  sql.NullString
		createdAt string
	)

	err := scanner.Scan(
		&t.ID,
		&t.Name,
		&category,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	t.Category = category.String

	t.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// CreateTag inserts a tag row. A duplicate name maps to
// store.ErrAlreadyExists.
func (s *Store) CreateTag(ctx context.Context, t *domain.Tag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, name, category, created_at)
		VALUES (?, ?, ?, ?)`,
		t.ID,
		t.Name,
		nullString(t.Category),
		formatTime(t.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetTagByID looks up a single tag. Missing rows map to store.ErrNotFound.
func (s *Store) GetTagByID(ctx context.Context, tagID string) (*domain.Tag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE id = ?`, tagID)

	t, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTagByName looks up a tag by its canonical name. Missing rows map
// to store.ErrNotFound.
func (s *Store) GetTagByName(ctx context.Context, name string) (*domain.Tag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE name = ?`, name)

	t, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []*domain.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if tags == nil {
		tags = []*domain.Tag{}
	}

	return tags, nil
}

// FindOrCreateTag finds an existing tag by name or creates a new one,
// deriving the category from the name at creation time. The second
// return reports whether this call created the row. Concurrent callers
// racing on the same name all converge on one row: the loser re-reads
// the winner's tag, retrying a bounded number of times.
func (s *Store) FindOrCreateTag(ctx context.Context, name string) (*domain.Tag, bool, error) {
	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		existing, err := s.GetTagByName(ctx, name)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}

		// Not found, so mint a fresh row.
		tagID, err := id.Generate(id.PrefixTag)
		if err != nil {
			return nil, false, fmt.Errorf("new tag id: %w", err)
		}

		t := &domain.Tag{
			ID:        tagID,
			Name:      name,
			Category:  domain.ParseTagCategory(name),
			CreatedAt: time.Now().UTC(),
		}

		err = s.CreateTag(ctx, t)
		if err == nil {
			return t, true, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return nil, false, err
		}
		// Race: another caller created it between the read and the
		// insert. Loop back and read theirs.
	}
	return nil, false, store.ErrConflict.WithMessage(fmt.Sprintf("find or create tag %q", name))
}

// UpsertImageTag writes a pipeline association. A second write for the
// same (image, tag) pair updates weight, negativity, and source while
// keeping the original created_at.
func (s *Store) UpsertImageTag(ctx context.Context, assoc *domain.ImageTag) error {
	createdAt := assoc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO image_tags (image_id, tag_id, weight, is_negative, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (image_id, tag_id) DO UPDATE SET
			weight = excluded.weight,
			is_negative = excluded.is_negative,
			source = excluded.source`,
		assoc.ImageID,
		assoc.TagID,
		assoc.Weight,
		boolToInt(assoc.IsNegative),
		string(assoc.Source),
		formatTime(createdAt),
	)
	return err
}

// AddUserImageTag records a user association with weight 1.0. Tagging
// an already tagged pair is a no-op; the return value reports whether a
// row was added.
func (s *Store) AddUserImageTag(ctx context.Context, imageID, tagID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO image_tags (image_id, tag_id, weight, is_negative, source, created_at)
		VALUES (?, ?, 1.0, 0, ?, ?)`,
		imageID,
		tagID,
		string(domain.TagSourceUser),
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetImageTags returns the raw associations for an image ordered by tag ID.
func (s *Store) GetImageTags(ctx context.Context, imageID string) ([]*domain.ImageTag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT image_id, tag_id, weight, is_negative, source, created_at
		FROM image_tags WHERE image_id = ? ORDER BY tag_id ASC`, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assocs []*domain.ImageTag
	for rows.Next() {
		var (
			assoc      domain.ImageTag
			isNegative int
			source     string
			createdAt  string
		)
		if err := rows.Scan(&assoc.ImageID, &assoc.TagID, &assoc.Weight, &isNegative, &source, &createdAt); err != nil {
			return nil, err
		}
		assoc.IsNegative = isNegative != 0
		assoc.Source = domain.TagSource(source)
		assoc.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		assocs = append(assocs, &assoc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assocs, nil
}

// GetImageTagDetails returns the image's associations joined with their
// tag rows, ordered by tag name.
func (s *Store) GetImageTagDetails(ctx context.Context, imageID string) ([]*domain.ImageTagDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT it.tag_id, t.name, t.category, it.weight, it.is_negative, it.source
		FROM image_tags it
		JOIN tags t ON t.id = it.tag_id
		WHERE it.image_id = ?
		ORDER BY t.name ASC`, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []*domain.ImageTagDetail
	for rows.Next() {
		var (
			detail     domain.ImageTagDetail
			category   sql.NullString
			isNegative int
			source     string
		)
		if err := rows.Scan(&detail.TagID, &detail.Name, &category, &detail.Weight, &isNegative, &source); err != nil {
			return nil, err
		}
		detail.Category = category.String
		detail.IsNegative = isNegative != 0
		detail.Source = domain.TagSource(source)
		details = append(details, &detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return details, nil
}

// GetTagUsage counts a tag's associations by class: user associations,
// positive metadata associations, and negative metadata associations.
func (s *Store) GetTagUsage(ctx context.Context, tagID string) (*domain.TagUsage, error) {
	var usage domain.TagUsage
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN source = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source != ? AND is_negative = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source != ? AND is_negative = 1 THEN 1 ELSE 0 END), 0)
		FROM image_tags WHERE tag_id = ?`,
		string(domain.TagSourceUser),
		string(domain.TagSourceUser),
		string(domain.TagSourceUser),
		tagID,
	).Scan(&usage.UserCount, &usage.MetaPositive, &usage.MetaNegative)
	if err != nil {
		return nil, err
	}
	return &usage, nil
}
