package sqlite

import (
	"context"
	"database/sql"
	"encoding/json/v2"
	"fmt"

	"github.com/pixvaultapp/pixvault-server/internal/domain"
	"github.com/pixvaultapp/pixvault-server/internal/store"
)

// SaveMetadata stores or replaces the generation metadata row for an
// image. Tags are not written here; associations live in image_tags.
func (s *Store) SaveMetadata(ctx context.Context, imageID, format string, meta *domain.GenerationMetadata) error {
	var charCaptions sql.NullString
	if len(meta.V4CharCaptions) > 0 {
		data, err := json.Marshal(meta.V4CharCaptions)
		if err != nil {
			return fmt.Errorf("marshal char captions: %w", err)
		}
		charCaptions = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO generation_metadata (
			image_id, format, prompt, negative_prompt, seed, steps, scale,
			sampler, width, height, v4_base_caption, v4_char_captions, raw_comment
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		imageID,
		format,
		nullableString(meta.Prompt),
		nullableString(meta.NegativePrompt),
		nullableInt64(meta.Seed),
		nullableInt(meta.Steps),
		nullableFloat(meta.Scale),
		nullableString(meta.Sampler),
		nullableInt(meta.Width),
		nullableInt(meta.Height),
		nullableString(meta.V4BaseCaption),
		charCaptions,
		meta.RawComment,
	)
	return err
}

// GetMetadata retrieves the stored format and generation metadata.
// Returns store.ErrNotFound if the image has no metadata row.
func (s *Store) GetMetadata(ctx context.Context, imageID string) (string, *domain.GenerationMetadata, error) {
	var (
		format       string
		meta         domain.GenerationMetadata
		prompt       sql.NullString
		negative     sql.NullString
		seed         sql.NullInt64
		steps        sql.NullInt64
		scale        sql.NullFloat64
		sampler      sql.NullString
		width        sql.NullInt64
		height       sql.NullInt64
		baseCaption  sql.NullString
		charCaptions sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT format, prompt, negative_prompt, seed, steps, scale,
			sampler, width, height, v4_base_caption, v4_char_captions, raw_comment
		FROM generation_metadata WHERE image_id = ?`, imageID).Scan(
		&format,
		&prompt,
		&negative,
		&seed,
		&steps,
		&scale,
		&sampler,
		&width,
		&height,
		&baseCaption,
		&charCaptions,
		&meta.RawComment,
	)
	if err == sql.ErrNoRows {
		return "", nil, store.ErrNotFound
	}
	if err != nil {
		return "", nil, err
	}

	meta.Prompt = stringPtr(prompt)
	meta.NegativePrompt = stringPtr(negative)
	meta.Seed = int64Ptr(seed)
	meta.Steps = intPtr(steps)
	meta.Scale = floatPtr(scale)
	meta.Sampler = stringPtr(sampler)
	meta.Width = intPtr(width)
	meta.Height = intPtr(height)
	meta.V4BaseCaption = stringPtr(baseCaption)

	if charCaptions.Valid {
		if err := json.Unmarshal([]byte(charCaptions.String), &meta.V4CharCaptions); err != nil {
			return "", nil, fmt.Errorf("unmarshal char captions: %w", err)
		}
	}

	return format, &meta, nil
}
