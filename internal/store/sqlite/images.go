package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pixvaultapp/pixvault-server/internal/domain"
	"github.com/pixvaultapp/pixvault-server/internal/store"
)

// imageColumns is the column list every image SELECT shares, in the
// order scanImage reads them.
const imageColumns = `id, filename, storage_key, file_hash, width, height, has_lossless, has_sidecar, blur_hash, created_at`

// scanImage reads one image row from a sql.Row or sql.Rows.
func scanImage(scanner interface{ Scan(dest ...any) error }) (*domain.Image, error) {
	var img domain.Image

	var (
		hasLossless int
		hasSidecar  int
		blurHash    sql.NullString
		createdAt   string
	)

	err := scanner.Scan(
		&img.ID,
		&img.Filename,
		&img.StorageKey,
		&img.FileHash,
		&img.Width,
		&img.Height,
		&hasLossless,
		&hasSidecar,
		&blurHash,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	img.HasLossless = hasLossless != 0
	img.HasSidecar = hasSidecar != 0
	img.BlurHash = blurHash.String

	img.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}

	return &img, nil
}

// CreateImage inserts an image row. A duplicate file hash or storage
// key maps to store.ErrAlreadyExists.
func (s *Store) CreateImage(ctx context.Context, img *domain.Image) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO images (`+imageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID,
		img.Filename,
		img.StorageKey,
		img.FileHash,
		img.Width,
		img.Height,
		boolToInt(img.HasLossless),
		boolToInt(img.HasSidecar),
		nullString(img.BlurHash),
		formatTime(img.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetImageByID retrieves an image by its ID.
// Returns store.ErrNotFound if the image does not exist.
func (s *Store) GetImageByID(ctx context.Context, imageID string) (*domain.Image, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = ?`, imageID)

	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// GetImageByHash retrieves an image by its content hash.
// Returns store.ErrNotFound if no image with that hash exists.
func (s *Store) GetImageByHash(ctx context.Context, hash string) (*domain.Image, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE file_hash = ?`, hash)

	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// ListImages pages through all images ordered by id. Pass an empty
// afterID for the first page.
func (s *Store) ListImages(ctx context.Context, afterID string, limit int) ([]*domain.Image, error) {
	return s.listImages(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id > ? ORDER BY id ASC LIMIT ?`,
		afterID, limit)
}

// ListImagesMissingLossless pages through images without a lossless
// derivative, ordered by id.
func (s *Store) ListImagesMissingLossless(ctx context.Context, afterID string, limit int) ([]*domain.Image, error) {
	return s.listImages(ctx,
		`SELECT `+imageColumns+` FROM images WHERE has_lossless = 0 AND id > ? ORDER BY id ASC LIMIT ?`,
		afterID, limit)
}

// ListImagesMissingSidecar pages through images without a metadata
// sidecar, ordered by id.
func (s *Store) ListImagesMissingSidecar(ctx context.Context, afterID string, limit int) ([]*domain.Image, error) {
	return s.listImages(ctx,
		`SELECT `+imageColumns+` FROM images WHERE has_sidecar = 0 AND id > ? ORDER BY id ASC LIMIT ?`,
		afterID, limit)
}

func (s *Store) listImages(ctx context.Context, query string, afterID string, limit int) ([]*domain.Image, error) {
	rows, err := s.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*domain.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if images == nil {
		images = []*domain.Image{}
	}

	return images, nil
}

// CountImages returns the total number of images.
func (s *Store) CountImages(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&count)
	return count, err
}

// CountImagesMissingLossless returns the number of images without a
// lossless derivative.
func (s *Store) CountImagesMissingLossless(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM images WHERE has_lossless = 0`).Scan(&count)
	return count, err
}

// CountImagesMissingSidecar returns the number of images without a
// metadata sidecar.
func (s *Store) CountImagesMissingSidecar(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM images WHERE has_sidecar = 0`).Scan(&count)
	return count, err
}

// SetImageLossless updates the lossless derivative flag.
// Returns store.ErrNotFound if the image does not exist.
func (s *Store) SetImageLossless(ctx context.Context, imageID string, hasLossless bool) error {
	return s.setImageFlag(ctx,
		`UPDATE images SET has_lossless = ? WHERE id = ?`, imageID, hasLossless)
}

// SetImageSidecar updates the metadata sidecar flag.
// Returns store.ErrNotFound if the image does not exist.
func (s *Store) SetImageSidecar(ctx context.Context, imageID string, hasSidecar bool) error {
	return s.setImageFlag(ctx,
		`UPDATE images SET has_sidecar = ? WHERE id = ?`, imageID, hasSidecar)
}

func (s *Store) setImageFlag(ctx context.Context, query, imageID string, value bool) error {
	res, err := s.db.ExecContext(ctx, query, boolToInt(value), imageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteImage removes an image. Metadata and tag associations cascade,
// and deleting an absent image is a no-op.
func (s *Store) DeleteImage(ctx context.Context, imageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, imageID)
	return err
}
