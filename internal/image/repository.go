// Package image implements the image ingestion pipeline: upload, thumbnail
// derivation, metadata persistence, listing with presigned URLs, and deletion.
package image

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Image is the durable metadata record for one uploaded image. The two blob
// keys are derived from the id at ingestion time and never change afterward.
type Image struct {
	ID          string    `json:"id"`
	OriginalKey string    `json:"original_key"`
	ThumbKey    string    `json:"thumb_key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrNotFound is returned when an image record does not exist.
var ErrNotFound = errors.New("image not found")

// Repository handles all image database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert stores a new image record.
func (r *Repository) Insert(ctx context.Context, img *Image) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO images (id, original_key, thumb_key, content_type, size_bytes, width, height, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		img.ID, img.OriginalKey, img.ThumbKey, img.ContentType,
		img.SizeBytes, img.Width, img.Height, img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records ordered newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Image, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, original_key, thumb_key, content_type, size_bytes, width, height, created_at
		 FROM images
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.OriginalKey, &img.ThumbKey, &img.ContentType,
			&img.SizeBytes, &img.Width, &img.Height, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image row: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate image rows: %w", err)
	}
	return images, nil
}

// GetByID fetches an image record by its UUID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Image, error) {
	img := &Image{}
	err := r.db.QueryRow(ctx,
		`SELECT id, original_key, thumb_key, content_type, size_bytes, width, height, created_at
		 FROM images WHERE id = $1`,
		id,
	).Scan(&img.ID, &img.OriginalKey, &img.ThumbKey, &img.ContentType,
		&img.SizeBytes, &img.Width, &img.Height, &img.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image by id: %w", err)
	}
	return img, nil
}

// DeleteByID removes an image record. Deleting a missing id is a no-op;
// callers that need existence semantics check with GetByID first.
func (r *Repository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image by id: %w", err)
	}
	return nil
}
