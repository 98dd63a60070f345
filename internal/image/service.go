package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pixelbin/service/internal/storage"
)

// ErrInvalidInput is returned when the declared content type is not an image.
var ErrInvalidInput = errors.New("invalid image type")

// Repo is the subset of Repository the service depends on, split out so
// tests can substitute an in-memory implementation.
type Repo interface {
	Insert(ctx context.Context, img *Image) error
	ListRecent(ctx context.Context, limit int) ([]Image, error)
	GetByID(ctx context.Context, id string) (*Image, error)
	DeleteByID(ctx context.Context, id string) error
}

// ListItem is one entry of a listing: the metadata record plus presigned
// retrieval URLs. A URL is null when presigning failed for that key.
type ListItem struct {
	ID           string     `json:"id"`
	CreatedAt    *time.Time `json:"created_at"`
	ContentType  string     `json:"content_type"`
	SizeBytes    int64      `json:"size_bytes"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	OriginalURL  *string    `json:"original_url"`
	ThumbnailURL *string    `json:"thumbnail_url"`
}

// Service coordinates the blob store and the metadata record store. The two
// backends fail independently and no cross-store transaction exists, so a
// failure mid-pipeline can leave orphaned blobs behind; steps run once, in
// order, with no compensating deletes.
type Service struct {
	repo       Repo
	store      storage.Storage
	presignTTL time.Duration
	log        *zap.Logger
}

// NewService creates an image Service.
func NewService(repo Repo, store storage.Storage, presignTTL time.Duration, log *zap.Logger) *Service {
	return &Service{repo: repo, store: store, presignTTL: presignTTL, log: log}
}

// Upload runs the ingestion pipeline: validate the declared content type,
// store the original, derive and store a thumbnail, then persist the record.
// Validation failures return ErrInvalidInput or ErrUndecodable before or
// after the first write respectively; anything else is a dependency fault.
func (s *Service) Upload(ctx context.Context, data []byte, contentType string) (*Image, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInput, contentType)
	}

	id := uuid.New().String()
	originalKey := "originals/" + id
	thumbKey := "thumbnails/" + id + ".jpg"

	if err := s.store.Put(ctx, originalKey, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	// A decode failure here leaves the original blob behind. Accepted:
	// the bytes passed the content-type check, and there is no rollback.
	thumbBytes, width, height, err := GenerateThumbnail(data, DefaultMaxDimension)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, thumbKey, bytes.NewReader(thumbBytes), int64(len(thumbBytes)), ThumbContentType); err != nil {
		return nil, fmt.Errorf("store thumbnail: %w", err)
	}

	img := &Image{
		ID:          id,
		OriginalKey: originalKey,
		ThumbKey:    thumbKey,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Width:       width,
		Height:      height,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, img); err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}

	s.log.Info("image ingested",
		zap.String("id", id),
		zap.Int64("size_bytes", img.SizeBytes),
		zap.Int("width", width),
		zap.Int("height", height))

	return img, nil
}

// List returns up to limit records newest first, each with presigned URLs for
// both keys. A presign failure yields a null URL for that field; it never
// drops the item or fails the listing.
func (s *Service) List(ctx context.Context, limit int) ([]ListItem, error) {
	images, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	items := make([]ListItem, 0, len(images))
	for _, img := range images {
		createdAt := img.CreatedAt
		items = append(items, ListItem{
			ID:           img.ID,
			CreatedAt:    &createdAt,
			ContentType:  img.ContentType,
			SizeBytes:    img.SizeBytes,
			Width:        img.Width,
			Height:       img.Height,
			OriginalURL:  s.presign(ctx, img.OriginalKey),
			ThumbnailURL: s.presign(ctx, img.ThumbKey),
		})
	}
	return items, nil
}

// Delete removes both blobs, then the metadata record. Blob deletes are
// best-effort: a failed original delete still attempts the thumbnail delete,
// and neither failure aborts the record delete. Returns ErrNotFound when the
// id is unknown.
func (s *Service) Delete(ctx context.Context, id string) error {
	img, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, img.OriginalKey); err != nil {
		s.log.Warn("delete original blob failed", zap.String("key", img.OriginalKey), zap.Error(err))
	}
	if err := s.store.Delete(ctx, img.ThumbKey); err != nil {
		s.log.Warn("delete thumbnail blob failed", zap.String("key", img.ThumbKey), zap.Error(err))
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	s.log.Info("image deleted", zap.String("id", id))
	return nil
}

func (s *Service) presign(ctx context.Context, key string) *string {
	u := s.store.PresignGet(ctx, key, s.presignTTL)
	if u == "" {
		return nil
	}
	return &u
}
