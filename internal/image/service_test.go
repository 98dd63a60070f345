package image

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pixelbin/service/internal/storage"
)

type storedObject struct {
	data        []byte
	contentType string
}

// fakeStore is an in-memory storage.Storage. Failure injection matches keys
// by prefix since ids are generated inside the service.
type fakeStore struct {
	mu                sync.Mutex
	objects           map[string]storedObject
	deleted           []string
	failPutPrefix     string
	failDeletePrefix  string
	failPresignPrefix string
}

var _ storage.Storage = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]storedObject)}
}

func (f *fakeStore) Put(_ context.Context, key string, reader io.Reader, _ int64, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPutPrefix != "" && strings.HasPrefix(key, f.failPutPrefix) {
		return errors.New("blob store unavailable")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[key] = storedObject{data: data, contentType: contentType}
	return nil
}

func (f *fakeStore) PresignGet(_ context.Context, key string, _ time.Duration) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPresignPrefix != "" && strings.HasPrefix(key, f.failPresignPrefix) {
		return ""
	}
	return "https://blob.test/" + key + "?sig=ok"
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	if f.failDeletePrefix != "" && strings.HasPrefix(key, f.failDeletePrefix) {
		return errors.New("blob store unavailable")
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fakeRepo is an in-memory Repo.
type fakeRepo struct {
	mu        sync.Mutex
	images    []Image
	insertErr error
	lastLimit int
}

var _ Repo = (*fakeRepo)(nil)

func (f *fakeRepo) Insert(_ context.Context, img *Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.images = append(f.images, *img)
	return nil
}

func (f *fakeRepo) ListRecent(_ context.Context, limit int) ([]Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	out := make([]Image, len(f.images))
	copy(out, f.images)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range f.images {
		if img.ID == id {
			img := img
			return &img, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) DeleteByID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, img := range f.images {
		if img.ID == id {
			f.images = append(f.images[:i], f.images[i+1:]...)
			return nil
		}
	}
	return nil
}

func newTestService(repo *fakeRepo, store *fakeStore) *Service {
	return NewService(repo, store, time.Hour, zap.NewNop())
}

func TestUploadRejectsNonImageContentType(t *testing.T) {
	repo := &fakeRepo{}
	store := newFakeStore()
	svc := newTestService(repo, store)

	_, err := svc.Upload(context.Background(), []byte("some bytes"), "application/pdf")
	assert.ErrorIs(t, err, ErrInvalidInput)

	// rejected before any side effect
	assert.Empty(t, store.keys())
	assert.Empty(t, repo.images)
}

func TestUploadStoresBothBlobsAndRecord(t *testing.T) {
	repo := &fakeRepo{}
	store := newFakeStore()
	svc := newTestService(repo, store)
	data := makeJPEG(t, 1000, 500)

	img, err := svc.Upload(context.Background(), data, "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "originals/"+img.ID, img.OriginalKey)
	assert.Equal(t, "thumbnails/"+img.ID+".jpg", img.ThumbKey)
	assert.Equal(t, "image/jpeg", img.ContentType)
	assert.Equal(t, int64(len(data)), img.SizeBytes)
	assert.Equal(t, 300, img.Width)
	assert.Equal(t, 150, img.Height)
	assert.False(t, img.CreatedAt.IsZero())

	assert.Equal(t, []string{img.OriginalKey, img.ThumbKey}, store.keys())
	assert.Equal(t, data, store.objects[img.OriginalKey].data)
	assert.Equal(t, ThumbContentType, store.objects[img.ThumbKey].contentType)

	require.Len(t, repo.images, 1)
	assert.Equal(t, img.ID, repo.images[0].ID)
}

func TestUploadUndecodableBytesLeavesOriginalBehind(t *testing.T) {
	repo := &fakeRepo{}
	store := newFakeStore()
	svc := newTestService(repo, store)

	_, err := svc.Upload(context.Background(), []byte("junk"), "image/png")
	assert.ErrorIs(t, err, ErrUndecodable)

	// original was written before the decode failed; no thumbnail, no record
	keys := store.keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "originals/"))
	assert.Empty(t, repo.images)
}

func TestUploadOriginalStoreFailure(t *testing.T) {
	repo := &fakeRepo{}
	store := newFakeStore()
	store.failPutPrefix = "originals/"
	svc := newTestService(repo, store)

	_, err := svc.Upload(context.Background(), makeJPEG(t, 10, 10), "image/jpeg")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, store.keys())
	assert.Empty(t, repo.images)
}

func TestUploadThumbnailStoreFailureLeavesOriginal(t *testing.T) {
	repo := &fakeRepo{}
	store := newFakeStore()
	store.failPutPrefix = "thumbnails/"
	svc := newTestService(repo, store)

	_, err := svc.Upload(context.Background(), makeJPEG(t, 10, 10), "image/jpeg")
	require.Error(t, err)

	keys := store.keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "originals/"))
	assert.Empty(t, repo.images)
}

func TestUploadRecordInsertFailureLeavesBlobs(t *testing.T) {
	repo := &fakeRepo{insertErr: errors.New("database unavailable")}
	store := newFakeStore()
	svc := newTestService(repo, store)

	_, err := svc.Upload(context.Background(), makeJPEG(t, 10, 10), "image/jpeg")
	require.Error(t, err)

	// both blobs orphaned; no compensating deletes
	assert.Len(t, store.keys(), 2)
	assert.Empty(t, store.deleted)
}

func TestListPresignsBothKeys(t *testing.T) {
	repo := &fakeRepo{}
	store := newFakeStore()
	svc := newTestService(repo, store)

	img, err := svc.Upload(context.Background(), makeJPEG(t, 400, 200), "image/jpeg")
	require.NoError(t, err)

	items, err := svc.List(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, img.ID, item.ID)
	assert.Equal(t, img.Width, item.Width)
	assert.Equal(t, img.Height, item.Height)
	require.NotNil(t, item.OriginalURL)
	require.NotNil(t, item.ThumbnailURL)
	assert.Contains(t, *item.OriginalURL, img.OriginalKey)
	assert.Contains(t, *item.ThumbnailURL, img.ThumbKey)
	require.NotNil(t, item.CreatedAt)
}

func TestListOrdersNewestFirst(t *testing.T) {
	repo := &fakeRepo{}
	store := newFakeStore()
	svc := newTestService(repo, store)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		repo.images = append(repo.images, Image{
			ID:          "img-" + string(rune('a'+i)),
			OriginalKey: "originals/x",
			ThumbKey:    "thumbnails/x.jpg",
			CreatedAt:   now.Add(time.Duration(i) * time.Minute),
		})
	}

	items, err := svc.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "img-c", items[0].ID)
	assert.Equal(t, "img-b", items[1].ID)
	assert.Equal(t, 2, repo.lastLimit)
}

func TestListPresignFailureYieldsNullURL(t *testing.T) {
	repo := &fakeRepo{}
	store := newFakeStore()
	store.failPresignPrefix = "thumbnails/"
	svc := newTestService(repo, store)

	_, err := svc.Upload(context.Background(), makeJPEG(t, 50, 50), "image/jpeg")
	require.NoError(t, err)

	items, err := svc.List(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// degraded, not dropped
	assert.NotNil(t, items[0].OriginalURL)
	assert.Nil(t, items[0].ThumbnailURL)
}

func TestDeleteUnknownID(t *testing.T) {
	svc := newTestService(&fakeRepo{}, newFakeStore())
	err := svc.Delete(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesBlobsAndRecord(t *testing.T) {
	repo := &fakeRepo{}
	store := newFakeStore()
	svc := newTestService(repo, store)

	img, err := svc.Upload(context.Background(), makeJPEG(t, 50, 50), "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), img.ID))
	assert.Empty(t, store.keys())
	assert.Empty(t, repo.images)

	// second delete of the same id
	assert.ErrorIs(t, svc.Delete(context.Background(), img.ID), ErrNotFound)
}

func TestDeleteAttemptsSecondBlobWhenFirstFails(t *testing.T) {
	repo := &fakeRepo{}
	store := newFakeStore()
	svc := newTestService(repo, store)

	img, err := svc.Upload(context.Background(), makeJPEG(t, 50, 50), "image/jpeg")
	require.NoError(t, err)

	store.failDeletePrefix = "originals/"

	require.NoError(t, svc.Delete(context.Background(), img.ID))
	assert.Equal(t, []string{img.OriginalKey, img.ThumbKey}, store.deleted)
	assert.Empty(t, repo.images)
}
