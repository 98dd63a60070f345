package image

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pixelbin/service/internal/response"
)

const (
	defaultListLimit = 20
	maxListLimit     = 50
)

// Handler holds HTTP handlers for image endpoints.
type Handler struct {
	svc           *Service
	maxUploadSize int64
	log           *zap.Logger
}

// NewHandler creates a new image Handler.
func NewHandler(svc *Service, maxUploadSize int64, log *zap.Logger) *Handler {
	return &Handler{svc: svc, maxUploadSize: maxUploadSize, log: log}
}

// UploadResponse is the body returned after a successful ingestion.
type UploadResponse struct {
	ID          string `json:"id"`
	OriginalKey string `json:"original_key"`
	ThumbKey    string `json:"thumb_key"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// ListResponse wraps a page of image listings.
type ListResponse struct {
	Items []ListItem `json:"items"`
}

// Upload godoc
//
//	@Summary		Upload an image
//	@Description	Stores the original, derives a thumbnail, and persists metadata.
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"image file"
//	@Success		201	{object}	UploadResponse
//	@Failure		400	{object}	response.ErrorBody
//	@Failure		500	{object}	response.ErrorBody
//	@Router			/images [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "missing or oversized file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "failed to read upload")
		return
	}

	img, err := h.svc.Upload(r.Context(), data, header.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			response.BadRequest(w, "invalid image type")
		case errors.Is(err, ErrUndecodable):
			response.BadRequest(w, "file is not a decodable image")
		default:
			h.log.Error("upload failed", zap.Error(err))
			response.InternalError(w)
		}
		return
	}

	response.Created(w, UploadResponse{
		ID:          img.ID,
		OriginalKey: img.OriginalKey,
		ThumbKey:    img.ThumbKey,
		Width:       img.Width,
		Height:      img.Height,
	})
}

// List godoc
//
//	@Summary		List images
//	@Description	Returns recent images, newest first, with presigned retrieval URLs.
//	@Tags			images
//	@Produce		json
//	@Param			limit	query		int	false	"max items, clamped to [1,50]"	default(20)
//	@Success		200	{object}	ListResponse
//	@Failure		500	{object}	response.ErrorBody
//	@Router			/images [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), clampLimit(r.URL.Query().Get("limit")))
	if err != nil {
		h.log.Error("list failed", zap.Error(err))
		response.InternalError(w)
		return
	}

	response.JSON(w, http.StatusOK, ListResponse{Items: items})
}

// Delete godoc
//
//	@Summary		Delete an image
//	@Description	Removes both stored blobs and the metadata record.
//	@Tags			images
//	@Param			id	path	string	true	"image id"
//	@Success		204
//	@Failure		404	{object}	response.ErrorBody
//	@Failure		500	{object}	response.ErrorBody
//	@Router			/images/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "image not found")
			return
		}
		h.log.Error("delete failed", zap.String("id", id), zap.Error(err))
		response.InternalError(w)
		return
	}

	response.NoContent(w)
}

// clampLimit parses the limit query parameter and bounds it to [1, 50],
// falling back to the default for missing or unparsable values.
func clampLimit(raw string) int {
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
