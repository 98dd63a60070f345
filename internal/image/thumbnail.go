package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	// DefaultMaxDimension bounds the longer side of a generated thumbnail.
	DefaultMaxDimension = 300

	// ThumbContentType is the MIME type of every generated thumbnail,
	// regardless of the input format.
	ThumbContentType = "image/jpeg"

	thumbJPEGQuality = 85
)

// ErrUndecodable is returned when the input bytes are not a decodable image.
// This is a client fault, not a storage fault.
var ErrUndecodable = errors.New("not a decodable image")

// GenerateThumbnail decodes imageBytes, scales it down so neither dimension
// exceeds maxDim (never upscaling, aspect ratio preserved) and re-encodes it
// as JPEG. It returns the thumbnail bytes and the post-resize width and height.
func GenerateThumbnail(imageBytes []byte, maxDim int) ([]byte, int, int, error) {
	src, err := imaging.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	thumb := imaging.Fit(src, maxDim, maxDim, imaging.Lanczos)
	w, h := thumb.Bounds().Dx(), thumb.Bounds().Dy()

	// JPEG has no alpha channel; flatten transparent and paletted sources
	// onto a white background before encoding.
	var out image.Image = thumb
	if hasAlpha(src) {
		bg := imaging.New(w, h, color.White)
		out = imaging.Overlay(bg, thumb, image.Pt(0, 0), 1.0)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(thumbJPEGQuality)); err != nil {
		return nil, 0, 0, fmt.Errorf("encode thumbnail: %w", err)
	}

	return buf.Bytes(), w, h, nil
}

// hasAlpha reports whether the image's color model can carry transparency.
func hasAlpha(img image.Image) bool {
	switch img.ColorModel() {
	case color.NRGBAModel, color.NRGBA64Model, color.RGBAModel, color.RGBA64Model:
		return true
	}
	_, paletted := img.ColorModel().(color.Palette)
	return paletted
}
