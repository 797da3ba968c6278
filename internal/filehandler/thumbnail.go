package filehandler

import (
	"bytes"
	"fmt"
	"image"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

// DefaultThumbnailMaxDimension is the longest side of a grid preview.
const DefaultThumbnailMaxDimension = 400

// calculateThumbnailDimensions scales width x height so the longer side is
// maxDimension. Images already within bounds keep their size.
func calculateThumbnailDimensions(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}
	if width >= height {
		h := height * maxDimension / width
		if h < 1 {
			h = 1
		}
		return maxDimension, h
	}
	w := width * maxDimension / height
	if w < 1 {
		w = 1
	}
	return w, maxDimension
}

// GenerateThumbnail downsizes img and encodes it as WebP.
func GenerateThumbnail(img image.Image, maxDimension int) ([]byte, error) {
	bounds := img.Bounds()
	w, h := calculateThumbnailDimensions(bounds.Dx(), bounds.Dy(), maxDimension)

	thumb := img
	if w != bounds.Dx() || h != bounds.Dy() {
		thumb = imaging.Resize(img, w, h, imaging.CatmullRom)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, thumb, &webp.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail as WebP: %w", err)
	}

	log.Debug().
		Int("orig_width", bounds.Dx()).
		Int("orig_height", bounds.Dy()).
		Int("new_width", w).
		Int("new_height", h).
		Int("output_size", buf.Len()).
		Msg("Thumbnail generated")

	return buf.Bytes(), nil
}
