package filehandler

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

// Inspection is what the upload flow learns about a photo.
type Inspection struct {
	Width    int
	Height   int
	Size     int64
	Metadata *ImageMetadata
	// Image is the decoded, upright pixel data.
	Image image.Image
}

// Inspect decodes data with EXIF orientation applied and reads its
// metadata. Missing EXIF is not an error; undecodable pixels are.
func Inspect(data []byte) (*Inspection, error) {
	if int64(len(data)) > MaxUploadBytes {
		return nil, fmt.Errorf("file is %d bytes; the limit is %d MB", len(data), MaxUploadBytes>>20)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	in := &Inspection{
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		Size:   int64(len(data)),
		Image:  img,
	}

	meta, err := ExtractImageMetadata(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Msg("No EXIF metadata, continuing without it")
	} else {
		in.Metadata = meta
	}
	return in, nil
}
