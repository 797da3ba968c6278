package filehandler

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// ImageMetadata contains EXIF metadata extracted from a listing photo.
type ImageMetadata struct {
	// GPS coordinates (converted from EXIF Rational format to float64)
	Latitude  float64
	Longitude float64
	HasGPS    bool

	DateTaken time.Time
	HasDate   bool

	CameraMake  string
	CameraModel string
}

// ExtractImageMetadata reads EXIF from r. Only the metadata block is read,
// not the pixel data.
func ExtractImageMetadata(r io.ReadSeeker) (*ImageMetadata, error) {
	exifData, err := imagemeta.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	metadata := &ImageMetadata{}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		metadata.Latitude = gps.Latitude()
		metadata.Longitude = gps.Longitude()
		metadata.HasGPS = true
	}

	// Priority: DateTimeOriginal > CreateDate > ModifyDate
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		metadata.DateTaken = exifData.DateTimeOriginal()
		metadata.HasDate = true
	case !exifData.CreateDate().IsZero():
		metadata.DateTaken = exifData.CreateDate()
		metadata.HasDate = true
	case !exifData.ModifyDate().IsZero():
		metadata.DateTaken = exifData.ModifyDate()
		metadata.HasDate = true
	}

	metadata.CameraMake = strings.TrimSpace(exifData.Make)
	metadata.CameraModel = strings.TrimSpace(exifData.Model)

	log.Debug().
		Bool("has_gps", metadata.HasGPS).
		Bool("has_date", metadata.HasDate).
		Str("camera", metadata.Camera()).
		Msg("Image metadata extraction complete")

	return metadata, nil
}

// Camera returns "make model", or "" when neither is recorded.
func (m *ImageMetadata) Camera() string {
	return strings.TrimSpace(m.CameraMake + " " + m.CameraModel)
}

// FormatMetadataContext formats the metadata as a text block for inclusion
// in room analysis prompts.
func (m *ImageMetadata) FormatMetadataContext() string {
	var sb strings.Builder

	sb.WriteString("## PHOTO METADATA\n\n")

	if m.HasGPS {
		sb.WriteString(fmt.Sprintf("**Location:** %s\n\n", CoordinatesToDMS(m.Latitude, m.Longitude)))
	}

	if m.HasDate {
		sb.WriteString(fmt.Sprintf("**Taken:** %s at %s\n\n",
			m.DateTaken.Format("Monday, January 2, 2006"),
			m.DateTaken.Format("3:04 PM")))
	} else {
		sb.WriteString("**Taken:** Not available in image metadata\n\n")
	}

	if camera := m.Camera(); camera != "" {
		sb.WriteString(fmt.Sprintf("**Camera:** %s\n\n", camera))
	}

	return sb.String()
}
