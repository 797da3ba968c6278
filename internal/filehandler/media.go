// Package filehandler validates listing photo uploads and extracts what the
// backend needs from them: pixel dimensions, EXIF metadata and a preview
// thumbnail.
//
// Metadata comes from evanoberholster/imagemeta, which reads only the EXIF
// block of a JPEG or HEIC file. Pixels are decoded with disintegration/imaging
// so EXIF orientation is applied before anything measures the image.
package filehandler

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MaxUploadBytes caps a single photo upload.
const MaxUploadBytes int64 = 25 << 20

// SupportedImageExtensions maps accepted upload extensions to MIME types.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// allowedContentTypes is the content-type allowlist for presigned uploads.
var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// GetMIMEType returns the MIME type for a given file extension.
func GetMIMEType(ext string) (string, error) {
	if mimeType, ok := SupportedImageExtensions[strings.ToLower(ext)]; ok {
		return mimeType, nil
	}
	return "", fmt.Errorf("unsupported file extension: %s", ext)
}

// IsImage returns true if the file extension corresponds to an accepted photo.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// AllowedContentType reports whether uploads may declare contentType.
func AllowedContentType(contentType string) bool {
	return allowedContentTypes[strings.ToLower(contentType)]
}

// ValidateUpload checks an upload request before a URL is issued or an
// object is accepted. size <= 0 skips the size check.
func ValidateUpload(filename, contentType string, size int64) error {
	ext := filepath.Ext(filename)
	if !IsImage(ext) {
		return fmt.Errorf("unsupported file extension: %q", ext)
	}
	if !AllowedContentType(contentType) {
		return fmt.Errorf("unsupported content type: %s", contentType)
	}
	if size > MaxUploadBytes {
		return fmt.Errorf("file is %d bytes; the limit is %d MB", size, MaxUploadBytes>>20)
	}
	return nil
}

// CoordinatesToDMS converts decimal degrees to degrees, minutes, seconds format.
func CoordinatesToDMS(lat, lon float64) string {
	latDir := "N"
	if lat < 0 {
		latDir = "S"
		lat = -lat
	}

	lonDir := "E"
	if lon < 0 {
		lonDir = "W"
		lon = -lon
	}

	latDeg := int(lat)
	latMin := int((lat - float64(latDeg)) * 60)
	latSec := ((lat-float64(latDeg))*60 - float64(latMin)) * 60

	lonDeg := int(lon)
	lonMin := int((lon - float64(lonDeg)) * 60)
	lonSec := ((lon-float64(lonDeg))*60 - float64(lonMin)) * 60

	return fmt.Sprintf("%d°%d'%.2f\"%s, %d°%d'%.2f\"%s",
		latDeg, latMin, latSec, latDir,
		lonDeg, lonMin, lonSec, lonDir)
}
