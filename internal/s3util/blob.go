// Package s3util stores image bytes. S3Store backs the Lambda deployment;
// LocalStore backs the local web server. Both satisfy BlobStore.
package s3util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned by Get and Head for a missing key.
var ErrNotFound = errors.New("blob not found")

// ObjectInfo is the subset of object metadata the upload flow checks.
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// BlobStore is the storage surface used by staging, export and deletion.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// URL returns a time-limited download link for key.
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// UploadSigner issues direct browser upload URLs. For LocalStore the URL
// points back at the local server.
type UploadSigner interface {
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
}

// --- Key layout ---
//
//	{projectId}/originals/{imageId}/{filename}
//	{projectId}/staged/{imageId}/{versionId}.{ext}
//	{projectId}/thumbnails/{imageId}.webp
//	{projectId}/exports/{exportId}/{archiveName}

// UploadKey is where the browser puts a file before the image record exists.
func UploadKey(projectID, uploadID, filename string) string {
	return path.Join(projectID, "originals", uploadID, filename)
}

// IsUploadKey reports whether key has the UploadKey layout for projectID.
func IsUploadKey(projectID, key string) bool {
	if ValidateKey(key) != nil {
		return false
	}
	parts := strings.Split(key, "/")
	return len(parts) == 4 && parts[0] == projectID && parts[1] == "originals"
}

// StagedKey is where a generated version is stored.
func StagedKey(projectID, imageID, versionID, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "png"
	}
	return path.Join(projectID, "staged", imageID, versionID+"."+ext)
}

// ThumbnailKey is where the listing grid preview of an image lives.
func ThumbnailKey(projectID, imageID string) string {
	return path.Join(projectID, "thumbnails", imageID+".webp")
}

// ExportKey is where a finished MLS archive is stored.
func ExportKey(projectID, exportID, archiveName string) string {
	return path.Join(projectID, "exports", exportID, archiveName)
}

// ValidateKey rejects keys that could escape the bucket prefix or the local
// blob directory.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid key %q", key)
		}
	}
	return nil
}

// ProjectIDFromKey returns the leading path segment of key.
func ProjectIDFromKey(key string) string {
	id, _, _ := strings.Cut(key, "/")
	return id
}
