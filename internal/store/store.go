// Package store persists projects, listing images, their generated staging
// versions and MLS export records.
//
// Two backends implement Store. DynamoStore uses a single-table design where
// every record of a project shares the partition key PROJECT#{projectId};
// sort keys distinguish META, IMAGE#, VERSION#{imageId}# and EXPORT#.
// SQLiteStore keeps the same records in relational tables for local runs and
// tests.
//
// The store is deliberately dumb: it reads and writes whole records. The
// status state machine and the version invariants live in package
// lifecycle, which is the only writer of Image.Status and
// Image.CurrentVersionID.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by write operations that target a missing record.
// Get methods return (nil, nil) instead.
var ErrNotFound = errors.New("record not found")

// Store defines the persistence interface for staging state.
// All Get methods return (nil, nil) when the requested record does not exist.
// All Put methods perform full-record replacement (upsert semantics).
type Store interface {
	// --- Projects ---

	PutProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, projectID string) (*Project, error)

	// --- Images ---

	// PutImage creates or replaces an image record.
	PutImage(ctx context.Context, img *Image) error

	// GetImage retrieves an image. Returns nil, nil if not found.
	GetImage(ctx context.Context, projectID, imageID string) (*Image, error)

	// ListImages returns every image in a project ordered by creation time.
	ListImages(ctx context.Context, projectID string) ([]*Image, error)

	// DeleteImage removes the image record only. Callers own version cleanup.
	DeleteImage(ctx context.Context, projectID, imageID string) error

	// --- Versions ---

	PutVersion(ctx context.Context, projectID string, v *ImageVersion) error

	// GetVersion retrieves a version. Returns nil, nil if not found.
	GetVersion(ctx context.Context, projectID, imageID, versionID string) (*ImageVersion, error)

	// ListVersions returns every version of an image, oldest first.
	ListVersions(ctx context.Context, projectID, imageID string) ([]*ImageVersion, error)

	// DeleteVersions removes the given versions of one image.
	DeleteVersions(ctx context.Context, projectID, imageID string, versionIDs []string) error

	// --- MLS exports ---

	PutExport(ctx context.Context, exp *MLSExport) error

	// GetExport retrieves an export record. Returns nil, nil if not found.
	GetExport(ctx context.Context, projectID, exportID string) (*MLSExport, error)

	// UpdateExportStatus sets status (and error text for failures) without
	// touching the rest of the record.
	UpdateExportStatus(ctx context.Context, projectID, exportID string, status ExportStatus, errMsg string) error
}
