// Package lifecycle owns the image state machine: upload, staging versions,
// current-version selection, pinning, approval, export and deletion.
//
// Every status change goes through store.ImageStatus.CanTransitionTo, and
// every version mutation keeps the invariant that a staged image has exactly
// one current version and that it exists.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

var (
	// ErrNotFound means the project, image or version does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition means the image is not in a state that allows the operation.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCurrentVersion means the caller tried to delete the active version.
	ErrCurrentVersion = errors.New("version is current; select another version first")
	// ErrPinnedVersion means the caller tried to delete a pinned version.
	ErrPinnedVersion = errors.New("version is pinned")
	// ErrInvalidRoomType means the room type is not one of the known categories.
	ErrInvalidRoomType = errors.New("invalid room type")
	// ErrVersionMismatch means the version record belongs to a different image.
	ErrVersionMismatch = errors.New("version belongs to another image")
	// ErrOriginalInUse means another image already owns the uploaded object.
	ErrOriginalInUse = errors.New("original already belongs to an image")
)

// BlobRemover deletes stored pixels when an image is removed.
type BlobRemover interface {
	Delete(ctx context.Context, key string) error
}

// Service applies lifecycle operations on top of a Store.
type Service struct {
	store store.Store
	blobs BlobRemover

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

// New creates a Service. blobs may be nil, in which case deletes leave
// objects for the bucket lifecycle rules to collect.
func New(s store.Store, blobs BlobRemover) *Service {
	return &Service{
		store: s,
		blobs: blobs,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// Store exposes the underlying store for read-only callers.
func (s *Service) Store() store.Store {
	return s.store
}

func (s *Service) loadImage(ctx context.Context, projectID, imageID string) (*store.Image, error) {
	img, err := s.store.GetImage(ctx, projectID, imageID)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("image %s: %w", imageID, ErrNotFound)
	}
	return img, nil
}

func (s *Service) loadVersion(ctx context.Context, projectID, imageID, versionID string) (*store.ImageVersion, error) {
	v, err := s.store.GetVersion(ctx, projectID, imageID, versionID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("version %s of image %s: %w", versionID, imageID, ErrNotFound)
	}
	if v.ImageID != imageID {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrVersionMismatch)
	}
	return v, nil
}

// transition validates and applies a status change in memory.
func (s *Service) transition(img *store.Image, next store.ImageStatus) error {
	if !img.Status.CanTransitionTo(next) {
		return fmt.Errorf("image %s: %s -> %s: %w", img.ID, img.Status, next, ErrInvalidTransition)
	}
	if img.Status != next {
		log.Debug().
			Str("imageId", img.ID).
			Str("from", string(img.Status)).
			Str("to", string(next)).
			Msg("Image status transition")
	}
	img.Status = next
	img.UpdatedAt = s.now()
	return nil
}

// CreateImageInput describes a completed upload.
type CreateImageInput struct {
	ProjectID   string
	UserID      string
	Filename    string
	OriginalKey string
	Width       int
	Height      int
	FileSize    int64
	// RoomType overrides detection when set.
	RoomType string
	Metadata *roomtype.Metadata
}

// CreateImage records an uploaded photo in the uploaded state. When no room
// type is supplied the classifier picks one from the filename and metadata.
func (s *Service) CreateImage(ctx context.Context, in CreateImageInput) (*store.Image, *roomtype.Result, error) {
	project, err := s.store.GetProject(ctx, in.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return nil, nil, fmt.Errorf("project %s: %w", in.ProjectID, ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.store.ListImages(ctx, in.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("list images: %w", err)
	}
	for _, other := range existing {
		if in.OriginalKey != "" && other.OriginalKey == in.OriginalKey {
			return nil, nil, fmt.Errorf("%s used by image %s: %w", in.OriginalKey, other.ID, ErrOriginalInUse)
		}
	}

	detection := roomtype.Detect(in.Filename, in.Metadata).WithFallback(in.Filename)
	room := detection.RoomType
	if in.RoomType != "" {
		parsed, ok := roomtype.Parse(in.RoomType)
		if !ok {
			return nil, nil, fmt.Errorf("%q: %w", in.RoomType, ErrInvalidRoomType)
		}
		room = parsed
	}

	now := s.now()
	img := &store.Image{
		ID:               s.newID(),
		ProjectID:        in.ProjectID,
		UserID:           in.UserID,
		Filename:         in.Filename,
		OriginalKey:      in.OriginalKey,
		Status:           store.StatusUploaded,
		RoomType:         room,
		Width:            in.Width,
		Height:           in.Height,
		FileSize:         in.FileSize,
		DetectedFeatures: detection.DetectedFeatures,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.PutImage(ctx, img); err != nil {
		return nil, nil, fmt.Errorf("save image: %w", err)
	}

	log.Info().
		Str("projectId", img.ProjectID).
		Str("imageId", img.ID).
		Str("roomType", string(img.RoomType)).
		Float64("confidence", detection.Confidence).
		Msg("Image created")
	return img, &detection, nil
}

// GetImage returns an image or ErrNotFound.
func (s *Service) GetImage(ctx context.Context, projectID, imageID string) (*store.Image, error) {
	return s.loadImage(ctx, projectID, imageID)
}

// MarkProcessing flags an uploaded image while its first generation runs.
func (s *Service) MarkProcessing(ctx context.Context, projectID, imageID string) (*store.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.loadImage(ctx, projectID, imageID)
	if err != nil {
		return nil, err
	}
	if img.Status.HasStagedResult() {
		// Regenerations keep the image staged.
		return img, nil
	}
	if err := s.transition(img, store.StatusProcessing); err != nil {
		return nil, err
	}
	if err := s.store.PutImage(ctx, img); err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}
	return img, nil
}

// RevertProcessing returns a processing image to uploaded after a failed
// generation. Images that already have versions are left alone.
func (s *Service) RevertProcessing(ctx context.Context, projectID, imageID string) (*store.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.loadImage(ctx, projectID, imageID)
	if err != nil {
		return nil, err
	}
	if img.Status != store.StatusProcessing {
		return img, nil
	}
	if err := s.transition(img, store.StatusUploaded); err != nil {
		return nil, err
	}
	if err := s.store.PutImage(ctx, img); err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}
	return img, nil
}

// NewVersion carries the outcome of one staging generation.
type NewVersion struct {
	StagedKey    string
	StylePreset  string
	CustomPrompt string
	AIModel      string
}

// AddVersion appends a generated version and makes it current. The first
// version moves the image to staged; later ones keep it staged.
func (s *Service) AddVersion(ctx context.Context, projectID, imageID string, nv NewVersion) (*store.ImageVersion, *store.Image, error) {
	if nv.StagedKey == "" {
		return nil, nil, errors.New("staged key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.loadImage(ctx, projectID, imageID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.transition(img, store.StatusStaged); err != nil {
		return nil, nil, err
	}

	v := &store.ImageVersion{
		ID:           s.newID(),
		ImageID:      imageID,
		StagedKey:    nv.StagedKey,
		StylePreset:  nv.StylePreset,
		CustomPrompt: nv.CustomPrompt,
		AIModel:      nv.AIModel,
		CreatedAt:    s.now(),
	}
	// Version first so the current pointer never references a missing record.
	if err := s.store.PutVersion(ctx, projectID, v); err != nil {
		return nil, nil, fmt.Errorf("save version: %w", err)
	}

	img.CurrentVersionID = v.ID
	img.StagedKey = v.StagedKey
	if err := s.store.PutImage(ctx, img); err != nil {
		return nil, nil, fmt.Errorf("save image: %w", err)
	}

	log.Info().
		Str("imageId", imageID).
		Str("versionId", v.ID).
		Str("style", v.StylePreset).
		Str("model", v.AIModel).
		Msg("Staged version added")
	return v, img, nil
}

// SetCurrentVersion points the image at an existing version. Calling it with
// the version that is already current is a no-op.
func (s *Service) SetCurrentVersion(ctx context.Context, projectID, imageID, versionID string) (*store.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.loadImage(ctx, projectID, imageID)
	if err != nil {
		return nil, err
	}
	if img.CurrentVersionID == versionID {
		return img, nil
	}
	v, err := s.loadVersion(ctx, projectID, imageID, versionID)
	if err != nil {
		return nil, err
	}
	if !img.Status.HasStagedResult() {
		return nil, fmt.Errorf("image %s is %s: %w", imageID, img.Status, ErrInvalidTransition)
	}
	// A different version invalidates any approval of the previous one.
	if img.Status != store.StatusStaged {
		if err := s.transition(img, store.StatusStaged); err != nil {
			return nil, err
		}
	}

	img.CurrentVersionID = v.ID
	img.StagedKey = v.StagedKey
	img.UpdatedAt = s.now()
	if err := s.store.PutImage(ctx, img); err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}
	log.Info().Str("imageId", imageID).Str("versionId", versionID).Msg("Current version changed")
	return img, nil
}

// SetVersionPinned toggles the pin flag. Pinning is independent of which
// version is current.
func (s *Service) SetVersionPinned(ctx context.Context, projectID, imageID, versionID string, pinned bool) (*store.ImageVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.loadVersion(ctx, projectID, imageID, versionID)
	if err != nil {
		return nil, err
	}
	if v.Pinned == pinned {
		return v, nil
	}
	v.Pinned = pinned
	if err := s.store.PutVersion(ctx, projectID, v); err != nil {
		return nil, fmt.Errorf("save version: %w", err)
	}
	log.Debug().Str("versionId", versionID).Bool("pinned", pinned).Msg("Version pin changed")
	return v, nil
}

// Approve marks the current version as final. Only staged images qualify.
func (s *Service) Approve(ctx context.Context, projectID, imageID string) (*store.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.loadImage(ctx, projectID, imageID)
	if err != nil {
		return nil, err
	}
	if img.Status != store.StatusStaged || img.CurrentVersionID == "" {
		return nil, fmt.Errorf("approve image %s in status %s: %w", imageID, img.Status, ErrInvalidTransition)
	}
	if err := s.transition(img, store.StatusApproved); err != nil {
		return nil, err
	}
	if err := s.store.PutImage(ctx, img); err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}
	log.Info().Str("imageId", imageID).Str("versionId", img.CurrentVersionID).Msg("Image approved")
	return img, nil
}

// MarkExported records that the images were included in a completed export.
func (s *Service) MarkExported(ctx context.Context, projectID string, imageIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range imageIDs {
		img, err := s.loadImage(ctx, projectID, id)
		if err != nil {
			return err
		}
		if err := s.transition(img, store.StatusExported); err != nil {
			return err
		}
		if err := s.store.PutImage(ctx, img); err != nil {
			return fmt.Errorf("save image %s: %w", id, err)
		}
	}
	return nil
}

// UpdateRoomType replaces the room type after validating it.
func (s *Service) UpdateRoomType(ctx context.Context, projectID, imageID, room string) (*store.Image, error) {
	rt, ok := roomtype.Parse(room)
	if !ok {
		return nil, fmt.Errorf("%q: %w", room, ErrInvalidRoomType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.loadImage(ctx, projectID, imageID)
	if err != nil {
		return nil, err
	}
	img.RoomType = rt
	img.UpdatedAt = s.now()
	if err := s.store.PutImage(ctx, img); err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}
	return img, nil
}

// ListVersions returns an image's versions oldest first. The first entry is
// the one the UI labels "original".
func (s *Service) ListVersions(ctx context.Context, projectID, imageID string) ([]*store.ImageVersion, error) {
	if _, err := s.loadImage(ctx, projectID, imageID); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, projectID, imageID)
}
