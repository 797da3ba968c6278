package lifecycle

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/s3util"
	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

// DeleteVersion removes one version. The current version and pinned
// versions are refused so the current pointer always resolves.
func (s *Service) DeleteVersion(ctx context.Context, projectID, imageID, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.loadImage(ctx, projectID, imageID)
	if err != nil {
		return err
	}
	v, err := s.loadVersion(ctx, projectID, imageID, versionID)
	if err != nil {
		return err
	}
	if img.CurrentVersionID == versionID {
		return fmt.Errorf("delete version %s: %w", versionID, ErrCurrentVersion)
	}
	if v.Pinned {
		return fmt.Errorf("delete version %s: %w", versionID, ErrPinnedVersion)
	}

	if err := s.store.DeleteVersions(ctx, projectID, imageID, []string{versionID}); err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	s.removeBlobs(ctx, v.StagedKey)
	return nil
}

// DeleteImage hard-deletes an image together with all of its versions and
// their stored pixels. Blob removal failures are logged, not returned.
func (s *Service) DeleteImage(ctx context.Context, projectID, imageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.loadImage(ctx, projectID, imageID)
	if err != nil {
		return err
	}
	versions, err := s.store.ListVersions(ctx, projectID, imageID)
	if err != nil {
		return fmt.Errorf("list versions: %w", err)
	}

	ids := make([]string, 0, len(versions))
	keys := []string{img.OriginalKey, s3util.ThumbnailKey(projectID, imageID)}
	for _, v := range versions {
		ids = append(ids, v.ID)
		keys = append(keys, v.StagedKey)
	}

	// Image record first: once it is gone nothing can point at the versions.
	if err := s.store.DeleteImage(ctx, projectID, imageID); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if err := s.store.DeleteVersions(ctx, projectID, imageID, ids); err != nil {
		return fmt.Errorf("delete versions: %w", err)
	}
	s.removeBlobs(ctx, keys...)

	log.Info().
		Str("projectId", projectID).
		Str("imageId", imageID).
		Int("versions", len(ids)).
		Msg("Image deleted")
	return nil
}

// PruneVersions deletes the oldest versions beyond keep, skipping the
// current version and pinned versions. Returns the removed version IDs.
func (s *Service) PruneVersions(ctx context.Context, projectID, imageID string, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.loadImage(ctx, projectID, imageID)
	if err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, projectID, imageID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	excess := len(versions) - keep
	if excess <= 0 {
		return nil, nil
	}

	var (
		ids  []string
		keys []string
	)
	for _, v := range versions {
		if excess == 0 {
			break
		}
		if v.Pinned || v.ID == img.CurrentVersionID {
			continue
		}
		ids = append(ids, v.ID)
		keys = append(keys, v.StagedKey)
		excess--
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := s.store.DeleteVersions(ctx, projectID, imageID, ids); err != nil {
		return nil, fmt.Errorf("delete versions: %w", err)
	}
	s.removeBlobs(ctx, keys...)

	log.Info().Str("imageId", imageID).Int("pruned", len(ids)).Int("keep", keep).Msg("Versions pruned")
	return ids, nil
}

func (s *Service) removeBlobs(ctx context.Context, keys ...string) {
	if s.blobs == nil {
		return
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to delete blob")
		}
	}
}

// Summary counts images per status for a project dashboard.
func (s *Service) Summary(ctx context.Context, projectID string) (map[store.ImageStatus]int, error) {
	images, err := s.store.ListImages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	counts := make(map[store.ImageStatus]int)
	for _, img := range images {
		counts[img.Status]++
	}
	return counts, nil
}
