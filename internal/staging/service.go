package staging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/filehandler"
	"github.com/smiley-maker/rooms-that-sell/internal/lifecycle"
	"github.com/smiley-maker/rooms-that-sell/internal/s3util"
	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

// maxSourceBytes bounds how much of an original is read into memory.
const maxSourceBytes = filehandler.MaxUploadBytes

// ImageGenerator produces a staged image. *Generator implements it.
type ImageGenerator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	Model() string
}

// Blobs is the storage the stager reads originals from and writes results to.
type Blobs interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ErrInsufficientCredits means the image owner has no generation credits left.
var ErrInsufficientCredits = errors.New("no staging credits remaining")

// Credits is the balance each generation is charged against.
// store.AccountStore satisfies it.
type Credits interface {
	AddCredits(ctx context.Context, userID string, delta int64) (int64, error)
}

// Options are the agent's choices for one generation.
type Options struct {
	Style        string
	CustomPrompt string
}

// Stager runs a generation end to end: state change, model call, blob
// write and version record.
type Stager struct {
	lc      *lifecycle.Service
	blobs   Blobs
	gen     ImageGenerator
	credits Credits
}

// NewStager wires a Stager.
func NewStager(lc *lifecycle.Service, blobs Blobs, gen ImageGenerator) *Stager {
	return &Stager{lc: lc, blobs: blobs, gen: gen}
}

// WithCredits charges one credit per generation to the image owner and
// refunds it when the generation fails. Without it staging is free.
func (s *Stager) WithCredits(c Credits) *Stager {
	s.credits = c
	return s
}

// Stage generates a new version of an image and makes it current. On
// failure an image that had no staged result returns to uploaded.
func (s *Stager) Stage(ctx context.Context, projectID, imageID string, opts Options) (*store.ImageVersion, *store.Image, error) {
	img, err := s.lc.GetImage(ctx, projectID, imageID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := BuildPrompt(img.RoomType, opts.Style, opts.CustomPrompt); err != nil {
		return nil, nil, &GenerationError{Kind: KindInvalidInput, Err: err}
	}

	if err := s.charge(ctx, img.UserID); err != nil {
		return nil, nil, err
	}

	if _, err := s.lc.MarkProcessing(ctx, projectID, imageID); err != nil {
		s.refund(ctx, img.UserID)
		return nil, nil, err
	}

	v, updated, err := s.generate(ctx, img, opts)
	if err != nil {
		if _, rerr := s.lc.RevertProcessing(context.WithoutCancel(ctx), projectID, imageID); rerr != nil {
			log.Error().Err(rerr).Str("imageId", imageID).Msg("Failed to revert processing state")
		}
		s.refund(ctx, img.UserID)
		return nil, nil, err
	}
	return v, updated, nil
}

func (s *Stager) charge(ctx context.Context, userID string) error {
	if s.credits == nil {
		return nil
	}
	balance, err := s.credits.AddCredits(ctx, userID, -1)
	if err != nil {
		return fmt.Errorf("charge credit: %w", err)
	}
	if balance < 0 {
		s.refund(ctx, userID)
		return ErrInsufficientCredits
	}
	return nil
}

func (s *Stager) refund(ctx context.Context, userID string) {
	if s.credits == nil {
		return
	}
	if _, err := s.credits.AddCredits(context.WithoutCancel(ctx), userID, 1); err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("Failed to refund staging credit")
	}
}

func (s *Stager) generate(ctx context.Context, img *store.Image, opts Options) (*store.ImageVersion, *store.Image, error) {
	source, err := s.readOriginal(ctx, img.OriginalKey)
	if err != nil {
		return nil, nil, err
	}
	mimeType, err := filehandler.GetMIMEType(path.Ext(img.OriginalKey))
	if err != nil {
		mimeType = "image/jpeg"
	}

	result, err := s.gen.Generate(ctx, Request{
		Image:        source,
		MIMEType:     mimeType,
		RoomType:     img.RoomType,
		Style:        opts.Style,
		CustomPrompt: opts.CustomPrompt,
	})
	if err != nil {
		return nil, nil, err
	}

	key := s3util.StagedKey(img.ProjectID, img.ID, uuid.NewString(), extensionFor(result.MIMEType))
	if err := s.blobs.Put(ctx, key, bytes.NewReader(result.Image), result.MIMEType); err != nil {
		return nil, nil, fmt.Errorf("store staged image: %w", err)
	}

	v, updated, err := s.lc.AddVersion(ctx, img.ProjectID, img.ID, lifecycle.NewVersion{
		StagedKey:    key,
		StylePreset:  opts.Style,
		CustomPrompt: opts.CustomPrompt,
		AIModel:      result.Model,
	})
	if err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			log.Warn().Err(derr).Str("key", key).Msg("Failed to remove orphaned staged image")
		}
		return nil, nil, err
	}
	return v, updated, nil
}

func (s *Stager) readOriginal(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read original: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read original: %w", err)
	}
	if int64(len(data)) > maxSourceBytes {
		return nil, &GenerationError{Kind: KindInvalidInput, Err: fmt.Errorf("original exceeds %d MB", maxSourceBytes>>20)}
	}
	return data, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}
