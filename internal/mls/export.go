package mls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

// Fetcher reads stored image bytes by key.
type Fetcher interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// NotReadyError is returned when some requested images have no staged
// result yet. Nothing is fetched or written in that case.
type NotReadyError struct {
	Missing int
	Total   int
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%d of %d images have no staged version", e.Missing, e.Total)
}

// ItemError names the image that aborted an export.
type ItemError struct {
	ImageID  string
	Filename string
	Step     string
	Err      error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("image %s (%s): %s: %v", e.ImageID, e.Filename, e.Step, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// ErrNoImages is returned for an empty export request.
var ErrNoImages = errors.New("no images selected for export")

// CheckReady verifies every image has a staged rendition to export.
func CheckReady(images []*store.Image) error {
	if len(images) == 0 {
		return ErrNoImages
	}
	missing := 0
	for _, img := range images {
		if !img.Status.HasStagedResult() || img.StagedKey == "" {
			missing++
		}
	}
	if missing > 0 {
		return &NotReadyError{Missing: missing, Total: len(images)}
	}
	return nil
}

// Result describes a finished archive.
type Result struct {
	ArchiveName         string
	Files               []store.ExportFile
	ComplianceValidated bool
	Bytes               int64
}

// Exporter renders images and streams them into a zip archive.
type Exporter struct {
	blobs       Fetcher
	compression Compression
	now         func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithCompression selects the zip codec.
func WithCompression(c Compression) Option {
	return func(e *Exporter) { e.compression = c }
}

// WithClock overrides the time source used for archive names and entry
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// NewExporter creates an Exporter that reads pixels through blobs.
func NewExporter(blobs Fetcher, opts ...Option) *Exporter {
	e := &Exporter{
		blobs:       blobs,
		compression: CompressionDeflate,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes the MLS archive for images to w. It is all-or-nothing: the
// first failing image aborts the run with an *ItemError, and callers must
// discard whatever was written to w.
func (e *Exporter) Export(ctx context.Context, projectName string, images []*store.Image, w io.Writer) (*Result, error) {
	if err := CheckReady(images); err != nil {
		return nil, err
	}

	now := e.now()
	cw := &countingWriter{w: w}
	zw := newZipWriter(cw)
	names := newNameSet()

	res := &Result{
		ArchiveName:         ArchiveName(projectName, len(images), now),
		ComplianceValidated: true,
	}

	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		base := names.unique(BaseName(img.Filename))
		for _, part := range []struct {
			kind Kind
			key  string
		}{
			{KindOriginal, img.OriginalKey},
			{KindStaged, img.StagedKey},
		} {
			r, err := e.render(ctx, part.key, part.kind)
			if err != nil {
				return nil, &ItemError{ImageID: img.ID, Filename: img.Filename, Step: string(part.kind), Err: err}
			}

			name := OutputName(base, part.kind)
			if err := addEntry(zw, name, r.Data, e.compression, now); err != nil {
				return nil, &ItemError{ImageID: img.ID, Filename: img.Filename, Step: "archive", Err: err}
			}
			if !r.Compliant() {
				res.ComplianceValidated = false
			}
			res.Files = append(res.Files, store.ExportFile{
				Filename:   name,
				Type:       string(part.kind),
				Resolution: Resolution,
				ImageID:    img.ID,
			})
		}

		log.Debug().Str("imageId", img.ID).Str("base", base).Msg("Image added to MLS archive")
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	res.Bytes = cw.n

	log.Info().
		Str("archive", res.ArchiveName).
		Int("images", len(images)).
		Int("files", len(res.Files)).
		Int64("bytes", res.Bytes).
		Bool("compliant", res.ComplianceValidated).
		Msg("MLS archive written")
	return res, nil
}

func (e *Exporter) render(ctx context.Context, key string, kind Kind) (*Rendition, error) {
	rc, err := e.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer rc.Close()

	src, err := Decode(rc)
	if err != nil {
		return nil, err
	}
	return Render(src, kind)
}
