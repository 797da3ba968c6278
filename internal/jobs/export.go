package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/jobutil"
	"github.com/smiley-maker/rooms-that-sell/internal/lifecycle"
	"github.com/smiley-maker/rooms-that-sell/internal/metrics"
	"github.com/smiley-maker/rooms-that-sell/internal/mls"
	"github.com/smiley-maker/rooms-that-sell/internal/retry"
	"github.com/smiley-maker/rooms-that-sell/internal/s3util"
	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

// maxExportImages bounds one archive.
const maxExportImages = 100

// ExportBlobs is the storage an export reads renditions from and writes the
// archive to.
type ExportBlobs interface {
	mls.Fetcher
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ExportRunner creates MLS export records and renders them.
type ExportRunner struct {
	lc        *lifecycle.Service
	blobs     ExportBlobs
	exporter  *mls.Exporter
	urlExpiry time.Duration
	retry     retry.Policy

	now   func() time.Time
	newID func() string
}

// NewExportRunner wires an ExportRunner. urlExpiry bounds the download
// links handed out by Describe.
func NewExportRunner(lc *lifecycle.Service, blobs ExportBlobs, exporter *mls.Exporter, urlExpiry time.Duration) *ExportRunner {
	return &ExportRunner{
		lc:        lc,
		blobs:     blobs,
		exporter:  exporter,
		urlExpiry: urlExpiry,
		retry:     retry.Default,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return GenerateID(ExportIDPrefix) },
	}
}

// Create validates the selection and records a processing export. Nothing
// is recorded when an image is missing or has no staged result.
func (r *ExportRunner) Create(ctx context.Context, projectID string, imageIDs []string) (*store.MLSExport, error) {
	ids := uniqueIDs(imageIDs)
	if len(ids) == 0 {
		return nil, mls.ErrNoImages
	}
	if len(ids) > maxExportImages {
		return nil, fmt.Errorf("export has %d images; the limit is %d", len(ids), maxExportImages)
	}

	images, err := r.loadImages(ctx, projectID, ids)
	if err != nil {
		return nil, err
	}
	if err := mls.CheckReady(images); err != nil {
		return nil, err
	}

	exp := &store.MLSExport{
		ID:          r.newID(),
		ProjectID:   projectID,
		ImageIDs:    ids,
		Resolutions: []string{mls.Resolution},
		Status:      store.ExportProcessing,
		CreatedAt:   r.now(),
	}
	if err := r.lc.Store().PutExport(ctx, exp); err != nil {
		return nil, fmt.Errorf("save export: %w", err)
	}
	log.Info().Str("projectId", projectID).Str("exportId", exp.ID).Int("images", len(ids)).Msg("Export created")
	return exp, nil
}

// Run renders a processing export, uploads the archive and marks the
// images exported. Finished exports are left alone so a redelivered job is
// harmless. On failure the record is marked failed with the error text.
func (r *ExportRunner) Run(ctx context.Context, projectID, exportID string) error {
	st := r.lc.Store()
	exp, err := st.GetExport(ctx, projectID, exportID)
	if err != nil {
		return fmt.Errorf("load export: %w", err)
	}
	if exp == nil {
		return fmt.Errorf("export %s: %w", exportID, lifecycle.ErrNotFound)
	}
	if exp.Status.Terminal() {
		log.Info().Str("exportId", exportID).Str("status", string(exp.Status)).Msg("Export already finished, skipping")
		return nil
	}

	start := time.Now()
	m := metrics.New(metrics.Namespace).
		Dimension("Operation", "mlsExport").
		Property("exportId", exportID).
		Count("ExportRuns")

	res, err := r.render(ctx, exp)
	if err != nil {
		m.Count("ExportFailures").Since("ExportDurationMs", start).Flush()
		if werr := jobutil.SetJobError(ctx, projectID, exportID, err.Error(), st); werr != nil {
			log.Error().Err(werr).Str("exportId", exportID).Msg("Failed to record export failure")
		}
		return err
	}

	exp.Files = res.Files
	exp.ArchiveName = res.ArchiveName
	exp.ComplianceValidated = res.ComplianceValidated
	exp.Status = store.ExportCompleted
	exp.Error = ""
	exp.CompletedAt = r.now()
	if err := st.PutExport(ctx, exp); err != nil {
		return fmt.Errorf("save export: %w", err)
	}

	if err := r.lc.MarkExported(ctx, projectID, exp.ImageIDs); err != nil {
		log.Warn().Err(err).Str("exportId", exportID).Msg("Export finished but image status was not updated")
	}

	m.Metric("ExportBytes", float64(res.Bytes), metrics.UnitBytes).
		Metric("ExportImages", float64(len(exp.ImageIDs)), metrics.UnitCount).
		Since("ExportDurationMs", start).
		Flush()
	return nil
}

// render writes the archive to a temp file and uploads it.
func (r *ExportRunner) render(ctx context.Context, exp *store.MLSExport) (*mls.Result, error) {
	project, err := r.lc.Store().GetProject(ctx, exp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return nil, fmt.Errorf("project %s: %w", exp.ProjectID, lifecycle.ErrNotFound)
	}
	images, err := r.loadImages(ctx, exp.ProjectID, exp.ImageIDs)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "mls-export-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create temp archive: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	res, err := r.exporter.Export(ctx, project.Name, images, tmp)
	if err != nil {
		return nil, err
	}

	key := s3util.ExportKey(exp.ProjectID, exp.ID, res.ArchiveName)
	err = retry.Do(ctx, r.retry, "blob.putArchive", func(ctx context.Context) error {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return retry.Permanent(err)
		}
		return r.blobs.Put(ctx, key, tmp, "application/zip")
	})
	if err != nil {
		return nil, fmt.Errorf("upload archive: %w", err)
	}
	exp.ArchiveKey = key
	return res, nil
}

// Describe returns an export with a fresh download link for the archive.
// Every file entry carries the archive link because the renditions are only
// stored inside it.
func (r *ExportRunner) Describe(ctx context.Context, projectID, exportID string) (*store.MLSExport, string, error) {
	exp, err := r.lc.Store().GetExport(ctx, projectID, exportID)
	if err != nil {
		return nil, "", fmt.Errorf("load export: %w", err)
	}
	if exp == nil {
		return nil, "", fmt.Errorf("export %s: %w", exportID, lifecycle.ErrNotFound)
	}
	if exp.Status != store.ExportCompleted || exp.ArchiveKey == "" {
		return exp, "", nil
	}

	url, err := r.blobs.URL(ctx, exp.ArchiveKey, r.urlExpiry)
	if err != nil {
		return nil, "", fmt.Errorf("sign archive URL: %w", err)
	}
	for i := range exp.Files {
		exp.Files[i].URL = url
	}
	return exp, url, nil
}

func (r *ExportRunner) loadImages(ctx context.Context, projectID string, ids []string) ([]*store.Image, error) {
	images := make([]*store.Image, 0, len(ids))
	for _, id := range ids {
		img, err := r.lc.GetImage(ctx, projectID, id)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// uniqueIDs drops blanks and repeats, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
