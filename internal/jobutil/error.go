// Package jobutil provides shared helpers for background job lifecycle
// operations.
package jobutil

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

// StatusWriter persists a job's terminal status. store.Store satisfies it.
type StatusWriter interface {
	UpdateExportStatus(ctx context.Context, projectID, exportID string, status store.ExportStatus, errMsg string) error
}

// SetJobError logs the failure and marks the export failed. The write uses
// a context detached from ctx so a timed-out job still records its error.
func SetJobError(ctx context.Context, projectID, exportID, msg string, w StatusWriter) error {
	log.Error().
		Str("job", exportID).
		Str("projectId", projectID).
		Str("error", msg).
		Msg("Job failed")
	return w.UpdateExportStatus(context.WithoutCancel(ctx), projectID, exportID, store.ExportFailed, msg)
}
