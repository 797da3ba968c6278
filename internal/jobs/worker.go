package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/dispatch"
	"github.com/smiley-maker/rooms-that-sell/internal/staging"
)

// Worker executes dispatched jobs. The export worker Lambda and the local
// server's inline dispatcher both call Run.
type Worker struct {
	Exports *ExportRunner
	// Stager may be nil when no Gemini key is configured.
	Stager *staging.Stager
}

// Run executes one job.
func (w *Worker) Run(ctx context.Context, job dispatch.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	start := time.Now()
	log.Info().Str("type", job.Type).Str("projectId", job.ProjectID).Str("jobId", job.ID()).Msg("Job started")

	var err error
	switch job.Type {
	case dispatch.TypeExport:
		if w.Exports == nil {
			return fmt.Errorf("export job %s: %w", job.ExportID, dispatch.ErrNotConfigured)
		}
		err = w.Exports.Run(ctx, job.ProjectID, job.ExportID)
	case dispatch.TypeStage:
		if w.Stager == nil {
			return fmt.Errorf("stage job %s: %w", job.ImageID, dispatch.ErrNotConfigured)
		}
		_, _, err = w.Stager.Stage(ctx, job.ProjectID, job.ImageID, staging.Options{
			Style:        job.Style,
			CustomPrompt: job.CustomPrompt,
		})
	}
	if err != nil {
		return err
	}

	log.Info().Str("type", job.Type).Str("jobId", job.ID()).Dur("duration", time.Since(start)).Msg("Job complete")
	return nil
}
