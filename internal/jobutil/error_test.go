package jobutil

import (
	"context"
	"testing"

	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

type recordingWriter struct {
	projectID, exportID, msg string
	status                   store.ExportStatus
	ctxErr                   error
}

func (w *recordingWriter) UpdateExportStatus(ctx context.Context, projectID, exportID string, status store.ExportStatus, errMsg string) error {
	w.projectID, w.exportID, w.status, w.msg = projectID, exportID, status, errMsg
	w.ctxErr = ctx.Err()
	return nil
}

func TestSetJobError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &recordingWriter{}
	if err := SetJobError(ctx, "proj", "exp-1", "render failed", w); err != nil {
		t.Fatalf("SetJobError: %v", err)
	}
	if w.status != store.ExportFailed || w.msg != "render failed" || w.exportID != "exp-1" || w.projectID != "proj" {
		t.Errorf("recorded %+v", w)
	}
	if w.ctxErr != nil {
		t.Errorf("write used a canceled context: %v", w.ctxErr)
	}
}
