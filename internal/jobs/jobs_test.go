package jobs

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smiley-maker/rooms-that-sell/internal/dispatch"
	"github.com/smiley-maker/rooms-that-sell/internal/lifecycle"
	"github.com/smiley-maker/rooms-that-sell/internal/mls"
	"github.com/smiley-maker/rooms-that-sell/internal/retry"
	"github.com/smiley-maker/rooms-that-sell/internal/s3util"
	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(ExportIDPrefix), GenerateID(ExportIDPrefix)
	if !strings.HasPrefix(a, "exp-") || len(a) != len("exp-")+24 {
		t.Errorf("GenerateID = %q", a)
	}
	if a == b {
		t.Error("IDs should not repeat")
	}
}

func TestParseRoute(t *testing.T) {
	tests := []struct {
		path       string
		wantOK     bool
		wantID     string
		wantAction string
		wantRest   int
	}{
		{"/api/images/img1", true, "img1", "", 0},
		{"/api/images/img1/", true, "img1", "", 0},
		{"/api/images/img1/stage", true, "img1", "stage", 1},
		{"/api/images/img1/versions/v2/pin", true, "img1", "versions", 3},
		{"/api/images/", false, "", "", 0},
		{"/api/images//stage", false, "", "", 0},
		{"/api/images/img1/../x", false, "", "", 0},
		{"/api/exports/e1", false, "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r, ok := ParseRoute(tt.path, "/api/images/")
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if r.ID != tt.wantID || r.Action() != tt.wantAction || len(r.Rest) != tt.wantRest {
				t.Errorf("got %+v", r)
			}
		})
	}
}

func TestCheckOwnership(t *testing.T) {
	if !CheckOwnership("p1", "p1") {
		t.Error("matching IDs should pass")
	}
	if CheckOwnership("", "") || CheckOwnership("p2", "p1") {
		t.Error("empty or different IDs should fail")
	}
}

type exportFixture struct {
	runner *ExportRunner
	lc     *lifecycle.Service
	st     *store.SQLiteStore
	blobs  *s3util.LocalStore
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 140, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func newExportFixture(t *testing.T) *exportFixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.OpenSQLite(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	blobs, err := s3util.NewLocalStore(filepath.Join(dir, "blobs"), "http://localhost:8080/blobs")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if err := st.PutProject(context.Background(), &store.Project{ID: "proj", UserID: "u1", Name: "Maple Court"}); err != nil {
		t.Fatalf("PutProject: %v", err)
	}

	lc := lifecycle.New(st, blobs)
	runner := NewExportRunner(lc, blobs, mls.NewExporter(blobs), 0)
	runner.retry = retry.Policy{Attempts: 1}
	return &exportFixture{runner: runner, lc: lc, st: st, blobs: blobs}
}

// addImage creates an image with its original blob and, when staged is
// true, one staged version.
func (f *exportFixture) addImage(t *testing.T, filename string, staged bool) *store.Image {
	t.Helper()
	ctx := context.Background()
	origKey := s3util.UploadKey("proj", "up-"+filename, filename)
	if err := f.blobs.Put(ctx, origKey, bytes.NewReader(encodePNG(t, 80, 60)), "image/png"); err != nil {
		t.Fatalf("Put original: %v", err)
	}
	img, _, err := f.lc.CreateImage(ctx, lifecycle.CreateImageInput{
		ProjectID: "proj", UserID: "u1", Filename: filename, OriginalKey: origKey, Width: 80, Height: 60,
	})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	if !staged {
		return img
	}
	stagedKey := s3util.StagedKey("proj", img.ID, "v1", "png")
	if err := f.blobs.Put(ctx, stagedKey, bytes.NewReader(encodePNG(t, 80, 60)), "image/png"); err != nil {
		t.Fatalf("Put staged: %v", err)
	}
	_, img, err = f.lc.AddVersion(ctx, "proj", img.ID, lifecycle.NewVersion{StagedKey: stagedKey, StylePreset: "modern", AIModel: "test"})
	if err != nil {
		t.Fatalf("AddVersion: %v", err)
	}
	return img
}

func TestExportRunner_CreateAndRun(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()
	a := f.addImage(t, "kitchen.png", true)
	b := f.addImage(t, "bedroom.png", true)

	exp, err := f.runner.Create(ctx, "proj", []string{a.ID, b.ID, a.ID, ""})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if exp.Status != store.ExportProcessing || len(exp.ImageIDs) != 2 || !strings.HasPrefix(exp.ID, ExportIDPrefix) {
		t.Fatalf("created export = %+v", exp)
	}

	if err := f.runner.Run(ctx, "proj", exp.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, url, err := f.runner.Describe(ctx, "proj", exp.ID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if got.Status != store.ExportCompleted || !got.ComplianceValidated {
		t.Errorf("export = %+v", got)
	}
	if len(got.Files) != 4 || got.Files[0].URL != url || url == "" {
		t.Errorf("files = %+v, url = %q", got.Files, url)
	}
	if !strings.HasPrefix(got.ArchiveName, "maple_court_mls_export_2_images_") {
		t.Errorf("ArchiveName = %q", got.ArchiveName)
	}

	data, err := os.ReadFile(filepath.Join(f.blobs.Root(), filepath.FromSlash(got.ArchiveKey)))
	if err != nil {
		t.Fatalf("archive not stored: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 4 {
		t.Errorf("archive has %d entries", len(zr.File))
	}

	for _, id := range []string{a.ID, b.ID} {
		img, _ := f.st.GetImage(ctx, "proj", id)
		if img.Status != store.StatusExported {
			t.Errorf("image %s status = %s", id, img.Status)
		}
	}

	// A redelivered job leaves the finished record alone.
	if err := f.runner.Run(ctx, "proj", exp.ID); err != nil {
		t.Errorf("second Run: %v", err)
	}
}

func TestExportRunner_CreateRejectsUnstaged(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()
	a := f.addImage(t, "kitchen.png", true)
	b := f.addImage(t, "bath.png", false)
	c := f.addImage(t, "office.png", false)

	_, err := f.runner.Create(ctx, "proj", []string{a.ID, b.ID, c.ID})
	var notReady *mls.NotReadyError
	if !errors.As(err, &notReady) || notReady.Missing != 2 {
		t.Fatalf("expected 2 missing, got %v", err)
	}

	if _, err := f.runner.Create(ctx, "proj", nil); !errors.Is(err, mls.ErrNoImages) {
		t.Errorf("empty selection: %v", err)
	}
	if _, err := f.runner.Create(ctx, "proj", []string{"nope"}); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("unknown image: %v", err)
	}
}

func TestExportRunner_RunFailureMarksFailed(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()
	a := f.addImage(t, "kitchen.png", true)

	exp, err := f.runner.Create(ctx, "proj", []string{a.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.blobs.Delete(ctx, a.StagedKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	err = f.runner.Run(ctx, "proj", exp.ID)
	var item *mls.ItemError
	if !errors.As(err, &item) || item.ImageID != a.ID {
		t.Fatalf("expected ItemError for %s, got %v", a.ID, err)
	}

	got, url, err := f.runner.Describe(ctx, "proj", exp.ID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if got.Status != store.ExportFailed || !strings.Contains(got.Error, a.ID) || url != "" {
		t.Errorf("export = %+v, url = %q", got, url)
	}
	img, _ := f.st.GetImage(ctx, "proj", a.ID)
	if img.Status != store.StatusStaged {
		t.Errorf("failed export changed image status to %s", img.Status)
	}
}

func TestExportRunner_UnknownExport(t *testing.T) {
	f := newExportFixture(t)
	if err := f.runner.Run(context.Background(), "proj", "exp-missing"); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("Run: %v", err)
	}
	if _, _, err := f.runner.Describe(context.Background(), "proj", "exp-missing"); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("Describe: %v", err)
	}
}

func TestWorker_Run(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()
	a := f.addImage(t, "porch.png", true)
	exp, err := f.runner.Create(ctx, "proj", []string{a.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := &Worker{Exports: f.runner}
	if err := w.Run(ctx, dispatch.Job{Type: dispatch.TypeExport, ProjectID: "proj", ExportID: exp.ID}); err != nil {
		t.Fatalf("Run export: %v", err)
	}
	got, _ := f.st.GetExport(ctx, "proj", exp.ID)
	if got.Status != store.ExportCompleted {
		t.Errorf("status = %s", got.Status)
	}

	err = w.Run(ctx, dispatch.Job{Type: dispatch.TypeStage, ProjectID: "proj", ImageID: a.ID})
	if !errors.Is(err, dispatch.ErrNotConfigured) {
		t.Errorf("stage without stager: %v", err)
	}
	if err := w.Run(ctx, dispatch.Job{Type: "resize", ProjectID: "proj"}); err == nil {
		t.Error("unknown job type should fail")
	}
}
