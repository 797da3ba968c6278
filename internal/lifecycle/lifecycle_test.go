package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

type fakeBlobs struct {
	deleted []string
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeBlobs) {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "lifecycle.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.PutProject(context.Background(), &store.Project{ID: "proj", UserID: "u1", Name: "Lakehouse"}); err != nil {
		t.Fatalf("PutProject: %v", err)
	}

	blobs := &fakeBlobs{}
	svc := New(st, blobs)

	// Strictly increasing clock keeps version ordering deterministic.
	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, blobs
}

func createImage(t *testing.T, svc *Service, filename string) *store.Image {
	t.Helper()
	img, _, err := svc.CreateImage(context.Background(), CreateImageInput{
		ProjectID:   "proj",
		UserID:      "u1",
		Filename:    filename,
		OriginalKey: "proj/originals/" + filename,
		Width:       4000,
		Height:      3000,
	})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	return img
}

func addVersion(t *testing.T, svc *Service, imageID, style string) *store.ImageVersion {
	t.Helper()
	v, _, err := svc.AddVersion(context.Background(), "proj", imageID, NewVersion{
		StagedKey:   "proj/staged/" + imageID + "-" + style + ".jpg",
		StylePreset: style,
		AIModel:     "test-model",
	})
	if err != nil {
		t.Fatalf("AddVersion: %v", err)
	}
	return v
}

func TestCreateImage_DetectsRoomType(t *testing.T) {
	svc, _ := newTestService(t)
	img, detection, err := svc.CreateImage(context.Background(), CreateImageInput{
		ProjectID:   "proj",
		Filename:    "master_bedroom_1.jpg",
		OriginalKey: "proj/originals/master_bedroom_1.jpg",
	})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	if img.Status != store.StatusUploaded {
		t.Errorf("Status = %q, want uploaded", img.Status)
	}
	if img.RoomType != roomtype.MasterBedroom || detection.Confidence < 0.9 {
		t.Errorf("RoomType = %q (%.2f), want master_bedroom", img.RoomType, detection.Confidence)
	}
}

func TestCreateImage_UnknownSuggestsFallback(t *testing.T) {
	svc, _ := newTestService(t)
	img, detection, err := svc.CreateImage(context.Background(), CreateImageInput{
		ProjectID:   "proj",
		Filename:    "IMG_0042.jpg",
		OriginalKey: "proj/originals/IMG_0042.jpg",
	})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	if img.RoomType != roomtype.Unknown {
		t.Errorf("RoomType = %q, want unknown", img.RoomType)
	}
	if len(detection.Fallback) != 5 || detection.Fallback[0].RoomType != roomtype.LivingRoom {
		t.Errorf("Fallback = %+v", detection.Fallback)
	}
}

func TestCreateImage_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.CreateImage(ctx, CreateImageInput{ProjectID: "missing", Filename: "a.jpg"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing project err = %v, want ErrNotFound", err)
	}
	_, _, err = svc.CreateImage(ctx, CreateImageInput{ProjectID: "proj", Filename: "a.jpg", RoomType: "attic"})
	if !errors.Is(err, ErrInvalidRoomType) {
		t.Errorf("bad room err = %v, want ErrInvalidRoomType", err)
	}

	first := createImage(t, svc, "den.jpg")
	_, _, err = svc.CreateImage(ctx, CreateImageInput{ProjectID: "proj", Filename: "den.jpg", OriginalKey: first.OriginalKey})
	if !errors.Is(err, ErrOriginalInUse) {
		t.Errorf("reused original err = %v, want ErrOriginalInUse", err)
	}
}

func TestAddVersion_StagesAndSetsCurrent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	img := createImage(t, svc, "kitchen.jpg")

	if _, err := svc.MarkProcessing(ctx, "proj", img.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	v1 := addVersion(t, svc, img.ID, "modern")

	got, _ := svc.GetImage(ctx, "proj", img.ID)
	if got.Status != store.StatusStaged || got.CurrentVersionID != v1.ID {
		t.Fatalf("after first version: status=%q current=%q", got.Status, got.CurrentVersionID)
	}

	v2 := addVersion(t, svc, img.ID, "coastal")
	got, _ = svc.GetImage(ctx, "proj", img.ID)
	if got.Status != store.StatusStaged || got.CurrentVersionID != v2.ID || got.StagedKey != v2.StagedKey {
		t.Fatalf("after regeneration: %+v", got)
	}

	versions, err := svc.ListVersions(ctx, "proj", img.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 || versions[0].ID != v1.ID {
		t.Errorf("versions should be oldest first, got %d", len(versions))
	}
}

func TestSetCurrentVersion_Idempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	img := createImage(t, svc, "living_room.jpg")
	v1 := addVersion(t, svc, img.ID, "modern")
	addVersion(t, svc, img.ID, "farmhouse")

	for i := 0; i < 2; i++ {
		got, err := svc.SetCurrentVersion(ctx, "proj", img.ID, v1.ID)
		if err != nil {
			t.Fatalf("SetCurrentVersion #%d: %v", i+1, err)
		}
		if got.CurrentVersionID != v1.ID || got.StagedKey != v1.StagedKey {
			t.Errorf("call #%d current = %q", i+1, got.CurrentVersionID)
		}
	}

	versions, _ := svc.ListVersions(ctx, "proj", img.ID)
	if len(versions) != 2 {
		t.Errorf("len(versions) = %d, want 2 (no duplicates)", len(versions))
	}
}

func TestSetCurrentVersion_UnknownVersion(t *testing.T) {
	svc, _ := newTestService(t)
	img := createImage(t, svc, "bath.jpg")
	addVersion(t, svc, img.ID, "modern")

	_, err := svc.SetCurrentVersion(context.Background(), "proj", img.ID, "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetCurrentVersion_ResetsApproval(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	img := createImage(t, svc, "office.jpg")
	v1 := addVersion(t, svc, img.ID, "modern")
	addVersion(t, svc, img.ID, "luxury")

	if _, err := svc.Approve(ctx, "proj", img.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	got, err := svc.SetCurrentVersion(ctx, "proj", img.ID, v1.ID)
	if err != nil {
		t.Fatalf("SetCurrentVersion: %v", err)
	}
	if got.Status != store.StatusStaged {
		t.Errorf("Status = %q, want staged after switching versions", got.Status)
	}
}

func TestApprove_OnlyFromStaged(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	img := createImage(t, svc, "dining.jpg")

	if _, err := svc.Approve(ctx, "proj", img.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("approve uploaded err = %v, want ErrInvalidTransition", err)
	}

	addVersion(t, svc, img.ID, "modern")
	got, err := svc.Approve(ctx, "proj", img.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got.Status != store.StatusApproved {
		t.Errorf("Status = %q, want approved", got.Status)
	}

	if _, err := svc.Approve(ctx, "proj", img.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second approve err = %v, want ErrInvalidTransition", err)
	}
}

func TestSetVersionPinned(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	img := createImage(t, svc, "garage.jpg")
	v1 := addVersion(t, svc, img.ID, "modern")
	v2 := addVersion(t, svc, img.ID, "industrial")

	pinned, err := svc.SetVersionPinned(ctx, "proj", img.ID, v1.ID, true)
	if err != nil || !pinned.Pinned {
		t.Fatalf("SetVersionPinned = %+v, %v", pinned, err)
	}

	got, _ := svc.GetImage(ctx, "proj", img.ID)
	if got.CurrentVersionID != v2.ID {
		t.Errorf("pinning changed the current version to %q", got.CurrentVersionID)
	}
}

func TestDeleteVersion_Guards(t *testing.T) {
	svc, blobs := newTestService(t)
	ctx := context.Background()
	img := createImage(t, svc, "basement.jpg")
	v1 := addVersion(t, svc, img.ID, "modern")
	v2 := addVersion(t, svc, img.ID, "minimalist")
	v3 := addVersion(t, svc, img.ID, "traditional")

	if err := svc.DeleteVersion(ctx, "proj", img.ID, v3.ID); !errors.Is(err, ErrCurrentVersion) {
		t.Errorf("delete current err = %v, want ErrCurrentVersion", err)
	}
	if _, err := svc.SetVersionPinned(ctx, "proj", img.ID, v1.ID, true); err != nil {
		t.Fatalf("pin: %v", err)
	}
	if err := svc.DeleteVersion(ctx, "proj", img.ID, v1.ID); !errors.Is(err, ErrPinnedVersion) {
		t.Errorf("delete pinned err = %v, want ErrPinnedVersion", err)
	}
	if err := svc.DeleteVersion(ctx, "proj", img.ID, v2.ID); err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}
	if len(blobs.deleted) != 1 || blobs.deleted[0] != v2.StagedKey {
		t.Errorf("deleted blobs = %v", blobs.deleted)
	}
}

func TestDeleteImage_CascadesVersions(t *testing.T) {
	svc, blobs := newTestService(t)
	ctx := context.Background()
	img := createImage(t, svc, "patio.jpg")
	addVersion(t, svc, img.ID, "modern")
	addVersion(t, svc, img.ID, "coastal")

	if err := svc.DeleteImage(ctx, "proj", img.ID); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if _, err := svc.GetImage(ctx, "proj", img.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetImage after delete err = %v, want ErrNotFound", err)
	}
	versions, err := svc.Store().ListVersions(ctx, "proj", img.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("%d orphaned versions", len(versions))
	}
	if len(blobs.deleted) != 4 {
		t.Errorf("deleted blobs = %v, want original, thumbnail and 2 staged", blobs.deleted)
	}
}

func TestPruneVersions_KeepsPinnedAndCurrent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	img := createImage(t, svc, "entry.jpg")
	v1 := addVersion(t, svc, img.ID, "a")
	v2 := addVersion(t, svc, img.ID, "b")
	v3 := addVersion(t, svc, img.ID, "c")
	v4 := addVersion(t, svc, img.ID, "d")

	if _, err := svc.SetVersionPinned(ctx, "proj", img.ID, v1.ID, true); err != nil {
		t.Fatalf("pin: %v", err)
	}
	removed, err := svc.PruneVersions(ctx, "proj", img.ID, 2)
	if err != nil {
		t.Fatalf("PruneVersions: %v", err)
	}
	if len(removed) != 2 || removed[0] != v2.ID || removed[1] != v3.ID {
		t.Fatalf("removed = %v, want [%s %s]", removed, v2.ID, v3.ID)
	}

	versions, _ := svc.ListVersions(ctx, "proj", img.ID)
	if len(versions) != 2 || versions[0].ID != v1.ID || versions[1].ID != v4.ID {
		t.Errorf("remaining = %d versions", len(versions))
	}
}

func TestMarkExported(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	staged := createImage(t, svc, "a.jpg")
	addVersion(t, svc, staged.ID, "modern")
	uploaded := createImage(t, svc, "b.jpg")

	if err := svc.MarkExported(ctx, "proj", []string{staged.ID}); err != nil {
		t.Fatalf("MarkExported: %v", err)
	}
	got, _ := svc.GetImage(ctx, "proj", staged.ID)
	if got.Status != store.StatusExported {
		t.Errorf("Status = %q, want exported", got.Status)
	}
	if err := svc.MarkExported(ctx, "proj", []string{uploaded.ID}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("export uploaded err = %v, want ErrInvalidTransition", err)
	}
}

func TestRevertProcessing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	img := createImage(t, svc, "laundry.jpg")

	if _, err := svc.MarkProcessing(ctx, "proj", img.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	got, err := svc.RevertProcessing(ctx, "proj", img.ID)
	if err != nil {
		t.Fatalf("RevertProcessing: %v", err)
	}
	if got.Status != store.StatusUploaded {
		t.Errorf("Status = %q, want uploaded", got.Status)
	}
}
