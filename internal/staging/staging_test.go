package staging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/smiley-maker/rooms-that-sell/internal/lifecycle"
	"github.com/smiley-maker/rooms-that-sell/internal/retry"
	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

var fastRetry = retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

// fakeModels replays queued responses and errors in order.
type fakeModels struct {
	mu        sync.Mutex
	responses []*genai.GenerateContentResponse
	errs      []error
	calls     int
	lastModel string
	lastText  string
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.lastModel = model
	for _, c := range contents {
		for _, p := range c.Parts {
			if p.Text != "" {
				f.lastText = p.Text
			}
		}
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func imageResponse(data []byte, mime string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "Here is the staged room."},
				{InlineData: &genai.Blob{MIMEType: mime, Data: data}},
			}},
		}},
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name     string
		room     roomtype.RoomType
		style    string
		custom   string
		contains []string
		wantErr  error
	}{
		{
			name:     "known room and style",
			room:     roomtype.MasterBedroom,
			style:    "Scandinavian",
			contains: []string{"Virtually stage this master bedroom in a scandinavian style", "king bed"},
		},
		{
			name:     "empty style defaults to modern",
			room:     roomtype.Kitchen,
			contains: []string{"in a modern style", "bar stools"},
		},
		{
			name:     "unknown room is generic",
			room:     roomtype.Unknown,
			style:    "coastal",
			contains: []string{"Virtually stage this room in a coastal style", "Choose furniture"},
		},
		{
			name:     "custom instructions appended",
			room:     roomtype.Office,
			style:    "industrial",
			custom:   "  add a standing desk ",
			contains: []string{"\nAdditional instructions from the agent: add a standing desk"},
		},
		{
			name:    "unknown style",
			room:    roomtype.Bedroom,
			style:   "baroque",
			wantErr: ErrUnknownStyle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildPrompt(tt.room, tt.style, tt.custom)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("prompt %q does not contain %q", got, want)
				}
			}
		})
	}
}

func TestBuildPrompt_CustomTooLong(t *testing.T) {
	if _, err := BuildPrompt(roomtype.Bedroom, "modern", strings.Repeat("x", maxCustomPromptLen+1)); err == nil {
		t.Fatal("expected error for oversized custom prompt")
	}
	if _, err := BuildPrompt(roomtype.Bedroom, "modern", strings.Repeat("x", maxCustomPromptLen)); err != nil {
		t.Fatalf("limit-length prompt rejected: %v", err)
	}
}

func TestStyles(t *testing.T) {
	styles := Styles()
	if len(styles) != len(stylePresets) {
		t.Fatalf("expected %d styles, got %d", len(stylePresets), len(styles))
	}
	for i := 1; i < len(styles); i++ {
		if styles[i-1] > styles[i] {
			t.Errorf("styles not sorted: %v", styles)
		}
	}
	if !ValidStyle("LUXURY") || ValidStyle("gothic") {
		t.Error("ValidStyle mismatch")
	}
}

func TestExtractImage(t *testing.T) {
	t.Run("inline image", func(t *testing.T) {
		r, err := extractImage(imageResponse([]byte("png"), "image/webp"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(r.Image) != "png" || r.MIMEType != "image/webp" {
			t.Errorf("unexpected result: %+v", r)
		}
		if r.Text != "Here is the staged room." {
			t.Errorf("unexpected text %q", r.Text)
		}
	})

	t.Run("missing mime defaults to png", func(t *testing.T) {
		r, err := extractImage(imageResponse([]byte("x"), ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.MIMEType != "image/png" {
			t.Errorf("expected image/png, got %s", r.MIMEType)
		}
	})

	t.Run("text only", func(t *testing.T) {
		_, err := extractImage(textResponse("I cannot do that"))
		if !IsKind(err, KindNoImage) {
			t.Fatalf("expected no_image, got %v", err)
		}
	})

	t.Run("prompt blocked", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}
		_, err := extractImage(resp)
		if !IsKind(err, KindBlocked) {
			t.Fatalf("expected blocked, got %v", err)
		}
	})

	t.Run("candidate stopped for safety", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
		}
		_, err := extractImage(resp)
		if !IsKind(err, KindBlocked) {
			t.Fatalf("expected blocked, got %v", err)
		}
	})

	t.Run("nil response", func(t *testing.T) {
		if _, err := extractImage(nil); !IsKind(err, KindNoImage) {
			t.Fatalf("expected no_image, got %v", err)
		}
	})
}

func TestGenerator_RetriesTransientErrors(t *testing.T) {
	models := &fakeModels{
		errs:      []error{errors.New("503 unavailable"), nil},
		responses: []*genai.GenerateContentResponse{nil, imageResponse([]byte("staged"), "image/png")},
	}
	g := NewGenerator(models, "")
	g.retry = fastRetry

	res, err := g.Generate(context.Background(), Request{
		Image:    []byte("original"),
		MIMEType: "image/jpeg",
		RoomType: roomtype.LivingRoom,
		Style:    "modern",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if models.calls != 2 {
		t.Errorf("expected 2 calls, got %d", models.calls)
	}
	if models.lastModel != DefaultImageModel || res.Model != DefaultImageModel {
		t.Errorf("expected default model, got call=%s result=%s", models.lastModel, res.Model)
	}
	if !strings.Contains(res.Prompt, "living room") || models.lastText != res.Prompt {
		t.Errorf("prompt not sent: %q", models.lastText)
	}
}

func TestGenerator_NoImageIsNotRetried(t *testing.T) {
	models := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("sorry")}}
	g := NewGenerator(models, ModelGemini25FlashImage)
	g.retry = fastRetry

	_, err := g.Generate(context.Background(), Request{Image: []byte("x"), MIMEType: "image/jpeg", RoomType: roomtype.Bedroom})
	if !IsKind(err, KindNoImage) {
		t.Fatalf("expected no_image, got %v", err)
	}
	if models.calls != 1 {
		t.Errorf("expected 1 call, got %d", models.calls)
	}
}

func TestGenerator_UpstreamAfterRetries(t *testing.T) {
	boom := errors.New("connection reset")
	models := &fakeModels{errs: []error{boom, boom, boom}, responses: []*genai.GenerateContentResponse{nil}}
	g := NewGenerator(models, "")
	g.retry = fastRetry

	_, err := g.Generate(context.Background(), Request{Image: []byte("x"), MIMEType: "image/jpeg", RoomType: roomtype.Bedroom})
	if !IsKind(err, KindUpstream) || !errors.Is(err, boom) {
		t.Fatalf("expected upstream wrapping %v, got %v", boom, err)
	}
	if models.calls != 3 {
		t.Errorf("expected 3 calls, got %d", models.calls)
	}
}

func TestGenerator_InvalidInput(t *testing.T) {
	g := NewGenerator(&fakeModels{}, "")
	if _, err := g.Generate(context.Background(), Request{MIMEType: "image/jpeg"}); !IsKind(err, KindInvalidInput) {
		t.Errorf("expected invalid_input for empty image, got %v", err)
	}
	if _, err := g.Generate(context.Background(), Request{Image: []byte("x"), MIMEType: "image/jpeg", Style: "rococo"}); !IsKind(err, KindInvalidInput) {
		t.Errorf("expected invalid_input for bad style, got %v", err)
	}
}

func TestAnalyzer_ParsesFencedJSON(t *testing.T) {
	models := &fakeModels{responses: []*genai.GenerateContentResponse{
		textResponse("```json\n{\"roomType\":\"kitchen\",\"description\":\"Bright galley kitchen\",\"features\":[\"Stove\",\" island \",\"\"],\"confidence\":0.9}\n```"),
	}}
	a := NewAnalyzer(models, "")
	a.retry = fastRetry

	got, err := a.Analyze(context.Background(), []byte("x"), "image/jpeg", "## PHOTO METADATA")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.RoomType != "kitchen" || got.Confidence != 0.9 {
		t.Errorf("unexpected analysis: %+v", got)
	}
	if models.lastModel != DefaultAnalysisModel {
		t.Errorf("expected %s, got %s", DefaultAnalysisModel, models.lastModel)
	}
	if !strings.HasSuffix(models.lastText, "\n\n## PHOTO METADATA") {
		t.Errorf("extra context not appended: %q", models.lastText)
	}

	meta := got.Metadata()
	want := []string{"stove", "island", "kitchen"}
	if fmt.Sprint(meta.Tags) != fmt.Sprint(want) {
		t.Errorf("expected tags %v, got %v", want, meta.Tags)
	}
	if meta.Description != "Bright galley kitchen" {
		t.Errorf("unexpected description %q", meta.Description)
	}
}

func TestAnalyzer_BadJSON(t *testing.T) {
	models := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("no idea")}}
	a := NewAnalyzer(models, "")
	a.retry = fastRetry

	if _, err := a.Analyze(context.Background(), []byte("x"), "image/jpeg", ""); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAnalysisMetadata_UnknownRoomAddsNoTag(t *testing.T) {
	a := &Analysis{RoomType: "ballroom", Features: []string{"chandelier"}}
	if tags := a.Metadata().Tags; len(tags) != 1 || tags[0] != "chandelier" {
		t.Errorf("unexpected tags %v", tags)
	}
}

// --- Stager ---

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobs) Put(_ context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type stubGenerator struct {
	result *Result
	err    error
	req    Request
}

func (s *stubGenerator) Generate(_ context.Context, req Request) (*Result, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubGenerator) Model() string { return "stub-model" }

func newTestStager(t *testing.T, gen ImageGenerator) (*Stager, *lifecycle.Service, *memBlobs, *store.Image) {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "staging.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	if err := st.PutProject(ctx, &store.Project{ID: "proj", UserID: "u1", Name: "Maple St"}); err != nil {
		t.Fatalf("PutProject: %v", err)
	}

	blobs := newMemBlobs()
	lc := lifecycle.New(st, blobs)
	img, _, err := lc.CreateImage(ctx, lifecycle.CreateImageInput{
		ProjectID:   "proj",
		UserID:      "u1",
		Filename:    "kitchen.jpg",
		OriginalKey: "proj/originals/up1/kitchen.jpg",
	})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	blobs.objects[img.OriginalKey] = []byte("original-bytes")

	return NewStager(lc, blobs, gen), lc, blobs, img
}

func TestStager_Success(t *testing.T) {
	gen := &stubGenerator{result: &Result{Image: []byte("staged-bytes"), MIMEType: "image/png", Model: "stub-model"}}
	stager, _, blobs, img := newTestStager(t, gen)

	v, updated, err := stager.Stage(context.Background(), "proj", img.ID, Options{Style: "farmhouse"})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if updated.Status != store.StatusStaged || updated.CurrentVersionID != v.ID {
		t.Errorf("expected staged with current %s, got %s / %s", v.ID, updated.Status, updated.CurrentVersionID)
	}
	if string(gen.req.Image) != "original-bytes" || gen.req.MIMEType != "image/jpeg" {
		t.Errorf("generator got wrong input: %+v", gen.req)
	}
	if gen.req.RoomType != roomtype.Kitchen {
		t.Errorf("expected kitchen, got %s", gen.req.RoomType)
	}
	if !strings.HasPrefix(v.StagedKey, "proj/staged/"+img.ID+"/") || !strings.HasSuffix(v.StagedKey, ".png") {
		t.Errorf("unexpected staged key %s", v.StagedKey)
	}
	if string(blobs.objects[v.StagedKey]) != "staged-bytes" || blobs.types[v.StagedKey] != "image/png" {
		t.Error("staged image not stored")
	}
	if v.StylePreset != "farmhouse" || v.AIModel != "stub-model" {
		t.Errorf("unexpected version %+v", v)
	}
}

func TestStager_FailureRevertsToUploaded(t *testing.T) {
	gen := &stubGenerator{err: &GenerationError{Kind: KindBlocked, Err: errors.New("safety")}}
	stager, lc, blobs, img := newTestStager(t, gen)

	_, _, err := stager.Stage(context.Background(), "proj", img.ID, Options{})
	if !IsKind(err, KindBlocked) {
		t.Fatalf("expected blocked, got %v", err)
	}

	got, err := lc.GetImage(context.Background(), "proj", img.ID)
	if err != nil {
		t.Fatalf("GetImage: %v", err)
	}
	if got.Status != store.StatusUploaded {
		t.Errorf("expected uploaded after failure, got %s", got.Status)
	}
	if len(blobs.objects) != 1 {
		t.Errorf("expected only the original in storage, got %d objects", len(blobs.objects))
	}
}

func TestStager_RegenerationFailureKeepsStaged(t *testing.T) {
	gen := &stubGenerator{result: &Result{Image: []byte("v1"), MIMEType: "image/jpeg", Model: "stub-model"}}
	stager, lc, _, img := newTestStager(t, gen)
	ctx := context.Background()

	first, _, err := stager.Stage(ctx, "proj", img.ID, Options{Style: "modern"})
	if err != nil {
		t.Fatalf("first Stage: %v", err)
	}

	gen.err = errors.New("timeout")
	if _, _, err := stager.Stage(ctx, "proj", img.ID, Options{Style: "luxury"}); err == nil {
		t.Fatal("expected error")
	}

	got, _ := lc.GetImage(ctx, "proj", img.ID)
	if got.Status != store.StatusStaged || got.CurrentVersionID != first.ID {
		t.Errorf("expected staged on %s, got %s on %s", first.ID, got.Status, got.CurrentVersionID)
	}
	if !strings.HasSuffix(first.StagedKey, ".jpg") {
		t.Errorf("expected jpg key, got %s", first.StagedKey)
	}
}

func TestStager_RejectsBadStyleBeforeProcessing(t *testing.T) {
	gen := &stubGenerator{}
	stager, lc, _, img := newTestStager(t, gen)

	_, _, err := stager.Stage(context.Background(), "proj", img.ID, Options{Style: "brutalist"})
	if !IsKind(err, KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
	got, _ := lc.GetImage(context.Background(), "proj", img.ID)
	if got.Status != store.StatusUploaded {
		t.Errorf("expected uploaded, got %s", got.Status)
	}
	if gen.req.Image != nil {
		t.Error("generator should not be called")
	}
}

type memCredits struct {
	balance map[string]int64
}

func (m *memCredits) AddCredits(_ context.Context, userID string, delta int64) (int64, error) {
	m.balance[userID] += delta
	return m.balance[userID], nil
}

func TestStager_Credits(t *testing.T) {
	tests := []struct {
		name        string
		start       int64
		genErr      error
		wantErr     error
		wantBalance int64
		wantStatus  store.ImageStatus
	}{
		{name: "charged on success", start: 2, wantBalance: 1, wantStatus: store.StatusStaged},
		{name: "refunded on failure", start: 2, genErr: errors.New("timeout"), wantBalance: 2, wantStatus: store.StatusUploaded},
		{name: "empty balance", start: 0, wantErr: ErrInsufficientCredits, wantBalance: 0, wantStatus: store.StatusUploaded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{result: &Result{Image: []byte("staged"), MIMEType: "image/png", Model: "stub-model"}, err: tt.genErr}
			stager, lc, _, img := newTestStager(t, gen)
			credits := &memCredits{balance: map[string]int64{"u1": tt.start}}
			stager.WithCredits(credits)

			_, _, err := stager.Stage(context.Background(), "proj", img.ID, Options{Style: "coastal"})
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && tt.genErr == nil && err != nil {
				t.Fatalf("Stage: %v", err)
			}
			if credits.balance["u1"] != tt.wantBalance {
				t.Errorf("balance = %d, want %d", credits.balance["u1"], tt.wantBalance)
			}
			got, _ := lc.GetImage(context.Background(), "proj", img.ID)
			if got.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tt.wantStatus)
			}
		})
	}
}
