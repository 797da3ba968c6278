package staging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/smiley-maker/rooms-that-sell/internal/metrics"
	"github.com/smiley-maker/rooms-that-sell/internal/retry"
	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
)

const analysisSystemInstruction = `You classify real-estate listing photos.
Answer with a single JSON object and nothing else.`

const analysisPrompt = `Describe the room in this photo for a listing database.
Return JSON with these fields:
  "roomType": one of %s
  "description": one sentence describing the space
  "features": up to 10 short lowercase nouns for fixtures and furniture you can see
  "confidence": number between 0 and 1`

// Analysis is the model's reading of a photo.
type Analysis struct {
	RoomType    string   `json:"roomType"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
	Confidence  float64  `json:"confidence"`
}

// Metadata converts the analysis into classifier input. The model's own
// room guess is added as a tag so the feature detector can weigh it.
func (a *Analysis) Metadata() *roomtype.Metadata {
	tags := make([]string, 0, len(a.Features)+1)
	for _, f := range a.Features {
		if f = strings.TrimSpace(strings.ToLower(f)); f != "" {
			tags = append(tags, f)
		}
	}
	if rt, ok := roomtype.Parse(a.RoomType); ok && rt != roomtype.Unknown {
		tags = append(tags, strings.ToLower(rt.DisplayName()))
	}
	return &roomtype.Metadata{Description: a.Description, Tags: tags}
}

// Analyzer asks a text model to describe a room.
type Analyzer struct {
	models ContentGenerator
	model  string
	retry  retry.Policy
}

// NewAnalyzer creates an Analyzer. An empty model selects DefaultAnalysisModel.
func NewAnalyzer(models ContentGenerator, model string) *Analyzer {
	if model == "" {
		model = DefaultAnalysisModel
	}
	return &Analyzer{models: models, model: model, retry: retry.Default}
}

// Analyze describes the room in image. extraContext, usually EXIF details,
// is appended to the prompt when non-empty.
func (a *Analyzer) Analyze(ctx context.Context, image []byte, mimeType, extraContext string) (*Analysis, error) {
	names := make([]string, 0, len(roomtype.All()))
	for _, rt := range roomtype.All() {
		names = append(names, string(rt))
	}
	prompt := fmt.Sprintf(analysisPrompt, strings.Join(names, ", "))
	if extraContext != "" {
		prompt += "\n\n" + extraContext
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: analysisSystemInstruction}},
		},
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	}

	start := time.Now()
	var resp *genai.GenerateContentResponse
	err := retry.Do(ctx, a.retry, "gemini.analyze", func(ctx context.Context) error {
		var err error
		resp, err = a.models.GenerateContent(ctx, a.model, imageContents(image, mimeType, prompt), config)
		return err
	})
	elapsed := time.Since(start)

	m := metrics.New(metrics.Namespace).
		Dimension("Operation", "analyzeRoom").
		Metric("GeminiApiLatencyMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("GeminiApiCalls")
	if err != nil {
		m.Count("GeminiApiErrors")
	}
	if resp != nil && resp.UsageMetadata != nil {
		m.Metric("GeminiInputTokens", float64(resp.UsageMetadata.PromptTokenCount), metrics.UnitCount)
		m.Metric("GeminiOutputTokens", float64(resp.UsageMetadata.CandidatesTokenCount), metrics.UnitCount)
	}
	m.Flush()

	if err != nil {
		return nil, fmt.Errorf("room analysis: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("room analysis: empty response")
	}

	analysis, err := decodeReply[Analysis](resp.Text())
	if err != nil {
		return nil, fmt.Errorf("parse room analysis: %w", err)
	}

	log.Debug().
		Str("roomType", analysis.RoomType).
		Int("features", len(analysis.Features)).
		Dur("duration", elapsed).
		Msg("Room analysis complete")
	return &analysis, nil
}
