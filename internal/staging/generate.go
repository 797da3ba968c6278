package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/smiley-maker/rooms-that-sell/internal/metrics"
	"github.com/smiley-maker/rooms-that-sell/internal/retry"
	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
)

// ErrorKind classifies why a generation failed.
type ErrorKind string

const (
	// KindInvalidInput means the request itself was rejected before any call.
	KindInvalidInput ErrorKind = "invalid_input"
	// KindBlocked means the model refused the prompt or image on safety grounds.
	KindBlocked ErrorKind = "blocked"
	// KindNoImage means the model answered with text only.
	KindNoImage ErrorKind = "no_image"
	// KindUpstream means the API call failed after retries.
	KindUpstream ErrorKind = "upstream"
)

// GenerationError is returned by Generator.Generate.
type GenerationError struct {
	Kind ErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("staging generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsKind reports whether err is a GenerationError of kind k.
func IsKind(err error, k ErrorKind) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Kind == k
}

// Request is one staging generation.
type Request struct {
	Image        []byte
	MIMEType     string
	RoomType     roomtype.RoomType
	Style        string
	CustomPrompt string
}

// Result is the generated image.
type Result struct {
	Image    []byte
	MIMEType string
	Model    string
	Prompt   string
	// Text is any commentary the model returned alongside the image.
	Text string
}

// Generator calls a Gemini image model.
type Generator struct {
	models ContentGenerator
	model  string
	retry  retry.Policy
}

// NewGenerator creates a Generator. An empty model selects DefaultImageModel.
func NewGenerator(models ContentGenerator, model string) *Generator {
	if model == "" {
		model = DefaultImageModel
	}
	return &Generator{models: models, model: model, retry: retry.Default}
}

// Model returns the model ID recorded on generated versions.
func (g *Generator) Model() string { return g.model }

// Generate stages one photo. Transient API failures are retried; safety
// blocks and text-only answers are not.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if len(req.Image) == 0 || req.MIMEType == "" {
		return nil, &GenerationError{Kind: KindInvalidInput, Err: errors.New("image and MIME type are required")}
	}
	prompt, err := BuildPrompt(req.RoomType, req.Style, req.CustomPrompt)
	if err != nil {
		return nil, &GenerationError{Kind: KindInvalidInput, Err: err}
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: StyleSystemInstruction}},
		},
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	log.Info().
		Str("model", g.model).
		Str("roomType", string(req.RoomType)).
		Str("style", req.Style).
		Int("image_bytes", len(req.Image)).
		Msg("Sending photo to Gemini for staging")

	start := time.Now()
	var result *Result
	err = retry.Do(ctx, g.retry, "gemini.stage", func(ctx context.Context) error {
		resp, err := g.models.GenerateContent(ctx, g.model, imageContents(req.Image, req.MIMEType, prompt), config)
		if err != nil {
			return err
		}
		r, err := extractImage(resp)
		if err != nil {
			return retry.Permanent(err)
		}
		result = r
		return nil
	})
	elapsed := time.Since(start)

	m := metrics.New(metrics.Namespace).
		Dimension("Operation", "stage").
		Metric("GeminiApiLatencyMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("GeminiApiCalls")
	if err != nil {
		m.Count("GeminiApiErrors")
	}
	m.Flush()

	if err != nil {
		var ge *GenerationError
		if errors.As(err, &ge) {
			return nil, ge
		}
		return nil, &GenerationError{Kind: KindUpstream, Err: err}
	}

	result.Model = g.model
	result.Prompt = prompt

	log.Info().
		Int("output_bytes", len(result.Image)).
		Str("output_mime", result.MIMEType).
		Dur("duration", elapsed).
		Msg("Gemini staging complete")
	return result, nil
}

// extractImage pulls the first inline image out of a response.
func extractImage(resp *genai.GenerateContentResponse) (*Result, error) {
	if resp == nil {
		return nil, &GenerationError{Kind: KindNoImage, Err: errors.New("empty response")}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &GenerationError{Kind: KindBlocked, Err: fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)}
	}

	result := &Result{}
	for _, cand := range resp.Candidates {
		if cand.FinishReason == genai.FinishReasonSafety || cand.FinishReason == genai.FinishReasonProhibitedContent {
			return nil, &GenerationError{Kind: KindBlocked, Err: fmt.Errorf("candidate stopped: %s", cand.FinishReason)}
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 && result.Image == nil {
				result.Image = part.InlineData.Data
				result.MIMEType = part.InlineData.MIMEType
			}
			if part.Text != "" {
				result.Text += part.Text
			}
		}
	}
	if result.Image == nil {
		return nil, &GenerationError{Kind: KindNoImage, Err: fmt.Errorf("no image returned (text: %s)", truncateString(result.Text, 200))}
	}
	if result.MIMEType == "" {
		result.MIMEType = "image/png"
	}
	return result, nil
}
