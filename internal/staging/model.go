// Package staging turns an empty-room listing photo into a virtually staged
// one using a Gemini image model, and asks a text model to describe rooms
// for the room-type classifier.
package staging

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini model IDs used by the backend.
//
// | Model                       | Use                                  |
// |-----------------------------|--------------------------------------|
// | gemini-3-pro-image-preview  | staging (image in, image out)        |
// | gemini-2.5-flash-image      | cheaper staging fallback             |
// | gemini-3-flash-preview      | room analysis (image in, JSON out)   |
const (
	ModelGemini3ProImage     = "gemini-3-pro-image-preview"
	ModelGemini25FlashImage  = "gemini-2.5-flash-image"
	ModelGemini3FlashPreview = "gemini-3-flash-preview"

	DefaultImageModel    = ModelGemini3ProImage
	DefaultAnalysisModel = ModelGemini3FlashPreview
)

// ContentGenerator is satisfied by (*genai.Client).Models.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

func imageContents(image []byte, mimeType, prompt string) []*genai.Content {
	return []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
			{Text: prompt},
		},
	}}
}

// truncateString truncates a string to maxLen, appending "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
