// Package subject implements the vision-description task: given the
// submitted photo and narrative, extract the single most meaningful object
// and produce a lowpoly modelling prompt for the 3D generation stage.
package subject

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/waywereminisce/ornament-api/internal/jsonutil"
)

// DefaultModelName is the Gemini model used for subject extraction.
// Can be overridden via the GEMINI_MODEL environment variable by the caller.
const DefaultModelName = "gemini-3-flash-preview"

const systemPrompt = "You extract a single object from user inputs (text/image) and produce a lowpoly 3D prompt. " +
	"Respond strictly in JSON with keys: object, lowpolyPrompt. No markdown, no code fences."

// Description is the structured output of the subject-extraction call.
type Description struct {
	Object        string `json:"object"`
	LowpolyPrompt string `json:"lowpolyPrompt"`
}

// Prompt composes the generation prompt for the text-to-3D stage. The same
// string later doubles as the retexture style prompt.
func (d *Description) Prompt() string {
	return fmt.Sprintf("%s. %s", d.Object, d.LowpolyPrompt)
}

// Client wraps a Gemini client for subject extraction.
type Client struct {
	genai *genai.Client
	model string
}

// NewClient creates a subject-extraction client from an API key. An empty
// model selects DefaultModelName.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &Client{genai: gc, model: model}, nil
}

// Describe sends the photo inline together with the narrative and returns
// the extracted object plus a lowpoly modelling prompt. imageBytes may be
// nil for text-only extraction.
func (c *Client) Describe(ctx context.Context, imageBytes []byte, mimeType, story string) (*Description, error) {
	var parts []*genai.Part
	if len(imageBytes) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: mimeType, Data: imageBytes},
		})
	}
	parts = append(parts, &genai.Part{Text: BuildPrompt(story, len(imageBytes) > 0)})

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}

	log.Debug().
		Str("model", c.model).
		Int("image_bytes", len(imageBytes)).
		Int("story_length", len(story)).
		Msg("Starting subject extraction")

	callStart := time.Now()
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("received empty response from Gemini API")
	}

	desc, err := jsonutil.ParseJSON[Description](resp.Text())
	if err != nil {
		return nil, fmt.Errorf("parse subject description: %w", err)
	}
	if desc.Object == "" || desc.LowpolyPrompt == "" {
		return nil, fmt.Errorf("subject description incomplete: object=%q", desc.Object)
	}

	log.Info().
		Str("object", desc.Object).
		Dur("duration", time.Since(callStart)).
		Msg("Subject extraction complete")
	return &desc, nil
}
