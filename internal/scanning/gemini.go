package scanning

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Engine interface using Google Gemini as a vision OCR model
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Engine instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", ErrEngineUnavailable)
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Recognize transcribes one variant
func (g *Gemini) Recognize(ctx context.Context, img image.Image) (*Candidate, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", data), genai.Text(transcriptionPrompt))
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	cand, err := parseTranscription(responseText.String(), g.Name())
	if err != nil {
		return nil, fmt.Errorf("parsing transcription: %w", err)
	}
	return cand, nil
}

// Probe verifies the key and model with a token count round-trip
func (g *Gemini) Probe(ctx context.Context) Availability {
	if _, err := g.model.CountTokens(ctx, genai.Text("ping")); err != nil {
		return Unavailable(fmt.Sprintf("gemini: %v", err))
	}
	return Available()
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
