package predicting

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/waste-classifier/internal/imaging"
)

// Gemini implements the Predictor interface using Google Gemini
type Gemini struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	vocabulary *Vocabulary
}

// NewGemini creates a new Gemini Predictor instance
func NewGemini(apiKey string, modelName string, vocabulary *Vocabulary) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	if vocabulary == nil {
		vocabulary = BinaryVocabulary()
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:     client,
		model:      client.GenerativeModel(modelName),
		vocabulary: vocabulary,
	}, nil
}

// Predict asks Gemini to label the image
func (g *Gemini) Predict(ctx context.Context, filename string, imageData []byte, contentType string) (*Prediction, error) {
	pngData, _, err := imaging.ToPNG(imageData, contentType)
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects the format suffix ("png"), not the MIME type
	resp, err := g.model.GenerateContent(ctx,
		genai.ImageData("png", pngData),
		genai.Text(classificationPrompt(g.vocabulary)),
	)
	if err != nil {
		return nil, backendError(ctx, fmt.Errorf("generating content: %w", err))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no response from gemini", ErrMalformedResponse)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return parsePredictionText(responseText.String(), g.vocabulary)
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
