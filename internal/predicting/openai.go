package predicting

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/zombor/waste-classifier/internal/imaging"
)

// OpenAI implements the Predictor interface with any OpenAI-compatible
// chat completions endpoint that accepts image parts
type OpenAI struct {
	client     *openai.Client
	model      string
	vocabulary *Vocabulary
}

// NewOpenAI creates a new OpenAI Predictor instance. An empty baseURL uses api.openai.com.
func NewOpenAI(apiKey, baseURL, modelName string, vocabulary *Vocabulary) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if modelName == "" {
		modelName = openai.GPT4oMini
	}
	if vocabulary == nil {
		vocabulary = BinaryVocabulary()
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAI{
		client:     openai.NewClientWithConfig(config),
		model:      modelName,
		vocabulary: vocabulary,
	}, nil
}

// Predict sends the image as a data URI alongside the classification prompt
func (o *OpenAI) Predict(ctx context.Context, filename string, imageData []byte, contentType string) (*Prediction, error) {
	pngData, _, err := imaging.ToPNG(imageData, contentType)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: classificationPrompt(o.vocabulary),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData),
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, backendError(ctx, fmt.Errorf("creating chat completion: %w", err))
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in completion", ErrMalformedResponse)
	}

	return parsePredictionText(resp.Choices[0].Message.Content, o.vocabulary)
}

// Close is a no-op; the SDK holds no long-lived connections of its own
func (o *OpenAI) Close() error {
	return nil
}
