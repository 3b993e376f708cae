package predicting

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/waste-classifier/internal/imaging"
)

// Ollama implements the Predictor interface using a local Ollama vision model
type Ollama struct {
	baseURL    string
	model      string
	vocabulary *Vocabulary
	client     *http.Client
}

// NewOllama creates a new Ollama Predictor instance.
// Vision models that work well for this: llava, llava-phi3, qwen2-vl, bakllava.
func NewOllama(baseURL string, modelName string, vocabulary *Vocabulary) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	if vocabulary == nil {
		vocabulary = BinaryVocabulary()
	}

	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      modelName,
		vocabulary: vocabulary,
		client: &http.Client{
			Timeout: 120 * time.Second, // Vision models on CPU can be slow
		},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Predict asks the Ollama model to label the image
func (o *Ollama) Predict(ctx context.Context, filename string, imageData []byte, contentType string) (*Prediction, error) {
	pngData, _, err := imaging.ToPNG(imageData, contentType)
	if err != nil {
		return nil, err
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at recognising household waste and deciding how it should be disposed of.",
			},
			{
				Role:    "user",
				Content: classificationPrompt(o.vocabulary),
				Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, fmt.Errorf("calling ollama API: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: ollama API error (status %d): %s", ErrServerError, resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: decoding ollama response: %v", ErrMalformedResponse, err)
	}

	return parsePredictionText(chatResp.Message.Content, o.vocabulary)
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
