package predicting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// DefaultBaseURL is the local development address of the prediction service
const DefaultBaseURL = "http://localhost:8080"

// Remote implements the Predictor interface against a prediction service
// exposing POST {baseURL}/predict with a multipart "file" field
type Remote struct {
	baseURL    string
	vocabulary *Vocabulary
	scale      Scale
	client     *http.Client
}

// NewRemote creates a new Remote predictor
func NewRemote(baseURL string, vocabulary *Vocabulary, scale Scale) (*Remote, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("predictor url must be http(s): %q", baseURL)
	}
	if vocabulary == nil {
		vocabulary = BinaryVocabulary()
	}

	return &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		vocabulary: vocabulary,
		scale:      scale,
		client: &http.Client{
			// Per-request deadlines come from the caller's context
			Timeout: 2 * time.Minute,
		},
	}, nil
}

// Predict uploads the image and validates the returned label and confidence
func (r *Remote) Predict(ctx context.Context, filename string, imageData []byte, contentType string) (*Prediction, error) {
	body, formContentType, err := multipartImage(filename, imageData, contentType)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w (status %d): %s", ErrServerError, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	prediction, err := decodePrediction(resp.Body, r.vocabulary, r.scale)
	if err != nil {
		return nil, err
	}
	return prediction, nil
}

// Ping checks that the prediction service answers at all
func (r *Remote) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	resp.Body.Close()
	return nil
}

// Close is a no-op for the HTTP client
func (r *Remote) Close() error {
	return nil
}

// multipartImage builds a single-part form with the image under "file",
// keeping the declared content type rather than application/octet-stream
func multipartImage(filename string, imageData []byte, contentType string) (io.Reader, string, error) {
	if filename == "" {
		filename = "image"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("creating form part: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, "", fmt.Errorf("writing form part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}
