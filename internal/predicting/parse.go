package predicting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strings"
)

// Scale is the unit a predictor reports confidence in
type Scale int

const (
	// Fraction confidence is in [0,1]
	Fraction Scale = iota
	// Percent confidence is in [0,100] and divided by 100 on arrival
	Percent
)

// ParseScale parses "fraction" or "percent"
func ParseScale(s string) (Scale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fraction":
		return Fraction, nil
	case "percent", "percentage":
		return Percent, nil
	default:
		return Fraction, fmt.Errorf("unknown confidence scale %q (valid: fraction, percent)", s)
	}
}

func (s Scale) String() string {
	if s == Percent {
		return "percent"
	}
	return "fraction"
}

// normalize converts a reported confidence to a fraction and rejects anything out of range
func (s Scale) normalize(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: confidence is not a finite number", ErrMalformedResponse)
	}
	if s == Percent {
		v /= 100
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("%w: confidence %v out of range for %s scale", ErrMalformedResponse, v, s)
	}
	return v, nil
}

// predictResponse accepts the label under any of the field names the
// known predictor backends use
type predictResponse struct {
	Prediction *string  `json:"prediction"`
	Label      *string  `json:"label"`
	Category   *string  `json:"category"`
	Confidence *float64 `json:"confidence"`
}

func (r predictResponse) label() string {
	for _, candidate := range []*string{r.Prediction, r.Label, r.Category} {
		if candidate != nil && strings.TrimSpace(*candidate) != "" {
			return strings.TrimSpace(*candidate)
		}
	}
	return ""
}

// decodePrediction validates a predictor JSON body against a vocabulary
func decodePrediction(body io.Reader, vocabulary *Vocabulary, scale Scale) (*Prediction, error) {
	var raw predictResponse
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrMalformedResponse, err)
	}

	label := raw.label()
	if label == "" {
		return nil, fmt.Errorf("%w: missing label", ErrMalformedResponse)
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("%w: missing confidence", ErrMalformedResponse)
	}

	confidence, err := scale.normalize(*raw.Confidence)
	if err != nil {
		return nil, err
	}

	category, ok := vocabulary.Lookup(label)
	if !ok {
		return nil, fmt.Errorf("%w: unknown label %q", ErrMalformedResponse, label)
	}

	return &Prediction{
		Category:   category,
		Confidence: confidence,
		RawLabel:   label,
	}, nil
}

// parsePredictionText extracts the JSON object from a language model reply
func parsePredictionText(text string, vocabulary *Vocabulary) (*Prediction, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("%w: no JSON object found in response", ErrMalformedResponse)
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("%w: invalid JSON object in response", ErrMalformedResponse)
	}

	return decodePrediction(strings.NewReader(text[startIdx:endIdx+1]), vocabulary, Fraction)
}

// transportError classifies a failed call. Cancellation is passed through
// untouched so callers can tell it apart from a real failure.
func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", ErrNetworkUnreachable, err)
}

// backendError classifies an SDK error: network trouble is unreachable,
// everything else came back from the service.
func backendError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrNetworkUnreachable, err)
	}
	return fmt.Errorf("%w: %w", ErrServerError, err)
}
