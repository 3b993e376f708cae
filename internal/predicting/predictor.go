package predicting

import (
	"context"
	"errors"
)

// Failure kinds surfaced by every predictor backend
var (
	// ErrNetworkUnreachable means the predictor could not be reached (or timed out)
	ErrNetworkUnreachable = errors.New("predictor unreachable")
	// ErrServerError means the predictor answered with a non-success response
	ErrServerError = errors.New("predictor returned an error")
	// ErrMalformedResponse means the response lacked a usable label or confidence
	ErrMalformedResponse = errors.New("malformed predictor response")
	// ErrPingUnsupported means a wrapped predictor has no reachability check
	ErrPingUnsupported = errors.New("predictor does not support ping")
)

// Category is a classification outcome the UI knows how to present
type Category struct {
	Name          string `json:"name"`
	Biodegradable bool   `json:"biodegradable"`
}

// Prediction is a validated predictor result
type Prediction struct {
	Category Category `json:"category"`
	// Confidence is always a fraction in [0,1]
	Confidence float64 `json:"confidence"`
	RawLabel   string  `json:"raw_label"`
}

// Predictor defines the interface for waste classification backends
type Predictor interface {
	// Predict classifies a single image
	Predict(ctx context.Context, filename string, imageData []byte, contentType string) (*Prediction, error)
	// Close releases any resources held by the backend
	Close() error
}

// Pinger is implemented by predictors that can report reachability without classifying
type Pinger interface {
	Ping(ctx context.Context) error
}
