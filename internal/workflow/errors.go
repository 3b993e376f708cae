package workflow

import (
	"context"
	"errors"

	"github.com/zombor/waste-classifier/internal/camera"
	"github.com/zombor/waste-classifier/internal/imaging"
	"github.com/zombor/waste-classifier/internal/predicting"
)

// ErrUnsupportedMediaType is returned when an acquired file is not an accepted image type
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// Rejected operations. These leave the state untouched and are not shown as errors.
var (
	ErrNoImage           = errors.New("please select an image first")
	ErrRequestInFlight   = errors.New("a classification is already in progress")
	ErrAlreadyClassified = errors.New("image already classified")
	ErrCameraInactive    = errors.New("camera is not active")
	ErrCameraCancelled   = errors.New("camera request was cancelled")
	ErrClosed            = errors.New("controller closed")
)

// Kind is the user-facing failure taxonomy
type Kind int

const (
	KindUnsupportedMediaType Kind = iota + 1
	KindPermissionDenied
	KindDeviceUnavailable
	KindNetworkUnreachable
	KindServerError
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedMediaType:
		return "UnsupportedMediaType"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindDeviceUnavailable:
		return "DeviceUnavailable"
	case KindNetworkUnreachable:
		return "NetworkUnreachable"
	case KindServerError:
		return "ServerError"
	case KindMalformedResponse:
		return "MalformedResponse"
	default:
		return "Unknown"
	}
}

// MarshalText renders the kind by name in JSON
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is a failure the user gets to see
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the text shown to the user; one per kind
func (e *Error) Message() string {
	switch e.Kind {
	case KindUnsupportedMediaType:
		return "This file type is not supported. Please choose a JPG, PNG, WEBP, GIF or HEIC image."
	case KindPermissionDenied:
		return "Camera access was denied. Allow camera access and try again, or upload a photo instead."
	case KindDeviceUnavailable:
		return "No camera is available right now. You can upload a photo instead."
	case KindNetworkUnreachable:
		return "Could not reach the classification service. Make sure it is running and try again."
	case KindServerError:
		return "The classification service failed to analyze the image. Please try again."
	case KindMalformedResponse:
		return "The classification service returned a response we could not understand."
	default:
		return "Something went wrong. Please try again."
	}
}

// kindOf maps an error from any collaborator onto the taxonomy
func kindOf(err error) (Kind, bool) {
	switch {
	case errors.Is(err, ErrUnsupportedMediaType), errors.Is(err, imaging.ErrUnsupportedFormat):
		return KindUnsupportedMediaType, true
	case errors.Is(err, camera.ErrPermissionDenied):
		return KindPermissionDenied, true
	case errors.Is(err, camera.ErrDeviceUnavailable), errors.Is(err, camera.ErrStreamClosed):
		return KindDeviceUnavailable, true
	case errors.Is(err, predicting.ErrNetworkUnreachable), errors.Is(err, context.DeadlineExceeded):
		return KindNetworkUnreachable, true
	case errors.Is(err, predicting.ErrServerError):
		return KindServerError, true
	case errors.Is(err, predicting.ErrMalformedResponse):
		return KindMalformedResponse, true
	}
	return 0, false
}

// newError wraps err, falling back to the given kind when the error is not recognised
func newError(err error, fallback Kind) *Error {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr
	}
	kind, ok := kindOf(err)
	if !ok {
		kind = fallback
	}
	return &Error{Kind: kind, Err: err}
}
