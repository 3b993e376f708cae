// Package camera provides scoped access to a frame source. A Stream must be
// closed on every exit path; devices allow one open stream at a time.
package camera

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied means the device refused access
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceUnavailable means there is no usable device, or it is busy
	ErrDeviceUnavailable = errors.New("camera unavailable")
	// ErrStreamClosed is returned by Capture after Close
	ErrStreamClosed = errors.New("camera stream closed")
)

// Facing selects which camera to prefer
type Facing string

const (
	// Environment is the rear camera, pointed away from the user
	Environment Facing = "environment"
	// User is the front camera
	User Facing = "user"
)

// Constraints describe the preferred stream
type Constraints struct {
	Facing Facing
	Width  int
	Height int
}

// DefaultConstraints asks for the rear camera at 1080p
func DefaultConstraints() Constraints {
	return Constraints{Facing: Environment, Width: 1920, Height: 1080}
}

// Frame is a single still image taken from a stream
type Frame struct {
	Data        []byte
	ContentType string
}

// Device opens streams
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live handle on a device
type Stream interface {
	// Capture returns the current frame
	Capture(ctx context.Context) (*Frame, error)
	// Close releases the device. It is safe to call more than once.
	Close() error
}

// None is the device used when no camera is configured
type None struct{}

// Open always fails
func (None) Open(ctx context.Context, c Constraints) (Stream, error) {
	return nil, fmt.Errorf("%w: no camera configured", ErrDeviceUnavailable)
}
