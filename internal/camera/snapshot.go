package camera

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// maxFrameSize bounds a single snapshot
const maxFrameSize = 20 << 20

// Snapshot is a Device backed by a network camera that serves the current
// frame as an image over HTTP (most IP cameras and phone webcam apps do)
type Snapshot struct {
	url    *url.URL
	client *http.Client

	mu   sync.Mutex
	busy bool
}

// NewSnapshot creates a Snapshot device for a frame URL
func NewSnapshot(rawURL string) (*Snapshot, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing camera url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("camera url must be http(s): %q", rawURL)
	}
	return &Snapshot{
		url:    u,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// frameURL adds the constraints as query hints; cameras that don't understand them ignore them
func (d *Snapshot) frameURL(c Constraints) string {
	u := *d.url
	q := u.Query()
	if c.Facing != "" {
		q.Set("facing", string(c.Facing))
	}
	if c.Width > 0 {
		q.Set("width", strconv.Itoa(c.Width))
	}
	if c.Height > 0 {
		q.Set("height", strconv.Itoa(c.Height))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Open checks the camera and claims it
func (d *Snapshot) Open(ctx context.Context, c Constraints) (Stream, error) {
	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: device already in use", ErrDeviceUnavailable)
	}
	d.busy = true
	d.mu.Unlock()

	s := &snapshotStream{device: d, frameURL: d.frameURL(c)}
	if _, err := s.fetch(ctx); err != nil {
		d.release()
		return nil, err
	}
	return s, nil
}

func (d *Snapshot) release() {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
}

type snapshotStream struct {
	device   *Snapshot
	frameURL string

	mu     sync.Mutex
	closed bool
}

func (s *snapshotStream) Capture(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrStreamClosed
	}
	return s.fetch(ctx)
}

func (s *snapshotStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.device.release()
	return nil
}

func (s *snapshotStream) fetch(ctx context.Context) (*Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.frameURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.device.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrPermissionDenied, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w (status %d)", ErrDeviceUnavailable, resp.StatusCode)
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: camera returned %q instead of an image", ErrDeviceUnavailable, contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading frame: %v", ErrDeviceUnavailable, err)
	}

	return &Frame{Data: data, ContentType: contentType}, nil
}
