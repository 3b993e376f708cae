// Package workflow holds the image-acquisition and classification state machine.
//
//	Idle --acquire--> ImageReady --classify--> Requesting --success--> ResultReady
//	Requesting --failure--> Failed --classify--> Requesting
//	ImageReady/Requesting/ResultReady/Failed --acquire--> ImageReady
//	any state --reset--> Idle
//
// All mutation happens under one mutex that is never held across I/O. Every
// asynchronous completion re-checks that it still belongs to the current
// asset before it is applied.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/waste-classifier/internal/camera"
	"github.com/zombor/waste-classifier/internal/predicting"
)

// State is the workflow position
type State int

const (
	Idle State = iota
	ImageReady
	Requesting
	ResultReady
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case ImageReady:
		return "ImageReady"
	case Requesting:
		return "Requesting"
	case ResultReady:
		return "ResultReady"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is a completed classification of the current asset
type Result struct {
	AssetID     string              `json:"asset_id"`
	Category    predicting.Category `json:"category"`
	Confidence  float64             `json:"confidence"`
	RawLabel    string              `json:"raw_label"`
	CompletedAt time.Time           `json:"completed_at"`
}

// Snapshot is an immutable copy of everything rendering needs
type Snapshot struct {
	Version      uint64
	State        State
	Asset        *Asset
	Result       *Result
	Err          *Error
	CameraActive bool
}

// IDGenerator generates unique IDs for assets
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Config tunes the controller
type Config struct {
	// Constraints are passed to the camera on every open
	Constraints camera.Constraints
	// RequestTimeout bounds a single classification; zero means 30s
	RequestTimeout time.Duration
}

// Controller owns the single image, its classification and the camera stream
type Controller struct {
	predictor   predicting.Predictor
	device      camera.Device
	constraints camera.Constraints
	timeout     time.Duration
	idGenerator IDGenerator
	timeSource  TimeSource

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	closed        bool
	state         State
	asset         *Asset
	result        *Result
	err           *Error
	stream        camera.Stream
	cameraGen     uint64
	requestSeq    uint64
	cancelRequest context.CancelFunc
	version       uint64
	subscribers   map[int]chan Snapshot
	nextSubID     int
}

// NewController creates a Controller with uuid IDs and the wall clock
func NewController(predictor predicting.Predictor, device camera.Device, cfg Config) *Controller {
	return NewControllerWithDeps(predictor, device, cfg, uuidGenerator{}, defaultTimeSource{})
}

// NewControllerWithDeps creates a Controller with custom dependencies for testing
func NewControllerWithDeps(predictor predicting.Predictor, device camera.Device, cfg Config, idGen IDGenerator, timeSrc TimeSource) *Controller {
	if device == nil {
		device = camera.None{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Constraints == (camera.Constraints{}) {
		cfg.Constraints = camera.DefaultConstraints()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		predictor:   predictor,
		device:      device,
		constraints: cfg.Constraints,
		timeout:     cfg.RequestTimeout,
		idGenerator: idGen,
		timeSource:  timeSrc,
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[int]chan Snapshot),
	}
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Version:      c.version,
		State:        c.state,
		Asset:        c.asset,
		Result:       c.result,
		Err:          c.err,
		CameraActive: c.stream != nil,
	}
}

// Subscribe delivers the latest snapshot after every change. Slow readers
// only ever see the newest snapshot. The returned func unsubscribes.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	ch <- c.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
}

// publishLocked bumps the version and hands the new snapshot to subscribers
func (c *Controller) publishLocked() {
	c.version++
	snap := c.snapshotLocked()
	for _, ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// AcquireFromFile replaces the held image with an uploaded one. An unsupported
// type is reported inline and leaves the current image in place.
func (c *Controller) AcquireFromFile(name string, data []byte, declaredType string) (Snapshot, error) {
	return c.acquire(name, data, declaredType, OriginUpload)
}

// AcquireCapture is AcquireFromFile for a frame the client grabbed from its own camera
func (c *Controller) AcquireCapture(name string, data []byte, declaredType string) (Snapshot, error) {
	return c.acquire(name, data, declaredType, OriginCamera)
}

func (c *Controller) acquire(name string, data []byte, declaredType string, origin Origin) (Snapshot, error) {
	asset, assetErr := newAsset(c.idGenerator.Generate(), name, data, declaredType, origin, c.timeSource.Now())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.snapshotLocked(), ErrClosed
	}

	if assetErr != nil {
		wfErr := newError(assetErr, KindUnsupportedMediaType)
		slog.Warn("Rejected image", "filename", name, "content_type", declaredType, "error", assetErr)
		c.err = wfErr
		c.publishLocked()
		return c.snapshotLocked(), wfErr
	}

	c.releaseCameraLocked()
	c.installLocked(asset)
	return c.snapshotLocked(), nil
}

// installLocked makes asset current, dropping any result and in-flight request
func (c *Controller) installLocked(asset *Asset) {
	c.cancelRequestLocked()
	c.asset = asset
	c.result = nil
	c.err = nil
	c.state = ImageReady
	slog.Info("Image acquired",
		"asset_id", asset.ID,
		"filename", asset.Name,
		"content_type", asset.ContentType,
		"origin", asset.Origin,
		"size", asset.Size,
	)
	c.publishLocked()
}

// cancelRequestLocked abandons the in-flight request; its completion will be discarded
func (c *Controller) cancelRequestLocked() {
	c.requestSeq++
	if c.cancelRequest != nil {
		c.cancelRequest()
		c.cancelRequest = nil
	}
}

// releaseCameraLocked closes the open stream and invalidates pending opens
func (c *Controller) releaseCameraLocked() {
	c.cameraGen++
	if c.stream == nil {
		return
	}
	if err := c.stream.Close(); err != nil {
		slog.Warn("Failed to close camera stream", "error", err)
	}
	c.stream = nil
	c.publishLocked()
}

// StartCamera opens the camera. Permission and availability failures are
// reported inline and leave the workflow state unchanged.
func (c *Controller) StartCamera(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.releaseCameraLocked()
	gen := c.cameraGen
	c.mu.Unlock()

	stream, err := c.device.Open(ctx, c.constraints)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.cameraGen {
		// Reset, cancel or another start happened while we were waiting
		if stream != nil {
			stream.Close()
		}
		return ErrCameraCancelled
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		wfErr := newError(err, KindDeviceUnavailable)
		slog.Warn("Camera unavailable", "kind", wfErr.Kind, "error", err)
		c.err = wfErr
		c.publishLocked()
		return wfErr
	}

	c.stream = stream
	if c.state != Failed {
		c.err = nil
	}
	slog.Info("Camera started", "facing", c.constraints.Facing, "width", c.constraints.Width, "height", c.constraints.Height)
	c.publishLocked()
	return nil
}

// PreviewFrame returns the current camera frame without changing any state
func (c *Controller) PreviewFrame(ctx context.Context) (*camera.Frame, error) {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return nil, ErrCameraInactive
	}

	frame, err := stream.Capture(ctx)
	if errors.Is(err, camera.ErrStreamClosed) {
		return nil, ErrCameraInactive
	}
	if err != nil {
		return nil, newError(err, KindDeviceUnavailable)
	}
	return frame, nil
}

// CaptureFrame snapshots the camera into a new asset. The stream is released
// whether or not the capture succeeds.
func (c *Controller) CaptureFrame(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	stream := c.stream
	gen := c.cameraGen
	c.mu.Unlock()
	if stream == nil {
		return c.Snapshot(), ErrCameraInactive
	}

	frame, err := stream.Capture(ctx)
	now := c.timeSource.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.cameraGen || c.stream != stream {
		// Released by someone else while capturing
		return c.snapshotLocked(), ErrCameraCancelled
	}
	c.releaseCameraLocked()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return c.snapshotLocked(), err
		}
		wfErr := newError(err, KindDeviceUnavailable)
		slog.Warn("Camera capture failed", "error", err)
		c.err = wfErr
		c.publishLocked()
		return c.snapshotLocked(), wfErr
	}

	asset, err := newAsset(c.idGenerator.Generate(), captureName(now, frame.ContentType), frame.Data, frame.ContentType, OriginCamera, now)
	if err != nil {
		wfErr := newError(err, KindUnsupportedMediaType)
		c.err = wfErr
		c.publishLocked()
		return c.snapshotLocked(), wfErr
	}

	c.installLocked(asset)
	return c.snapshotLocked(), nil
}

// CancelCamera releases the camera, including one that is still opening
func (c *Controller) CancelCamera() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseCameraLocked()
	return c.snapshotLocked()
}

// Classify sends the current image to the predictor. It returns immediately;
// done is closed once the outcome has been applied or discarded. Only one
// request may be in flight: a second call is rejected with ErrRequestInFlight.
func (c *Controller) Classify() (<-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	switch c.state {
	case Idle:
		return nil, ErrNoImage
	case Requesting:
		return nil, ErrRequestInFlight
	case ResultReady:
		return nil, ErrAlreadyClassified
	}

	asset := c.asset
	c.requestSeq++
	seq := c.requestSeq
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	c.cancelRequest = cancel
	c.state = Requesting
	c.err = nil
	c.result = nil
	c.publishLocked()

	slog.Info("Classifying image", "asset_id", asset.ID, "filename", asset.Name)

	done := make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		defer cancel()

		started := time.Now()
		prediction, err := c.predictor.Predict(ctx, asset.Name, asset.Data, asset.ContentType)
		c.complete(asset.ID, seq, prediction, err, time.Since(started))
	}()

	return done, nil
}

// complete applies a predictor outcome if it still belongs to the current request
func (c *Controller) complete(assetID string, seq uint64, prediction *predicting.Prediction, err error, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state != Requesting || c.asset == nil || c.asset.ID != assetID || c.requestSeq != seq {
		slog.Debug("Discarding stale classification", "asset_id", assetID, "error", err)
		return
	}
	c.cancelRequest = nil

	if err == nil {
		err = validatePrediction(prediction)
	}
	if err != nil {
		wfErr := newError(err, KindServerError)
		slog.Error("Classification failed",
			"asset_id", assetID,
			"kind", wfErr.Kind,
			"elapsed", elapsed,
			"error", err,
		)
		c.state = Failed
		c.err = wfErr
		c.publishLocked()
		return
	}

	c.result = &Result{
		AssetID:     assetID,
		Category:    prediction.Category,
		Confidence:  prediction.Confidence,
		RawLabel:    prediction.RawLabel,
		CompletedAt: c.timeSource.Now(),
	}
	c.state = ResultReady
	slog.Info("Classification complete",
		"asset_id", assetID,
		"category", prediction.Category.Name,
		"confidence", prediction.Confidence,
		"elapsed", elapsed,
	)
	c.publishLocked()
}

// validatePrediction guards against predictors that skip their own checks
func validatePrediction(p *predicting.Prediction) error {
	if p == nil || p.Category.Name == "" {
		return fmt.Errorf("%w: empty prediction", predicting.ErrMalformedResponse)
	}
	if math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", predicting.ErrMalformedResponse, p.Confidence)
	}
	return nil
}

// Reset returns to Idle from any state, dropping the image, the result, any
// error and the camera stream. A request still in flight is ignored when it lands.
func (c *Controller) Reset() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	return c.snapshotLocked()
}

func (c *Controller) resetLocked() {
	c.releaseCameraLocked()
	c.cancelRequestLocked()
	c.asset = nil
	c.result = nil
	c.err = nil
	c.state = Idle
	c.publishLocked()
}

// Close tears the controller down and waits for outstanding requests
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.resetLocked()
	c.closed = true
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}
