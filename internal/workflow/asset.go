package workflow

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zombor/waste-classifier/internal/imaging"
)

// Origin records how an image was acquired
type Origin string

const (
	OriginUpload Origin = "upload"
	OriginCamera Origin = "camera-capture"
)

// Asset is the one image the workflow holds. It is never modified after creation.
type Asset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Origin      Origin    `json:"origin"`
	Size        int       `json:"size"`
	AcquiredAt  time.Time `json:"acquired_at"`
	Data        []byte    `json:"-"`
	// DataURI is ready for an <img> src; HEIC is converted to PNG for it
	DataURI string `json:"-"`
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters and truncates long phone-generated names
func sanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 6 {
		ext = ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "image"
	}
	return base + ext
}

// newAsset validates the declared media type and builds an Asset.
// Validation is advisory: only the declared type is checked.
func newAsset(id, name string, data []byte, declaredType string, origin Origin, now time.Time) (*Asset, error) {
	mediaType := imaging.NormalizeMediaType(declaredType)
	if mediaType == "" {
		mediaType = imaging.FromExtension(name)
	}
	if !imaging.IsAllowed(mediaType) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, declaredType)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image is empty", ErrUnsupportedMediaType)
	}

	data = bytes.Clone(data)
	display, displayType := imaging.Displayable(data, mediaType)

	return &Asset{
		ID:          id,
		Name:        sanitizeFilename(name),
		ContentType: mediaType,
		Origin:      origin,
		Size:        len(data),
		AcquiredAt:  now,
		Data:        data,
		DataURI:     imaging.DataURI(display, displayType),
	}, nil
}

// captureName names a camera frame after the time it was taken
func captureName(now time.Time, mediaType string) string {
	return "capture-" + now.Format("20060102-150405") + imaging.Extension(mediaType)
}
