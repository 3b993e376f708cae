package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/heic"
	_ "golang.org/x/image/webp" // Register WEBP decoder
)

// ErrUnsupportedFormat is returned when image data cannot be decoded
var ErrUnsupportedFormat = errors.New("unsupported image format")

// imageToPNG decodes any supported image format and re-encodes it as PNG
func imageToPNG(imageData []byte, mediaType string) ([]byte, error) {
	var img image.Image
	var err error

	// Go's standard image package doesn't support HEIC
	if IsHEIC(imageData) || isHEICMediaType(mediaType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding HEIC/HEIF image: %v", ErrUnsupportedFormat, err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if errors.Is(err, image.ErrFormat) {
				return nil, fmt.Errorf("%w (supported: JPEG, PNG, GIF, WEBP, HEIC, HEIF): %v", ErrUnsupportedFormat, err)
			}
			return nil, fmt.Errorf("%w: decoding image: %v", ErrUnsupportedFormat, err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// IsHEIC checks the ftyp box brand at offset 4
func IsHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMediaType(mediaType string) bool {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	return strings.Contains(mediaType, "heic") || strings.Contains(mediaType, "heif")
}

// ToPNG converts non-PNG images to PNG.
// Returns the PNG data and whether a conversion happened.
func ToPNG(imageData []byte, mediaType string) ([]byte, bool, error) {
	mediaType = NormalizeMediaType(mediaType)
	if mediaType == "image/png" && !IsHEIC(imageData) {
		return imageData, false, nil
	}
	pngData, err := imageToPNG(imageData, mediaType)
	if err != nil {
		return nil, false, fmt.Errorf("converting image to PNG: %w", err)
	}
	return pngData, true, nil
}

// Displayable returns image data a browser can render along with its media type.
// HEIC/HEIF is converted to PNG; everything else passes through. A failed
// conversion falls back to the original bytes.
func Displayable(imageData []byte, mediaType string) ([]byte, string) {
	mediaType = NormalizeMediaType(mediaType)
	if !IsHEIC(imageData) && !isHEICMediaType(mediaType) {
		return imageData, mediaType
	}
	pngData, err := imageToPNG(imageData, mediaType)
	if err != nil {
		return imageData, mediaType
	}
	return pngData, "image/png"
}
