package imaging

import (
	"encoding/base64"
	"mime"
	"path/filepath"
	"strings"
)

// allowedMediaTypes are the image types accepted from file pickers and cameras
var allowedMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/heic": true,
	"image/heif": true,
}

// NormalizeMediaType lowercases a declared media type and strips any parameters.
// "image/jpg" is folded into "image/jpeg".
func NormalizeMediaType(declared string) string {
	mediaType := strings.ToLower(strings.TrimSpace(declared))
	if mediaType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	if mediaType == "image/jpg" || mediaType == "image/pjpeg" {
		mediaType = "image/jpeg"
	}
	return mediaType
}

// IsAllowed reports whether a normalized media type is an accepted image type
func IsAllowed(mediaType string) bool {
	return allowedMediaTypes[mediaType]
}

// FromExtension guesses a media type from a file name when the client did not declare one
func FromExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// DataURI encodes image data for direct use in an <img> src attribute
func DataURI(data []byte, mediaType string) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Extension returns a file extension for a media type, or "" when unknown
func Extension(mediaType string) string {
	switch NormalizeMediaType(mediaType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	default:
		return ""
	}
}
