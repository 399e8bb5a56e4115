package admission

import (
	"mime"
	"strings"
)

const (
	MiB = 1 << 20

	DefaultMaxFileBytes    = 15 * MiB
	DefaultMaxSessionBytes = 300 * MiB
	DefaultMaxPixels       = 1200
)

// Policy holds the static upload limits.
type Policy struct {
	AllowedContentTypes []string
	MaxFileBytes        int64
	MaxSessionBytes     int64
	// MaxPixels bounds the longer side of a decoded image.
	MaxPixels int
}

func DefaultPolicy() Policy {
	return Policy{
		AllowedContentTypes: []string{"image/jpeg", "image/png", "image/webp"},
		MaxFileBytes:        DefaultMaxFileBytes,
		MaxSessionBytes:     DefaultMaxSessionBytes,
		MaxPixels:           DefaultMaxPixels,
	}
}

// Allows reports whether the declared content type is on the allow list. Parameters
// such as charset are ignored.
func (p Policy) Allows(contentType string) bool {
	mediaType := normalizeContentType(contentType)
	for _, allowed := range p.AllowedContentTypes {
		if mediaType == allowed {
			return true
		}
	}
	return false
}

func normalizeContentType(contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
