package articleref

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// fallbackStem is used when a filename normalizes to nothing.
const fallbackStem = "file"

// mimeExtensions maps MIME types to preferred file extensions. Extensions
// are derived from content type, never from the client-supplied name.
var mimeExtensions = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tiff",

	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"application/vnd.ms-excel": ".xls",
	"text/plain":               ".txt",
	"text/csv":                 ".csv",
}

// Normalizer derives URL-safe, collision-resistant storage names from
// human-supplied filenames.
type Normalizer struct{}

// NewNormalizer creates a filename normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Generate produces a storage-safe filename of the form
// {slug}-{token}{ext}. The token is fresh per call, so two calls with the
// same input never collide. The extension is resolved from mimeType; an
// unknown type yields a name with no extension.
func (n *Normalizer) Generate(originalFilename, mimeType string) string {
	stem := slugify(stripDirs(trimExtension(originalFilename)))
	if stem == "" {
		stem = fallbackStem
	}

	token := strings.ReplaceAll(uuid.New().String(), "-", "")

	return fmt.Sprintf("%s-%s%s", stem, token, ExtensionForMime(mimeType))
}

// ExtensionForMime returns the preferred file extension for a MIME type,
// or "" when the type is unknown.
func ExtensionForMime(mimeType string) string {
	return mimeExtensions[normalizeMime(mimeType)]
}

// normalizeMime extracts the base MIME type, dropping parameters such as
// charset.
func normalizeMime(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return strings.TrimSpace(strings.ToLower(mimeType))
}

// stripDirs removes directory components from either path flavor.
func stripDirs(name string) string {
	if idx := strings.LastIndexAny(name, "/\\"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// trimExtension drops the trailing extension, leaving the stem. Hidden
// files like ".env" keep their name rather than becoming empty.
func trimExtension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name
	}
	// Extension must follow the final path separator.
	if strings.LastIndexAny(name, "/\\") > idx {
		return name
	}
	return name[:idx]
}

// slugify lowercases the stem and collapses anything outside [a-z0-9]
// into single hyphens.
func slugify(stem string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(stem) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
