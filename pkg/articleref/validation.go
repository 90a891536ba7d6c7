package articleref

import (
	"fmt"
	"strings"
)

// Default upload constraints. Both are configuration, not business law;
// config.Load can override them.
const (
	DefaultMaxUploadSize int64 = 5 * 1024 * 1024 // 5 MB
)

// DefaultAllowedMimeTypes is the default MIME allow-list for reference
// uploads. Entries ending in "/*" match the whole major type.
var DefaultAllowedMimeTypes = []string{
	"image/*",
	"application/pdf",
	"application/msword",
	"text/plain",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// UploadValidator checks an incoming upload before any backend write.
type UploadValidator struct {
	maxSize      int64
	allowedMimes []string
}

// NewUploadValidator builds a validator; zero maxSize and a nil allow-list
// select the defaults.
func NewUploadValidator(maxSize int64, allowedMimes []string) *UploadValidator {
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	if len(allowedMimes) == 0 {
		allowedMimes = DefaultAllowedMimeTypes
	}
	return &UploadValidator{maxSize: maxSize, allowedMimes: allowedMimes}
}

// Validate rejects empty, oversized, or disallowed uploads. Failures
// short-circuit the pipeline before any storage call.
func (v *UploadValidator) Validate(size int64, mimeType string) error {
	if size <= 0 {
		return NewValidationError("file", "please select a file to upload")
	}
	if size > v.maxSize {
		return NewValidationError("file", fmt.Sprintf("file is too large (%d bytes); maximum allowed is %d bytes", size, v.maxSize))
	}
	if !v.mimeAllowed(mimeType) {
		return NewValidationError("file", fmt.Sprintf("file type %q is not allowed; allowed types are %s", mimeType, strings.Join(v.allowedMimes, ", ")))
	}
	return nil
}

func (v *UploadValidator) mimeAllowed(mimeType string) bool {
	mime := normalizeMime(mimeType)
	for _, allowed := range v.allowedMimes {
		if major, ok := strings.CutSuffix(allowed, "/*"); ok {
			if strings.HasPrefix(mime, major+"/") {
				return true
			}
			continue
		}
		if mime == allowed {
			return true
		}
	}
	return false
}
