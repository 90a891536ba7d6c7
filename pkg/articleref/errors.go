package articleref

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrObjectNotFound indicates a stored object was not found in a backend
	ErrObjectNotFound = errors.New("object not found")

	// ErrAttachmentNotFound indicates an attachment record was not found
	ErrAttachmentNotFound = errors.New("attachment not found")

	// ErrStorageBackendNotFound indicates no backend is bound to a visibility tier
	ErrStorageBackendNotFound = errors.New("storage backend not found")

	// ErrDirectDownloadUnsupported indicates a backend cannot issue direct
	// access URLs for private objects; callers fall back to proxying bytes
	// through the service.
	ErrDirectDownloadUnsupported = errors.New("direct download not supported by backend")

	// ErrNotAuthorized indicates the principal may not manage the article
	ErrNotAuthorized = errors.New("not authorized to manage article")
)

// ValidationError describes a rejected input with field-level detail. It is
// surfaced to callers as a 400-equivalent and never logged as an incident.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AttachmentError represents an error related to attachment record operations
type AttachmentError struct {
	AttachmentID uuid.UUID
	Op           string
	Err          error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attachment operation %s failed for attachment %s: %v", e.Op, e.AttachmentID, e.Err)
}

func (e *AttachmentError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
