package articleref

import (
	"io"

	"github.com/google/uuid"
)

// Request/Response DTOs

// UploadReferenceRequest contains parameters for attaching a reference
// file to an article. Reader is streamed; it is never buffered whole.
type UploadReferenceRequest struct {
	ArticleID        uuid.UUID
	Reader           io.Reader
	Size             int64
	OriginalFilename string // optional; falls back to the generated storage name
	MimeType         string // optional; sniffed from content when empty
}

// UploadImageRequest contains parameters for uploading an article image.
// ExistingFilename names a predecessor to remove once the new write
// succeeds.
type UploadImageRequest struct {
	Reader           io.Reader
	Size             int64
	OriginalFilename string
	MimeType         string
	ExistingFilename string
}

// UpdateReferenceRequest mutates attachment presentation metadata without
// touching the stored bytes.
type UpdateReferenceRequest struct {
	ID               uuid.UUID
	OriginalFilename string
}

// ReferenceDownload is an open proxy-mode download: a read stream plus the
// headers the caller needs to serve it. The caller closes Body.
type ReferenceDownload struct {
	Body     io.ReadCloser
	MimeType string
	Filename string
}
