package articleref

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for storage backends. Implementations
// must accept unbounded streaming sources on upload and return lazily
// consumed readers on download; the caller closes what it opens.
type BlobStore interface {
	// Upload streams content under the given object key
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download returns a read stream for the object, or ErrObjectNotFound
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes the object; idempotency is the caller's concern
	Delete(ctx context.Context, objectKey string) error

	// Exists reports whether an object is present under the key
	Exists(ctx context.Context, objectKey string) (bool, error)

	// GetDownloadURL returns a direct access URL for the object. Backends
	// that cannot mint one return ErrDirectDownloadUnsupported.
	GetDownloadURL(ctx context.Context, objectKey string, opts DownloadURLOptions) (string, error)

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
}

// DownloadURLOptions shape the access URL a backend mints for a download.
type DownloadURLOptions struct {
	// Filename forces a content-disposition attachment download under
	// this name. Empty means the backend default.
	Filename string

	// MimeType overrides the response content type.
	MimeType string

	// ExpiresIn bounds the URL validity window. Zero means the backend's
	// configured default.
	ExpiresIn time.Duration
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
}

// Repository defines the interface for attachment record persistence.
// Record ordering and optimistic-concurrency concerns live here, not in
// the storage core.
type Repository interface {
	SaveAttachment(ctx context.Context, attachment *ReferenceAttachment) error
	UpdateAttachment(ctx context.Context, attachment *ReferenceAttachment) error
	RemoveAttachment(ctx context.Context, id uuid.UUID) error
	GetAttachment(ctx context.Context, id uuid.UUID) (*ReferenceAttachment, error)

	// ListByArticle returns the article's attachments ordered by position.
	ListByArticle(ctx context.Context, articleID uuid.UUID) ([]*ReferenceAttachment, error)

	// UpdatePositions applies a complete id->position assignment for one
	// article in a single atomic step.
	UpdatePositions(ctx context.Context, articleID uuid.UUID, positions map[uuid.UUID]int) error
}

// Authorizer is the external collaborator deciding whether a principal may
// manage an article. The storage core never re-implements this check.
type Authorizer interface {
	CanManage(ctx context.Context, principal string, articleID uuid.UUID) (bool, error)
}
