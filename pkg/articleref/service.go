package articleref

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the article-assets library
type Service interface {
	// Upload pipeline
	UploadReference(ctx context.Context, req UploadReferenceRequest) (*ReferenceAttachment, error)
	UploadArticleImage(ctx context.Context, req UploadImageRequest) (string, error)

	// Download/access pipeline
	PublicURL(storageKey string) string
	GetReferenceDownloadURL(ctx context.Context, id uuid.UUID) (string, error)
	OpenReference(ctx context.Context, id uuid.UUID) (*ReferenceDownload, error)

	// Reference lifecycle
	GetReference(ctx context.Context, id uuid.UUID) (*ReferenceAttachment, error)
	ListReferences(ctx context.Context, articleID uuid.UUID) ([]*ReferenceAttachment, error)
	UpdateReference(ctx context.Context, req UpdateReferenceRequest) (*ReferenceAttachment, error)
	ReorderReferences(ctx context.Context, articleID uuid.UUID, orderedIDs []uuid.UUID) ([]*ReferenceAttachment, error)
	DeleteReference(ctx context.Context, id uuid.UUID) error

	// Storage backend operations
	RegisterStore(visibility Visibility, store BlobStore)
	StoreFor(visibility Visibility) (BlobStore, error)
}
