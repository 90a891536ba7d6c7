package articleref

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls how an object's bytes can be reached once stored.
// It is fixed at write time; changing it requires a new write plus a
// delete of the old object.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Category is the namespacing prefix under which objects are stored.
type Category string

const (
	CategoryArticleImage     Category = "article_image"
	CategoryArticleReference Category = "article_reference"
)

// DefaultVisibility returns the visibility tier an upload in this
// category gets unless the caller overrides it. Images are directly
// linkable; references are access-mediated.
func (c Category) DefaultVisibility() Visibility {
	if c == CategoryArticleImage {
		return VisibilityPublic
	}
	return VisibilityPrivate
}

// ReferenceAttachment is the metadata record describing a stored object's
// role, owner and presentation metadata. StorageKey is immutable once the
// record exists; renaming requires delete plus re-upload.
type ReferenceAttachment struct {
	ID               uuid.UUID `json:"id"`
	ArticleID        uuid.UUID `json:"article_id"`
	StorageKey       string    `json:"storage_key"`
	OriginalFilename string    `json:"original_filename"`
	MimeType         string    `json:"mime_type"`
	Position         int       `json:"position"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StoredFile describes the outcome of a completed upload. The caller uses
// it to build the attachment record after the bytes are safely persisted.
type StoredFile struct {
	StorageKey       string `json:"storage_key"`
	OriginalFilename string `json:"original_filename"`
	MimeType         string `json:"mime_type"`
	Size             int64  `json:"size"`
	Visibility       Visibility `json:"visibility"`
}
