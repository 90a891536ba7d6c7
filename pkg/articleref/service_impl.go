package articleref

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSignedURLExpiry is the validity window for private access URLs.
const DefaultSignedURLExpiry = 30 * time.Minute

// service implements the Service interface
type service struct {
	repository    Repository
	stores        map[Visibility]BlobStore
	normalizer    *Normalizer
	validator     *UploadValidator
	publicBaseURL string
	urlExpiry     time.Duration
	logger        *slog.Logger

	maxUploadSize int64
	allowedMimes  []string
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the attachment repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore binds a storage backend to a visibility tier
func WithBlobStore(visibility Visibility, store BlobStore) Option {
	return func(s *service) {
		if s.stores == nil {
			s.stores = make(map[Visibility]BlobStore)
		}
		s.stores[visibility] = store
	}
}

// WithPublicBaseURL sets the base under which public objects are linkable
func WithPublicBaseURL(baseURL string) Option {
	return func(s *service) {
		s.publicBaseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithMaxUploadSize overrides the default 5 MB upload ceiling
func WithMaxUploadSize(n int64) Option {
	return func(s *service) {
		s.maxUploadSize = n
	}
}

// WithAllowedMimeTypes overrides the default MIME allow-list
func WithAllowedMimeTypes(mimes []string) Option {
	return func(s *service) {
		s.allowedMimes = mimes
	}
}

// WithSignedURLExpiry overrides the default 30 minute signed-URL window
func WithSignedURLExpiry(d time.Duration) Option {
	return func(s *service) {
		s.urlExpiry = d
	}
}

// WithLogger sets the structured logger used for storage incidents
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		stores:     make(map[Visibility]BlobStore),
		normalizer: NewNormalizer(),
		urlExpiry:  DefaultSignedURLExpiry,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.validator = NewUploadValidator(s.maxUploadSize, s.allowedMimes)

	return s, nil
}

// Storage backend operations

func (s *service) RegisterStore(visibility Visibility, store BlobStore) {
	s.stores[visibility] = store
}

func (s *service) StoreFor(visibility Visibility) (BlobStore, error) {
	store, exists := s.stores[visibility]
	if !exists {
		return nil, fmt.Errorf("%w: no backend for %s visibility", ErrStorageBackendNotFound, visibility)
	}
	return store, nil
}

// Upload pipeline

// uploadFile validates the byte source, derives a collision-free storage
// key and streams the payload into the backend bound to the visibility
// tier. Nothing is persisted on validation failure.
func (s *service) uploadFile(ctx context.Context, category Category, visibility Visibility, reader io.Reader, originalFilename, mimeType string, size int64) (*StoredFile, error) {
	if reader == nil {
		return nil, NewValidationError("file", "please select a file to upload")
	}

	// Sniff the content type when the caller declared none. The sniffing
	// reader replays the inspected bytes into the backend copy.
	if mimeType == "" {
		mimeType, reader = DetectMimeType(reader)
	}

	if err := s.validator.Validate(size, mimeType); err != nil {
		return nil, err
	}

	store, err := s.StoreFor(visibility)
	if err != nil {
		return nil, err
	}

	filename := s.normalizer.Generate(originalFilename, mimeType)
	objectKey := string(category) + "/" + filename

	if err := store.UploadWithParams(ctx, reader, UploadParams{ObjectKey: objectKey, MimeType: mimeType}); err != nil {
		s.logger.Error("storage write failed",
			"backend", string(visibility), "object_key", objectKey, "error", err)
		return nil, &StorageError{
			Backend: string(visibility),
			Key:     objectKey,
			Op:      "upload",
			Err:     err,
		}
	}

	if originalFilename == "" {
		originalFilename = filename
	}

	return &StoredFile{
		StorageKey:       objectKey,
		OriginalFilename: originalFilename,
		MimeType:         mimeType,
		Size:             size,
		Visibility:       visibility,
	}, nil
}

func (s *service) UploadReference(ctx context.Context, req UploadReferenceRequest) (*ReferenceAttachment, error) {
	stored, err := s.uploadFile(ctx, CategoryArticleReference, VisibilityPrivate,
		req.Reader, req.OriginalFilename, req.MimeType, req.Size)
	if err != nil {
		return nil, err
	}

	siblings, err := s.repository.ListByArticle(ctx, req.ArticleID)
	if err != nil {
		s.cleanupStored(ctx, stored)
		return nil, fmt.Errorf("list article references: %w", err)
	}
	position := 0
	for _, sibling := range siblings {
		if sibling.Position >= position {
			position = sibling.Position + 1
		}
	}

	now := time.Now().UTC()
	attachment := &ReferenceAttachment{
		ID:               uuid.New(),
		ArticleID:        req.ArticleID,
		StorageKey:       stored.StorageKey,
		OriginalFilename: stored.OriginalFilename,
		MimeType:         stored.MimeType,
		Position:         position,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// The record must never reference a key that failed to write; the
	// reverse, an orphaned object after a failed save, is cleaned up best
	// effort here.
	if err := s.repository.SaveAttachment(ctx, attachment); err != nil {
		s.cleanupStored(ctx, stored)
		return nil, &AttachmentError{AttachmentID: attachment.ID, Op: "create", Err: err}
	}

	return attachment, nil
}

func (s *service) UploadArticleImage(ctx context.Context, req UploadImageRequest) (string, error) {
	stored, err := s.uploadFile(ctx, CategoryArticleImage, VisibilityPublic,
		req.Reader, req.OriginalFilename, req.MimeType, req.Size)
	if err != nil {
		return "", err
	}

	if req.ExistingFilename != "" {
		oldKey := string(CategoryArticleImage) + "/" + req.ExistingFilename
		store, err := s.StoreFor(VisibilityPublic)
		if err != nil {
			return "", err
		}
		if err := store.Delete(ctx, oldKey); err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				// Already gone; cleanup of a missing predecessor is not a
				// failure of this pipeline.
				s.logger.Warn("old uploaded file was missing when trying to delete",
					"object_key", oldKey)
			} else {
				s.logger.Error("could not delete old uploaded file",
					"backend", string(VisibilityPublic), "object_key", oldKey, "error", err)
				return "", &StorageError{
					Backend: string(VisibilityPublic),
					Key:     oldKey,
					Op:      "delete",
					Err:     err,
				}
			}
		}
	}

	return strings.TrimPrefix(stored.StorageKey, string(CategoryArticleImage)+"/"), nil
}

// cleanupStored removes an object whose metadata record never
// materialized. Failures are logged, not surfaced; the caller is already
// propagating the original error.
func (s *service) cleanupStored(ctx context.Context, stored *StoredFile) {
	store, err := s.StoreFor(stored.Visibility)
	if err != nil {
		return
	}
	if err := store.Delete(ctx, stored.StorageKey); err != nil && !errors.Is(err, ErrObjectNotFound) {
		s.logger.Error("could not clean up orphaned object",
			"backend", string(stored.Visibility), "object_key", stored.StorageKey, "error", err)
	}
}

// Download/access pipeline

// PublicURL builds the stable URL for a public object. Existence is not
// verified at link-build time.
func (s *service) PublicURL(storageKey string) string {
	return s.publicBaseURL + "/" + storageKey
}

func (s *service) GetReferenceDownloadURL(ctx context.Context, id uuid.UUID) (string, error) {
	attachment, err := s.repository.GetAttachment(ctx, id)
	if err != nil {
		return "", &AttachmentError{AttachmentID: id, Op: "get_download_url", Err: err}
	}

	store, err := s.StoreFor(VisibilityPrivate)
	if err != nil {
		return "", err
	}

	url, err := store.GetDownloadURL(ctx, attachment.StorageKey, DownloadURLOptions{
		Filename:  attachment.OriginalFilename,
		MimeType:  attachment.MimeType,
		ExpiresIn: s.urlExpiry,
	})
	if err != nil {
		if errors.Is(err, ErrDirectDownloadUnsupported) {
			return "", err
		}
		s.logger.Error("signed URL generation failed",
			"backend", string(VisibilityPrivate), "object_key", attachment.StorageKey, "error", err)
		return "", &StorageError{
			Backend: string(VisibilityPrivate),
			Key:     attachment.StorageKey,
			Op:      "get_download_url",
			Err:     err,
		}
	}

	return url, nil
}

func (s *service) OpenReference(ctx context.Context, id uuid.UUID) (*ReferenceDownload, error) {
	attachment, err := s.repository.GetAttachment(ctx, id)
	if err != nil {
		return nil, &AttachmentError{AttachmentID: id, Op: "open", Err: err}
	}

	store, err := s.StoreFor(VisibilityPrivate)
	if err != nil {
		return nil, err
	}

	body, err := store.Download(ctx, attachment.StorageKey)
	if err != nil {
		s.logger.Error("storage read failed",
			"backend", string(VisibilityPrivate), "object_key", attachment.StorageKey, "error", err)
		return nil, &StorageError{
			Backend: string(VisibilityPrivate),
			Key:     attachment.StorageKey,
			Op:      "download",
			Err:     err,
		}
	}

	return &ReferenceDownload{
		Body:     body,
		MimeType: attachment.MimeType,
		Filename: attachment.OriginalFilename,
	}, nil
}

// Reference lifecycle

func (s *service) GetReference(ctx context.Context, id uuid.UUID) (*ReferenceAttachment, error) {
	return s.repository.GetAttachment(ctx, id)
}

func (s *service) ListReferences(ctx context.Context, articleID uuid.UUID) ([]*ReferenceAttachment, error) {
	return s.repository.ListByArticle(ctx, articleID)
}

func (s *service) UpdateReference(ctx context.Context, req UpdateReferenceRequest) (*ReferenceAttachment, error) {
	attachment, err := s.repository.GetAttachment(ctx, req.ID)
	if err != nil {
		return nil, &AttachmentError{AttachmentID: req.ID, Op: "update", Err: err}
	}

	if strings.TrimSpace(req.OriginalFilename) == "" {
		return nil, NewValidationError("original_filename", "must not be blank")
	}
	attachment.OriginalFilename = req.OriginalFilename
	attachment.UpdatedAt = time.Now().UTC()

	if err := s.repository.UpdateAttachment(ctx, attachment); err != nil {
		return nil, &AttachmentError{AttachmentID: req.ID, Op: "update", Err: err}
	}

	return attachment, nil
}

func (s *service) ReorderReferences(ctx context.Context, articleID uuid.UUID, orderedIDs []uuid.UUID) ([]*ReferenceAttachment, error) {
	current, err := s.repository.ListByArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("list article references: %w", err)
	}

	// The supplied sequence must be a permutation of the article's
	// attachment ids; anything else is rejected whole.
	if len(orderedIDs) != len(current) {
		return nil, NewValidationError("ordered_ids",
			fmt.Sprintf("expected %d ids, got %d", len(current), len(orderedIDs)))
	}
	known := make(map[uuid.UUID]struct{}, len(current))
	for _, attachment := range current {
		known[attachment.ID] = struct{}{}
	}
	positions := make(map[uuid.UUID]int, len(orderedIDs))
	for idx, id := range orderedIDs {
		if _, ok := known[id]; !ok {
			return nil, NewValidationError("ordered_ids",
				fmt.Sprintf("id %s does not belong to this article", id))
		}
		if _, dup := positions[id]; dup {
			return nil, NewValidationError("ordered_ids",
				fmt.Sprintf("id %s appears more than once", id))
		}
		positions[id] = idx
	}

	if err := s.repository.UpdatePositions(ctx, articleID, positions); err != nil {
		return nil, fmt.Errorf("update positions: %w", err)
	}

	return s.repository.ListByArticle(ctx, articleID)
}

func (s *service) DeleteReference(ctx context.Context, id uuid.UUID) error {
	attachment, err := s.repository.GetAttachment(ctx, id)
	if err != nil {
		return &AttachmentError{AttachmentID: id, Op: "delete", Err: err}
	}

	// Metadata is authoritative: the record goes first, and object
	// deletion afterwards is best effort. An orphaned physical object is
	// preferable to a dangling, inaccessible record.
	if err := s.repository.RemoveAttachment(ctx, id); err != nil {
		return &AttachmentError{AttachmentID: id, Op: "delete", Err: err}
	}

	store, err := s.StoreFor(VisibilityPrivate)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, attachment.StorageKey); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			// Desired end state already holds.
			s.logger.Warn("object was already gone on delete",
				"object_key", attachment.StorageKey)
			return nil
		}
		s.logger.Error("storage delete failed after record removal",
			"backend", string(VisibilityPrivate), "object_key", attachment.StorageKey, "error", err)
	}

	return nil
}
