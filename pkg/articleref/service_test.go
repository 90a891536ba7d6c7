package articleref_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/article-assets/pkg/articleref"
	"github.com/tendant/article-assets/pkg/articleref/repo/memory"
	memorystorage "github.com/tendant/article-assets/pkg/articleref/storage/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []articleref.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []articleref.Option{},
			expectError: true,
		},
		{
			name: "with repository should succeed",
			options: []articleref.Option{
				articleref.WithRepository(memory.New()),
			},
			expectError: false,
		},
		{
			name: "with repository and blob stores should succeed",
			options: []articleref.Option{
				articleref.WithRepository(memory.New()),
				articleref.WithBlobStore(articleref.VisibilityPublic, memorystorage.New()),
				articleref.WithBlobStore(articleref.VisibilityPrivate, memorystorage.New()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := articleref.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

// countingStore wraps a blob store and counts write-side calls.
type countingStore struct {
	articleref.BlobStore
	uploads int
	deletes int
}

func (c *countingStore) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	c.uploads++
	return c.BlobStore.Upload(ctx, objectKey, reader)
}

func (c *countingStore) UploadWithParams(ctx context.Context, reader io.Reader, params articleref.UploadParams) error {
	c.uploads++
	return c.BlobStore.UploadWithParams(ctx, reader, params)
}

func (c *countingStore) Delete(ctx context.Context, objectKey string) error {
	c.deletes++
	return c.BlobStore.Delete(ctx, objectKey)
}

type testEnv struct {
	svc     articleref.Service
	repo    *memory.Repository
	public  *countingStore
	private *countingStore
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()

	repo := memory.New()
	public := &countingStore{BlobStore: memorystorage.New()}
	private := &countingStore{BlobStore: memorystorage.New()}

	svc, err := articleref.New(
		articleref.WithRepository(repo),
		articleref.WithBlobStore(articleref.VisibilityPublic, public),
		articleref.WithBlobStore(articleref.VisibilityPrivate, private),
		articleref.WithPublicBaseURL("/uploads"),
	)
	require.NoError(t, err)
	require.NotNil(t, svc)

	return &testEnv{svc: svc, repo: repo, public: public, private: private}
}

func uploadReference(t *testing.T, env *testEnv, articleID uuid.UUID, name, content string) *articleref.ReferenceAttachment {
	t.Helper()

	attachment, err := env.svc.UploadReference(context.Background(), articleref.UploadReferenceRequest{
		ArticleID:        articleID,
		Reader:           strings.NewReader(content),
		Size:             int64(len(content)),
		OriginalFilename: name,
		MimeType:         "application/pdf",
	})
	require.NoError(t, err)
	require.NotNil(t, attachment)
	return attachment
}

func TestUploadReferenceRoundTrip(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	articleID := uuid.New()

	attachment := uploadReference(t, env, articleID, "Earth Report.pdf", "pdf bytes here")

	assert.Equal(t, articleID, attachment.ArticleID)
	assert.Equal(t, "Earth Report.pdf", attachment.OriginalFilename)
	assert.Equal(t, "application/pdf", attachment.MimeType)
	assert.Equal(t, 0, attachment.Position)
	assert.True(t, strings.HasPrefix(attachment.StorageKey, "article_reference/"),
		"storage key %q", attachment.StorageKey)
	assert.True(t, strings.HasSuffix(attachment.StorageKey, ".pdf"))

	download, err := env.svc.OpenReference(ctx, attachment.ID)
	require.NoError(t, err)
	defer download.Body.Close()

	got, err := io.ReadAll(download.Body)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes here", string(got))
	assert.Equal(t, "application/pdf", download.MimeType)
	assert.Equal(t, "Earth Report.pdf", download.Filename)

	// References live in the private tier only.
	assert.Equal(t, 1, env.private.uploads)
	assert.Equal(t, 0, env.public.uploads)
}

func TestUploadReferencePositionsAppend(t *testing.T) {
	env := setupTestService(t)
	articleID := uuid.New()

	first := uploadReference(t, env, articleID, "a.pdf", "aa")
	second := uploadReference(t, env, articleID, "b.pdf", "bb")
	third := uploadReference(t, env, articleID, "c.pdf", "cc")

	assert.Equal(t, 0, first.Position)
	assert.Equal(t, 1, second.Position)
	assert.Equal(t, 2, third.Position)

	list, err := env.svc.ListReferences(context.Background(), articleID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, third.ID, list[2].ID)
}

func TestUploadReferenceValidationFailureTouchesNothing(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	articleID := uuid.New()

	tests := []struct {
		name string
		req  articleref.UploadReferenceRequest
	}{
		{
			name: "oversized",
			req: articleref.UploadReferenceRequest{
				ArticleID:        articleID,
				Reader:           strings.NewReader("x"),
				Size:             6 * 1024 * 1024,
				OriginalFilename: "big.pdf",
				MimeType:         "application/pdf",
			},
		},
		{
			name: "disallowed type",
			req: articleref.UploadReferenceRequest{
				ArticleID:        articleID,
				Reader:           strings.NewReader("x"),
				Size:             1,
				OriginalFilename: "evil.zip",
				MimeType:         "application/zip",
			},
		},
		{
			name: "nil reader",
			req: articleref.UploadReferenceRequest{
				ArticleID: articleID,
				Size:      1,
				MimeType:  "application/pdf",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attachment, err := env.svc.UploadReference(ctx, tt.req)
			require.Error(t, err)
			assert.Nil(t, attachment)
			assert.True(t, articleref.IsValidation(err), "expected validation error, got %v", err)
		})
	}

	assert.Equal(t, 0, env.private.uploads, "no backend write may happen on validation failure")

	list, err := env.svc.ListReferences(ctx, articleID)
	require.NoError(t, err)
	assert.Empty(t, list, "no record may exist on validation failure")
}

func TestUploadReferenceSniffsMimeType(t *testing.T) {
	env := setupTestService(t)

	payload := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 32)...)
	attachment, err := env.svc.UploadReference(context.Background(), articleref.UploadReferenceRequest{
		ArticleID:        uuid.New(),
		Reader:           bytes.NewReader(payload),
		Size:             int64(len(payload)),
		OriginalFilename: "diagram",
	})
	require.NoError(t, err)
	assert.Equal(t, "image/png", attachment.MimeType)
	assert.True(t, strings.HasSuffix(attachment.StorageKey, ".png"))

	download, err := env.svc.OpenReference(context.Background(), attachment.ID)
	require.NoError(t, err)
	defer download.Body.Close()

	got, err := io.ReadAll(download.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, got, "sniffing must not truncate the stored object")
}

func TestReorderReferences(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	articleID := uuid.New()

	a := uploadReference(t, env, articleID, "a.pdf", "aa")
	b := uploadReference(t, env, articleID, "b.pdf", "bb")
	c := uploadReference(t, env, articleID, "c.pdf", "cc")

	reordered, err := env.svc.ReorderReferences(ctx, articleID, []uuid.UUID{c.ID, a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, reordered, 3)

	assert.Equal(t, c.ID, reordered[0].ID)
	assert.Equal(t, a.ID, reordered[1].ID)
	assert.Equal(t, b.ID, reordered[2].ID)
	assert.Equal(t, 0, reordered[0].Position)
	assert.Equal(t, 1, reordered[1].Position)
	assert.Equal(t, 2, reordered[2].Position)
}

func TestReorderReferencesRejectsBadPermutations(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	articleID := uuid.New()

	a := uploadReference(t, env, articleID, "a.pdf", "aa")
	b := uploadReference(t, env, articleID, "b.pdf", "bb")

	tests := []struct {
		name string
		ids  []uuid.UUID
	}{
		{"missing id", []uuid.UUID{a.ID}},
		{"extra id", []uuid.UUID{a.ID, b.ID, uuid.New()}},
		{"foreign id", []uuid.UUID{a.ID, uuid.New()}},
		{"duplicate id", []uuid.UUID{a.ID, a.ID}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.ReorderReferences(ctx, articleID, tt.ids)
			require.Error(t, err)
			assert.True(t, articleref.IsValidation(err), "expected validation error, got %v", err)
		})
	}

	// Rejected requests must not disturb the existing order.
	list, err := env.svc.ListReferences(ctx, articleID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}

func TestUpdateReference(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	attachment := uploadReference(t, env, uuid.New(), "draft.pdf", "content")

	updated, err := env.svc.UpdateReference(ctx, articleref.UpdateReferenceRequest{
		ID:               attachment.ID,
		OriginalFilename: "final.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "final.pdf", updated.OriginalFilename)
	assert.Equal(t, attachment.StorageKey, updated.StorageKey, "rename must not move the object")

	_, err = env.svc.UpdateReference(ctx, articleref.UpdateReferenceRequest{
		ID:               attachment.ID,
		OriginalFilename: "   ",
	})
	require.Error(t, err)
	assert.True(t, articleref.IsValidation(err))

	_, err = env.svc.UpdateReference(ctx, articleref.UpdateReferenceRequest{
		ID:               uuid.New(),
		OriginalFilename: "x.pdf",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, articleref.ErrAttachmentNotFound)
}

func TestDeleteReference(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	attachment := uploadReference(t, env, uuid.New(), "doomed.pdf", "content")

	require.NoError(t, env.svc.DeleteReference(ctx, attachment.ID))

	_, err := env.svc.GetReference(ctx, attachment.ID)
	assert.ErrorIs(t, err, articleref.ErrAttachmentNotFound)

	exists, err := env.private.Exists(ctx, attachment.StorageKey)
	require.NoError(t, err)
	assert.False(t, exists, "object must be gone after delete")

	// Second delete finds no record.
	err = env.svc.DeleteReference(ctx, attachment.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, articleref.ErrAttachmentNotFound)
}

func TestDeleteReferenceSurvivesMissingObject(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	attachment := uploadReference(t, env, uuid.New(), "gone.pdf", "content")

	// Remove the object behind the service's back.
	require.NoError(t, env.private.BlobStore.Delete(ctx, attachment.StorageKey))

	// Metadata is authoritative; a missing object does not fail the delete.
	require.NoError(t, env.svc.DeleteReference(ctx, attachment.ID))

	_, err := env.svc.GetReference(ctx, attachment.ID)
	assert.ErrorIs(t, err, articleref.ErrAttachmentNotFound)
}

func TestUploadArticleImage(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	payload := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 16)...)
	filename, err := env.svc.UploadArticleImage(ctx, articleref.UploadImageRequest{
		Reader:           bytes.NewReader(payload),
		Size:             int64(len(payload)),
		OriginalFilename: "cover.png",
		MimeType:         "image/png",
	})
	require.NoError(t, err)
	assert.NotContains(t, filename, "/", "image filename is relative to its category")
	assert.True(t, strings.HasSuffix(filename, ".png"))

	key := "article_image/" + filename
	exists, err := env.public.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, "/uploads/"+key, env.svc.PublicURL(key))
}

func TestUploadArticleImageReplacesPredecessor(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	payload := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 16)...)
	oldFilename, err := env.svc.UploadArticleImage(ctx, articleref.UploadImageRequest{
		Reader:           bytes.NewReader(payload),
		Size:             int64(len(payload)),
		OriginalFilename: "cover.png",
		MimeType:         "image/png",
	})
	require.NoError(t, err)

	newFilename, err := env.svc.UploadArticleImage(ctx, articleref.UploadImageRequest{
		Reader:           bytes.NewReader(payload),
		Size:             int64(len(payload)),
		OriginalFilename: "cover-v2.png",
		MimeType:         "image/png",
		ExistingFilename: oldFilename,
	})
	require.NoError(t, err)
	assert.NotEqual(t, oldFilename, newFilename)

	oldExists, err := env.public.Exists(ctx, "article_image/"+oldFilename)
	require.NoError(t, err)
	assert.False(t, oldExists, "predecessor must be removed")

	newExists, err := env.public.Exists(ctx, "article_image/"+newFilename)
	require.NoError(t, err)
	assert.True(t, newExists)
}

func TestUploadArticleImageMissingPredecessorIsNotFatal(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	payload := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 16)...)
	filename, err := env.svc.UploadArticleImage(ctx, articleref.UploadImageRequest{
		Reader:           bytes.NewReader(payload),
		Size:             int64(len(payload)),
		OriginalFilename: "cover.png",
		MimeType:         "image/png",
		ExistingFilename: "never-existed.png",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, filename)
}

func TestGetReferenceDownloadURLUnsupportedBackend(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	attachment := uploadReference(t, env, uuid.New(), "doc.pdf", "content")

	// The memory backend cannot mint URLs; the caller falls back to
	// proxying via OpenReference.
	_, err := env.svc.GetReferenceDownloadURL(ctx, attachment.ID)
	assert.ErrorIs(t, err, articleref.ErrDirectDownloadUnsupported)
}

func TestStoreFor(t *testing.T) {
	env := setupTestService(t)

	store, err := env.svc.StoreFor(articleref.VisibilityPublic)
	require.NoError(t, err)
	assert.NotNil(t, store)

	svc, err := articleref.New(articleref.WithRepository(memory.New()))
	require.NoError(t, err)

	_, err = svc.StoreFor(articleref.VisibilityPrivate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, articleref.ErrStorageBackendNotFound))
}
