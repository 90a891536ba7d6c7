package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/article-assets/pkg/articleref"
	"github.com/tendant/article-assets/pkg/articleref/api"
	"github.com/tendant/article-assets/pkg/articleref/repo/memory"
	memorystorage "github.com/tendant/article-assets/pkg/articleref/storage/memory"
)

func newTestService(t *testing.T) articleref.Service {
	t.Helper()

	svc, err := articleref.New(
		articleref.WithRepository(memory.New()),
		articleref.WithBlobStore(articleref.VisibilityPublic, memorystorage.New()),
		articleref.WithBlobStore(articleref.VisibilityPrivate, memorystorage.New()),
		articleref.WithPublicBaseURL("/uploads"),
	)
	require.NoError(t, err)
	return svc
}

func multipartBody(t *testing.T, field, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func uploadViaAPI(t *testing.T, handler http.Handler, articleID uuid.UUID, filename, content string) api.ReferenceResponse {
	t.Helper()

	body, contentType := multipartBody(t, "reference", filename, "application/pdf", content)
	req := httptest.NewRequest("POST", "/articles/"+articleID.String()+"/references", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp api.ReferenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestUploadReferenceMultipart(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()
	articleID := uuid.New()

	resp := uploadViaAPI(t, handler, articleID, "Earth Report.pdf", "pdf bytes")

	assert.Equal(t, articleID.String(), resp.ArticleID)
	assert.Equal(t, "Earth Report.pdf", resp.OriginalFilename)
	assert.Equal(t, "application/pdf", resp.MimeType)
	assert.Equal(t, 0, resp.Position)
	assert.NotEmpty(t, resp.ID)
}

func TestUploadReferenceMissingField(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()

	body, contentType := multipartBody(t, "wrong-field", "a.pdf", "application/pdf", "content")
	req := httptest.NewRequest("POST", "/articles/"+uuid.NewString()+"/references", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadReferenceRejectsOversize(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()

	big := bytes.Repeat([]byte("x"), 6*1024*1024)
	body, contentType := multipartBody(t, "reference", "big.pdf", "application/pdf", string(big))
	req := httptest.NewRequest("POST", "/articles/"+uuid.NewString()+"/references", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "too large")
}

func TestUploadReferenceJSON(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()
	articleID := uuid.New()

	payload, err := json.Marshal(api.UploadReferenceJSONRequest{
		Filename: "notes.txt",
		Data:     base64.StdEncoding.EncodeToString([]byte("plain text content")),
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/articles/"+articleID.String()+"/references", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp api.ReferenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "notes.txt", resp.OriginalFilename)
}

func TestUploadReferenceJSONBadBase64(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()

	req := httptest.NewRequest("POST", "/articles/"+uuid.NewString()+"/references",
		bytes.NewReader([]byte(`{"filename":"a.txt","data":"%%%not-base64%%%"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReferences(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()
	articleID := uuid.New()

	first := uploadViaAPI(t, handler, articleID, "a.pdf", "aa")
	second := uploadViaAPI(t, handler, articleID, "b.pdf", "bb")

	req := httptest.NewRequest("GET", "/articles/"+articleID.String()+"/references", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []api.ReferenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestReorderReferences(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()
	articleID := uuid.New()

	a := uploadViaAPI(t, handler, articleID, "a.pdf", "aa")
	b := uploadViaAPI(t, handler, articleID, "b.pdf", "bb")

	payload, err := json.Marshal([]string{b.ID, a.ID})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/articles/"+articleID.String()+"/references/reorder", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var list []api.ReferenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
}

func TestReorderReferencesRejectsPartialList(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()
	articleID := uuid.New()

	a := uploadViaAPI(t, handler, articleID, "a.pdf", "aa")
	uploadViaAPI(t, handler, articleID, "b.pdf", "bb")

	payload, err := json.Marshal([]string{a.ID})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/articles/"+articleID.String()+"/references/reorder", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadReferenceProxies(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()
	articleID := uuid.New()

	resp := uploadViaAPI(t, handler, articleID, "Earth Report.pdf", "pdf bytes")

	req := httptest.NewRequest("GET", "/references/"+resp.ID+"/download", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// The memory backend cannot mint URLs, so the bytes are proxied.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Earth Report.pdf")

	got, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(got))
}

// presigningStore fakes a backend that can mint download URLs, the way
// the S3 backend does.
type presigningStore struct {
	articleref.BlobStore
}

func (s *presigningStore) GetDownloadURL(ctx context.Context, objectKey string, opts articleref.DownloadURLOptions) (string, error) {
	return "https://bucket.example.com/" + objectKey + "?signature=stub", nil
}

func TestDownloadReferenceRedirects(t *testing.T) {
	svc, err := articleref.New(
		articleref.WithRepository(memory.New()),
		articleref.WithBlobStore(articleref.VisibilityPublic, memorystorage.New()),
		articleref.WithBlobStore(articleref.VisibilityPrivate, &presigningStore{BlobStore: memorystorage.New()}),
		articleref.WithPublicBaseURL("/uploads"),
	)
	require.NoError(t, err)

	handler := api.NewReferencesHandler(svc, nil, nil).Routes()
	articleID := uuid.New()

	resp := uploadViaAPI(t, handler, articleID, "Earth Report.pdf", "pdf bytes")

	req := httptest.NewRequest("GET", "/references/"+resp.ID+"/download", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)

	location := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "https://bucket.example.com/article_reference/"), "got %q", location)
	assert.Contains(t, location, "signature=stub")
	assert.NotContains(t, rec.Body.String(), "pdf bytes")
}

func TestGetReference(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()
	articleID := uuid.New()

	resp := uploadViaAPI(t, handler, articleID, "a.pdf", "aa")

	req := httptest.NewRequest("GET", "/references/"+resp.ID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got api.ReferenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, resp.ID, got.ID)
}

func TestGetReferenceNotFound(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()

	req := httptest.NewRequest("GET", "/references/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReferenceInvalidID(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()

	req := httptest.NewRequest("GET", "/references/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateReference(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()
	articleID := uuid.New()

	resp := uploadViaAPI(t, handler, articleID, "draft.pdf", "content")

	payload := []byte(`{"original_filename":"final.pdf"}`)
	req := httptest.NewRequest("PUT", "/references/"+resp.ID, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got api.ReferenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "final.pdf", got.OriginalFilename)
}

func TestDeleteReference(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), nil, nil).Routes()
	articleID := uuid.New()

	resp := uploadViaAPI(t, handler, articleID, "doomed.pdf", "content")

	req := httptest.NewRequest("DELETE", "/references/"+resp.ID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest("GET", "/references/"+resp.ID, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// allowlistAuthorizer permits a single principal.
type allowlistAuthorizer struct {
	principal string
}

func (a allowlistAuthorizer) CanManage(_ context.Context, principal string, _ uuid.UUID) (bool, error) {
	return principal == a.principal, nil
}

func TestAuthorizerGatesMutations(t *testing.T) {
	handler := api.NewReferencesHandler(newTestService(t), allowlistAuthorizer{principal: "alice"}, nil).Routes()
	articleID := uuid.New()

	body, contentType := multipartBody(t, "reference", "a.pdf", "application/pdf", "content")
	req := httptest.NewRequest("POST", "/articles/"+articleID.String()+"/references", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "anonymous upload must be rejected")

	body, contentType = multipartBody(t, "reference", "a.pdf", "application/pdf", "content")
	req = httptest.NewRequest("POST", "/articles/"+articleID.String()+"/references", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(api.PrincipalHeader, "alice")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Reads stay open; per-reference mutations require the principal.
	var created api.ReferenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	req = httptest.NewRequest("GET", "/articles/"+articleID.String()+"/references", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest("DELETE", "/references/"+created.ID, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
