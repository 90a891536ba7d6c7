// Package api exposes the article reference service over HTTP using chi.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/article-assets/pkg/articleref"
)

// PrincipalHeader carries the authenticated principal set by the outer
// auth middleware. The handlers trust it as-is.
const PrincipalHeader = "X-User-ID"

const multipartFieldReference = "reference"

// ReferencesHandler handles article reference attachment endpoints.
type ReferencesHandler struct {
	service    articleref.Service
	authorizer articleref.Authorizer
	logger     *slog.Logger
}

// NewReferencesHandler creates a references handler. A nil authorizer
// disables per-article permission checks.
func NewReferencesHandler(service articleref.Service, authorizer articleref.Authorizer, logger *slog.Logger) *ReferencesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReferencesHandler{
		service:    service,
		authorizer: authorizer,
		logger:     logger,
	}
}

// Routes returns the router for reference endpoints.
func (h *ReferencesHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/articles/{articleID}/references", func(r chi.Router) {
		r.Post("/", h.UploadReference)
		r.Get("/", h.ListReferences)
		r.Post("/reorder", h.ReorderReferences)
	})

	r.Route("/references/{referenceID}", func(r chi.Router) {
		r.Get("/", h.GetReference)
		r.Get("/download", h.DownloadReference)
		r.Put("/", h.UpdateReference)
		r.Delete("/", h.DeleteReference)
	})

	return r
}

// ReferenceResponse is the JSON shape of a single attachment.
type ReferenceResponse struct {
	ID               string    `json:"id"`
	ArticleID        string    `json:"article_id"`
	OriginalFilename string    `json:"original_filename"`
	MimeType         string    `json:"mime_type"`
	Position         int       `json:"position"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toReferenceResponse(a *articleref.ReferenceAttachment) ReferenceResponse {
	return ReferenceResponse{
		ID:               a.ID.String(),
		ArticleID:        a.ArticleID.String(),
		OriginalFilename: a.OriginalFilename,
		MimeType:         a.MimeType,
		Position:         a.Position,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toReferenceResponses(attachments []*articleref.ReferenceAttachment) []ReferenceResponse {
	out := make([]ReferenceResponse, 0, len(attachments))
	for _, a := range attachments {
		out = append(out, toReferenceResponse(a))
	}
	return out
}

// UploadReferenceJSONRequest is the JSON upload alternative to multipart:
// the file content travels base64-encoded in the request body.
type UploadReferenceJSONRequest struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

// UpdateReferenceRequest renames the attachment as shown to readers.
type UpdateReferenceRequest struct {
	OriginalFilename string `json:"original_filename"`
}

// UploadReference attaches a file to an article. Accepts either a
// multipart form with a "reference" field or a JSON body with
// base64-encoded data.
func (h *ReferencesHandler) UploadReference(w http.ResponseWriter, r *http.Request) {
	articleID, ok := h.articleIDParam(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, articleID) {
		return
	}

	var (
		attachment *articleref.ReferenceAttachment
		err        error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		attachment, err = h.uploadFromJSON(r, articleID)
	} else {
		attachment, err = h.uploadFromMultipart(r, articleID)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toReferenceResponse(attachment))
}

func (h *ReferencesHandler) uploadFromMultipart(r *http.Request, articleID uuid.UUID) (*articleref.ReferenceAttachment, error) {
	file, header, err := r.FormFile(multipartFieldReference)
	if err != nil {
		return nil, articleref.NewValidationError(multipartFieldReference, "missing multipart file field")
	}
	defer file.Close()

	return h.service.UploadReference(r.Context(), articleref.UploadReferenceRequest{
		ArticleID:        articleID,
		Reader:           file,
		Size:             header.Size,
		OriginalFilename: header.Filename,
		MimeType:         header.Header.Get("Content-Type"),
	})
}

// uploadFromJSON decodes base64 file content into a staging file so the
// upload pipeline sees the same streaming reader multipart uploads use.
func (h *ReferencesHandler) uploadFromJSON(r *http.Request, articleID uuid.UUID) (*articleref.ReferenceAttachment, error) {
	var req UploadReferenceJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, articleref.NewValidationError("body", "invalid JSON body")
	}
	if req.Data == "" {
		return nil, articleref.NewValidationError("data", "file data is required")
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return nil, articleref.NewValidationError("data", "data must be base64 encoded")
	}

	staging, err := os.CreateTemp("", "reference-upload-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		staging.Close()
		os.Remove(staging.Name())
	}()

	if _, err := staging.Write(decoded); err != nil {
		return nil, err
	}
	if _, err := staging.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return h.service.UploadReference(r.Context(), articleref.UploadReferenceRequest{
		ArticleID:        articleID,
		Reader:           staging,
		Size:             int64(len(decoded)),
		OriginalFilename: req.Filename,
	})
}

// ListReferences returns the article's attachments in display order.
func (h *ReferencesHandler) ListReferences(w http.ResponseWriter, r *http.Request) {
	articleID, ok := h.articleIDParam(w, r)
	if !ok {
		return
	}

	attachments, err := h.service.ListReferences(r.Context(), articleID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.JSON(w, r, toReferenceResponses(attachments))
}

// ReorderReferences applies a new display order. The body is the full
// list of attachment ids in their desired order.
func (h *ReferencesHandler) ReorderReferences(w http.ResponseWriter, r *http.Request) {
	articleID, ok := h.articleIDParam(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, articleID) {
		return
	}

	var orderedIDs []uuid.UUID
	if err := json.NewDecoder(r.Body).Decode(&orderedIDs); err != nil {
		writeError(w, r, h.logger, articleref.NewValidationError("body", "expected a JSON array of attachment ids"))
		return
	}

	attachments, err := h.service.ReorderReferences(r.Context(), articleID, orderedIDs)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.JSON(w, r, toReferenceResponses(attachments))
}

// GetReference returns a single attachment's metadata.
func (h *ReferencesHandler) GetReference(w http.ResponseWriter, r *http.Request) {
	id, ok := h.referenceIDParam(w, r)
	if !ok {
		return
	}

	attachment, err := h.service.GetReference(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.JSON(w, r, toReferenceResponse(attachment))
}

// DownloadReference hands the file to the client. When the backend can
// mint a download URL the client is redirected there; otherwise the
// bytes are proxied through with attachment headers.
func (h *ReferencesHandler) DownloadReference(w http.ResponseWriter, r *http.Request) {
	id, ok := h.referenceIDParam(w, r)
	if !ok {
		return
	}

	attachment, err := h.service.GetReference(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !h.authorize(w, r, attachment.ArticleID) {
		return
	}

	url, err := h.service.GetReferenceDownloadURL(r.Context(), id)
	if err == nil {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	if !errors.Is(err, articleref.ErrDirectDownloadUnsupported) {
		writeError(w, r, h.logger, err)
		return
	}

	download, err := h.service.OpenReference(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer download.Body.Close()

	w.Header().Set("Content-Type", download.MimeType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": download.Filename}))
	if _, err := io.Copy(w, download.Body); err != nil {
		// Response already started; nothing left but to log.
		h.logger.Error("streaming download interrupted", "reference_id", id, "error", err)
	}
}

// UpdateReference changes attachment metadata.
func (h *ReferencesHandler) UpdateReference(w http.ResponseWriter, r *http.Request) {
	id, ok := h.referenceIDParam(w, r)
	if !ok {
		return
	}

	attachment, err := h.service.GetReference(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !h.authorize(w, r, attachment.ArticleID) {
		return
	}

	var req UpdateReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, articleref.NewValidationError("body", "invalid JSON body"))
		return
	}

	updated, err := h.service.UpdateReference(r.Context(), articleref.UpdateReferenceRequest{
		ID:               id,
		OriginalFilename: req.OriginalFilename,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.JSON(w, r, toReferenceResponse(updated))
}

// DeleteReference removes the attachment record and its stored object.
func (h *ReferencesHandler) DeleteReference(w http.ResponseWriter, r *http.Request) {
	id, ok := h.referenceIDParam(w, r)
	if !ok {
		return
	}

	attachment, err := h.service.GetReference(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !h.authorize(w, r, attachment.ArticleID) {
		return
	}

	if err := h.service.DeleteReference(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ReferencesHandler) articleIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "articleID")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, h.logger, articleref.NewValidationError("article_id", "invalid article id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *ReferencesHandler) referenceIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "referenceID")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, h.logger, articleref.NewValidationError("reference_id", "invalid reference id"))
		return uuid.Nil, false
	}
	return id, true
}

// authorize enforces the per-article management check on mutating and
// private-access routes. It writes the response on denial.
func (h *ReferencesHandler) authorize(w http.ResponseWriter, r *http.Request, articleID uuid.UUID) bool {
	if h.authorizer == nil {
		return true
	}

	principal := r.Header.Get(PrincipalHeader)
	allowed, err := h.authorizer.CanManage(r.Context(), principal, articleID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return false
	}
	if !allowed {
		writeError(w, r, h.logger, articleref.ErrNotAuthorized)
		return false
	}
	return true
}
