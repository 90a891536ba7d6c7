package api

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/article-assets/pkg/articleref"
	"github.com/tendant/article-assets/pkg/articleref/presigned"
)

// SignedFilesHandler serves private filesystem objects behind
// HMAC-signed URLs. It validates the signature envelope and streams the
// object from the backing store.
type SignedFilesHandler struct {
	store  articleref.BlobStore
	signer *presigned.Signer
	logger *slog.Logger
}

func NewSignedFilesHandler(store articleref.BlobStore, signer *presigned.Signer, logger *slog.Logger) *SignedFilesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignedFilesHandler{
		store:  store,
		signer: signer,
		logger: logger,
	}
}

// Routes returns the router for signed file serving. Mount it at the
// same prefix the filesystem backend is configured with.
func (h *SignedFilesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/*", h.ServeObject)
	return r
}

// ServeObject validates the signature and streams the object.
func (h *SignedFilesHandler) ServeObject(w http.ResponseWriter, r *http.Request) {
	objectKey := chi.URLParam(r, "*")
	if objectKey == "" {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{Error: "not found"})
		return
	}

	// Signatures cover the key path relative to the mount prefix, so
	// validation runs against a request rebuilt on that path.
	signed := r.Clone(r.Context())
	signed.URL = &url.URL{Path: "/" + objectKey, RawQuery: r.URL.RawQuery}
	if err := h.signer.ValidateRequest(signed); err != nil {
		h.logger.Warn("rejected signed download", "object_key", objectKey, "error", err)
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
		return
	}

	body, err := h.store.Download(r.Context(), objectKey)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer body.Close()

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = path.Base(objectKey)
	}

	contentType := "application/octet-stream"
	if meta, err := h.store.GetObjectMeta(r.Context(), objectKey); err == nil && meta.ContentType != "" {
		contentType = meta.ContentType
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Error("streaming signed download interrupted", "object_key", objectKey, "error", err)
	}
}
