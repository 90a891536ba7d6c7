package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/article-assets/pkg/articleref"
)

// ErrorResponse is the JSON body for all non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps service errors onto HTTP status codes. Validation
// failures carry the offending field; everything unexpected is logged
// and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *articleref.ValidationError
	if errors.As(err, &verr) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: verr.Reason, Field: verr.Field})
		return
	}

	switch {
	case errors.Is(err, articleref.ErrAttachmentNotFound),
		errors.Is(err, articleref.ErrObjectNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{Error: "not found"})
	case errors.Is(err, articleref.ErrNotAuthorized):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, ErrorResponse{Error: "not authorized"})
	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "internal error"})
	}
}
