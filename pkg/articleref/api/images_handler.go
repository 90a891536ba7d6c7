package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/article-assets/pkg/articleref"
)

const multipartFieldImage = "image"

// ImagesHandler handles article image uploads. Images always land in the
// public tier and are addressed by filename rather than attachment id.
type ImagesHandler struct {
	service articleref.Service
	logger  *slog.Logger
}

func NewImagesHandler(service articleref.Service, logger *slog.Logger) *ImagesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImagesHandler{service: service, logger: logger}
}

// Routes returns the router for image endpoints.
func (h *ImagesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.UploadImage)
	return r
}

// ImageResponse names the stored image and where it is served from.
type ImageResponse struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// UploadImage stores a new article image. The optional form value
// "existing_filename" names a predecessor to replace.
func (h *ImagesHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile(multipartFieldImage)
	if err != nil {
		writeError(w, r, h.logger, articleref.NewValidationError(multipartFieldImage, "missing multipart file field"))
		return
	}
	defer file.Close()

	filename, err := h.service.UploadArticleImage(r.Context(), articleref.UploadImageRequest{
		Reader:           file,
		Size:             header.Size,
		OriginalFilename: header.Filename,
		MimeType:         header.Header.Get("Content-Type"),
		ExistingFilename: r.FormValue("existing_filename"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	key := string(articleref.CategoryArticleImage) + "/" + filename
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, ImageResponse{
		Filename: filename,
		URL:      h.service.PublicURL(key),
	})
}
