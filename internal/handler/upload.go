package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/invite-chat/internal/apperror"
	"github.com/sakif/invite-chat/internal/storage"
)

// UploadHandler accepts chat image attachments.
type UploadHandler struct {
	uploader storage.Uploader // nil when uploads are not configured
	maxBytes int64
	logger   *slog.Logger
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	URL string `json:"url"`
}

// NewUploadHandler creates an UploadHandler. A nil uploader makes every
// request answer 503.
func NewUploadHandler(uploader storage.Uploader, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploader: uploader, maxBytes: maxBytes, logger: logger}
}

// HandleUpload stores the multipart field "image" and returns its public URL.
// There is no session or chat-access check.
//
// HTTP: POST /upload
//
// RESPONSE FORMAT:
//
//	200 {"url": "https://cdn.example.com/uploads/2026/01/02/<uuid>.png"}
//	400 {"error": "validation_error", "message": "..."}
//	503 {"error": "unavailable", "message": "..."}
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "image uploads are not configured",
		})
		return
	}

	if r.ContentLength > h.maxBytes {
		writeTooLarge(w)
		return
	}

	// MaxBytesReader stops reading (and makes ParseMultipartForm fail) once
	// the body grows past the limit, instead of buffering it all first.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeTooLarge(w)
			return
		}
		writeError(w, apperror.ValidationFailed("image", "expected a multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, apperror.ValidationFailed("image", "missing image file"))
		return
	}
	defer file.Close()

	url, err := h.uploader.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		if status, _ := errorStatus(err); status >= http.StatusInternalServerError {
			h.logger.Error("upload failed",
				slog.String("filename", header.Filename),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, err)
		return
	}

	h.logger.Info("image uploaded", slog.String("url", url), slog.Int64("bytes", header.Size))
	writeJSON(w, http.StatusOK, UploadResponse{URL: url})
}

func writeTooLarge(w http.ResponseWriter) {
	writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
		Error:   "too_large",
		Message: "image exceeds the upload size limit",
	})
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers liveness probes.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a HealthHandler checking db.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// HandleHealth writes "ok", or 503 when the database does not answer.
//
// HTTP: GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable\n"))
			return
		}
	}
	w.Write([]byte("ok\n"))
}
