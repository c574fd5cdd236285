package handler

// RESPONSE HELPERS:
// Pages answer with redirects or short plain-text errors, the way a browser
// form flow expects. The one JSON endpoint (/upload) uses writeJSON and
// writeError so its errors always have the same shape:
//   {"error": "validation_error", "message": "file type \".exe\" is not allowed"}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/invite-chat/internal/apperror"
)

// ErrorResponse is the JSON error format.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable error type, e.g. "validation_error"
	Message string `json:"message"` // human-readable description
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be set before the body is written.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to an HTTP status and error type.
//
// errors.Is walks the whole chain, so a service error such as
// fmt.Errorf("service/access: ...: %w", apperror.InvalidInvite(code))
// still matches ErrInvalidInvite.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrInvalidInvite):
		return http.StatusBadRequest, "invalid_invite"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError sends err as a JSON ErrorResponse.
//
// Only client-facing errors (validation, invalid invite, forbidden) carry
// their own message. Everything else gets a generic one: the raw text might
// contain SQL, file paths or provider responses.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := errorStatus(err)

	message := "An internal error occurred"
	var appErr *apperror.AppError
	if status < http.StatusInternalServerError && errors.As(err, &appErr) {
		message = appErr.Message
	} else if status == http.StatusServiceUnavailable {
		message = "Service temporarily unavailable"
	}

	writeJSON(w, status, ErrorResponse{Error: errorType, Message: message})
}

// serverError logs err and answers a page request with a plain-text 500.
func serverError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	logger.Error(msg,
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
