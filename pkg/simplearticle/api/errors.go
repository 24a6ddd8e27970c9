package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-article/pkg/simplearticle"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

// statusFor maps service errors onto HTTP status codes and stable codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, simplearticle.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, simplearticle.ErrReservedPath):
		return http.StatusUnprocessableEntity, "reserved_path"
	case errors.Is(err, simplearticle.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, simplearticle.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, simplearticle.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var conflict *simplearticle.ConflictError
	if errors.As(err, &conflict) {
		resp.Retryable = conflict.Retryable()
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		resp.Error = http.StatusText(status)
	} else {
		logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: message, Code: "bad_request"})
}
