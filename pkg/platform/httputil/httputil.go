// Package httputil writes JSON responses and maps errors to HTTP status codes.
package httputil

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"auditd/pkg/platform/audit"
	"auditd/pkg/platform/sentinel"
)

// ErrorResponse is the body of every error response. Description is omitted
// for server errors so internals do not leak.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// BadRequest wraps msg so WriteError answers 400 with msg as the description.
func BadRequest(msg string) error {
	return &badRequest{msg: msg}
}

type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto a status code and writes an ErrorResponse.
func WriteError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	body := ErrorResponse{Error: code}
	if status < http.StatusInternalServerError {
		body.Description = err.Error()
	}
	WriteJSON(w, status, body)
}

func classify(err error) (int, string) {
	var br *badRequest
	var ve *audit.ValidationError
	switch {
	case errors.As(err, &br), errors.As(err, &ve):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, sentinel.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, sentinel.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, sentinel.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}
