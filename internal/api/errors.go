package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/gray-logic-auth/internal/auth"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/logging"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeUnavailable    = "service_unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// serviceErrors maps auth sentinels onto responses, checked in order.
var serviceErrors = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials"},
	{auth.ErrAccountInactive, http.StatusUnauthorized, ErrCodeUnauthorized, "account is deactivated"},
	{auth.ErrUnauthenticated, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required"},
	{auth.ErrForbidden, http.StatusForbidden, ErrCodeForbidden, "insufficient permissions"},
	{auth.ErrAccountNotFound, http.StatusNotFound, ErrCodeNotFound, "account not found"},
	{auth.ErrEmailExists, http.StatusConflict, ErrCodeConflict, "email already registered"},
}

// writeServiceError maps an error from the auth package onto a response.
// Validation failures keep their message; unknown errors are logged and
// reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, logger *logging.Logger, err error) {
	var verr *auth.ValidationError
	if errors.As(err, &verr) || errors.Is(err, auth.ErrCurrentPasswordMismatch) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, m.message)
			return
		}
	}
	logger.Error("request failed", "error", err)
	writeInternalError(w, "internal server error")
}

// readJSON decodes the request body into v, writing a 400 and returning
// false when it cannot.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		writeBadRequest(w, "request body is required")
	case errors.As(err, &tooLarge):
		writeBadRequest(w, "request body too large")
	default:
		writeBadRequest(w, "invalid JSON body")
	}
	return false
}
