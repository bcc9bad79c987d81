package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/librarium-core/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeForbidden          = "forbidden"
	ErrCodeConflict           = "conflict"
	ErrCodeInternal           = "internal_error"
	ErrCodeValidation         = "validation_error"
	ErrCodeStoreUnavailable   = "store_unavailable"
	ErrCodeUnavailable        = "service_unavailable"
)

// reauthenticateMessage is the single message for every token failure.
// Expired, tampered, malformed and orphaned tokens look the same to clients.
const reauthenticateMessage = "authentication required: please log in again"

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

// writeValidationError writes a 422 error response.
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="librarium"`)
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

// writeUnavailable writes a 503 error response for an optional backend
// that is switched off.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// writeAuthError maps an auth failure kind to its HTTP response.
//
// Token and account problems collapse into one 401 so clients only learn
// that they must log in again. Store outages are 503 and never look like
// a missing account.
func writeAuthError(w http.ResponseWriter, err error) {
	switch kind := auth.KindOf(err); {
	case kind == auth.KindInvalidCredentials:
		w.Header().Set("WWW-Authenticate", `Bearer realm="librarium"`)
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid username or password")
	case kind == auth.KindForbidden:
		writeForbidden(w, "insufficient role for this operation")
	case kind == auth.KindStoreUnavailable:
		writeError(w, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "account store unavailable, retry later")
	case kind.IsTokenFailure():
		writeUnauthorized(w, reauthenticateMessage)
	default:
		writeInternalError(w, "internal server error")
	}
}
