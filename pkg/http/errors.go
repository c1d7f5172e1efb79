package http

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the envelope for all JSON error responses. Errors carries
// the human-readable messages the frontend shows under the relevant form.
type ErrorResponse struct {
	Errors []string `json:"errors"`
}

// WriteErrors writes a JSON error response with the given status code.
func WriteErrors(w http.ResponseWriter, statusCode int, messages ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Errors: messages})
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrors(w, http.StatusBadRequest, message)
}

func WriteForbidden(w http.ResponseWriter) {
	w.WriteHeader(http.StatusForbidden)
}

func WriteLocked(w http.ResponseWriter) {
	w.WriteHeader(http.StatusLocked)
}

func WriteInternalError(w http.ResponseWriter) {
	WriteErrors(w, http.StatusInternalServerError, "internal server error")
}

// WriteJSON writes an arbitrary JSON payload with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteAccepted writes the uniform 202 response used by the endpoints that
// must not leak account existence.
func WriteAccepted(w http.ResponseWriter) {
	w.WriteHeader(http.StatusAccepted)
}
