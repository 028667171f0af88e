// Package api provides HTTP handlers and routing for the farm-health service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	RequestID   string `json:"request_id,omitempty"`
}

// Transport-level error codes. Session errors carry the codes from
// session.Describe.
const (
	ErrCodeBadRequest       = "BadRequest"
	ErrCodeNotFound         = "NotFound"
	ErrCodeMethodNotAllowed = "MethodNotAllowed"
	ErrCodeConflict         = "Conflict"
	ErrCodeRateLimited      = "RateLimited"
	ErrCodeServerError      = "ServerError"
	ErrCodeUnavailable      = "ServiceUnavailable"
)

// WriteJSON writes a JSON response with the given status code and value.
// If encoding fails, it logs the error and returns it.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response",
			slog.String("error", err.Error()),
		)
		return err
	}

	return nil
}

// WriteGeoJSON writes a GeoJSON response with the given status code and value.
// GeoJSON responses use the application/geo+json media type.
func WriteGeoJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode GeoJSON response",
			slog.String("error", err.Error()),
		)
		return err
	}

	return nil
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeErrorResponse(w, status, ErrorResponse{Code: code, Description: message})
}

// WriteErrorWithRequestID writes an error response that echoes the request ID.
func WriteErrorWithRequestID(w http.ResponseWriter, status int, code, message, requestID string) {
	writeErrorResponse(w, status, ErrorResponse{Code: code, Description: message, RequestID: requestID})
}

func writeErrorResponse(w http.ResponseWriter, status int, errResp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		slog.Error("failed to encode error response",
			slog.String("error", err.Error()),
		)
	}
}

// WriteBadRequest writes a 400 Bad Request error response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// WriteNotFound writes a 404 Not Found error response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteInternalErrorWithRequestID writes a 500 Internal Server Error response.
func WriteInternalErrorWithRequestID(w http.ResponseWriter, message, requestID string) {
	WriteErrorWithRequestID(w, http.StatusInternalServerError, ErrCodeServerError, message, requestID)
}
