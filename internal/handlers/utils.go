package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"plex-thumbnails/internal/bif"
	"plex-thumbnails/internal/logging"
	"plex-thumbnails/internal/thumbnails"
	"plex-thumbnails/internal/transcoder"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, statusCode int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"status": status})
}

// statusClientClosedRequest is recorded when the client went away before the
// thumbnail was ready. Nothing is sent.
const statusClientClosedRequest = 499

// errorStatus maps a thumbnail error to an HTTP status code.
func errorStatus(err error) int {
	var xerr *transcoder.ExtractError
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, thumbnails.ErrNotAvailable):
		return http.StatusNotFound
	case errors.Is(err, bif.ErrCorruptIndex):
		return http.StatusUnprocessableEntity
	case errors.As(err, &xerr):
		if xerr.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
