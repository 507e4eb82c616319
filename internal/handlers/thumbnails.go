package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"plex-thumbnails/internal/logging"
)

// HasThumbnailsResponse is returned by HasThumbnails.
type HasThumbnailsResponse struct {
	ID            int64  `json:"id"`
	HasThumbnails bool   `json:"hasThumbnails"`
	Backend       string `json:"backend"`
}

// HasThumbnails reports whether a library item has preview thumbnails.
func (h *Handlers) HasThumbnails(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	has, err := h.thumbs.HasThumbnails(r.Context(), id)
	if err != nil {
		if errorStatus(err) == statusClientClosedRequest {
			logging.Debug("Thumbnail check for item %d abandoned by client: %v", id, err)
			w.WriteHeader(statusClientClosedRequest)
			return
		}
		logging.Error("Thumbnail check failed for item %d: %v", id, err)
		writeJSONError(w, "Failed to check thumbnails", errorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, HasThumbnailsResponse{ID: id, HasThumbnails: has, Backend: h.thumbs.Backend()})
}

// GetThumbnail serves the JPEG for an item at a timestamp in milliseconds.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	timestampMs, err := strconv.ParseInt(mux.Vars(r)["timestamp"], 10, 64)
	if err != nil {
		writeJSONError(w, "Invalid timestamp", http.StatusBadRequest)
		return
	}

	data, err := h.thumbs.GetThumbnail(r.Context(), id, timestampMs)
	if err != nil {
		status := errorStatus(err)
		switch status {
		case statusClientClosedRequest:
			logging.Debug("Thumbnail: item %d at %dms abandoned by client: %v", id, timestampMs, err)
			w.WriteHeader(status)
			return
		case http.StatusNotFound:
			logging.Debug("Thumbnail: item %d has none: %v", id, err)
		default:
			logging.Error("Thumbnail: item %d at %dms failed: %v", id, timestampMs, err)
		}
		writeJSONError(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := w.Write(data); err != nil {
		logging.Debug("Thumbnail: write failed for item %d: %v", id, err)
	}
}

// InvalidateThumbnails forgets everything cached for an item, so the next
// request looks for its thumbnail source again.
func (h *Handlers) InvalidateThumbnails(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	removed := h.thumbs.Invalidate(id)
	logging.Info("Invalidated thumbnails for item %d (cached: %v)", id, removed)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{"id": id, "invalidated": removed})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "Invalid item id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
