package handlers

import (
	"net/http"

	"plex-thumbnails/internal/startup"
)

// VersionResponse is the build information plus the active thumbnail backend.
type VersionResponse struct {
	startup.BuildInfo
	Backend string `json:"backend"`
}

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, VersionResponse{BuildInfo: startup.GetBuildInfo(), Backend: h.thumbs.Backend()})
}
