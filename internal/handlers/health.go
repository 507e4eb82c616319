package handlers

import (
	"net/http"
	"runtime"
	"time"

	"plex-thumbnails/internal/database"
	"plex-thumbnails/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// poolStats is implemented by library connections that expose their pool.
type poolStats interface {
	GetStats() database.Stats
}

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Backend  string `json:"backend"`
	Database string `json:"database,omitempty"`

	DatabasePool *database.Stats `json:"databasePool,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.Load()

	response := HealthResponse{
		Ready:        ready,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Backend:      h.thumbs.Backend(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if ready {
		response.Status = statusHealthy
	} else {
		response.Status = statusStarting
	}

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			response.Database = err.Error()
			response.Status = statusDegraded
		} else {
			response.Database = "ok"
		}
		if pool, ok := h.db.(poolStats); ok {
			stats := pool.GetStats()
			response.DatabasePool = &stats
		}
	}

	w.Header().Set("Content-Type", "application/json")

	// Return 503 only if not ready at all
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the service is ready and the library
// database answers.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeJSONStatus(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			writeJSONStatus(w, http.StatusServiceUnavailable, "database_unavailable")
			return
		}
	}
	writeJSONStatus(w, http.StatusOK, "ready")
}
