package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"plex-thumbnails/internal/logging"
)

// ResponseWriter wrapper to capture status code and bytes written
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingConfig holds configuration for the access log middleware
type LoggingConfig struct {
	ServiceName     string
	SkipPaths       []string
	LogHealthChecks bool
}

// DefaultLoggingConfig returns the access log settings used by serve
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		ServiceName:     "plex-thumbnails",
		SkipPaths:       []string{"/metrics"},
		LogHealthChecks: true,
	}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// Logger returns middleware writing one structured access log entry per
// request. Server errors are logged at warn level.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			logRequest(config.ServiceName, r, wrapped, time.Since(start))
		})
	}
}

func logRequest(service string, r *http.Request, rw *responseWriter, duration time.Duration) {
	fields := []interface{}{
		"service", service,
		"client_ip", getClientIP(r),
		"method", r.Method,
		"path", r.URL.Path,
		"status", rw.statusCode,
		"bytes", rw.bytesWritten,
		"duration_ms", duration.Milliseconds(),
	}
	if q := r.URL.RawQuery; q != "" {
		fields = append(fields, "query", q)
	}
	if ct := rw.Header().Get("Content-Type"); ct != "" {
		fields = append(fields, "content_type", ct)
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		fields = append(fields, "user_agent", ua)
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		fields = append(fields, "referer", ref)
	}

	if rw.statusCode >= http.StatusInternalServerError {
		logging.Warnw("request failed", fields...)
		return
	}
	logging.Infow("request", fields...)
}

func shouldSkip(path string, config LoggingConfig) bool {
	for _, skipPath := range config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return !config.LogHealthChecks && healthCheckPaths[path]
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
