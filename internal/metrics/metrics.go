package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plex_thumbnails_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plex_thumbnails_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_db_queries_total",
			Help: "Total number of Plex database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plex_thumbnails_db_query_duration_seconds",
			Help:    "Plex database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plex_thumbnails_db_connections_open",
			Help: "Number of open Plex database connections",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_thumbnail_requests_total",
			Help: "Total number of thumbnail fetches by backend and outcome",
		},
		[]string{"backend", "status"},
	)

	ThumbnailRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plex_thumbnails_thumbnail_request_duration_seconds",
			Help:    "Thumbnail fetch duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend"},
	)

	ThumbnailSourceChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_source_checks_total",
			Help: "Total number of thumbnail source probes by backend and result",
		},
		[]string{"backend", "result"},
	)

	ThumbnailDiskCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_disk_cache_hits_total",
			Help: "Total number of generated frames served from the on-disk cache",
		},
	)

	ThumbnailDiskCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plex_thumbnails_disk_cache_size_bytes",
			Help: "Total size of the on-disk frame cache in bytes",
		},
	)

	ThumbnailDiskCacheCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plex_thumbnails_disk_cache_count",
			Help: "Number of frames in the on-disk cache",
		},
	)
)

// Aging cache metrics
var (
	AgingCacheItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plex_thumbnails_aging_cache_items",
			Help: "Number of media items tracked by the aging cache",
		},
		[]string{"cache"},
	)

	AgingCacheThumbnails = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plex_thumbnails_aging_cache_thumbnails",
			Help: "Number of thumbnails held in memory by the aging cache",
		},
		[]string{"cache"},
	)

	AgingCacheBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plex_thumbnails_aging_cache_bytes",
			Help: "Bytes of thumbnail data held in memory by the aging cache",
		},
		[]string{"cache"},
	)

	AgingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_aging_cache_lookups_total",
			Help: "Total number of aging cache lookups by result (hit/miss)",
		},
		[]string{"cache", "result"},
	)

	AgingCacheSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_aging_cache_sweeps_total",
			Help: "Total number of rank decay sweeps",
		},
		[]string{"cache"},
	)

	AgingCacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_aging_cache_evictions_total",
			Help: "Total number of thumbnails evicted by sweeps",
		},
		[]string{"cache"},
	)
)

// Frame extraction metrics
var (
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_ffmpeg_extractions_total",
			Help: "Total number of ffmpeg frame extractions by status",
		},
		[]string{"status"}, // "success", "error", "timeout"
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plex_thumbnails_ffmpeg_extraction_duration_seconds",
			Help:    "ffmpeg frame extraction duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	ExtractionsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plex_thumbnails_ffmpeg_extractions_in_progress",
			Help: "Number of ffmpeg frame extractions currently running",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_filesystem_retry_attempts_total",
			Help: "Total number of filesystem operation retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_thumbnails_filesystem_stale_errors_total",
			Help: "Total number of NFS stale file handle errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plex_thumbnails_filesystem_retry_duration_seconds",
			Help:    "Duration of filesystem operations including retries",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plex_thumbnails_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version", "backend"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion, backend string) {
	AppInfo.WithLabelValues(version, commit, goVersion, backend).Set(1)
}
