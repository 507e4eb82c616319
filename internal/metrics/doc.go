// Package metrics provides Prometheus instrumentation for the thumbnail service.
//
// All metrics are prefixed with "plex_thumbnails_" and registered with the
// default registry through promauto, so importing the package is enough to
// expose them on the /metrics endpoint.
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//
// ## Database Metrics
//
// Queries against the read-only Plex library database:
//   - DBQueryTotal: by operation and status
//   - DBQueryDuration: by operation
//   - DBConnectionsOpen
//
// ## Thumbnail Metrics
//   - ThumbnailRequestsTotal: fetches by backend ("index"/"ondemand") and status
//   - ThumbnailRequestDuration: fetch latency by backend
//   - ThumbnailSourceChecks: existence probes by backend and result
//   - ThumbnailDiskCacheHits, ThumbnailDiskCacheSize, ThumbnailDiskCacheCount
//
// ## Aging Cache Metrics
//
// Labeled by cache name, which is the backend name:
//   - AgingCacheItems, AgingCacheThumbnails, AgingCacheBytes
//   - AgingCacheLookups: by result (hit/miss)
//   - AgingCacheSweeps, AgingCacheEvictions
//
// ## Frame Extraction Metrics
//   - ExtractionsTotal: ffmpeg runs by status (success/error/timeout)
//   - ExtractionDuration, ExtractionsInProgress
//
// ## Filesystem Metrics
//
// NFS stale-handle retries, by operation and volume:
//   - FilesystemRetryAttempts, FilesystemRetrySuccess, FilesystemRetryFailures
//   - FilesystemStaleErrors, FilesystemRetryDuration
//
// # Collector
//
// [Collector] polls a [StatsProvider] (the thumbnail manager) on an interval
// and copies cache occupancy into the gauges above.
package metrics
