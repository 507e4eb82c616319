package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	backends := []string{"index", "ondemand"}

	for _, b := range backends {
		for _, status := range []string{"success", "not_available", "corrupt", "ffmpeg_error", "canceled", "error"} {
			ThumbnailRequestsTotal.WithLabelValues(b, status)
		}
		ThumbnailRequestDuration.WithLabelValues(b)

		for _, result := range []string{"found", "missing", "error"} {
			ThumbnailSourceChecks.WithLabelValues(b, result)
		}

		AgingCacheItems.WithLabelValues(b)
		AgingCacheThumbnails.WithLabelValues(b)
		AgingCacheBytes.WithLabelValues(b)
		AgingCacheLookups.WithLabelValues(b, "hit")
		AgingCacheLookups.WithLabelValues(b, "miss")
		AgingCacheSweeps.WithLabelValues(b)
		AgingCacheEvictions.WithLabelValues(b)
	}

	for _, status := range []string{"success", "error", "timeout"} {
		ExtractionsTotal.WithLabelValues(status)
	}

	volumes := []string{"plex", "cache", "unknown"}
	for _, op := range []string{"stat", "read"} {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, op := range []string{"part_hashes", "part_files", "ping"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
