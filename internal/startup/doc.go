// Package startup handles configuration loading and the startup and shutdown
// log output of the thumbnail server.
//
// # Configuration
//
// Configuration is resolved by viper from, in increasing priority, built-in
// defaults, an optional config.yaml (searched in $PLEX_THUMBS_CONFIG_DIR and
// the working directory), PLEX_THUMBS_* environment variables and command
// line flags bound by the caller. [NewViper] registers the keys:
//
//   - data_dir: Plex Media Server data directory (default: /config/Library/Application Support/Plex Media Server)
//   - database_path: Plex library database (default: derived from data_dir)
//   - cache_dir: Writable cache root; frames go under <cache_dir>/Thumbnails (default: ./cache)
//   - precise_thumbnails: Extract frames with ffmpeg instead of reading BIF indexes (default: false)
//   - ffmpeg_path: ffmpeg binary (default: ffmpeg)
//   - ffmpeg_timeout: Per-extraction timeout as Go duration (default: 10s)
//   - thumbnail_width: Width of extracted frames in pixels (default: 240)
//   - cache_capacity: Capacity hint of the in-memory aging cache (default: 100)
//   - port, metrics_port: HTTP listen ports (default: 8080, 9090)
//   - metrics_enabled, log_health_checks: (default: true)
//
// LOG_LEVEL, LOG_FORMAT and DEBUG are read by the logging package directly.
//
// # Backend Selection
//
// [SelectPrecise] decides whether the on-demand backend can serve. Precise
// mode needs a writable thumbnail cache and a working ffmpeg; otherwise the
// server falls back to index-backed thumbnails and says so in the log.
//
// # Example Usage
//
//	v := startup.NewViper()
//	config, err := startup.LoadConfig(v)
//	if err != nil {
//	    return fmt.Errorf("configuration error: %w", err)
//	}
//
//	precise := startup.SelectPrecise(ctx, config, thumbnails.CanUseFFmpeg)
package startup
