// Package main provides the plex-thumbnails command.
//
// plex-thumbnails serves the seek-bar preview images of a Plex Media Server
// library. Frames come from one of two backends, chosen at startup:
//
//   - index: the BIF preview indexes Plex writes under
//     <data_dir>/Media/localhost/<h>/<hash>.bundle/Contents/Indexes
//   - ondemand: frames extracted with ffmpeg from the media file itself,
//     rounded down to 100ms and kept under <cache_dir>/Thumbnails
//
// Both backends keep recently used frames in an in-memory aging cache.
//
// # Commands
//
//	plex-thumbnails serve                 run the HTTP server
//	plex-thumbnails fetch <id> <ms> [-o]  write one thumbnail
//	plex-thumbnails probe <id>...         report which items have thumbnails
//
// # HTTP Server
//
// The main server (default port 8080) exposes:
//
//   - GET  /api/thumbnail/{id}: whether the item has thumbnails
//   - GET  /api/thumbnail/{id}/{ms}: the JPEG closest to ms
//   - POST /api/thumbnail/{id}/invalidate: forget cached state for the item
//   - /health, /healthz, /livez, /readyz and /version
//
// The metrics server (default port 9090, optional) serves /metrics and /health.
//
// # Configuration
//
// Every setting can be given as a flag, a PLEX_THUMBS_* environment variable
// or a key in config.yaml. See [plex-thumbnails/internal/startup] for the
// full list.
//
// # Graceful Shutdown
//
// On SIGINT or SIGTERM the servers stop accepting requests, the metrics
// collector stops, the thumbnail manager is closed (removing the frame cache
// directory in on-demand mode) and the database is closed.
package main
