/*
Package workers sizes worker pools in containerized environments.

Go sets GOMAXPROCS from the container CPU limit, while runtime.NumCPU still
reports the host. A pod limited to 2 cores on a 64-core node should run 2
ffmpeg processes, not 64:

	limit := workers.ForCPU(4, config.FFmpegWorkers)

An explicit override (for example from PLEX_THUMBS_FFMPEG_WORKERS) replaces
the CPU-derived value but is still capped by the limit.
*/
package workers
