// Package memory sets the Go runtime memory limit from the container limit.
//
// The thumbnail caches hold JPEG bytes in memory, so a soft limit keeps the
// garbage collector ahead of the container OOM killer. The limit comes from
// the memory_limit setting (usually fed from the Kubernetes Downward API as
// PLEX_THUMBS_MEMORY_LIMIT) scaled by memory_ratio. An explicit GOMEMLIMIT
// environment variable takes precedence.
package memory
