/*
Package filesystem provides filesystem reads with automatic retry logic for
NFS stale file handle errors.

Plex data directories are commonly mounted over NFS. When the server replaces
a preview index while a file handle is cached, reads fail with ESTALE even
though the file is present. [StatWithRetry] and [ReadFileWithRetry] retry
only that error, with exponential backoff (50ms, 100ms, 200ms by default);
every other error is returned immediately.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Retry metrics are labeled by volume. Call [SetDefaultVolumeResolver] at
startup so paths under the Plex data directory and the cache directory are
reported as "plex" and "cache".
*/
package filesystem
