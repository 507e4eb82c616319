package thumbnails

import (
	"context"
	"strconv"
	"time"

	"plex-thumbnails/internal/database"
	"plex-thumbnails/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// Backend names. They double as metric labels.
const (
	BackendIndex    = "index"
	BackendOnDemand = "ondemand"
)

// Source produces thumbnails for library items.
type Source interface {
	// Name returns the backend name.
	Name() string

	// HasThumbnails reports whether the item has a thumbnail source. The
	// answer is computed once per item and then served from memory.
	HasThumbnails(ctx context.Context, metadataID int64) (bool, error)

	// GetThumbnail returns the JPEG closest to timestampMs. It fails with
	// ErrNotAvailable when the item has no source.
	GetThumbnail(ctx context.Context, metadataID, timestampMs int64) ([]byte, error)

	// Invalidate forgets everything cached for the item.
	Invalidate(metadataID int64) bool

	// Close releases resources. A full shutdown also discards on-disk state.
	Close(fullShutdown bool)

	// Stats reports cache occupancy.
	Stats() SourceStats
}

// PartStore looks up the media parts behind a library item.
// *database.Database satisfies it.
type PartStore interface {
	PartHashes(ctx context.Context, metadataID int64) ([]string, error)
	PartFiles(ctx context.Context, metadataID int64) ([]database.MediaPart, error)
}

// SourceStats is a snapshot of a source's caches.
type SourceStats struct {
	Items          int
	Thumbnails     int
	Bytes          int64
	DiskCacheBytes int64
	DiskCacheFiles int
}

// observe records the outcome of one GetThumbnail call.
func observe(backend string, start time.Time, err error) {
	metrics.ThumbnailRequestsTotal.WithLabelValues(backend, status(err)).Inc()
	metrics.ThumbnailRequestDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}

// sharedDo runs fn once per key across concurrent callers. fn gets a context
// that keeps ctx's values but not its cancellation, so one caller going away
// never fails the work for the others. A caller whose ctx ends stops waiting
// and gets ctx.Err().
func sharedDo(ctx context.Context, group *singleflight.Group, key string, fn func(context.Context) (interface{}, error)) (interface{}, bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := group.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})

	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func itemKey(metadataID int64) string {
	return strconv.FormatInt(metadataID, 10)
}
