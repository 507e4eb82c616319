package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"plex-thumbnails/internal/agecache"
	"plex-thumbnails/internal/filesystem"
	"plex-thumbnails/internal/logging"
	"plex-thumbnails/internal/metrics"
	"plex-thumbnails/internal/transcoder"
)

const (
	// BucketMs is the granularity of on-demand timestamps.
	BucketMs = 100

	// endMarginMs keeps seeks away from the very end of a file, where
	// ffmpeg often finds no frame.
	endMarginMs = 1000

	diskUsageTTL = 2 * time.Minute
)

// Bucket maps a requested timestamp to the cache bucket used for it:
// clamped to durationMs-1000 when the duration is known, floored at zero,
// and rounded down to a multiple of 100ms.
func Bucket(timestampMs, durationMs int64) int64 {
	ms := timestampMs
	if durationMs > 0 && ms > durationMs-endMarginMs {
		ms = durationMs - endMarginMs
	}
	if ms < 0 {
		ms = 0
	}
	return ms - ms%BucketMs
}

// mediaItem is the cached existence result for one library item. path is
// empty when no media file was found.
type mediaItem struct {
	path       string
	durationMs int64
}

// OnDemandSource extracts frames from the media files themselves with ffmpeg.
// Frames are cached in memory and as JPEG files under the cache directory.
type OnDemandSource struct {
	store     PartStore
	cacheDir  string
	extractor *transcoder.Extractor
	retry     filesystem.RetryConfig
	cache     *agecache.Cache[int64, int64, *mediaItem]
	probes    singleflight.Group
	frames    singleflight.Group

	diskMu      sync.Mutex
	diskBytes   atomic.Int64
	diskFiles   atomic.Int64
	diskUpdated atomic.Int64 // unix seconds, 0 when never computed
}

// NewOnDemandSource creates an on-demand source writing frames under cacheDir.
func NewOnDemandSource(store PartStore, cacheDir string, extractor *transcoder.Extractor, capacityHint int, retry filesystem.RetryConfig) *OnDemandSource {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		logging.Warn("OnDemandSource: failed to create cache dir %s: %v", cacheDir, err)
	}
	return &OnDemandSource{
		store:     store,
		cacheDir:  cacheDir,
		extractor: extractor,
		retry:     retry,
		cache:     agecache.New[int64, int64, *mediaItem](BackendOnDemand, capacityHint),
	}
}

// Name implements Source.
func (s *OnDemandSource) Name() string {
	return BackendOnDemand
}

// FramePath returns where the frame for (metadataID, bucket) is stored on disk.
func (s *OnDemandSource) FramePath(metadataID, bucket int64) string {
	return filepath.Join(s.cacheDir, itemKey(metadataID), strconv.FormatInt(bucket, 10)+".jpg")
}

// HasThumbnails implements Source.
func (s *OnDemandSource) HasThumbnails(ctx context.Context, metadataID int64) (bool, error) {
	item, err := s.item(ctx, metadataID)
	if err != nil {
		return false, err
	}
	return item.path != "", nil
}

// GetThumbnail implements Source. Lookups go memory, then disk, then ffmpeg.
// Concurrent misses for the same bucket share one extraction, which runs to
// completion or timeout even if the caller that started it goes away.
func (s *OnDemandSource) GetThumbnail(ctx context.Context, metadataID, timestampMs int64) (data []byte, err error) {
	start := time.Now()
	defer func() { observe(BackendOnDemand, start, err) }()

	item, err := s.item(ctx, metadataID)
	if err != nil {
		return nil, err
	}
	if item.path == "" {
		return nil, fmt.Errorf("%w: item %d has no media file", ErrNotAvailable, metadataID)
	}

	bucket := Bucket(timestampMs, item.durationMs)
	if cached, ok := s.cache.TryGet(metadataID, bucket); ok {
		return cached, nil
	}

	key := itemKey(metadataID) + "/" + strconv.FormatInt(bucket, 10)
	v, shared, err := sharedDo(ctx, &s.frames, key, func(ctx context.Context) (interface{}, error) {
		return s.load(ctx, metadataID, bucket, item)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.Debug("Shared frame load for item %d at %dms", metadataID, bucket)
	}
	return v.([]byte), nil
}

// load fills the memory cache from disk, extracting the frame first if needed.
func (s *OnDemandSource) load(ctx context.Context, metadataID, bucket int64, item *mediaItem) ([]byte, error) {
	path := s.FramePath(metadataID, bucket)

	if data, err := filesystem.ReadFileWithRetry(path, s.retry); err == nil && len(data) > 0 {
		metrics.ThumbnailDiskCacheHits.Inc()
		s.cache.Put(metadataID, bucket, data)
		return data, nil
	}

	if err := s.extractor.ExtractFrame(ctx, item.path, bucket, path); err != nil {
		return nil, fmt.Errorf("item %d at %dms: %w", metadataID, bucket, err)
	}

	data, err := filesystem.ReadFileWithRetry(path, s.retry)
	if err != nil {
		return nil, fmt.Errorf("read extracted frame: %w", err)
	}

	s.cache.Put(metadataID, bucket, data)
	logging.Debug("Extracted frame for item %d at %dms (%d bytes)", metadataID, bucket, len(data))
	return data, nil
}

// item returns the cached existence result, probing once on first use.
func (s *OnDemandSource) item(ctx context.Context, metadataID int64) (*mediaItem, error) {
	if item, ok := s.cache.Get(metadataID); ok {
		return item, nil
	}

	v, _, err := sharedDo(ctx, &s.probes, itemKey(metadataID), func(ctx context.Context) (interface{}, error) {
		if item, ok := s.cache.Get(metadataID); ok {
			return item, nil
		}

		item, err := s.locate(ctx, metadataID)
		if err != nil {
			metrics.ThumbnailSourceChecks.WithLabelValues(BackendOnDemand, "error").Inc()
			return nil, err
		}
		if item.path == "" {
			metrics.ThumbnailSourceChecks.WithLabelValues(BackendOnDemand, "missing").Inc()
			logging.Debug("No media file for item %d", metadataID)
		} else {
			metrics.ThumbnailSourceChecks.WithLabelValues(BackendOnDemand, "found").Inc()
		}
		return s.cache.Add(metadataID, item), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mediaItem), nil
}

// locate picks the first existing part, longest duration first.
func (s *OnDemandSource) locate(ctx context.Context, metadataID int64) (*mediaItem, error) {
	parts, err := s.store.PartFiles(ctx, metadataID)
	if err != nil {
		return nil, fmt.Errorf("look up parts of item %d: %w", metadataID, err)
	}

	for _, part := range parts {
		info, err := filesystem.StatWithRetry(part.File, s.retry)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logging.Warn("Cannot stat media file %s: %v", part.File, err)
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		return &mediaItem{path: part.File, durationMs: part.DurationMs}, nil
	}
	return &mediaItem{}, nil
}

// Invalidate implements Source. Frames already on disk are kept.
func (s *OnDemandSource) Invalidate(metadataID int64) bool {
	return s.cache.Invalidate(metadataID)
}

// Close implements Source. Running extractions are killed; a full shutdown
// also deletes the cache directory. Removal failures are only logged.
func (s *OnDemandSource) Close(fullShutdown bool) {
	s.extractor.Cleanup()
	s.cache.Clear()

	if !fullShutdown {
		return
	}
	if err := os.RemoveAll(s.cacheDir); err != nil {
		logging.Warn("Failed to remove thumbnail cache %s: %v", s.cacheDir, err)
		return
	}
	s.diskUpdated.Store(0)
	logging.Info("Removed thumbnail cache %s", s.cacheDir)
}

// Stats implements Source.
func (s *OnDemandSource) Stats() SourceStats {
	cs := s.cache.Stats()
	stats := SourceStats{Items: cs.Items, Thumbnails: cs.Thumbnails, Bytes: cs.Bytes}

	size, count, err := s.DiskUsage()
	if err != nil {
		logging.Debug("Thumbnail disk usage: %v", err)
	}
	stats.DiskCacheBytes = size
	stats.DiskCacheFiles = count
	return stats
}

// DiskUsage returns the size and file count of the frame cache. Results are
// reused for two minutes; on a walk error the last known values are returned.
func (s *OnDemandSource) DiskUsage() (int64, int, error) {
	if s.diskFresh() {
		return s.diskBytes.Load(), int(s.diskFiles.Load()), nil
	}

	s.diskMu.Lock()
	defer s.diskMu.Unlock()

	if s.diskFresh() {
		return s.diskBytes.Load(), int(s.diskFiles.Load()), nil
	}

	var size, count int64
	err := filepath.WalkDir(s.cacheDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size += info.Size()
		count++
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return s.diskBytes.Load(), int(s.diskFiles.Load()), fmt.Errorf("walk %s: %w", s.cacheDir, err)
	}

	s.diskBytes.Store(size)
	s.diskFiles.Store(count)
	s.diskUpdated.Store(time.Now().Unix())
	metrics.ThumbnailDiskCacheSize.Set(float64(size))
	metrics.ThumbnailDiskCacheCount.Set(float64(count))
	return size, int(count), nil
}

func (s *OnDemandSource) diskFresh() bool {
	updated := s.diskUpdated.Load()
	return updated != 0 && time.Since(time.Unix(updated, 0)) < diskUsageTTL
}
