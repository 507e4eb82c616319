package thumbnails

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"plex-thumbnails/internal/agecache"
	"plex-thumbnails/internal/bif"
	"plex-thumbnails/internal/filesystem"
	"plex-thumbnails/internal/logging"
	"plex-thumbnails/internal/metrics"
)

const indexFileName = "index-sd.bif"

// IndexPath returns where Plex keeps the preview index for a media part hash:
// <dataDir>/Media/localhost/<h[0]>/<h[1:]>.bundle/Contents/Indexes/index-sd.bif
func IndexPath(dataDir, hash string) string {
	return filepath.Join(dataDir, "Media", "localhost", hash[:1], hash[1:]+".bundle",
		"Contents", "Indexes", indexFileName)
}

// indexItem is the cached existence result for one library item. path is
// empty when no index was found. The frame layout is learned on first read.
type indexItem struct {
	path string

	mu       sync.Mutex
	parsed   bool
	interval int
	count    int
}

func (it *indexItem) layout() (interval, count int, ok bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.interval, it.count, it.parsed
}

func (it *indexItem) setLayout(interval, count int) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.interval = interval
	it.count = count
	it.parsed = true
}

// IndexSource serves thumbnails from the BIF preview indexes Plex generates
// during library analysis.
type IndexSource struct {
	dataDir string
	store   PartStore
	retry   filesystem.RetryConfig
	cache   *agecache.Cache[int64, int, *indexItem]
	probes  singleflight.Group
}

// NewIndexSource creates an index-backed source rooted at the Plex data directory.
func NewIndexSource(dataDir string, store PartStore, capacityHint int, retry filesystem.RetryConfig) *IndexSource {
	return &IndexSource{
		dataDir: dataDir,
		store:   store,
		retry:   retry,
		cache:   agecache.New[int64, int, *indexItem](BackendIndex, capacityHint),
	}
}

// Name implements Source.
func (s *IndexSource) Name() string {
	return BackendIndex
}

// HasThumbnails implements Source.
func (s *IndexSource) HasThumbnails(ctx context.Context, metadataID int64) (bool, error) {
	item, err := s.item(ctx, metadataID)
	if err != nil {
		return false, err
	}
	return item.path != "", nil
}

// GetThumbnail implements Source. The timestamp is truncated to whole seconds.
func (s *IndexSource) GetThumbnail(ctx context.Context, metadataID, timestampMs int64) (data []byte, err error) {
	start := time.Now()
	defer func() { observe(BackendIndex, start, err) }()

	item, err := s.item(ctx, metadataID)
	if err != nil {
		return nil, err
	}
	if item.path == "" {
		return nil, fmt.Errorf("%w: item %d has no preview index", ErrNotAvailable, metadataID)
	}

	seconds := 0
	if timestampMs > 0 {
		seconds = int(timestampMs / 1000)
	}

	// The frame index is only computable once the layout is known
	interval, count, known := item.layout()
	if known {
		index := bif.FrameIndex(seconds, interval, count)
		if cached, ok := s.cache.TryGet(metadataID, index); ok {
			return cached, nil
		}
	}

	raw, err := filesystem.ReadFileWithRetry(item.path, s.retry)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrNotAvailable, item.path, err)
	}

	frame, err := bif.Parse(raw, seconds, interval)
	if err != nil {
		return nil, fmt.Errorf("item %d: %s: %w", metadataID, item.path, err)
	}
	if !known {
		// Parse already validated the header
		total, _ := bif.FrameCount(raw)
		item.setLayout(frame.Interval, total)
	}

	data = bytes.Clone(frame.Bytes(raw))
	s.cache.Put(metadataID, frame.Index, data)
	logging.Debug("Index frame %d for item %d (%d bytes)", frame.Index, metadataID, len(data))
	return data, nil
}

// item returns the cached existence result, probing once on first use.
// Concurrent first calls for the same item share a probe.
func (s *IndexSource) item(ctx context.Context, metadataID int64) (*indexItem, error) {
	if item, ok := s.cache.Get(metadataID); ok {
		return item, nil
	}

	v, _, err := sharedDo(ctx, &s.probes, itemKey(metadataID), func(ctx context.Context) (interface{}, error) {
		if item, ok := s.cache.Get(metadataID); ok {
			return item, nil
		}

		path, err := s.locate(ctx, metadataID)
		if err != nil {
			metrics.ThumbnailSourceChecks.WithLabelValues(BackendIndex, "error").Inc()
			return nil, err
		}
		if path == "" {
			metrics.ThumbnailSourceChecks.WithLabelValues(BackendIndex, "missing").Inc()
			logging.Debug("No preview index for item %d", metadataID)
		} else {
			metrics.ThumbnailSourceChecks.WithLabelValues(BackendIndex, "found").Inc()
		}
		return s.cache.Add(metadataID, &indexItem{path: path}), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*indexItem), nil
}

// locate returns the most recently modified preview index among the item's
// parts, or "" when none exists.
func (s *IndexSource) locate(ctx context.Context, metadataID int64) (string, error) {
	hashes, err := s.store.PartHashes(ctx, metadataID)
	if err != nil {
		return "", fmt.Errorf("look up parts of item %d: %w", metadataID, err)
	}

	var (
		best    string
		bestMod time.Time
		found   int
	)
	for _, hash := range hashes {
		if len(hash) < 2 {
			logging.Warn("Item %d has an unusable part hash %q", metadataID, hash)
			continue
		}

		path := IndexPath(s.dataDir, hash)
		info, err := filesystem.StatWithRetry(path, s.retry)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logging.Warn("Cannot stat preview index %s: %v", path, err)
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		found++
		if best == "" || info.ModTime().After(bestMod) {
			best, bestMod = path, info.ModTime()
		}
	}

	if found > 1 {
		logging.Info("Item %d has %d preview indexes, using the most recently modified: %s", metadataID, found, best)
	}
	return best, nil
}

// Invalidate implements Source.
func (s *IndexSource) Invalidate(metadataID int64) bool {
	return s.cache.Invalidate(metadataID)
}

// Close implements Source. Index files belong to Plex and are never removed.
func (s *IndexSource) Close(_ bool) {
	s.cache.Clear()
}

// Stats implements Source.
func (s *IndexSource) Stats() SourceStats {
	cs := s.cache.Stats()
	return SourceStats{Items: cs.Items, Thumbnails: cs.Thumbnails, Bytes: cs.Bytes}
}
