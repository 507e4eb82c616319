package thumbnails

import (
	"context"
	"errors"
	"sync"

	"plex-thumbnails/internal/filesystem"
	"plex-thumbnails/internal/logging"
	"plex-thumbnails/internal/metrics"
	"plex-thumbnails/internal/transcoder"
)

// Options configures a Manager.
type Options struct {
	// Precise selects on-demand extraction instead of pre-generated indexes.
	Precise bool

	// DataDir is the Plex data directory holding the preview indexes.
	DataDir string

	// CacheDir receives extracted frames in precise mode.
	CacheDir string

	Store        PartStore
	CapacityHint int
	Extractor    transcoder.Config

	// Retry is used for stat and read calls. Zero means filesystem.DefaultRetryConfig().
	Retry filesystem.RetryConfig
}

// Manager fronts exactly one thumbnail source.
type Manager struct {
	source Source
}

// NewManager builds the source selected by opts.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("thumbnails: a part store is required")
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialBackoff == 0 {
		resolver := opts.Retry.VolumeResolver
		opts.Retry = filesystem.DefaultRetryConfig()
		opts.Retry.VolumeResolver = resolver
	}

	var source Source
	if opts.Precise {
		if opts.CacheDir == "" {
			return nil, errors.New("thumbnails: precise mode needs a cache directory")
		}
		extractor := transcoder.New(opts.Extractor)
		source = NewOnDemandSource(opts.Store, opts.CacheDir, extractor, opts.CapacityHint, opts.Retry)
	} else {
		if opts.DataDir == "" {
			return nil, errors.New("thumbnails: index mode needs the Plex data directory")
		}
		source = NewIndexSource(opts.DataDir, opts.Store, opts.CapacityHint, opts.Retry)
	}

	logging.Info("Thumbnail backend: %s (cache capacity hint %d)", source.Name(), opts.CapacityHint)
	return NewManagerWithSource(source), nil
}

// NewManagerWithSource wraps an existing source.
func NewManagerWithSource(source Source) *Manager {
	return &Manager{source: source}
}

// Backend returns the active backend name.
func (m *Manager) Backend() string {
	return m.source.Name()
}

// HasThumbnails reports whether the item has thumbnails.
func (m *Manager) HasThumbnails(ctx context.Context, metadataID int64) (bool, error) {
	return m.source.HasThumbnails(ctx, metadataID)
}

// GetThumbnail returns the JPEG for the item at timestampMs.
func (m *Manager) GetThumbnail(ctx context.Context, metadataID, timestampMs int64) ([]byte, error) {
	return m.source.GetThumbnail(ctx, metadataID, timestampMs)
}

// Invalidate forgets the cached existence result and thumbnails for the item.
func (m *Manager) Invalidate(metadataID int64) bool {
	removed := m.source.Invalidate(metadataID)
	logging.Debug("Invalidated item %d (cached: %v)", metadataID, removed)
	return removed
}

// Close shuts the source down.
func (m *Manager) Close(fullShutdown bool) {
	m.source.Close(fullShutdown)
}

// GetStats implements metrics.StatsProvider.
func (m *Manager) GetStats() metrics.Stats {
	s := m.source.Stats()
	return metrics.Stats{
		Backend:          m.source.Name(),
		CachedItems:      s.Items,
		CachedThumbnails: s.Thumbnails,
		CachedBytes:      s.Bytes,
		DiskCacheBytes:   s.DiskCacheBytes,
		DiskCacheFiles:   s.DiskCacheFiles,
	}
}

// Holder owns the process-wide Manager.
type Holder struct {
	mu      sync.Mutex
	manager *Manager
}

// Create builds the manager on first call. Later calls log a warning and
// return the existing manager unchanged.
func (h *Holder) Create(opts Options) (*Manager, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.manager != nil {
		logging.Warn("Thumbnail manager already created with the %s backend, ignoring new options", h.manager.Backend())
		return h.manager, nil
	}

	m, err := NewManager(opts)
	if err != nil {
		return nil, err
	}
	h.manager = m
	return m, nil
}

// Get returns the current manager, or nil before Create.
func (h *Holder) Get() *Manager {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.manager
}

// Close closes and forgets the manager. It is a no-op before Create.
func (h *Holder) Close(fullShutdown bool) {
	h.mu.Lock()
	m := h.manager
	h.manager = nil
	h.mu.Unlock()

	if m != nil {
		m.Close(fullShutdown)
	}
}

// CanUseFFmpeg reports whether ffmpegPath runs. It decides whether precise
// mode can be offered.
func CanUseFFmpeg(ctx context.Context, ffmpegPath string) bool {
	version, err := transcoder.Probe(ctx, ffmpegPath)
	if err != nil {
		logging.Warn("ffmpeg not usable at %q: %v", ffmpegPath, err)
		return false
	}
	logging.Debug("ffmpeg available: %s", version)
	return true
}
