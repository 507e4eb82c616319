package metrics

import (
	"time"

	"plex-thumbnails/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current statistics
type Stats struct {
	Backend          string
	CachedItems      int
	CachedThumbnails int
	CachedBytes      int64
	DiskCacheBytes   int64
	DiskCacheFiles   int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	AgingCacheItems.WithLabelValues(stats.Backend).Set(float64(stats.CachedItems))
	AgingCacheThumbnails.WithLabelValues(stats.Backend).Set(float64(stats.CachedThumbnails))
	AgingCacheBytes.WithLabelValues(stats.Backend).Set(float64(stats.CachedBytes))
	ThumbnailDiskCacheSize.Set(float64(stats.DiskCacheBytes))
	ThumbnailDiskCacheCount.Set(float64(stats.DiskCacheFiles))

	logging.Debug("Metrics collected: backend=%s, items=%d, thumbnails=%d, memory=%dB, disk=%dB in %d files",
		stats.Backend, stats.CachedItems, stats.CachedThumbnails, stats.CachedBytes,
		stats.DiskCacheBytes, stats.DiskCacheFiles)
}
