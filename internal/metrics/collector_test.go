package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type mockStatsProvider struct {
	mu    sync.Mutex
	calls int
	stats Stats
}

func (m *mockStatsProvider) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.stats
}

func (m *mockStatsProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestCollectUpdatesGauges(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{
		Backend:          "collector_test",
		CachedItems:      3,
		CachedThumbnails: 12,
		CachedBytes:      4096,
		DiskCacheBytes:   8192,
		DiskCacheFiles:   7,
	}}

	c := NewCollector(provider, time.Hour)
	c.collect()

	assert.Equal(t, 3.0, testutil.ToFloat64(AgingCacheItems.WithLabelValues("collector_test")))
	assert.Equal(t, 12.0, testutil.ToFloat64(AgingCacheThumbnails.WithLabelValues("collector_test")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(AgingCacheBytes.WithLabelValues("collector_test")))
	assert.Equal(t, 8192.0, testutil.ToFloat64(ThumbnailDiskCacheSize))
	assert.Equal(t, 7.0, testutil.ToFloat64(ThumbnailDiskCacheCount))
}

func TestCollectWithNilProvider(t *testing.T) {
	c := NewCollector(nil, time.Hour)
	assert.NotPanics(t, c.collect)
}

func TestCollectorStartCollectsImmediately(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{Backend: "collector_start"}}
	c := NewCollector(provider, time.Hour)

	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return provider.callCount() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorTicks(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{Backend: "collector_tick"}}
	c := NewCollector(provider, 5*time.Millisecond)

	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return provider.callCount() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestInitializeMetricsExportsLabels(t *testing.T) {
	InitializeMetrics()

	assert.Equal(t, 0.0, testutil.ToFloat64(ExtractionsTotal.WithLabelValues("timeout")))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(ThumbnailRequestsTotal), 10)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(FilesystemRetryAttempts), 6)
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.2.3", "abc", "go1.25", "index")
	assert.Equal(t, 1.0, testutil.ToFloat64(AppInfo.WithLabelValues("1.2.3", "abc", "go1.25", "index")))
}
