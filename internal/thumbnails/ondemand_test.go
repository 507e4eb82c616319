package thumbnails

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plex-thumbnails/internal/database"
	"plex-thumbnails/internal/filesystem"
	"plex-thumbnails/internal/metrics"
	"plex-thumbnails/internal/transcoder"
)

type onDemandFixture struct {
	source   *OnDemandSource
	store    *fakeStore
	cacheDir string
	media    string
	counter  string
}

func newOnDemandFixture(t *testing.T, config transcoder.Config, scriptExtra string) *onDemandFixture {
	t.Helper()

	script, counter := fakeFFmpeg(t, scriptExtra)
	config.FFmpegPath = script

	media := filepath.Join(t.TempDir(), "movie.mkv")
	writeFile(t, media, []byte("not really a movie"))

	store := newFakeStore()
	store.parts[1] = []database.MediaPart{{ID: 10, File: media, DurationMs: 60000}}

	cacheDir := filepath.Join(t.TempDir(), "Thumbnails")
	source := NewOnDemandSource(store, cacheDir, transcoder.New(config), 100, filesystem.DefaultRetryConfig())
	t.Cleanup(func() { source.Close(false) })

	return &onDemandFixture{source: source, store: store, cacheDir: cacheDir, media: media, counter: counter}
}

func TestBucket(t *testing.T) {
	tests := []struct {
		name       string
		timestamp  int64
		durationMs int64
		want       int64
	}{
		{"past end clamps to duration minus a second", 60500, 60000, 59000},
		{"rounds down to 100ms", 12345, 60000, 12300},
		{"exact bucket", 12300, 60000, 12300},
		{"negative", -5, 60000, 0},
		{"short file", 500, 800, 0},
		{"unknown duration is not clamped", 90_050, 0, 90_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Bucket(tt.timestamp, tt.durationMs))
		})
	}
}

func TestOnDemandScenarioClampsPastEnd(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{}, "")

	data, err := f.source.GetThumbnail(context.Background(), 1, 60500)
	require.NoError(t, err)
	assert.Equal(t, f.media+"@59000ms", string(data))

	onDisk, err := os.ReadFile(f.source.FramePath(1, 59000))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)
	assert.Equal(t, filepath.Join(f.cacheDir, "1", "59000.jpg"), f.source.FramePath(1, 59000))
}

func TestOnDemandSameBucketRunsOnce(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{}, "")

	first, err := f.source.GetThumbnail(context.Background(), 1, 12340)
	require.NoError(t, err)
	second, err := f.source.GetThumbnail(context.Background(), 1, 12390)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, f.media+"@12300ms", string(first))
	assert.Equal(t, 1, runCount(t, f.counter))
}

func TestOnDemandConcurrentMissesShareExtraction(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{}, "sleep 0.2")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := f.source.GetThumbnail(context.Background(), 1, int64(5000+i*10))
			assert.NoError(t, err)
			assert.Equal(t, f.media+"@5000ms", string(data))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, runCount(t, f.counter))
}

func TestOnDemandCanceledCallerDoesNotKillSharedExtraction(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{}, "sleep 0.5")

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.source.GetThumbnail(ctx, 1, 5000)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return runCount(t, f.counter) == 1 }, 2*time.Second, 10*time.Millisecond)

	type result struct {
		data []byte
		err  error
	}
	second := make(chan result, 1)
	go func() {
		data, err := f.source.GetThumbnail(context.Background(), 1, 5050)
		second <- result{data, err}
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-firstErr, context.Canceled)

	got := <-second
	require.NoError(t, got.err, "a caller that never canceled must get the frame")
	assert.Equal(t, f.media+"@5000ms", string(got.data))
	assert.Equal(t, 1, runCount(t, f.counter))

	_, err := os.Stat(f.source.FramePath(1, 5000))
	assert.NoError(t, err, "the extraction ran to completion")
}

func TestOnDemandCanceledCallerReturnsPromptly(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{}, "sleep 1")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.source.GetThumbnail(ctx, 1, 7000)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 900*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := os.Stat(f.source.FramePath(1, 7000))
		return err == nil
	}, 3*time.Second, 20*time.Millisecond, "the detached extraction still fills the disk cache")
}

func TestOnDemandDiskTier(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{}, "")

	_, err := f.source.GetThumbnail(context.Background(), 1, 3000)
	require.NoError(t, err)
	require.Equal(t, 1, runCount(t, f.counter))

	// A fresh source over the same directory has an empty memory cache
	fresh := NewOnDemandSource(f.store, f.cacheDir, transcoder.New(f.source.extractor.Config()), 100, filesystem.DefaultRetryConfig())
	hits := testutil.ToFloat64(metrics.ThumbnailDiskCacheHits)

	data, err := fresh.GetThumbnail(context.Background(), 1, 3000)
	require.NoError(t, err)
	assert.Equal(t, f.media+"@3000ms", string(data))
	assert.Equal(t, 1, runCount(t, f.counter), "disk hit must not run ffmpeg")
	assert.Equal(t, hits+1, testutil.ToFloat64(metrics.ThumbnailDiskCacheHits))
}

func TestOnDemandTimeoutLeavesNothingCached(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{Timeout: 200 * time.Millisecond}, "exec sleep 5")

	start := time.Now()
	_, err := f.source.GetThumbnail(context.Background(), 1, 7000)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	assert.ErrorIs(t, err, transcoder.ErrExtractFailed)
	var xerr *transcoder.ExtractError
	require.True(t, errors.As(err, &xerr))
	assert.True(t, xerr.Timeout)

	_, statErr := os.Stat(f.source.FramePath(1, 7000))
	assert.True(t, os.IsNotExist(statErr), "no output file may be left behind")

	entries, err := os.ReadDir(filepath.Join(f.cacheDir, "1"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files must be removed")

	assert.Zero(t, f.source.Stats().Thumbnails)
}

func TestOnDemandFailedExtraction(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{}, "echo 'Invalid data found' >&2; exit 1")

	_, err := f.source.GetThumbnail(context.Background(), 1, 1000)
	assert.ErrorIs(t, err, transcoder.ErrExtractFailed)
	assert.Equal(t, statusFFmpegError, status(err))
}

func TestOnDemandPrefersFirstExistingPart(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{}, "")
	f.store.parts[2] = []database.MediaPart{
		{ID: 20, File: filepath.Join(t.TempDir(), "gone.mkv"), DurationMs: 120000},
		{ID: 21, File: f.media, DurationMs: 60000},
	}

	has, err := f.source.HasThumbnails(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, has)

	data, err := f.source.GetThumbnail(context.Background(), 2, 100000)
	require.NoError(t, err)
	assert.Equal(t, f.media+"@59000ms", string(data), "duration comes from the chosen part")
}

func TestOnDemandNotAvailable(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{}, "")
	f.store.parts[3] = []database.MediaPart{{ID: 30, File: "/nonexistent/file.mkv", DurationMs: 1000}}

	has, err := f.source.HasThumbnails(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = f.source.GetThumbnail(context.Background(), 3, 0)
	assert.ErrorIs(t, err, ErrNotAvailable)
	assert.Zero(t, runCount(t, f.counter))
}

func TestOnDemandHasThumbnailsIdempotent(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{}, "")

	first, err := f.source.HasThumbnails(context.Background(), 1)
	require.NoError(t, err)
	second, err := f.source.HasThumbnails(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	_, partCalls := f.store.calls()
	assert.Equal(t, 1, partCalls)
}

func TestOnDemandClose(t *testing.T) {
	t.Run("partial keeps the cache directory", func(t *testing.T) {
		f := newOnDemandFixture(t, transcoder.Config{}, "")
		_, err := f.source.GetThumbnail(context.Background(), 1, 1000)
		require.NoError(t, err)

		f.source.Close(false)

		_, err = os.Stat(f.source.FramePath(1, 1000))
		assert.NoError(t, err)
		assert.Zero(t, f.source.Stats().Items)
	})

	t.Run("full removes the cache directory", func(t *testing.T) {
		f := newOnDemandFixture(t, transcoder.Config{}, "")
		_, err := f.source.GetThumbnail(context.Background(), 1, 1000)
		require.NoError(t, err)

		f.source.Close(true)

		_, err = os.Stat(f.cacheDir)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestOnDemandDiskUsageIsCached(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{}, "")
	writeFile(t, filepath.Join(f.cacheDir, "1", "0.jpg"), []byte("12345"))

	size, count, err := f.source.DiskUsage()
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, 1, count)

	writeFile(t, filepath.Join(f.cacheDir, "1", "100.jpg"), []byte("1234567"))

	size, count, err = f.source.DiskUsage()
	require.NoError(t, err)
	assert.Equal(t, int64(5), size, "second call within the TTL is served from memory")
	assert.Equal(t, 1, count)

	f.source.diskUpdated.Store(time.Now().Add(-diskUsageTTL - time.Second).Unix())

	size, count, err = f.source.DiskUsage()
	require.NoError(t, err)
	assert.Equal(t, int64(12), size)
	assert.Equal(t, 2, count)
}

func TestOnDemandDiskUsageMissingDir(t *testing.T) {
	f := newOnDemandFixture(t, transcoder.Config{}, "")
	require.NoError(t, os.RemoveAll(f.cacheDir))

	size, count, err := f.source.DiskUsage()
	require.NoError(t, err)
	assert.Zero(t, size)
	assert.Zero(t, count)
}
