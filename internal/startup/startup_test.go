package startup

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	// Check that all fields are populated
	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion == "" {
		t.Error("Expected GoVersion to be set")
	}
	if info.OS == "" {
		t.Error("Expected OS to be set")
	}
	if info.Arch == "" {
		t.Error("Expected Arch to be set")
	}

	// Verify that runtime values are correct
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

// testViper returns a viper with defaults whose directories point into t.TempDir().
func testViper(t *testing.T) (*viper.Viper, string, string) {
	t.Helper()
	t.Setenv(EnvPrefix+"_CONFIG_DIR", t.TempDir())

	dataDir := t.TempDir()
	cacheDir := t.TempDir()
	v := NewViper()
	v.Set("data_dir", dataDir)
	v.Set("cache_dir", cacheDir)
	return v, dataDir, cacheDir
}

func TestLoadConfigDefaults(t *testing.T) {
	v, dataDir, cacheDir := testViper(t)

	config, err := LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, dataDir, config.DataDir)
	assert.Equal(t, cacheDir, config.CacheDir)
	assert.Equal(t, filepath.Join(dataDir, "Plug-in Support", "Databases", "com.plexapp.plugins.library.db"), config.DatabasePath)
	assert.Equal(t, filepath.Join(cacheDir, "Thumbnails"), config.ThumbnailCacheDir)
	assert.True(t, config.ThumbnailCacheWritable)
	assert.False(t, config.PreciseThumbnails)
	assert.Equal(t, "ffmpeg", config.FFmpegPath)
	assert.Equal(t, 10*time.Second, config.FFmpegTimeout)
	assert.Equal(t, 240, config.ThumbnailWidth)
	assert.Equal(t, 100, config.CacheCapacity)
	assert.Equal(t, 0, config.FFmpegWorkers)
	assert.Equal(t, int64(0), config.MemoryLimit)
	assert.Equal(t, 0.85, config.MemoryRatio)
	assert.Equal(t, "8080", config.Port)
	assert.Equal(t, "9090", config.MetricsPort)
	assert.True(t, config.MetricsEnabled)
	assert.True(t, config.LogHealthChecks)

	info, err := os.Stat(config.ThumbnailCacheDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadConfigEnvironment(t *testing.T) {
	v, _, _ := testViper(t)
	t.Setenv("PLEX_THUMBS_PRECISE_THUMBNAILS", "true")
	t.Setenv("PLEX_THUMBS_FFMPEG_TIMEOUT", "3s")
	t.Setenv("PLEX_THUMBS_CACHE_CAPACITY", "50")
	t.Setenv("PLEX_THUMBS_PORT", "32500")
	t.Setenv("PLEX_THUMBS_DATABASE_PATH", "/srv/plex.db")
	t.Setenv("PLEX_THUMBS_MEMORY_LIMIT", "1073741824")

	config, err := LoadConfig(v)
	require.NoError(t, err)

	assert.True(t, config.PreciseThumbnails)
	assert.Equal(t, 3*time.Second, config.FFmpegTimeout)
	assert.Equal(t, 50, config.CacheCapacity)
	assert.Equal(t, "32500", config.Port)
	assert.Equal(t, "/srv/plex.db", config.DatabasePath)
	assert.Equal(t, int64(1<<30), config.MemoryLimit)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"_CONFIG_DIR", dir)

	yaml := "thumbnail_width: 320\nffmpeg_path: /usr/lib/jellyfin-ffmpeg/ffmpeg\nmetrics_enabled: false\ncache_dir: " + t.TempDir() + "\ndata_dir: " + t.TempDir() + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	config, err := LoadConfig(NewViper())
	require.NoError(t, err)

	assert.Equal(t, 320, config.ThumbnailWidth)
	assert.Equal(t, "/usr/lib/jellyfin-ffmpeg/ffmpeg", config.FFmpegPath)
	assert.False(t, config.MetricsEnabled)
}

func TestLoadConfigBadFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"_CONFIG_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("port: [unterminated\n"), 0o644))

	_, err := LoadConfig(NewViper())
	assert.Error(t, err)
}

func TestLoadConfigInvalidValuesUseDefaults(t *testing.T) {
	v, _, _ := testViper(t)
	v.Set("ffmpeg_timeout", "0s")
	v.Set("thumbnail_width", -1)
	v.Set("cache_capacity", 0)
	v.Set("ffmpeg_workers", -3)

	config, err := LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultFFmpegTimeout, config.FFmpegTimeout)
	assert.Equal(t, DefaultThumbnailWidth, config.ThumbnailWidth)
	assert.Equal(t, DefaultCacheCapacity, config.CacheCapacity)
	assert.Equal(t, 0, config.FFmpegWorkers)
}

func TestSelectPrecise(t *testing.T) {
	usable := func(context.Context, string) bool { return true }
	unusable := func(context.Context, string) bool { return false }

	tests := []struct {
		name     string
		config   Config
		probe    func(context.Context, string) bool
		want     bool
		wantCall bool
	}{
		{"index requested", Config{PreciseThumbnails: false, ThumbnailCacheWritable: true}, usable, false, false},
		{"cache not writable", Config{PreciseThumbnails: true, ThumbnailCacheWritable: false}, usable, false, false},
		{"ffmpeg missing", Config{PreciseThumbnails: true, ThumbnailCacheWritable: true}, unusable, false, true},
		{"precise", Config{PreciseThumbnails: true, ThumbnailCacheWritable: true}, usable, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			probe := func(ctx context.Context, path string) bool {
				called = true
				return tt.probe(ctx, path)
			}

			config := tt.config
			assert.Equal(t, tt.want, SelectPrecise(context.Background(), &config, probe))
			assert.Equal(t, tt.wantCall, called)
		})
	}
}

func TestAPIRoutes(t *testing.T) {
	noop := func(http.ResponseWriter, *http.Request) {}
	r := mux.NewRouter()
	r.HandleFunc("/health", noop).Methods("GET")
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnail/{id}", noop).Methods("GET")
	api.HandleFunc("/thumbnail/{id}/{timestamp}", noop).Methods("GET")
	api.HandleFunc("/thumbnail/{id}/invalidate", noop).Methods("POST")

	routes, err := APIRoutes(r)
	require.NoError(t, err)

	assert.ElementsMatch(t, []RouteInfo{
		{Method: "GET", Path: "/api/thumbnail/{id}"},
		{Method: "GET", Path: "/api/thumbnail/{id}/{timestamp}"},
		{Method: "POST", Path: "/api/thumbnail/{id}/invalidate"},
	}, routes)
}

func TestLoadConfigUnwritableCacheDir(t *testing.T) {
	v, _, cacheDir := testViper(t)
	v.Set("precise_thumbnails", true)
	// A regular file where the frame cache directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "Thumbnails"), []byte("x"), 0o644))

	config, err := LoadConfig(v)
	require.NoError(t, err)
	assert.False(t, config.ThumbnailCacheWritable)
	assert.False(t, SelectPrecise(context.Background(), config, func(context.Context, string) bool { return true }))
}
