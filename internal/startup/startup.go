package startup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/viper"

	"plex-thumbnails/internal/database"
	"plex-thumbnails/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
}

// Config holds all application configuration
type Config struct {
	DataDir           string        `mapstructure:"data_dir"`
	DatabasePath      string        `mapstructure:"database_path"`
	CacheDir          string        `mapstructure:"cache_dir"`
	PreciseThumbnails bool          `mapstructure:"precise_thumbnails"`
	FFmpegPath        string        `mapstructure:"ffmpeg_path"`
	FFmpegTimeout     time.Duration `mapstructure:"ffmpeg_timeout"`
	FFmpegWorkers     int           `mapstructure:"ffmpeg_workers"`
	ThumbnailWidth    int           `mapstructure:"thumbnail_width"`
	CacheCapacity     int           `mapstructure:"cache_capacity"`
	MemoryLimit       int64         `mapstructure:"memory_limit"`
	MemoryRatio       float64       `mapstructure:"memory_ratio"`
	Port              string        `mapstructure:"port"`
	MetricsPort       string        `mapstructure:"metrics_port"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled"`
	LogHealthChecks   bool          `mapstructure:"log_health_checks"`

	// Derived paths
	ThumbnailCacheDir string `mapstructure:"-"`

	// Feature flags based on directory availability
	ThumbnailCacheWritable bool `mapstructure:"-"`
}

// Configuration defaults
const (
	EnvPrefix = "PLEX_THUMBS"

	DefaultDataDir        = "/config/Library/Application Support/Plex Media Server"
	DefaultCacheDir       = "./cache"
	DefaultFFmpegPath     = "ffmpeg"
	DefaultFFmpegTimeout  = 10 * time.Second
	DefaultThumbnailWidth = 240
	DefaultCacheCapacity  = 100
)

// NewViper returns a viper instance with defaults, the optional config.yaml
// search paths, and PLEX_THUMBS_* environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("database_path", "")
	v.SetDefault("cache_dir", DefaultCacheDir)
	v.SetDefault("precise_thumbnails", false)
	v.SetDefault("ffmpeg_path", DefaultFFmpegPath)
	v.SetDefault("ffmpeg_timeout", DefaultFFmpegTimeout.String())
	v.SetDefault("ffmpeg_workers", 0)
	v.SetDefault("thumbnail_width", DefaultThumbnailWidth)
	v.SetDefault("cache_capacity", DefaultCacheCapacity)
	v.SetDefault("memory_limit", 0)
	v.SetDefault("memory_ratio", 0.85)
	v.SetDefault("port", "8080")
	v.SetDefault("metrics_port", "9090")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("log_health_checks", true)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir := os.Getenv(EnvPrefix + "_CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// LoadConfig reads configuration from v and validates it.
func LoadConfig(v *viper.Viper) (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logging.Debug("  No config file found, using defaults and environment")
	} else {
		logging.Info("  Config file:         %s", v.ConfigFileUsed())
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if config.DatabasePath == "" {
		config.DatabasePath = database.DefaultPath(config.DataDir)
	}

	logging.Info("  DATA_DIR:            %s", config.DataDir)
	logging.Info("  DATABASE_PATH:       %s", config.DatabasePath)
	logging.Info("  CACHE_DIR:           %s", config.CacheDir)
	logging.Info("  PRECISE_THUMBNAILS:  %v", config.PreciseThumbnails)
	logging.Info("  FFMPEG_PATH:         %s", config.FFmpegPath)
	logging.Info("  FFMPEG_TIMEOUT:      %s", config.FFmpegTimeout)
	logging.Info("  FFMPEG_WORKERS:      %d (0 = auto)", config.FFmpegWorkers)
	logging.Info("  THUMBNAIL_WIDTH:     %d", config.ThumbnailWidth)
	logging.Info("  CACHE_CAPACITY:      %d", config.CacheCapacity)
	logging.Info("  MEMORY_LIMIT:        %d", config.MemoryLimit)
	logging.Info("  MEMORY_RATIO:        %.2f", config.MemoryRatio)
	logging.Info("  PORT:                %s", config.Port)
	logging.Info("  METRICS_PORT:        %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", config.MetricsEnabled)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	if config.FFmpegTimeout <= 0 {
		logging.Warn("  Invalid FFMPEG_TIMEOUT, using default: %s", DefaultFFmpegTimeout)
		config.FFmpegTimeout = DefaultFFmpegTimeout
	}
	if config.ThumbnailWidth <= 0 {
		logging.Warn("  Invalid THUMBNAIL_WIDTH, using default: %d", DefaultThumbnailWidth)
		config.ThumbnailWidth = DefaultThumbnailWidth
	}
	if config.FFmpegWorkers < 0 {
		logging.Warn("  Invalid FFMPEG_WORKERS, deriving from CPUs")
		config.FFmpegWorkers = 0
	}
	if config.CacheCapacity < 1 {
		logging.Warn("  Invalid CACHE_CAPACITY, using default: %d", DefaultCacheCapacity)
		config.CacheCapacity = DefaultCacheCapacity
	}

	// Resolve paths
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	var err error
	config.DataDir, err = filepath.Abs(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	logging.Info("  Plex data directory (absolute): %s", config.DataDir)

	config.CacheDir, err = filepath.Abs(config.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	logging.Info("  Cache directory (absolute): %s", config.CacheDir)

	// The Plex data directory is mounted, never created
	if err := checkDirectory(config.DataDir, "Plex data"); err != nil {
		logging.Warn("  Plex data directory issue: %v", err)
	}

	config.ThumbnailCacheDir = filepath.Join(config.CacheDir, "Thumbnails")
	config.ThumbnailCacheWritable = setupOptionalDir(config.ThumbnailCacheDir, "thumbnail cache")

	return config, nil
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		return false
	}

	f, err := os.CreateTemp(path, ".write-check-*")
	if err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		return false
	}
	_ = f.Close()
	if err := os.Remove(f.Name()); err != nil {
		logging.Warn("    failed to remove %s: %v", f.Name(), err)
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs library database initialization
func LogDatabaseInit(path string, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Library database: %s (read-only)", path)
	logging.Info("  [OK] Database opened in %v", duration)
}

// SelectPrecise decides whether on-demand thumbnails can be used. Precise mode
// needs a writable thumbnail cache and a working ffmpeg; otherwise the
// index-backed backend is used and a warning is logged.
func SelectPrecise(ctx context.Context, config *Config, canUseFFmpeg func(context.Context, string) bool) bool {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("THUMBNAIL INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	if !config.PreciseThumbnails {
		logging.Info("  Mode: index (pre-generated Plex preview indexes)")
		return false
	}

	if !config.ThumbnailCacheWritable {
		logging.Warn("  Precise thumbnails requested but %s is not writable", config.ThumbnailCacheDir)
		logging.Warn("  Falling back to index-backed thumbnails")
		return false
	}

	if !canUseFFmpeg(ctx, config.FFmpegPath) {
		logging.Warn("  Precise thumbnails requested but ffmpeg is not usable at %q", config.FFmpegPath)
		logging.Warn("  Falling back to index-backed thumbnails")
		return false
	}

	logging.Info("  Mode: on-demand (ffmpeg, %dpx wide, %s timeout)", config.ThumbnailWidth, config.FFmpegTimeout)
	logging.Info("  Frame cache: %s", config.ThumbnailCacheDir)
	return true
}

// LogThumbnailInit logs the thumbnail manager that was built
func LogThumbnailInit(backend string, capacity int) {
	logging.Info("  Memory cache:  %s (capacity hint %d)", enabledString(capacity > 0), capacity)
	logging.Info("  [OK] Thumbnail backend: %s", backend)
}

// APIRoutes returns the thumbnail API routes registered on router, one
// entry per method. Health and version endpoints are left out.
func APIRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		if route.GetHandler() == nil {
			return nil
		}
		path, err := route.GetPathTemplate()
		if err != nil || !strings.HasPrefix(path, "/api/") {
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"ANY"}
		}
		for _, method := range methods {
			routes = append(routes, RouteInfo{Method: method, Path: path})
		}
		return nil
	})
	return routes, err
}

// LogHTTPRoutes logs the thumbnail API surface and access log settings.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	routes, err := APIRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	for _, route := range routes {
		logging.Info("  %-6s %s", route.Method, route.Path)
	}

	if logHealthChecks {
		logging.Info("  Health check access logs: ON")
	} else {
		logging.Info("  Health check access logs: OFF (set %s_LOG_HEALTH_CHECKS=true to enable)", EnvPrefix)
	}
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs where the thumbnail and metrics listeners are bound.
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("SERVER STARTED in %v", config.StartupDuration.Round(time.Millisecond))
	logging.Info("  Thumbnails: http://0.0.0.0:%s/api/thumbnail/{id}", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:    http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("  Metrics:    DISABLED")
	}
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// Helper functions

// PrintBanner prints the startup banner and system information.
func PrintBanner() {
	banner := `
------------------------------------------------------------
    ____  __             ________                    __
   / __ \/ /__  _  __   /_  __/ /_  __  ______ ___  / /_  _____
  / /_/ / / _ \| |/_/    / / / __ \/ / / / __ '__ \/ __ \/ ___/
 / ____/ /  __/>  <     / / / / / / /_/ / / / / / / /_/ (__  )
/_/   /_/\___/_/|_|    /_/ /_/ /_/\__,_/_/ /_/ /_/_.___/____/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("  Runtime:    %s %s/%s, GOMAXPROCS %d of %d CPUs",
		runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.GOMAXPROCS(0), runtime.NumCPU())
	logging.Info("")
}

// checkDirectory verifies a mounted directory without creating it.
func checkDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	if logging.IsDebugEnabled() {
		if entries, err := os.ReadDir(filepath.Join(path, "Media", "localhost")); err == nil {
			logging.Debug("    Media bundles: %d top-level directories", len(entries))
		}
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}
