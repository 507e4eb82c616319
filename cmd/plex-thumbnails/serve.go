package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plex-thumbnails/internal/database"
	"plex-thumbnails/internal/filesystem"
	"plex-thumbnails/internal/handlers"
	"plex-thumbnails/internal/logging"
	"plex-thumbnails/internal/memory"
	"plex-thumbnails/internal/metrics"
	"plex-thumbnails/internal/middleware"
	"plex-thumbnails/internal/startup"
	"plex-thumbnails/internal/thumbnails"
	"plex-thumbnails/internal/transcoder"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	metricsInterval   = time.Minute
	dbMetricsInterval = 30 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the thumbnail HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("port", "8080", "HTTP server port")
	flags.String("metrics-port", "9090", "Prometheus metrics port")
	flags.Bool("metrics-enabled", true, "serve Prometheus metrics on --metrics-port")
	flags.Bool("log-health-checks", true, "log requests to the health endpoints")
	flags.Int64("memory-limit", 0, "container memory limit in bytes, used to set GOMEMLIMIT")
	flags.Float64("memory-ratio", 0.85, "share of --memory-limit given to the Go heap")
	bindFlags(v, flags)

	return cmd
}

// openThumbnails loads the configuration and builds the database and the
// thumbnail manager shared by every command.
func openThumbnails(ctx context.Context, v *viper.Viper, holder *thumbnails.Holder) (*startup.Config, *database.Database, *thumbnails.Manager, error) {
	config, err := startup.LoadConfig(v)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("configuration error: %w", err)
	}

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"plex":  config.DataDir,
		"cache": config.CacheDir,
	}))

	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open Plex database: %w", err)
	}
	startup.LogDatabaseInit(config.DatabasePath, time.Since(dbStart))

	precise := startup.SelectPrecise(ctx, config, thumbnails.CanUseFFmpeg)
	manager, err := holder.Create(thumbnails.Options{
		Precise:      precise,
		DataDir:      config.DataDir,
		CacheDir:     config.ThumbnailCacheDir,
		Store:        db,
		CapacityHint: config.CacheCapacity,
		Extractor: transcoder.Config{
			FFmpegPath: config.FFmpegPath,
			Width:      config.ThumbnailWidth,
			Timeout:    config.FFmpegTimeout,
			Workers:    config.FFmpegWorkers,
		},
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Warn("Failed to close database: %v", closeErr)
		}
		return nil, nil, nil, fmt.Errorf("failed to create thumbnail manager: %w", err)
	}
	startup.LogThumbnailInit(manager.Backend(), config.CacheCapacity)

	return config, db, manager, nil
}

func runServe(ctx context.Context, v *viper.Viper) error {
	startTime := time.Now()
	startup.PrintBanner()

	var holder thumbnails.Holder
	config, db, manager, err := openThumbnails(ctx, v, &holder)
	if err != nil {
		return err
	}

	memory.Configure(config.MemoryLimit, config.MemoryRatio)

	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion, manager.Backend())

	collector := metrics.NewCollector(manager, metricsInterval)
	collector.Start()

	stopDBMetrics := make(chan struct{})
	go func() {
		ticker := time.NewTicker(dbMetricsInterval)
		defer ticker.Stop()
		for {
			db.UpdateDBMetrics()
			select {
			case <-ticker.C:
			case <-stopDBMetrics:
				return
			}
		}
	}()

	h := handlers.New(manager, db)
	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      middleware.Logger(loggingConfig)(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: config.FFmpegTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = &http.Server{
			Addr:        ":" + config.MetricsPort,
			Handler:     setupMetricsRouter(h),
			ReadTimeout: 15 * time.Second,
		}
	}

	serverErr := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server error: %w", err)
		}
	}()
	if metricsSrv != nil {
		go func() {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	h.SetReady(true)
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		startup.LogShutdownInitiated(sig.String())
	case runErr = <-serverErr:
		logging.Error("%v", runErr)
		startup.LogShutdownInitiated("server failure")
	case <-ctx.Done():
		startup.LogShutdownInitiated(ctx.Err().Error())
	}

	h.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	close(stopDBMetrics)
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownStep("Closing thumbnail manager")
	holder.Close(true)
	startup.LogShutdownStepComplete("Thumbnail manager closed")

	startup.LogShutdownStep("Closing database")
	if err := db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
	logging.Sync()
	return runErr
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnail/{id:[0-9]+}", h.HasThumbnails).Methods("GET")
	api.HandleFunc("/thumbnail/{id:[0-9]+}/{timestamp:-?[0-9]+}", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/thumbnail/{id:[0-9]+}/invalidate", h.InvalidateThumbnails).Methods("POST")

	return r
}

func setupMetricsRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", handlers.MetricsHandler()).Methods("GET")
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	return r
}
