package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"plex-thumbnails/internal/logging"
	"plex-thumbnails/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

const (
	// LibraryDBName is the file name of the Plex library database.
	LibraryDBName = "com.plexapp.plugins.library.db"

	busyTimeoutMs = 5000
)

// DefaultPath returns the library database location inside a Plex data directory.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "Plug-in Support", "Databases", LibraryDBName)
}

const partHashesQuery = `
	SELECT mp.hash
	FROM metadata_items mi
	INNER JOIN media_items mitem ON mitem.metadata_item_id = mi.id
	INNER JOIN media_parts mp ON mp.media_item_id = mitem.id
	WHERE mi.id = ? AND mp.hash IS NOT NULL AND mp.hash != ''
	ORDER BY mp.updated_at DESC, mp.id DESC`

const partFilesQuery = `
	SELECT mp.id, mp.file, COALESCE(mitem.duration, 0)
	FROM metadata_items mi
	INNER JOIN media_items mitem ON mitem.metadata_item_id = mi.id
	INNER JOIN media_parts mp ON mp.media_item_id = mitem.id
	WHERE mi.id = ? AND mp.file IS NOT NULL AND mp.file != ''
	ORDER BY mitem.duration DESC, mp.id ASC`

// Database is a read-only handle on the Plex library database.
type Database struct {
	db     *sql.DB
	dbPath string
}

// New opens the library database at dbPath read-only and verifies the
// connection. The file must already exist.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Library database path: %s", dbPath)

	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("library database not accessible: %w", err)
	}

	db, err := sql.Open("sqlite3", connString(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	err = db.PingContext(pingCtx)
	recordQuery("ping", start, err)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Reads only; a handful of connections covers concurrent requests
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	d := &Database{db: db, dbPath: dbPath}
	d.UpdateDBMetrics()
	return d, nil
}

func connString(dbPath string) string {
	q := url.Values{}
	q.Set("mode", "ro")
	q.Set("_busy_timeout", fmt.Sprintf("%d", busyTimeoutMs))
	q.Set("_query_only", "true")
	// SQLite decodes %XX in URI paths; Plex paths contain spaces
	path := (&url.URL{Path: filepath.ToSlash(dbPath)}).EscapedPath()
	return "file:" + path + "?" + q.Encode()
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks that the database is still reachable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	err := d.db.PingContext(ctx)
	recordQuery("ping", start, err)
	return err
}

// PartHashes returns the media part hashes of a metadata item, most
// recently updated first. An unknown item yields an empty slice.
func (d *Database) PartHashes(ctx context.Context, metadataID int64) (hashes []string, err error) {
	start := time.Now()
	defer func() { recordQuery("part_hashes", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, partHashesQuery, metadataID)
	if err != nil {
		return nil, fmt.Errorf("query part hashes for %d: %w", metadataID, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Warn("failed to close rows: %v", closeErr)
		}
	}()

	for rows.Next() {
		var hash string
		if err = rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan part hash: %w", err)
		}
		hashes = append(hashes, hash)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate part hashes: %w", err)
	}

	logging.Debug("Item %d has %d part hash(es)", metadataID, len(hashes))
	return hashes, nil
}

// PartFiles returns the media parts of a metadata item ordered by
// duration, longest first. An unknown item yields an empty slice.
func (d *Database) PartFiles(ctx context.Context, metadataID int64) (parts []MediaPart, err error) {
	start := time.Now()
	defer func() { recordQuery("part_files", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, partFilesQuery, metadataID)
	if err != nil {
		return nil, fmt.Errorf("query part files for %d: %w", metadataID, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Warn("failed to close rows: %v", closeErr)
		}
	}()

	for rows.Next() {
		var p MediaPart
		if err = rows.Scan(&p.ID, &p.File, &p.DurationMs); err != nil {
			return nil, fmt.Errorf("scan part file: %w", err)
		}
		parts = append(parts, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate part files: %w", err)
	}

	logging.Debug("Item %d has %d part file(s)", metadataID, len(parts))
	return parts, nil
}

// GetStats reports connection pool usage.
func (d *Database) GetStats() Stats {
	s := d.db.Stats()
	return Stats{
		Path:            d.dbPath,
		OpenConnections: s.OpenConnections,
		InUse:           s.InUse,
	}
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	metrics.DBConnectionsOpen.Set(float64(d.GetStats().OpenConnections))
}
