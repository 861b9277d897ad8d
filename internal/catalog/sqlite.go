// Package catalog implements the persistent metadata catalog on SQLite:
// provenance by hash, extracted tags, the geocode cache and derived GPS
// positions, plus the run history.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"phorg/internal/catalog/migrations"
	"phorg/internal/phorg"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteCatalog implements the phorg.Catalog interface using SQLite.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the catalog database and migrates it to the
// latest schema. path can be a file path or ":memory:".
func Open(path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating catalog: %w", err)
	}

	return &SQLiteCatalog{db: db, path: path}, nil
}

// Provenance operations

func (c *SQLiteCatalog) FindFile(hash string) (*phorg.FileRecord, error) {
	row := c.db.QueryRowContext(context.Background(),
		`SELECT hash, ext, original_name, batch, imported, ignored, deleted FROM files WHERE hash = ?`, hash)

	var rec phorg.FileRecord
	err := row.Scan(&rec.Hash, &rec.Ext, &rec.OriginalName, &rec.Batch, &rec.Imported, &rec.Ignored, &rec.Deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file by hash: %w", err)
	}
	return &rec, nil
}

func (c *SQLiteCatalog) UpsertFile(rec *phorg.FileRecord) error {
	_, err := c.db.ExecContext(context.Background(), `
		INSERT INTO files (hash, ext, original_name, batch, imported, ignored, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			ext = excluded.ext,
			original_name = excluded.original_name,
			batch = excluded.batch,
			imported = excluded.imported,
			ignored = excluded.ignored,
			deleted = excluded.deleted`,
		rec.Hash, rec.Ext, rec.OriginalName, rec.Batch, rec.Imported, rec.Ignored, rec.Deleted)
	if err != nil {
		return fmt.Errorf("upserting file: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) TombstoneFile(hash string) error {
	// The row is kept (created if missing) with ignored and deleted set, so
	// future imports of identical content are skipped, not resurrected.
	_, err := c.db.ExecContext(context.Background(), `
		INSERT INTO files (hash, imported, ignored, deleted) VALUES (?, 0, 1, 1)
		ON CONFLICT(hash) DO UPDATE SET ignored = 1, deleted = 1`, hash)
	if err != nil {
		return fmt.Errorf("tombstoning file: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) DeleteFile(hash string) error {
	ctx := context.Background()
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM exif WHERE hash = ?`,
		`DELETE FROM derived_gps WHERE hash = ?`,
		`DELETE FROM files WHERE hash = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, hash); err != nil {
			return fmt.Errorf("deleting catalog rows: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) FilesInBatch(batch string) ([]*phorg.FileRecord, error) {
	rows, err := c.db.QueryContext(context.Background(),
		`SELECT hash, ext, original_name, batch, imported, ignored, deleted FROM files WHERE batch = ? ORDER BY hash`, batch)
	if err != nil {
		return nil, fmt.Errorf("listing batch files: %w", err)
	}
	defer rows.Close()

	var result []*phorg.FileRecord
	for rows.Next() {
		var rec phorg.FileRecord
		if err := rows.Scan(&rec.Hash, &rec.Ext, &rec.OriginalName, &rec.Batch, &rec.Imported, &rec.Ignored, &rec.Deleted); err != nil {
			return nil, fmt.Errorf("scanning file row: %w", err)
		}
		result = append(result, &rec)
	}
	return result, rows.Err()
}

func (c *SQLiteCatalog) LatestBatch() (string, error) {
	row := c.db.QueryRowContext(context.Background(),
		`SELECT COALESCE(MAX(batch), '') FROM files WHERE imported = 1 AND batch != ''`)
	var batch string
	if err := row.Scan(&batch); err != nil {
		return "", fmt.Errorf("finding latest batch: %w", err)
	}
	return batch, nil
}

// Extracted-tags operations

func (c *SQLiteCatalog) FindExif(hash string) (*phorg.ExifRecord, error) {
	row := c.db.QueryRowContext(context.Background(),
		`SELECT hash, tags, utc_time, lat, lon FROM exif WHERE hash = ?`, hash)

	var rec phorg.ExifRecord
	var tags string
	var lat, lon sql.NullFloat64
	err := row.Scan(&rec.Hash, &tags, &rec.UTCTime, &lat, &lon)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding exif by hash: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
		return nil, fmt.Errorf("decoding tag map: %w", err)
	}
	if lat.Valid {
		rec.Lat = &lat.Float64
	}
	if lon.Valid {
		rec.Lon = &lon.Float64
	}
	return &rec, nil
}

func (c *SQLiteCatalog) UpsertExif(rec *phorg.ExifRecord) error {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("encoding tag map: %w", err)
	}

	var lat, lon sql.NullFloat64
	if rec.Lat != nil {
		lat = sql.NullFloat64{Float64: *rec.Lat, Valid: true}
	}
	if rec.Lon != nil {
		lon = sql.NullFloat64{Float64: *rec.Lon, Valid: true}
	}

	_, err = c.db.ExecContext(context.Background(), `
		INSERT INTO exif (hash, tags, utc_time, lat, lon) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			tags = excluded.tags,
			utc_time = excluded.utc_time,
			lat = excluded.lat,
			lon = excluded.lon`,
		rec.Hash, string(tags), rec.UTCTime, lat, lon)
	if err != nil {
		return fmt.Errorf("upserting exif: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) ClearExif() error {
	if _, err := c.db.ExecContext(context.Background(), `DELETE FROM exif`); err != nil {
		return fmt.Errorf("clearing exif: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) Reset() error {
	// The geocode cache and run history survive a reset: neither is
	// derived from library content.
	ctx := context.Background()
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM exif`,
		`DELETE FROM derived_gps`,
		`DELETE FROM files`,
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("resetting catalog: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Geocode cache operations

func (c *SQLiteCatalog) UpsertPlace(p *phorg.Place) error {
	address, err := json.Marshal(p.Address)
	if err != nil {
		return fmt.Errorf("encoding address: %w", err)
	}

	_, err = c.db.ExecContext(context.Background(), `
		INSERT INTO places (place_id, lat, lon, south, north, west, east, address, display_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(place_id) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			south = excluded.south,
			north = excluded.north,
			west = excluded.west,
			east = excluded.east,
			address = excluded.address,
			display_name = excluded.display_name`,
		p.PlaceID, p.Lat, p.Lon, p.South, p.North, p.West, p.East, string(address), p.DisplayName)
	if err != nil {
		return fmt.Errorf("upserting place: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) PlacesContaining(lat, lon float64) ([]*phorg.Place, error) {
	rows, err := c.db.QueryContext(context.Background(), `
		SELECT place_id, lat, lon, south, north, west, east, address, display_name
		FROM places
		WHERE south < ? AND ? < north AND west < ? AND ? < east`,
		lat, lat, lon, lon)
	if err != nil {
		return nil, fmt.Errorf("querying places: %w", err)
	}
	defer rows.Close()

	var result []*phorg.Place
	for rows.Next() {
		var p phorg.Place
		var address string
		if err := rows.Scan(&p.PlaceID, &p.Lat, &p.Lon, &p.South, &p.North, &p.West, &p.East, &address, &p.DisplayName); err != nil {
			return nil, fmt.Errorf("scanning place row: %w", err)
		}
		if err := json.Unmarshal([]byte(address), &p.Address); err != nil {
			return nil, fmt.Errorf("decoding address: %w", err)
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

// Derived-GPS operations

func (c *SQLiteCatalog) UpsertDerivedGps(d *phorg.DerivedGps) error {
	_, err := c.db.ExecContext(context.Background(), `
		INSERT INTO derived_gps (hash, lat, lon, utc_time, delta_seconds)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			utc_time = excluded.utc_time,
			delta_seconds = excluded.delta_seconds`,
		d.Hash, d.Lat, d.Lon, d.UTCTime, d.DeltaSeconds)
	if err != nil {
		return fmt.Errorf("upserting derived gps: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) GpsRecords() ([]*phorg.GpsPoint, error) {
	return c.queryPoints(`
		SELECT e.hash, f.ext, e.utc_time, e.lat, e.lon
		FROM exif e JOIN files f ON f.hash = e.hash
		WHERE e.lat IS NOT NULL AND e.lon IS NOT NULL AND f.deleted = 0
		ORDER BY e.hash`)
}

func (c *SQLiteCatalog) RecordsWithoutGps() ([]*phorg.GpsPoint, error) {
	return c.queryPoints(`
		SELECT e.hash, f.ext, e.utc_time, 0, 0
		FROM exif e JOIN files f ON f.hash = e.hash
		WHERE e.lat IS NULL AND f.deleted = 0
		  AND e.hash NOT IN (SELECT hash FROM derived_gps)
		ORDER BY e.hash`)
}

func (c *SQLiteCatalog) queryPoints(query string) ([]*phorg.GpsPoint, error) {
	rows, err := c.db.QueryContext(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("querying gps points: %w", err)
	}
	defer rows.Close()

	var result []*phorg.GpsPoint
	for rows.Next() {
		var p phorg.GpsPoint
		if err := rows.Scan(&p.Hash, &p.Ext, &p.UTCTime, &p.Lat, &p.Lon); err != nil {
			return nil, fmt.Errorf("scanning gps point: %w", err)
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

// Run history operations

func (c *SQLiteCatalog) RecordRun(r *phorg.Run) error {
	_, err := c.db.ExecContext(context.Background(), `
		INSERT INTO runs (id, command, batch, started_at, status)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Command, r.Batch, r.StartedAt, r.Status)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) FinishRun(id, status string, stats phorg.Stats) error {
	_, err := c.db.ExecContext(context.Background(), `
		UPDATE runs SET
			finished_at = CURRENT_TIMESTAMP,
			status = ?,
			scanned = ?, imported = ?, existed = ?, ignored = ?, deleted = ?, errored = ?
		WHERE id = ?`,
		status, stats.Scanned, stats.Imported, stats.Existed, stats.Ignored, stats.Deleted, stats.Errored, id)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}

// Path returns the database file path (or ":memory:").
func (c *SQLiteCatalog) Path() string { return c.path }

// Close closes the database connection.
func (c *SQLiteCatalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteCatalog implements phorg.Catalog
var _ phorg.Catalog = (*SQLiteCatalog)(nil)
