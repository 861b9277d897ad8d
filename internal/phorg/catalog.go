package phorg

import "time"

// FileRecord is the provenance row for one distinct content hash. Created on
// first encounter and never duplicated; removal tombstones it (Ignored and
// Deleted set) rather than erasing the row.
type FileRecord struct {
	Hash         string // 64-hex sha256, primary key
	Ext          string // lowercased extension recorded at first import
	OriginalName string // file name at first import
	Batch        string // import batch id (run start timestamp)
	Imported     bool
	Ignored      bool
	Deleted      bool
}

// ExifRecord holds the extracted tag map plus derived fields for one hash.
// UTCTime is always populated, using UnresolvedUTCTime as a sentinel.
// Lat/Lon are set when the tags carry a GPS position.
type ExifRecord struct {
	Hash    string
	Tags    map[string]any
	UTCTime string
	Lat     *float64
	Lon     *float64
}

// Place is one cached reverse-geocoding result, keyed by the remote
// service's place id. The cache is append-only; place metadata changes
// rarely, so nothing is ever evicted.
type Place struct {
	PlaceID     int64
	Lat         float64 // reference point
	Lon         float64
	South       float64 // bounding box
	North       float64
	West        float64
	East        float64
	Address     map[string]string
	DisplayName string
}

// DerivedGps is a position borrowed from the closest-in-time GPS-bearing
// record. Produced only by the infer operation.
type DerivedGps struct {
	Hash         string
	Lat          float64
	Lon          float64
	UTCTime      string
	DeltaSeconds int64
}

// GpsPoint is a projection used by infer: one catalog row joined with its
// extension, with or without a position.
type GpsPoint struct {
	Hash    string
	Ext     string
	UTCTime string
	Lat     float64
	Lon     float64
}

// Run is one command invocation recorded in the catalog's history table.
type Run struct {
	ID         string
	Command    string
	Batch      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Stats      Stats
}

// Catalog provides persistent storage for provenance, extracted tags, the
// geocode cache and derived GPS data. Lookups return nil, nil when no row
// matches. Upserts are idempotent, last-writer-wins on primary key.
type Catalog interface {
	// Provenance

	FindFile(hash string) (*FileRecord, error)
	UpsertFile(rec *FileRecord) error
	// TombstoneFile marks content as intentionally removed: the row stays
	// with Ignored and Deleted set, so identical content is skipped on
	// future imports. Creates the row if it does not exist.
	TombstoneFile(hash string) error
	// DeleteFile erases provenance and tags outright, leaving the content
	// re-importable. Used by undo, never by remove.
	DeleteFile(hash string) error
	FilesInBatch(batch string) ([]*FileRecord, error)
	// LatestBatch returns the maximum batch id present, or "" when the
	// catalog holds no imported rows.
	LatestBatch() (string, error)

	// Extracted tags

	FindExif(hash string) (*ExifRecord, error)
	UpsertExif(rec *ExifRecord) error
	// ClearExif drops all extracted tags; provenance stays. Used by
	// rebuild without reset.
	ClearExif() error
	// Reset discards the whole catalog including provenance. Used by
	// rebuild with reset.
	Reset() error

	// Geocode cache

	UpsertPlace(p *Place) error
	// PlacesContaining returns cached places whose bounding box contains
	// the point.
	PlacesContaining(lat, lon float64) ([]*Place, error)

	// Derived GPS

	UpsertDerivedGps(d *DerivedGps) error
	// GpsRecords returns rows that carry a position and a resolved time.
	GpsRecords() ([]*GpsPoint, error)
	// RecordsWithoutGps returns rows lacking both an extracted and a
	// derived position.
	RecordsWithoutGps() ([]*GpsPoint, error)

	// Run history

	RecordRun(r *Run) error
	FinishRun(id, status string, stats Stats) error

	Close() error
}
