package phorg

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Per-file terminal states.
const (
	OutcomeImported = "imported"
	OutcomeExisted  = "existed"
	OutcomeIgnored  = "ignored"
	OutcomeRemoved  = "removed"
	OutcomeAbsent   = "absent"
	OutcomeRebuilt  = "rebuilt"
	OutcomeInferred = "inferred"
)

// Per-file diagnostic flags, appended in step order to the trace trail.
const (
	flagStored     = "#"
	flagImportLink = "i"
	flagTimeLink   = "t"
	flagCameraLink = "c"
	flagPlaceLink  = "g"
	flagDeleted    = "-"
	flagLoaded     = "~"
)

// ViewToggles selects which views an operation maintains.
type ViewToggles struct {
	Import   bool
	Time     bool
	Camera   bool
	Location bool
}

// AllViews enables every view.
func AllViews() ViewToggles {
	return ViewToggles{Import: true, Time: true, Camera: true, Location: true}
}

// LibraryOptions carries the optional collaborators of a Library.
type LibraryOptions struct {
	Views  ViewToggles
	LogDir string
	Local  *time.Location // zone for offset-less local timestamps; nil = time.Local
	Clock  Clock          // nil = RealClock
	IDGen  IDGenerator    // nil = UUIDGenerator
}

// Library orchestrates the import pipeline and the maintenance commands
// over the catalog, content store, extractor, geocoder and linker. One
// Library value corresponds to one run (one batch).
type Library struct {
	catalog   Catalog
	store     ContentStore
	extractor Extractor
	geo       GeoResolver
	linker    *Linker
	digger    *Digger
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	views     ViewToggles
	local     *time.Location
	logDir    string
	batch     string
}

// NewLibrary wires a Library from its dependencies.
func NewLibrary(catalog Catalog, store ContentStore, extractor Extractor, geo GeoResolver, linker *Linker, digger *Digger, logger Logger, opts LibraryOptions) *Library {
	if logger == nil {
		logger = NewNopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.IDGen == nil {
		opts.IDGen = UUIDGenerator{}
	}
	if opts.Local == nil {
		opts.Local = time.Local
	}
	return &Library{
		catalog:   catalog,
		store:     store,
		extractor: extractor,
		geo:       geo,
		linker:    linker,
		digger:    digger,
		logger:    logger,
		clock:     opts.Clock,
		idgen:     opts.IDGen,
		views:     opts.Views,
		local:     opts.Local,
		logDir:    opts.LogDir,
		batch:     BatchID(opts.Clock.Now()),
	}
}

// Batch returns this run's batch id.
func (l *Library) Batch() string { return l.batch }

// AddExtensions extends the set of recognized file extensions for this run.
func (l *Library) AddExtensions(exts []string) { l.digger.AddExtensions(exts) }

// Extensions returns the sorted list of recognized file extensions.
func (l *Library) Extensions() []string { return l.digger.Extensions() }

// fileContext is the short-lived per-file value threaded through one
// pipeline pass. A fresh one is built for every file; no state crosses
// files.
type fileContext struct {
	src       string
	hash      string
	ext       string
	canonical string
	tags      map[string]any
	keeper    *TimeKeeper
	viewName  string
	flags     []string
}

// Import digs each path recursively and runs the import pipeline per file:
// new -> hashed -> {existed | ignored | stored+extracted -> linked -> recorded}.
func (l *Library) Import(paths []string) (Stats, error) {
	var stats Stats
	return stats, l.run("import", &stats, func(trace *Trace) error {
		for _, root := range paths {
			err := l.digger.Dig(root, func(p string) error {
				return l.processFile(p, trace, &stats, l.importOne)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Remove digs each path and removes the matching content from the library:
// canonical file, view links, and a catalog tombstone so identical content
// is skipped on future imports.
func (l *Library) Remove(paths []string) (Stats, error) {
	var stats Stats
	return stats, l.run("remove", &stats, func(trace *Trace) error {
		for _, root := range paths {
			err := l.digger.Dig(root, func(p string) error {
				return l.processFile(p, trace, &stats, l.removeOne)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// UndoLastImport removes every file of the most recent import batch, but
// leaves no tombstones: the content remains re-importable.
func (l *Library) UndoLastImport() (Stats, error) {
	var stats Stats
	return stats, l.run("undo", &stats, func(trace *Trace) error {
		batch, err := l.catalog.LatestBatch()
		if err != nil {
			return fmt.Errorf("finding latest batch: %w", err)
		}
		if batch == "" {
			l.logger.Info("nothing to undo")
			return nil
		}
		recs, err := l.catalog.FilesInBatch(batch)
		if err != nil {
			return fmt.Errorf("loading batch %s: %w", batch, err)
		}
		l.logger.Info("undoing batch", "batch", batch, "files", len(recs))
		for _, rec := range recs {
			rec := rec
			err := l.processFile(rec.Hash, trace, &stats, func(fc *fileContext) (string, error) {
				return l.undoOne(fc, rec)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Rebuild clears and regenerates the derived views by re-scanning the
// canonical store. With reset the whole catalog is discarded and rebuilt;
// otherwise only the extracted-tags table is dropped and regenerated.
func (l *Library) Rebuild(reset bool) (Stats, error) {
	var stats Stats
	return stats, l.run("rebuild", &stats, func(trace *Trace) error {
		if reset {
			if err := l.catalog.Reset(); err != nil {
				return fmt.Errorf("resetting catalog: %w", err)
			}
		} else {
			if err := l.catalog.ClearExif(); err != nil {
				return fmt.Errorf("clearing extracted tags: %w", err)
			}
		}
		if err := l.linker.ResetDerivedViews(); err != nil {
			return err
		}
		return l.store.Walk(func(canonical string) error {
			return l.processFile(canonical, trace, &stats, func(fc *fileContext) (string, error) {
				return l.rebuildOne(fc, reset)
			})
		})
	})
}

// Infer borrows coordinates for catalog rows lacking GPS from the
// closest-in-time GPS-bearing row and links a location view from them,
// replacing any prior location link.
func (l *Library) Infer() (Stats, error) {
	var stats Stats
	return stats, l.run("infer", &stats, func(trace *Trace) error {
		sources, err := l.catalog.GpsRecords()
		if err != nil {
			return fmt.Errorf("loading gps records: %w", err)
		}
		if len(sources) == 0 {
			l.logger.Info("no gps-bearing records, nothing to infer")
			return nil
		}
		targets, err := l.catalog.RecordsWithoutGps()
		if err != nil {
			return fmt.Errorf("loading records without gps: %w", err)
		}
		for _, target := range targets {
			target := target
			err := l.processFile(target.Hash, trace, &stats, func(fc *fileContext) (string, error) {
				return l.inferOne(fc, target, sources)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// run wraps one command invocation: trace log, run history row, and
// guaranteed cleanup on every exit path including aborts.
func (l *Library) run(command string, stats *Stats, fn func(trace *Trace) error) (err error) {
	trace, terr := OpenTrace(l.logDir, command, l.batch)
	if terr != nil {
		return terr
	}
	run := &Run{
		ID:        l.idgen.New(),
		Command:   command,
		Batch:     l.batch,
		StartedAt: l.clock.Now(),
		Status:    "running",
	}
	if rerr := l.catalog.RecordRun(run); rerr != nil {
		trace.Close()
		return fmt.Errorf("recording run: %w", rerr)
	}

	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		trace.Summary(*stats)
		if cerr := trace.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing trace log: %w", cerr)
		}
		if ferr := l.catalog.FinishRun(run.ID, status, *stats); ferr != nil && err == nil {
			err = fmt.Errorf("finishing run: %w", ferr)
		}
		l.logger.Info("run finished", "command", command, "batch", l.batch, "status", status, "stats", stats.Summary())
	}()

	return fn(trace)
}

// processFile applies the failure policy around one per-file step:
// recognized operational failures are counted, logged and traced, and
// processing continues; anything else is traced with the partial flag trail
// and re-raised, aborting the batch.
func (l *Library) processFile(p string, trace *Trace, stats *Stats, fn func(fc *fileContext) (string, error)) error {
	stats.Scanned++
	fc := &fileContext{src: p}
	outcome, err := fn(fc)
	if err != nil {
		stats.Errored++
		trace.Error(p, fc.flags, err)
		if IsOperational(err) {
			l.logger.Warn("file failed", "path", p, "error", err)
			return nil
		}
		l.logger.Error("unexpected failure, aborting batch", "path", p, "error", err)
		return err
	}

	switch outcome {
	case OutcomeImported, OutcomeRebuilt, OutcomeInferred:
		stats.Imported++
	case OutcomeExisted:
		stats.Existed++
	case OutcomeIgnored:
		stats.Ignored++
	case OutcomeRemoved:
		stats.Deleted++
	}
	trace.File(p, fc.canonical, outcome, fc.flags)
	l.logger.Debug("file processed", "path", p, "outcome", outcome)
	return nil
}

func (l *Library) importOne(fc *fileContext) (string, error) {
	hash, err := l.store.HashFile(fc.src)
	if err != nil {
		return "", err
	}
	fc.hash = hash
	fc.ext = strings.ToLower(filepath.Ext(fc.src))

	// Catalog tri-state: unknown, imported, or ignored.
	rec, err := l.catalog.FindFile(hash)
	if err != nil {
		return "", err
	}
	if rec != nil && rec.Ignored {
		return OutcomeIgnored, nil
	}
	if rec != nil {
		fc.canonical, _ = l.store.Locate(hash)
		return OutcomeExisted, nil
	}

	canonical, isNew, err := l.store.Ingest(fc.src, hash)
	if err != nil {
		return "", err
	}
	fc.canonical = canonical
	if isNew {
		fc.flags = append(fc.flags, flagStored)
	}

	if err := l.annotate(fc); err != nil {
		return "", err
	}
	if err := l.buildViews(fc, true); err != nil {
		return "", err
	}

	newRec := &FileRecord{
		Hash:         hash,
		Ext:          fc.ext,
		OriginalName: filepath.Base(fc.src),
		Batch:        l.batch,
		Imported:     true,
	}
	if err := l.catalog.UpsertFile(newRec); err != nil {
		return "", fmt.Errorf("recording provenance: %w", err)
	}
	if err := l.catalog.UpsertExif(l.exifRecord(fc)); err != nil {
		return "", fmt.Errorf("recording tags: %w", err)
	}

	if isNew {
		return OutcomeImported, nil
	}
	return OutcomeExisted, nil
}

func (l *Library) removeOne(fc *fileContext) (string, error) {
	hash, err := l.store.HashFile(fc.src)
	if err != nil {
		return "", err
	}
	fc.hash = hash
	fc.ext = strings.ToLower(filepath.Ext(fc.src))

	canonical, err := l.store.Locate(hash)
	if err != nil {
		return "", err
	}
	if canonical == "" {
		return OutcomeAbsent, nil
	}
	fc.canonical = canonical

	// Extract before deleting so the view links can still be located.
	if err := l.annotate(fc); err != nil {
		return "", err
	}
	if err := l.store.Remove(canonical); err != nil {
		return "", err
	}
	fc.flags = append(fc.flags, flagDeleted)

	if err := l.removeLinks(hash, fc.viewName); err != nil {
		return "", err
	}
	if err := l.catalog.TombstoneFile(hash); err != nil {
		return "", fmt.Errorf("tombstoning: %w", err)
	}
	return OutcomeRemoved, nil
}

func (l *Library) undoOne(fc *fileContext, rec *FileRecord) (string, error) {
	fc.hash = rec.Hash
	fc.ext = rec.Ext

	stamp := unresolvedStamp
	if exif, err := l.catalog.FindExif(rec.Hash); err != nil {
		return "", err
	} else if exif != nil {
		stamp = viewStampFromUTC(exif.UTCTime)
	}
	fc.viewName = ViewFileName(stamp, rec.Hash, rec.Ext)

	canonical, err := l.store.Locate(rec.Hash)
	if err != nil {
		return "", err
	}
	if canonical != "" {
		fc.canonical = canonical
		if err := l.store.Remove(canonical); err != nil {
			return "", err
		}
		fc.flags = append(fc.flags, flagDeleted)
	}

	if err := l.removeLinks(rec.Hash, fc.viewName); err != nil {
		return "", err
	}
	// No tombstone: the content stays re-importable.
	if err := l.catalog.DeleteFile(rec.Hash); err != nil {
		return "", fmt.Errorf("deleting catalog rows: %w", err)
	}
	return OutcomeRemoved, nil
}

func (l *Library) rebuildOne(fc *fileContext, reset bool) (string, error) {
	// The stored filename stem is trusted as the content hash after a
	// format check; no re-hash pass.
	base := filepath.Base(fc.src)
	fc.ext = filepath.Ext(base)
	stem := strings.TrimSuffix(base, fc.ext)
	if !isHexHash(stem) {
		return "", Operational("rebuild", fmt.Errorf("not a canonical file name: %s", base))
	}
	fc.hash = stem
	fc.canonical = fc.src
	fc.flags = append(fc.flags, flagLoaded)

	if err := l.annotate(fc); err != nil {
		return "", err
	}
	if err := l.buildViews(fc, false); err != nil {
		return "", err
	}

	if reset {
		// Provenance was discarded; origin names are not recoverable from
		// canonical content.
		newRec := &FileRecord{
			Hash:     fc.hash,
			Ext:      fc.ext,
			Batch:    l.batch,
			Imported: true,
		}
		if err := l.catalog.UpsertFile(newRec); err != nil {
			return "", fmt.Errorf("recording provenance: %w", err)
		}
	}
	if err := l.catalog.UpsertExif(l.exifRecord(fc)); err != nil {
		return "", fmt.Errorf("recording tags: %w", err)
	}
	return OutcomeRebuilt, nil
}

func (l *Library) inferOne(fc *fileContext, target *GpsPoint, sources []*GpsPoint) (string, error) {
	fc.hash = target.Hash
	fc.ext = target.Ext

	when, ok := parseUTCTime(target.UTCTime)
	if !ok {
		// Without a resolved time there is no nearest-in-time neighbor.
		return OutcomeIgnored, nil
	}

	var best *GpsPoint
	var bestDelta time.Duration
	for _, src := range sources {
		st, ok := parseUTCTime(src.UTCTime)
		if !ok {
			continue
		}
		delta := when.Sub(st).Abs()
		if best == nil || delta < bestDelta {
			best, bestDelta = src, delta
		}
	}
	if best == nil {
		return OutcomeIgnored, nil
	}

	derived := &DerivedGps{
		Hash:         target.Hash,
		Lat:          best.Lat,
		Lon:          best.Lon,
		UTCTime:      target.UTCTime,
		DeltaSeconds: int64(bestDelta / time.Second),
	}
	if err := l.catalog.UpsertDerivedGps(derived); err != nil {
		return "", fmt.Errorf("recording derived gps: %w", err)
	}

	fc.viewName = ViewFileName(viewStampFromUTC(target.UTCTime), target.Hash, target.Ext)
	if err := l.linker.RemoveMatching(ViewByLocation, fc.viewName); err != nil {
		return "", err
	}

	canonical, err := l.store.Locate(target.Hash)
	if err != nil {
		return "", err
	}
	if canonical == "" {
		return OutcomeAbsent, nil
	}
	fc.canonical = canonical

	segments, err := l.geo.ResolveName(best.Lat, best.Lon)
	if err != nil {
		return "", err
	}
	if _, err := l.linker.Link(ViewByLocation, append(segments, fc.viewName), canonical); err != nil {
		return "", err
	}
	fc.flags = append(fc.flags, flagPlaceLink)
	return OutcomeInferred, nil
}

// annotate runs extraction and time reconciliation for the canonical file
// and derives the deterministic view file name.
func (l *Library) annotate(fc *fileContext) error {
	tags, err := l.extractor.Extract(fc.canonical)
	if err != nil {
		return err
	}
	fc.tags = tags

	keeper := NewTimeKeeper(l.local, l.logger)
	keeper.AddAll(tags)
	fc.keeper = keeper
	fc.viewName = ViewFileName(keeper.ViewStamp(), fc.hash, fc.ext)
	return nil
}

// buildViews creates the requested view links for one annotated file.
func (l *Library) buildViews(fc *fileContext, includeImport bool) error {
	if l.views.Import && includeImport {
		name := filepath.Base(fc.src)
		created, err := l.linker.Link(ViewByImport, []string{l.batch, name}, fc.canonical)
		if err != nil {
			return err
		}
		if !created {
			// The plain name collides within the batch.
			if _, err := l.linker.Link(ViewByImport, []string{l.batch, ImportFallbackName(fc.src)}, fc.canonical); err != nil {
				return err
			}
		}
		fc.flags = append(fc.flags, flagImportLink)
	}

	if l.views.Time {
		stamp := fc.keeper.ViewStamp()
		if _, err := l.linker.Link(ViewByTime, TimeSegments(stamp, fc.viewName), fc.canonical); err != nil {
			return err
		}
		fc.flags = append(fc.flags, flagTimeLink)
	}

	if l.views.Camera {
		if name := CameraName(fc.tags); name != "" {
			if _, err := l.linker.Link(ViewByCamera, []string{name, fc.viewName}, fc.canonical); err != nil {
				return err
			}
			fc.flags = append(fc.flags, flagCameraLink)
		}
	}

	if l.views.Location {
		if lat, lon, ok := GpsFromTags(fc.tags); ok {
			segments, err := l.geo.ResolveName(lat, lon)
			if err != nil {
				return err
			}
			if _, err := l.linker.Link(ViewByLocation, append(segments, fc.viewName), fc.canonical); err != nil {
				return err
			}
			fc.flags = append(fc.flags, flagPlaceLink)
		}
	}
	return nil
}

// removeLinks removes the derived-view links by their deterministic name
// and the import-batch link recorded in provenance.
func (l *Library) removeLinks(hash, viewName string) error {
	for _, v := range derivedViews {
		if err := l.linker.RemoveMatching(v, viewName); err != nil {
			return err
		}
	}
	rec, err := l.catalog.FindFile(hash)
	if err != nil {
		return err
	}
	if rec != nil && rec.Batch != "" && rec.OriginalName != "" {
		if _, err := l.linker.Unlink(ViewByImport, []string{rec.Batch, rec.OriginalName}); err != nil {
			return err
		}
	}
	return nil
}

func (l *Library) exifRecord(fc *fileContext) *ExifRecord {
	rec := &ExifRecord{
		Hash:    fc.hash,
		Tags:    fc.tags,
		UTCTime: fc.keeper.CatalogUTCTime(),
	}
	if lat, lon, ok := GpsFromTags(fc.tags); ok {
		rec.Lat = &lat
		rec.Lon = &lon
	}
	return rec
}

func isHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func parseUTCTime(s string) (time.Time, bool) {
	if s == "" || s == UnresolvedUTCTime {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999-07:00", "2006-01-02T15:04:05-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
