package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"phorg/internal/catalog"
	"phorg/internal/config"
	"phorg/internal/extract"
	"phorg/internal/geo"
	"phorg/internal/phorg"
	"phorg/internal/store"
)

// PhorgApp is the application layer between the CLI and the Library.
// It constructs all dependencies from config and manages their lifecycle
// on Close.
type PhorgApp struct {
	cfg       *config.Config
	catalog   *catalog.SQLiteCatalog
	extractor phorg.Extractor
	library   *phorg.Library
	logFile   *os.File
}

// NewPhorgApp creates a fully wired PhorgApp from the given config. The
// base directory layout (hash-lib, data, log, views) is created on first
// use. The caller must call Close when done.
func NewPhorgApp(cfg *config.Config) (*PhorgApp, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("base_dir not configured")
	}
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.BaseDir, "log")
	}

	if err := bootstrap(cfg.BaseDir); err != nil {
		return nil, err
	}

	batch := phorg.BatchID(time.Now())
	logger, logFile, err := newLogger(cfg.LogDir, batch)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	plog := &slogAdapter{l: logger}

	cat, err := catalog.Open(filepath.Join(cfg.BaseDir, "data", "catalog.db"))
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	st, err := store.New(cfg.BaseDir, plog)
	if err != nil {
		cat.Close()
		logFile.Close()
		return nil, fmt.Errorf("opening content store: %w", err)
	}

	extractor, err := newExtractor(cfg.Extractor, plog)
	if err != nil {
		cat.Close()
		logFile.Close()
		return nil, err
	}

	resolver := geo.NewResolver(cat, geoOptions(cfg.Geocode), plog)
	linker := phorg.NewLinker(cfg.BaseDir, cfg.Views.Symlink)

	digger := phorg.NewDigger(plog)
	digger.AddExtensions(cfg.Digger.Extensions)
	digger.AddIgnoreNames(cfg.Digger.IgnoreNames)
	digger.AddIgnoreGlobs(cfg.Digger.IgnoreGlobs)

	lib := phorg.NewLibrary(cat, st, extractor, resolver, linker, digger, plog, phorg.LibraryOptions{
		Views: phorg.ViewToggles{
			Import:   cfg.Views.Import,
			Time:     cfg.Views.Time,
			Camera:   cfg.Views.Camera,
			Location: cfg.Views.Location,
		},
		LogDir: cfg.LogDir,
	})

	return &PhorgApp{
		cfg:       cfg,
		catalog:   cat,
		extractor: extractor,
		library:   lib,
		logFile:   logFile,
	}, nil
}

// bootstrap creates the library directory skeleton and drops a stop marker
// at the base so an import pointed at the library itself goes nowhere.
func bootstrap(baseDir string) error {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "data")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := phorg.WriteStopMarker(baseDir); err != nil {
		return fmt.Errorf("writing stop marker: %w", err)
	}
	return nil
}

// newExtractor builds the configured metadata extractor.
func newExtractor(cfg config.ExtractorConfig, logger phorg.Logger) (phorg.Extractor, error) {
	scrub := cfg.Scrub
	if scrub == nil {
		scrub = extract.DefaultScrubPatterns
	}
	switch cfg.Type {
	case "", "exiftool":
		return extract.NewExifTool(cfg.Command, cfg.RecycleAfter, extract.NewScrubber(scrub), logger), nil
	case "native":
		return extract.NewNative(), nil
	default:
		return nil, fmt.Errorf("unknown extractor type: %s", cfg.Type)
	}
}

func geoOptions(cfg config.GeocodeConfig) geo.Options {
	opts := geo.DefaultOptions()
	if cfg.URL != "" {
		opts.URL = cfg.URL
	}
	opts.Language = cfg.Language
	if cfg.ClosenessKm > 0 {
		opts.ClosenessKm = cfg.ClosenessKm
	}
	if cfg.Attempts > 0 {
		opts.Attempts = cfg.Attempts
	}
	if cfg.BackoffMs > 0 {
		opts.Backoff = time.Duration(cfg.BackoffMs) * time.Millisecond
	}
	if cfg.TimeoutMs > 0 {
		opts.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return opts
}

// Import ingests every eligible file under the given paths.
func (a *PhorgApp) Import(paths []string, extensions []string) (phorg.Stats, error) {
	if len(extensions) > 0 {
		a.library.AddExtensions(extensions)
	}
	return a.library.Import(paths)
}

// Remove deletes every eligible file under the given paths from the library
// and marks it ignored for future imports.
func (a *PhorgApp) Remove(paths []string) (phorg.Stats, error) {
	return a.library.Remove(paths)
}

// UndoLastImport reverts the most recent import batch.
func (a *PhorgApp) UndoLastImport() (phorg.Stats, error) {
	return a.library.UndoLastImport()
}

// Rebuild regenerates the derived views from the content store. With reset
// the catalog's file and metadata rows are rebuilt too.
func (a *PhorgApp) Rebuild(reset bool) (phorg.Stats, error) {
	return a.library.Rebuild(reset)
}

// Infer fills in missing GPS positions from temporally nearby files.
func (a *PhorgApp) Infer() (phorg.Stats, error) {
	return a.library.Infer()
}

// Extensions returns the sorted list of recognized file extensions.
func (a *PhorgApp) Extensions() []string {
	return a.library.Extensions()
}

// Close shuts down the extractor, the catalog and the log file.
func (a *PhorgApp) Close() error {
	var firstErr error

	if err := a.extractor.Close(); err != nil {
		firstErr = fmt.Errorf("closing extractor: %w", err)
	}
	if err := a.catalog.Close(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("closing catalog: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
