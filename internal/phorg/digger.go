package phorg

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// StopMarker is the file name that excludes a directory and all of its
// descendants from digging. The library base directory gets one at
// bootstrap so a library is never imported into itself.
const StopMarker = ".phorg_stop"

// Built-in importable extensions, all lowercase with leading dot.
var (
	ExtensionsPic = []string{
		".ras", ".xwd", ".bmp", ".jpe", ".jpg", ".jpeg", ".xpm", ".ief",
		".pbm", ".tif", ".tiff", ".gif", ".ppm", ".xbm", ".rgb", ".pgm",
		".png", ".pnm", ".heic", ".heif",
	}
	ExtensionsRaw = []string{".raw", ".arw"}
	ExtensionsMov = []string{".mov", ".mts", ".mp4", ".m4v"}
)

// DefaultIgnoreNames are directory names never descended into.
var DefaultIgnoreNames = []string{".AppleDouble", ".git", ".hg", ".svn", ".bzr"}

// Digger enumerates importable files depth-first. Directories containing
// the stop marker, matching an ignore name, or denying permission are
// skipped without descending. Symlinked directories are not followed;
// symlinked file leaves are still yielded.
type Digger struct {
	ignoreNames map[string]bool
	ignoreGlobs []string
	exts        map[string]bool
	logger      Logger
}

// NewDigger creates a Digger with the built-in extension allow-list plus
// the default ignore names.
func NewDigger(logger Logger) *Digger {
	if logger == nil {
		logger = NewNopLogger()
	}
	d := &Digger{
		ignoreNames: make(map[string]bool),
		exts:        make(map[string]bool),
		logger:      logger,
	}
	for _, n := range DefaultIgnoreNames {
		d.ignoreNames[n] = true
	}
	d.AddExtensions(ExtensionsPic)
	d.AddExtensions(ExtensionsRaw)
	d.AddExtensions(ExtensionsMov)
	return d
}

// AddExtensions extends the allow-list. A missing leading dot is tolerated;
// matching is case-insensitive.
func (d *Digger) AddExtensions(exts []string) {
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		d.exts[e] = true
	}
}

// AddIgnoreNames extends the directory ignore-name list.
func (d *Digger) AddIgnoreNames(names []string) {
	for _, n := range names {
		d.ignoreNames[n] = true
	}
}

// AddIgnoreGlobs extends the file-name ignore patterns.
func (d *Digger) AddIgnoreGlobs(globs []string) {
	d.ignoreGlobs = append(d.ignoreGlobs, globs...)
}

// Extensions returns the current allow-list, sorted.
func (d *Digger) Extensions() []string {
	out := make([]string, 0, len(d.exts))
	for e := range d.exts {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

// Dig walks root and calls fn for every importable file, in directory
// order. An error from fn aborts the walk and is returned unchanged; skip
// conditions are logged and never fatal.
func (d *Digger) Dig(root string, fn func(path string) error) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		if d.eligible(filepath.Base(root)) {
			return fn(root)
		}
		return nil
	}
	return d.digDir(root, fn)
}

func (d *Digger) digDir(dir string, fn func(path string) error) error {
	if _, err := os.Lstat(filepath.Join(dir, StopMarker)); err == nil {
		d.logger.Info("stop marker found, skipping", "dir", dir)
		return nil
	}
	if d.ignoreNames[filepath.Base(dir)] {
		d.logger.Debug("ignoring directory", "dir", dir)
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			d.logger.Warn("permission denied, skipping", "dir", dir)
			return nil
		}
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := d.digDir(p, fn); err != nil {
				return err
			}
			continue
		}
		// A symlink may point at a directory: yield only file leaves, and
		// never descend through links.
		if entry.Type()&os.ModeSymlink != 0 {
			target, err := os.Stat(p)
			if err != nil || target.IsDir() {
				continue
			}
		}
		if d.eligible(entry.Name()) {
			if err := fn(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Digger) eligible(name string) bool {
	if !d.exts[strings.ToLower(filepath.Ext(name))] {
		return false
	}
	for _, g := range d.ignoreGlobs {
		if ok, err := filepath.Match(g, name); err == nil && ok {
			return false
		}
	}
	return true
}

// WriteStopMarker creates the stop marker file in dir if absent.
func WriteStopMarker(dir string) error {
	p := filepath.Join(dir, StopMarker)
	if _, err := os.Lstat(p); err == nil {
		return nil
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("creating stop marker: %w", err)
	}
	return f.Close()
}
