package phorg

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// View identifies one of the link-based browsing hierarchies built over the
// canonical store.
type View string

const (
	ViewByTime     View = "by-time"
	ViewByCamera   View = "by-camera"
	ViewByLocation View = "by-location"
	ViewByImport   View = "by-import"
)

// Views lists every view root, in bootstrap order.
var Views = []View{ViewByTime, ViewByCamera, ViewByLocation, ViewByImport}

// derivedViews are the views regenerated by rebuild. by-import is excluded:
// its link names are the only record of original file names once provenance
// is discarded, and batch directories cannot be reproduced from content.
var derivedViews = []View{ViewByTime, ViewByCamera, ViewByLocation}

// Linker creates and removes view links idempotently. Hardlinks by default;
// symlinks by configuration.
type Linker struct {
	base    string
	symlink bool
}

// NewLinker creates a Linker rooted at the library base directory.
func NewLinker(base string, symlink bool) *Linker {
	return &Linker{base: base, symlink: symlink}
}

// resolve is the single path-resolution routine shared by Link and Unlink.
func (l *Linker) resolve(view View, segments []string) string {
	parts := append([]string{l.base, string(view)}, segments...)
	return filepath.Join(parts...)
}

// Link creates a link to canonical under the view at the given segments.
// Parent directories are created as needed. An existing target makes this a
// no-op; reports whether a link was created.
func (l *Linker) Link(view View, segments []string, canonical string) (bool, error) {
	target := l.resolve(view, segments)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return false, fmt.Errorf("creating view directory: %w", err)
	}
	if _, err := os.Lstat(target); err == nil {
		return false, nil
	}
	linkFn := os.Link
	if l.symlink {
		linkFn = os.Symlink
	}
	if err := linkFn(canonical, target); err != nil {
		return false, fmt.Errorf("linking %s: %w", target, err)
	}
	return true, nil
}

// Unlink removes the link at the given segments if present; no-op otherwise.
// Reports whether a link was removed.
func (l *Linker) Unlink(view View, segments []string) (bool, error) {
	target := l.resolve(view, segments)
	if _, err := os.Lstat(target); err != nil {
		return false, nil
	}
	if err := os.Remove(target); err != nil {
		return false, fmt.Errorf("unlinking %s: %w", target, err)
	}
	return true, nil
}

// RemoveMatching walks a view tree and removes every link whose leaf name
// equals filename. Used when removing content whose exact place segments
// are no longer known.
func (l *Linker) RemoveMatching(view View, filename string) error {
	root := l.resolve(view, nil)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && d.Name() == filename {
			return os.Remove(p)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s links: %w", view, err)
	}
	return nil
}

// ResetDerivedViews discards and recreates the view roots regenerated by
// rebuild.
func (l *Linker) ResetDerivedViews() error {
	for _, v := range derivedViews {
		root := l.resolve(v, nil)
		if err := os.RemoveAll(root); err != nil {
			return fmt.Errorf("clearing %s: %w", v, err)
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return fmt.Errorf("recreating %s: %w", v, err)
		}
	}
	return nil
}

// ViewFileName builds the deterministic link name for the time, camera and
// location views: the UTC view stamp, an underscore, the first 8 hex chars
// of the hash, and the extension. Collision-resistant even for unresolved
// times thanks to the hash segment.
func ViewFileName(stamp, hash, ext string) string {
	return stamp + "_" + hash[:8] + ext
}

// TimeSegments returns year/month/filename for the by-time view, derived
// from the view stamp.
func TimeSegments(stamp, filename string) []string {
	return []string{stamp[0:4], stamp[5:7], filename}
}

// CameraName derives the by-camera directory from the tag map: sanitized
// "Make Model", or "Screenshot" when the file identifies itself as one.
// Empty when no camera information is present.
func CameraName(tags map[string]any) string {
	name := ""
	if c, ok := tags["UserComment"].(string); ok && c == "Screenshot" {
		name = "Screenshot"
	}
	if make, ok := tags["Make"].(string); ok {
		name = make
	}
	if model, ok := tags["Model"].(string); ok {
		name += " " + model
	}
	return SanitizeSegment(strings.TrimSpace(name))
}

// SanitizeSegment makes a tag value safe to use as a single path element.
func SanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, string(filepath.Separator), "_")
	return strings.Trim(s, ". ")
}

// ImportFallbackName disambiguates a by-import link when the plain original
// name already exists within the batch: the parent directory name is
// prefixed to it.
func ImportFallbackName(src string) string {
	return filepath.Base(filepath.Dir(src)) + "_" + filepath.Base(src)
}
