package extract

import (
	"fmt"
	"os"

	"github.com/rwcarlsen/goexif/exif"

	"phorg/internal/phorg"
)

// exifTimeLayout is the timestamp format used throughout extracted tag
// maps, with a trailing zone offset for filesystem times.
const (
	exifTimeLayout       = "2006:01:02 15:04:05"
	exifTimeLayoutOffset = "2006:01:02 15:04:05-07:00"
)

// Native is an in-process Extractor built on goexif. It covers the tags
// the organizer actually consumes (timestamps, camera make/model, GPS) and
// needs no external binary. Files goexif cannot decode degrade to a tag
// map holding only the filesystem modification time.
type Native struct{}

// NewNative creates a Native extractor.
func NewNative() *Native { return &Native{} }

// Extract reads the file's EXIF block and returns a tag map shaped like
// exiftool output.
func (n *Native) Extract(path string) (map[string]any, error) {
	tags := map[string]any{}

	info, err := os.Stat(path)
	if err != nil {
		return nil, phorg.Operational("reading file info", fmt.Errorf("stat %s: %w", path, err))
	}
	tags["FileModifyDate"] = info.ModTime().Format(exifTimeLayoutOffset)

	f, err := os.Open(path)
	if err != nil {
		return nil, phorg.Operational("opening file", fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		// Not an EXIF carrier (or a broken one); mtime is all we have.
		return tags, nil
	}

	copyString(tags, x, exif.DateTimeOriginal, "DateTimeOriginal")
	copyString(tags, x, exif.DateTimeDigitized, "CreateDate")
	copyString(tags, x, exif.DateTime, "ModifyDate")
	copyString(tags, x, exif.Make, "Make")
	copyString(tags, x, exif.Model, "Model")

	if lat, lon, err := x.LatLong(); err == nil {
		tags["GPSLatitude"] = lat
		tags["GPSLongitude"] = lon
	}
	return tags, nil
}

// Close is a no-op; Native holds no external resources.
func (n *Native) Close() error { return nil }

func copyString(tags map[string]any, x *exif.Exif, field exif.FieldName, key string) {
	tag, err := x.Get(field)
	if err != nil {
		return
	}
	if s, err := tag.StringVal(); err == nil && s != "" {
		tags[key] = s
	}
}

// Compile-time check that Native implements phorg.Extractor
var _ phorg.Extractor = (*Native)(nil)
