package phorg

import "fmt"

// Extractor returns the metadata tag map for one file. Implementations are
// long-lived and reused across files; Close releases any external process.
type Extractor interface {
	Extract(path string) (map[string]any, error)
	Close() error
}

// GpsFromTags pulls a position out of an extracted tag map. It accepts the
// split GPSLatitude/GPSLongitude pair (numeric, as produced by the
// extractor) or the combined "lat lon" GPSPosition string.
func GpsFromTags(tags map[string]any) (lat, lon float64, ok bool) {
	latV, latOK := toFloat(tags["GPSLatitude"])
	lonV, lonOK := toFloat(tags["GPSLongitude"])
	if latOK && lonOK {
		return latV, lonV, true
	}
	if pos, isStr := tags["GPSPosition"].(string); isStr {
		var la, lo float64
		if n, err := fmt.Sscanf(pos, "%f %f", &la, &lo); err == nil && n == 2 {
			return la, lo, true
		}
	}
	return 0, 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
