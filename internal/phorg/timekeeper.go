package phorg

import (
	"fmt"
	"strings"
	"time"
)

// exifTimeLayout is the base layout exiftool uses for every datetime tag.
// Fractional seconds and a trailing Z or ±HH:MM offset are handled separately.
const exifTimeLayout = "2006:01:02 15:04:05"

// UnresolvedUTCTime is stored in the catalog when no recognized timestamp
// tag could be parsed for a file.
const UnresolvedUTCTime = "0000-00-00T00:00:00+00:00"

// unresolvedStamp is the filename prefix used for files without a
// reconciled capture time.
const unresolvedStamp = "0000-00-00_000000"

// timeTag describes one recognized timestamp source. Rank decides which tag
// wins when several are present; utc marks offset-less values that are
// already UTC rather than local time.
type timeTag struct {
	name string
	rank int
	utc  bool
}

// timeTags is ordered highest rank first. FileModifyDate is a pure fallback:
// it is present on every file and only wins when nothing else parsed.
var timeTags = []timeTag{
	{"GPSDateTime", 6, true},
	{"SonyDateTime2", 5, true},
	{"SonyDateTime", 4, false},
	{"DateTimeOriginal", 3, false},
	{"CreateDate", 2, false},
	{"ModifyDate", 1, false},
	{"FileModifyDate", 0, false},
}

// TimeKeeper reconciles several named, possibly conflicting timestamp
// candidates into one authoritative capture instant. The highest-ranked tag
// that parses wins, independent of the order candidates are added.
type TimeKeeper struct {
	local    *time.Location
	logger   Logger
	when     time.Time
	rank     int
	resolved bool
}

// NewTimeKeeper creates a TimeKeeper. local is the zone applied to
// offset-less values of tags not flagged as UTC; pass nil for time.Local.
func NewTimeKeeper(local *time.Location, logger Logger) *TimeKeeper {
	if local == nil {
		local = time.Local
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &TimeKeeper{local: local, logger: logger, rank: -1}
}

// AddAll feeds every recognized tag from an extracted tag map. Non-string
// values are skipped.
func (k *TimeKeeper) AddAll(tags map[string]any) {
	for _, tt := range timeTags {
		if v, ok := tags[tt.name]; ok {
			if s, ok := v.(string); ok {
				k.add(tt, s)
			}
		}
	}
}

// Add feeds a single candidate. Unrecognized tags are ignored.
func (k *TimeKeeper) Add(tag, value string) {
	for _, tt := range timeTags {
		if tt.name == tag {
			k.add(tt, value)
			return
		}
	}
}

func (k *TimeKeeper) add(tt timeTag, value string) {
	if value == "" || (k.resolved && tt.rank <= k.rank) {
		return
	}
	t, err := parseExifTime(value, tt.utc, k.local)
	if err != nil {
		// One bad tag never aborts reconciliation of the others.
		k.logger.Warn("unparseable timestamp tag", "tag", tt.name, "value", value, "error", err)
		return
	}
	k.when = t
	k.rank = tt.rank
	k.resolved = true
}

// Resolved reports whether any recognized tag parsed.
func (k *TimeKeeper) Resolved() bool { return k.resolved }

// Time returns the reconciled instant. Only valid when Resolved is true.
func (k *TimeKeeper) Time() time.Time { return k.when }

// ISOTime renders the reconciled instant with its original offset preserved,
// or "" when unresolved.
func (k *TimeKeeper) ISOTime() string {
	if !k.resolved {
		return ""
	}
	return isoFormat(k.when)
}

// UTCNormalized renders the reconciled instant shifted to UTC, or "" when
// unresolved.
func (k *TimeKeeper) UTCNormalized() string {
	if !k.resolved {
		return ""
	}
	return isoFormat(k.when.UTC())
}

// ViewStamp returns the UTC-normalized YYYY-MM-DD_HHMMSS prefix used for
// view link names, or the all-zero sentinel when unresolved.
func (k *TimeKeeper) ViewStamp() string {
	if !k.resolved {
		return unresolvedStamp
	}
	return k.when.UTC().Format("2006-01-02_150405")
}

// CatalogUTCTime returns UTCNormalized, or the catalog sentinel when
// unresolved. The catalog's utc_time column is always populated.
func (k *TimeKeeper) CatalogUTCTime() string {
	if !k.resolved {
		return UnresolvedUTCTime
	}
	return k.UTCNormalized()
}

// parseExifTime parses YYYY:MM:DD HH:MM:SS with optional fractional seconds
// and an optional trailing Z or ±HH:MM offset. An explicit offset is attached
// verbatim; otherwise the tag's UTC flag or the local zone decides.
func parseExifTime(raw string, utc bool, local *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)

	loc := local
	if utc {
		loc = time.UTC
	}

	// Explicit ±HH:MM offset wins over the UTC flag and the local zone.
	if n := len(s); n >= 6 && (s[n-6] == '+' || s[n-6] == '-') && s[n-3] == ':' {
		var hh, mm int
		sign := 1
		if s[n-6] == '-' {
			sign = -1
		}
		if _, err := fmt.Sscanf(s[n-5:], "%02d:%02d", &hh, &mm); err != nil {
			return time.Time{}, fmt.Errorf("parsing offset %q: %w", s[n-6:], err)
		}
		loc = time.FixedZone(s[n-6:], sign*(hh*3600+mm*60))
		s = s[:n-6]
	} else if strings.HasSuffix(s, "Z") {
		loc = time.UTC
		s = strings.TrimSuffix(s, "Z")
	}

	// Split off fractional seconds.
	var frac time.Duration
	if i := strings.IndexByte(s, '.'); i >= 0 {
		digits := s[i+1:]
		ns := int64(0)
		for _, c := range digits {
			if c < '0' || c > '9' {
				return time.Time{}, fmt.Errorf("invalid fractional seconds in %q", raw)
			}
		}
		for j := 0; j < 9; j++ {
			ns *= 10
			if j < len(digits) {
				ns += int64(digits[j] - '0')
			}
		}
		frac = time.Duration(ns)
		s = s[:i]
	}

	t, err := time.ParseInLocation(exifTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(frac), nil
}

// isoFormat renders a time as 2006-01-02T15:04:05[.ffffff]±HH:MM, with
// microsecond precision only when a fractional component is present.
func isoFormat(t time.Time) string {
	s := t.Format("2006-01-02T15:04:05")
	if us := t.Nanosecond() / 1000; us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	return s + t.Format("-07:00")
}

// viewStampFromUTC rebuilds the YYYY-MM-DD_HHMMSS view prefix from a stored
// utc_time value. Sentinel or malformed values yield the unresolved stamp.
func viewStampFromUTC(utcTime string) string {
	t, ok := parseUTCTime(utcTime)
	if !ok {
		return unresolvedStamp
	}
	return t.UTC().Format("2006-01-02_150405")
}
