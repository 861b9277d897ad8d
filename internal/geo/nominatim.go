// Package geo resolves GPS coordinates to place names through a local
// spatial cache backed by the catalog, falling back to the Nominatim
// reverse-geocoding service.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"phorg/internal/phorg"
)

// DefaultURL is the public Nominatim reverse endpoint.
const DefaultURL = "https://nominatim.openstreetmap.org/reverse"

// reverseZoom requests city/town-level results.
const reverseZoom = "12"

// Cache is the catalog subset the resolver needs. Upserts are idempotent
// by place id; nothing is ever evicted — volume is bounded by distinct
// visited locations, not photo count.
type Cache interface {
	PlacesContaining(lat, lon float64) ([]*phorg.Place, error)
	UpsertPlace(p *phorg.Place) error
}

// Options holds the resolver's tuning knobs. The closeness threshold and
// retry constants carry no documented rationale; they stay overridable
// rather than hard-coded.
type Options struct {
	URL         string
	Language    string        // optional accept-language hint
	ClosenessKm float64       // max distance to a cached reference point
	Attempts    int           // remote tries per lookup
	Backoff     time.Duration // fixed delay between tries
	Timeout     time.Duration // HTTP client timeout
}

// DefaultOptions returns the stock tuning: 10 km closeness, 3 attempts,
// 1 s backoff, 10 s timeout.
func DefaultOptions() Options {
	return Options{
		URL:         DefaultURL,
		ClosenessKm: 10,
		Attempts:    3,
		Backoff:     time.Second,
		Timeout:     10 * time.Second,
	}
}

// response is the wire shape of a Nominatim reverse result.
type response struct {
	PlaceID     int64             `json:"place_id"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	BoundingBox []string          `json:"boundingbox"` // south, north, west, east
}

// Resolver implements phorg.GeoResolver.
type Resolver struct {
	cache  Cache
	opts   Options
	client *http.Client
	logger phorg.Logger
}

// NewResolver creates a Resolver over the given cache.
func NewResolver(cache Cache, opts Options, logger phorg.Logger) *Resolver {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if logger == nil {
		logger = phorg.NewNopLogger()
	}
	return &Resolver{
		cache:  cache,
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger,
	}
}

// ResolveName resolves a coordinate pair to place path segments. Remote
// failures degrade to a deterministic unknown path parameterized by the
// raw coordinates, so repeated failures for the same point are stable.
func (r *Resolver) ResolveName(lat, lon float64) ([]string, error) {
	place, err := r.lookupCache(lat, lon)
	if err != nil {
		return nil, err
	}
	if place == nil {
		place, err = r.lookupRemote(lat, lon)
		if err != nil {
			r.logger.Warn("reverse geocoding failed", "lat", lat, "lon", lon, "error", err)
			return unknownPath(lat, lon), nil
		}
	}
	return placeName(place, lat, lon), nil
}

// lookupCache returns the cached place containing the point whose
// reference point is nearest, if within the closeness threshold.
func (r *Resolver) lookupCache(lat, lon float64) (*phorg.Place, error) {
	candidates, err := r.cache.PlacesContaining(lat, lon)
	if err != nil {
		return nil, fmt.Errorf("querying geocode cache: %w", err)
	}

	var best *phorg.Place
	bestKm := math.Inf(1)
	for _, p := range candidates {
		if d := haversineKm(lat, lon, p.Lat, p.Lon); d < bestKm {
			best, bestKm = p, d
		}
	}
	if best == nil || bestKm > r.opts.ClosenessKm {
		return nil, nil // Cache miss
	}
	return best, nil
}

// lookupRemote queries the service with bounded retry and fixed backoff,
// persisting every success into the cache before returning.
func (r *Resolver) lookupRemote(lat, lon float64) (*phorg.Place, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("zoom", reverseZoom)
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	if r.opts.Language != "" {
		params.Set("accept-language", r.opts.Language)
	}
	reqURL := r.opts.URL + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < r.opts.Attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(r.opts.Backoff)
		}
		body, err := r.get(reqURL)
		if err != nil {
			lastErr = err
			continue
		}
		place, err := decodePlace(body)
		if err != nil {
			return nil, err
		}
		if err := r.cache.UpsertPlace(place); err != nil {
			return nil, fmt.Errorf("caching place: %w", err)
		}
		return place, nil
	}
	return nil, lastErr
}

func (r *Resolver) get(reqURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reverse geocoding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("reverse geocoding status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func decodePlace(body []byte) (*phorg.Place, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(resp.BoundingBox) != 4 {
		return nil, fmt.Errorf("malformed bounding box: %v", resp.BoundingBox)
	}

	var bbox [4]float64
	for i, s := range resp.BoundingBox {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing bounding box: %w", err)
		}
		bbox[i] = v
	}
	refLat, err := strconv.ParseFloat(resp.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing reference latitude: %w", err)
	}
	refLon, err := strconv.ParseFloat(resp.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing reference longitude: %w", err)
	}

	return &phorg.Place{
		PlaceID:     resp.PlaceID,
		Lat:         refLat,
		Lon:         refLon,
		South:       bbox[0],
		North:       bbox[1],
		West:        bbox[2],
		East:        bbox[3],
		Address:     resp.Address,
		DisplayName: resp.DisplayName,
	}, nil
}

// localityKeys is the preference order for the segment under the country.
var localityKeys = []string{"city", "village", "municipality", "town", "state", "county"}

// placeName derives path segments from a resolved place: country, then
// archipelago if present, then the first available locality; display name
// and the unknown path are fallbacks.
func placeName(p *phorg.Place, lat, lon float64) []string {
	if country, ok := p.Address["country"]; ok {
		segments := []string{phorg.SanitizeSegment(country)}
		if arch, ok := p.Address["archipelago"]; ok {
			segments = append(segments, phorg.SanitizeSegment(arch))
		}
		for _, key := range localityKeys {
			if v, ok := p.Address[key]; ok {
				return append(segments, phorg.SanitizeSegment(v))
			}
		}
		return segments
	}
	if p.DisplayName != "" {
		return []string{phorg.SanitizeSegment(p.DisplayName)}
	}
	return unknownPath(lat, lon)
}

// unknownPath is the deterministic fallback for unresolvable coordinates.
func unknownPath(lat, lon float64) []string {
	return []string{"Unknown", fmt.Sprintf("%s_%s",
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64))}
}

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// Compile-time check that Resolver implements phorg.GeoResolver
var _ phorg.GeoResolver = (*Resolver)(nil)
