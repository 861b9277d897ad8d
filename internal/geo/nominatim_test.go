package geo

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"phorg/internal/phorg"
)

// fakeCache is an in-memory geo.Cache.
type fakeCache struct {
	places []*phorg.Place
}

func (c *fakeCache) PlacesContaining(lat, lon float64) ([]*phorg.Place, error) {
	var out []*phorg.Place
	for _, p := range c.places {
		if p.South < lat && lat < p.North && p.West < lon && lon < p.East {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *fakeCache) UpsertPlace(p *phorg.Place) error {
	c.places = append(c.places, p)
	return nil
}

const parisResponse = `{
	"place_id": 42,
	"lat": "48.8588897",
	"lon": "2.3200410",
	"display_name": "Paris, Ile-de-France, France",
	"address": {"city": "Paris", "state": "Ile-de-France", "country": "France"},
	"boundingbox": ["48.8155755", "48.9021560", "2.2241220", "2.4697602"]
}`

func testOptions(url string) Options {
	opts := DefaultOptions()
	opts.URL = url
	opts.Backoff = time.Millisecond
	opts.Timeout = time.Second
	return opts
}

func TestResolver_ResolveName(t *testing.T) {
	t.Run("remote hit fills the cache", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if got := r.URL.Query().Get("format"); got != "jsonv2" {
				t.Errorf("format = %q, want jsonv2", got)
			}
			if got := r.URL.Query().Get("zoom"); got != "12" {
				t.Errorf("zoom = %q, want 12", got)
			}
			fmt.Fprint(w, parisResponse)
		}))
		defer srv.Close()

		cache := &fakeCache{}
		r := NewResolver(cache, testOptions(srv.URL), nil)

		segments, err := r.ResolveName(48.8584, 2.2945)
		if err != nil {
			t.Fatalf("ResolveName() error = %v", err)
		}
		if len(segments) != 2 || segments[0] != "France" || segments[1] != "Paris" {
			t.Errorf("ResolveName() = %v, want [France Paris]", segments)
		}
		if calls != 1 {
			t.Errorf("remote calls = %d, want 1", calls)
		}
		if len(cache.places) != 1 {
			t.Fatalf("cached places = %d, want 1", len(cache.places))
		}
		if cache.places[0].PlaceID != 42 {
			t.Errorf("cached PlaceID = %d, want 42", cache.places[0].PlaceID)
		}
	})

	t.Run("second lookup nearby is served from the cache", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			fmt.Fprint(w, parisResponse)
		}))
		defer srv.Close()

		r := NewResolver(&fakeCache{}, testOptions(srv.URL), nil)

		if _, err := r.ResolveName(48.8584, 2.2945); err != nil {
			t.Fatalf("first ResolveName() error = %v", err)
		}
		// A few hundred meters away, inside the bounding box.
		segments, err := r.ResolveName(48.8600, 2.3000)
		if err != nil {
			t.Fatalf("second ResolveName() error = %v", err)
		}
		if len(segments) != 2 || segments[1] != "Paris" {
			t.Errorf("second ResolveName() = %v, want [France Paris]", segments)
		}
		if calls != 1 {
			t.Errorf("remote calls = %d, want 1 (second lookup should hit the cache)", calls)
		}
	})

	t.Run("containment alone is not enough beyond the closeness threshold", func(t *testing.T) {
		// A huge cached box whose reference point is far from the query.
		cache := &fakeCache{places: []*phorg.Place{{
			PlaceID: 1, Lat: 48.85, Lon: 2.32,
			South: 40, North: 55, West: -5, East: 10,
			Address: map[string]string{"country": "France", "city": "Paris"},
		}}}
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			fmt.Fprint(w, parisResponse)
		}))
		defer srv.Close()

		r := NewResolver(cache, testOptions(srv.URL), nil)
		// Marseille: inside the box, ~650 km from the reference point.
		if _, err := r.ResolveName(43.2965, 5.3698); err != nil {
			t.Fatalf("ResolveName() error = %v", err)
		}
		if calls != 1 {
			t.Errorf("remote calls = %d, want 1 (distant cached box must not match)", calls)
		}
	})

	t.Run("retries transient server errors", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, parisResponse)
		}))
		defer srv.Close()

		r := NewResolver(&fakeCache{}, testOptions(srv.URL), nil)
		segments, err := r.ResolveName(48.8584, 2.2945)
		if err != nil {
			t.Fatalf("ResolveName() error = %v", err)
		}
		if len(segments) != 2 || segments[1] != "Paris" {
			t.Errorf("ResolveName() = %v, want [France Paris]", segments)
		}
		if calls != 3 {
			t.Errorf("remote calls = %d, want 3", calls)
		}
	})

	t.Run("degrades to a deterministic unknown path", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		r := NewResolver(&fakeCache{}, testOptions(srv.URL), nil)
		segments, err := r.ResolveName(1.5, -2.25)
		if err != nil {
			t.Fatalf("ResolveName() error = %v", err)
		}
		want := []string{"Unknown", "1.5_-2.25"}
		if len(segments) != 2 || segments[0] != want[0] || segments[1] != want[1] {
			t.Errorf("ResolveName() = %v, want %v", segments, want)
		}
	})
}

func TestPlaceName(t *testing.T) {
	tests := []struct {
		name  string
		place *phorg.Place
		want  []string
	}{
		{
			"country and city",
			&phorg.Place{Address: map[string]string{"country": "France", "city": "Paris", "state": "IdF"}},
			[]string{"France", "Paris"},
		},
		{
			"village before town",
			&phorg.Place{Address: map[string]string{"country": "Italy", "town": "T", "village": "V"}},
			[]string{"Italy", "V"},
		},
		{
			"archipelago inserted",
			&phorg.Place{Address: map[string]string{"country": "Spain", "archipelago": "Canary Islands", "municipality": "Teguise"}},
			[]string{"Spain", "Canary Islands", "Teguise"},
		},
		{
			"country only",
			&phorg.Place{Address: map[string]string{"country": "Iceland"}},
			[]string{"Iceland"},
		},
		{
			"display name fallback",
			&phorg.Place{Address: map[string]string{}, DisplayName: "Somewhere"},
			[]string{"Somewhere"},
		},
		{
			"unknown fallback",
			&phorg.Place{Address: map[string]string{}},
			[]string{"Unknown", "1_2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := placeName(tt.place, 1, 2)
			if len(got) != len(tt.want) {
				t.Fatalf("placeName() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("placeName()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestHaversineKm(t *testing.T) {
	// Paris to Marseille is roughly 660 km.
	d := haversineKm(48.8566, 2.3522, 43.2965, 5.3698)
	if d < 600 || d > 700 {
		t.Errorf("haversineKm() = %v, want ~660", d)
	}
	if d := haversineKm(10, 20, 10, 20); d != 0 {
		t.Errorf("haversineKm() same point = %v, want 0", d)
	}
}

func TestDecodePlace(t *testing.T) {
	t.Run("valid response", func(t *testing.T) {
		p, err := decodePlace([]byte(parisResponse))
		if err != nil {
			t.Fatalf("decodePlace() error = %v", err)
		}
		if p.PlaceID != 42 {
			t.Errorf("PlaceID = %d, want 42", p.PlaceID)
		}
		if p.South != 48.8155755 || p.North != 48.9021560 {
			t.Errorf("bbox lat = (%v, %v)", p.South, p.North)
		}
		if p.West != 2.2241220 || p.East != 2.4697602 {
			t.Errorf("bbox lon = (%v, %v)", p.West, p.East)
		}
	})

	t.Run("malformed bounding box", func(t *testing.T) {
		if _, err := decodePlace([]byte(`{"place_id": 1, "lat": "1", "lon": "2", "boundingbox": ["1", "2"]}`)); err == nil {
			t.Error("decodePlace() expected error for short bounding box")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := decodePlace([]byte(`not json`)); err == nil {
			t.Error("decodePlace() expected error for invalid json")
		}
	})
}
