package testutil

import "phorg/internal/phorg"

// FakeGeoResolver returns a fixed place path for every coordinate pair and
// records the lookups it served.
type FakeGeoResolver struct {
	Segments []string
	Calls    int
}

func NewFakeGeoResolver(segments ...string) *FakeGeoResolver {
	if len(segments) == 0 {
		segments = []string{"Testland", "Testville"}
	}
	return &FakeGeoResolver{Segments: segments}
}

func (g *FakeGeoResolver) ResolveName(lat, lon float64) ([]string, error) {
	g.Calls++
	return g.Segments, nil
}

var _ phorg.GeoResolver = (*FakeGeoResolver)(nil)
