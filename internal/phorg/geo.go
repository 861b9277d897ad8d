package phorg

// GeoResolver resolves a coordinate pair to the place path segments used by
// the location view, e.g. ["Norway", "Oslo"]. Resolution failures degrade to
// a deterministic unknown path rather than an error, so repeated failures
// for the same point stay stable.
type GeoResolver interface {
	ResolveName(lat, lon float64) ([]string, error)
}
