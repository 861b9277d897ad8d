package testutil

import (
	"testing"

	"phorg/internal/catalog"
	"phorg/internal/phorg"
)

// NewTestCatalog creates a new in-memory SQLite catalog with schema applied.
// The catalog is automatically closed when the test completes.
func NewTestCatalog(t *testing.T) phorg.Catalog {
	t.Helper()

	cat, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}

	t.Cleanup(func() {
		cat.Close()
	})

	return cat
}
