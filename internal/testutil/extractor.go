package testutil

import "phorg/internal/phorg"

// FakeExtractor returns canned tag maps keyed by file path, falling back to
// Default for unknown paths.
type FakeExtractor struct {
	Tags    map[string]map[string]any
	Default map[string]any
	Calls   []string
}

func NewFakeExtractor() *FakeExtractor {
	return &FakeExtractor{Tags: map[string]map[string]any{}}
}

// Set registers the tag map returned for path.
func (e *FakeExtractor) Set(path string, tags map[string]any) {
	e.Tags[path] = tags
}

func (e *FakeExtractor) Extract(path string) (map[string]any, error) {
	e.Calls = append(e.Calls, path)
	if tags, ok := e.Tags[path]; ok {
		return tags, nil
	}
	if e.Default != nil {
		return e.Default, nil
	}
	return map[string]any{}, nil
}

func (e *FakeExtractor) Close() error { return nil }

var _ phorg.Extractor = (*FakeExtractor)(nil)
