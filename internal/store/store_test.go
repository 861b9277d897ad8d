package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"phorg/internal/store"
	"phorg/internal/testutil"
)

func newStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	base := t.TempDir()
	s, err := store.New(base, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, base
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("writing source: %v", err)
	}
	return p
}

func TestNew_CreatesShards(t *testing.T) {
	_, base := newStore(t)

	for _, nibble := range []string{"0", "7", "a", "f"} {
		if _, err := os.Stat(filepath.Join(base, "hash-lib", nibble)); err != nil {
			t.Errorf("shard %s missing: %v", nibble, err)
		}
	}
}

func TestStore_HashFile(t *testing.T) {
	s, _ := newStore(t)
	src := writeSource(t, t.TempDir(), "a.jpg", "hello")

	got, err := s.HashFile(src)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	if want := testutil.SHA256Hex([]byte("hello")); got != want {
		t.Errorf("HashFile() = %q, want %q", got, want)
	}
}

func TestStore_Ingest(t *testing.T) {
	t.Run("stores under shard of first hash nibble", func(t *testing.T) {
		s, base := newStore(t)
		src := writeSource(t, t.TempDir(), "a.JPG", "hello")
		hash := testutil.SHA256Hex([]byte("hello"))

		canonical, isNew, err := s.Ingest(src, hash)
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if !isNew {
			t.Error("Ingest() isNew = false, want true")
		}
		// Extension is lowercased on the canonical copy.
		want := filepath.Join(base, "hash-lib", hash[:1], hash+".jpg")
		if canonical != want {
			t.Errorf("Ingest() canonical = %q, want %q", canonical, want)
		}

		data, err := os.ReadFile(canonical)
		if err != nil {
			t.Fatalf("reading canonical: %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("canonical content = %q, want %q", data, "hello")
		}
	})

	t.Run("is idempotent for identical content", func(t *testing.T) {
		s, _ := newStore(t)
		dir := t.TempDir()
		src1 := writeSource(t, dir, "a.jpg", "hello")
		src2 := writeSource(t, dir, "copy.jpeg", "hello")
		hash := testutil.SHA256Hex([]byte("hello"))

		first, _, err := s.Ingest(src1, hash)
		if err != nil {
			t.Fatalf("first Ingest() error = %v", err)
		}
		second, isNew, err := s.Ingest(src2, hash)
		if err != nil {
			t.Fatalf("second Ingest() error = %v", err)
		}
		if isNew {
			t.Error("second Ingest() isNew = true, want false")
		}
		// The extension recorded at first import is permanent.
		if second != first {
			t.Errorf("second Ingest() canonical = %q, want %q", second, first)
		}
	})
}

func TestStore_Locate(t *testing.T) {
	s, _ := newStore(t)
	src := writeSource(t, t.TempDir(), "a.jpg", "hello")
	hash := testutil.SHA256Hex([]byte("hello"))

	if got, err := s.Locate(hash); err != nil || got != "" {
		t.Fatalf("Locate() before ingest = (%q, %v), want (\"\", nil)", got, err)
	}

	canonical, _, err := s.Ingest(src, hash)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	got, err := s.Locate(hash)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if got != canonical {
		t.Errorf("Locate() = %q, want %q", got, canonical)
	}
}

func TestStore_Remove(t *testing.T) {
	s, _ := newStore(t)
	src := writeSource(t, t.TempDir(), "a.jpg", "hello")
	hash := testutil.SHA256Hex([]byte("hello"))

	canonical, _, err := s.Ingest(src, hash)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := s.Remove(canonical); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got, _ := s.Locate(hash); got != "" {
		t.Errorf("Locate() after Remove() = %q, want empty", got)
	}
}

func TestStore_Walk(t *testing.T) {
	s, _ := newStore(t)
	dir := t.TempDir()
	contents := []string{"one", "two", "three"}
	want := map[string]bool{}
	for i, c := range contents {
		src := writeSource(t, dir, string(rune('a'+i))+".jpg", c)
		hash := testutil.SHA256Hex([]byte(c))
		canonical, _, err := s.Ingest(src, hash)
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		want[canonical] = true
	}

	got := map[string]bool{}
	err := s.Walk(func(canonical string) error {
		got[canonical] = true
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Walk() visited %d files, want %d", len(got), len(want))
	}
	for p := range want {
		if !got[p] {
			t.Errorf("Walk() missed %s", p)
		}
	}
}
