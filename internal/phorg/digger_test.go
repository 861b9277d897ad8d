package phorg

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func collect(t *testing.T, d *Digger, root string) []string {
	t.Helper()
	var got []string
	err := d.Dig(root, func(p string) error {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		got = append(got, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("Dig() error = %v", err)
	}
	slices.Sort(got)
	return got
}

func TestDigger_Dig(t *testing.T) {
	t.Run("yields only recognized extensions", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "a.jpg"), "x")
		writeFile(t, filepath.Join(root, "b.MOV"), "x")
		writeFile(t, filepath.Join(root, "notes.txt"), "x")
		writeFile(t, filepath.Join(root, "sub", "c.png"), "x")

		got := collect(t, NewDigger(nil), root)
		want := []string{"a.jpg", "b.MOV", filepath.Join("sub", "c.png")}
		if !slices.Equal(got, want) {
			t.Errorf("Dig() = %v, want %v", got, want)
		}
	})

	t.Run("stop marker excludes a subtree", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "a.jpg"), "x")
		writeFile(t, filepath.Join(root, "skip", "b.jpg"), "x")
		writeFile(t, filepath.Join(root, "skip", "deeper", "c.jpg"), "x")
		if err := WriteStopMarker(filepath.Join(root, "skip")); err != nil {
			t.Fatalf("WriteStopMarker() error = %v", err)
		}

		got := collect(t, NewDigger(nil), root)
		want := []string{"a.jpg"}
		if !slices.Equal(got, want) {
			t.Errorf("Dig() = %v, want %v", got, want)
		}
	})

	t.Run("stop marker at the root yields nothing", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "a.jpg"), "x")
		if err := WriteStopMarker(root); err != nil {
			t.Fatalf("WriteStopMarker() error = %v", err)
		}

		if got := collect(t, NewDigger(nil), root); len(got) != 0 {
			t.Errorf("Dig() = %v, want empty", got)
		}
	})

	t.Run("ignore names and globs", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, ".git", "a.jpg"), "x")
		writeFile(t, filepath.Join(root, "cache", "b.jpg"), "x")
		writeFile(t, filepath.Join(root, "c.jpg"), "x")
		writeFile(t, filepath.Join(root, "._resource.jpg"), "x")

		d := NewDigger(nil)
		d.AddIgnoreNames([]string{"cache"})
		d.AddIgnoreGlobs([]string{"._*"})

		got := collect(t, d, root)
		want := []string{"c.jpg"}
		if !slices.Equal(got, want) {
			t.Errorf("Dig() = %v, want %v", got, want)
		}
	})

	t.Run("single eligible file as root", func(t *testing.T) {
		root := t.TempDir()
		p := filepath.Join(root, "a.jpg")
		writeFile(t, p, "x")

		var got []string
		d := NewDigger(nil)
		if err := d.Dig(p, func(p string) error { got = append(got, p); return nil }); err != nil {
			t.Fatalf("Dig() error = %v", err)
		}
		if len(got) != 1 || got[0] != p {
			t.Errorf("Dig() = %v, want [%s]", got, p)
		}
	})

	t.Run("symlinked directory is not followed", func(t *testing.T) {
		root := t.TempDir()
		outside := t.TempDir()
		writeFile(t, filepath.Join(outside, "a.jpg"), "x")
		if err := os.Symlink(outside, filepath.Join(root, "linked")); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
		writeFile(t, filepath.Join(root, "b.jpg"), "x")

		got := collect(t, NewDigger(nil), root)
		want := []string{"b.jpg"}
		if !slices.Equal(got, want) {
			t.Errorf("Dig() = %v, want %v", got, want)
		}
	})

	t.Run("missing root is an error", func(t *testing.T) {
		d := NewDigger(nil)
		if err := d.Dig(filepath.Join(t.TempDir(), "nope"), func(string) error { return nil }); err == nil {
			t.Error("Dig() expected error for missing root")
		}
	})
}

func TestDigger_AddExtensions(t *testing.T) {
	d := NewDigger(nil)
	d.AddExtensions([]string{"CR2", ".nef"})

	exts := d.Extensions()
	for _, want := range []string{".cr2", ".nef", ".jpg"} {
		if !slices.Contains(exts, want) {
			t.Errorf("Extensions() missing %q", want)
		}
	}
	if !slices.IsSorted(exts) {
		t.Error("Extensions() not sorted")
	}
}

func TestWriteStopMarker_Idempotent(t *testing.T) {
	dir := t.TempDir()
	if err := WriteStopMarker(dir); err != nil {
		t.Fatalf("first WriteStopMarker() error = %v", err)
	}
	if err := WriteStopMarker(dir); err != nil {
		t.Fatalf("second WriteStopMarker() error = %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dir, StopMarker)); err != nil {
		t.Fatalf("stop marker missing: %v", err)
	}
}
