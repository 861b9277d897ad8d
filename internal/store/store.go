// Package store implements the sha256-addressed canonical content store:
// one deduplicated copy of every imported file under
// hash-lib/<nibble>/<hash><ext>.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"phorg/internal/phorg"
)

const hashBufferSize = 64 * 1024

// Store is the filesystem implementation of phorg.ContentStore.
type Store struct {
	root   string // <base>/hash-lib
	logger phorg.Logger
}

// New creates the store root and its sixteen hex-nibble shard directories.
func New(base string, logger phorg.Logger) (*Store, error) {
	if logger == nil {
		logger = phorg.NewNopLogger()
	}
	root := filepath.Join(base, "hash-lib")
	for _, nibble := range "0123456789abcdef" {
		if err := os.MkdirAll(filepath.Join(root, string(nibble)), 0755); err != nil {
			return nil, fmt.Errorf("creating shard directory: %w", err)
		}
	}
	return &Store{root: root, logger: logger}, nil
}

// HashFile streams the file through sha256 with a fixed-size buffer and
// returns the lowercase hex digest.
func (s *Store) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Locate returns the canonical path for a hash, or "" when absent. The
// glob ignores the extension: the one recorded at first import is
// permanent, even if the content is later re-encountered with a different
// case or suffix.
func (s *Store) Locate(hash string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.shardDir(hash), hash+".*"))
	if err != nil {
		return "", fmt.Errorf("globbing for %s: %w", hash, err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	return matches[0], nil
}

// Ingest places src under its canonical path unless the hash already
// exists. The clone fast path is tried first; on its first failure a plain
// byte copy is attempted transparently. A second failure is returned as an
// operational error so the caller can isolate the file and continue.
func (s *Store) Ingest(src, hash string) (string, bool, error) {
	existing, err := s.Locate(hash)
	if err != nil {
		return "", false, err
	}
	if existing != "" {
		return existing, false, nil
	}

	dest := filepath.Join(s.shardDir(hash), hash+strings.ToLower(filepath.Ext(src)))
	if err := cloneFile(src, dest); err != nil {
		s.logger.Debug("clone unavailable, copying", "src", src, "error", err)
		if err := s.copyFile(src, dest); err != nil {
			return "", false, phorg.Operational("storing "+src, err)
		}
	}
	return dest, true, nil
}

// Remove deletes a stored file.
func (s *Store) Remove(canonical string) error {
	if err := os.Remove(canonical); err != nil {
		return fmt.Errorf("removing %s: %w", canonical, err)
	}
	return nil
}

// Walk calls fn for every stored file, shard by shard in hex order.
func (s *Store) Walk(fn func(canonical string) error) error {
	for _, nibble := range "0123456789abcdef" {
		dir := filepath.Join(s.root, string(nibble))
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("reading shard %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := fn(filepath.Join(dir, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) shardDir(hash string) string {
	return filepath.Join(s.root, hash[0:1])
}

// copyFile writes src to dest atomically: temp file in the destination
// directory, then rename.
func (s *Store) copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copying data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that Store implements phorg.ContentStore
var _ phorg.ContentStore = (*Store)(nil)
