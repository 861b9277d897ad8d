package phorg

// ContentStore is the sha256-addressed canonical store. Every stored file
// satisfies sha256(storedBytes) == the hash encoded in its canonical path.
type ContentStore interface {
	// HashFile streams the file through sha256 and returns the hex digest.
	HashFile(path string) (string, error)

	// Ingest places src under its canonical path if the hash is not yet
	// present, trying a reflink clone before falling back once to a plain
	// copy. Returns the canonical path and whether a new copy was made.
	// The extension recorded on first ingest is permanent.
	Ingest(src, hash string) (canonical string, isNew bool, err error)

	// Locate returns the canonical path for a hash, or "" when absent.
	// The lookup ignores the extension.
	Locate(hash string) (string, error)

	// Remove deletes a stored file.
	Remove(canonical string) error

	// Walk calls fn for every stored file, in deterministic order.
	Walk(fn func(canonical string) error) error
}
