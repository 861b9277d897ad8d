//go:build !linux

package store

import "errors"

// cloneFile is unavailable on this platform; ingest always takes the plain
// copy path.
func cloneFile(src, dest string) error {
	return errors.ErrUnsupported
}
