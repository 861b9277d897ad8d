//go:build linux

package store

import (
	"os"

	"golang.org/x/sys/unix"
)

// cloneFile attempts a reflink clone of src to dest. Only works when both
// paths live on the same CoW-capable filesystem (btrfs, xfs); the caller
// falls back to a plain copy otherwise.
func cloneFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	if err := unix.IoctlFileClone(int(out.Fd()), int(in.Fd())); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
