package phorg

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
)

// OperationalError marks a recognized per-file failure: copy/clone errors,
// external tool exits, permission problems. The library counts and logs
// these and continues with the next file. Anything else aborts the run,
// since continuing risks silent catalog corruption.
type OperationalError struct {
	Op  string
	Err error
}

func (e *OperationalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperationalError) Unwrap() error { return e.Err }

// Operational wraps err as an OperationalError.
func Operational(op string, err error) error {
	return &OperationalError{Op: op, Err: err}
}

// IsOperational reports whether err belongs to the recognized recoverable
// set. Permission errors and non-zero external-tool exits count even when
// not explicitly wrapped.
func IsOperational(err error) bool {
	var oe *OperationalError
	if errors.As(err, &oe) {
		return true
	}
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	var ee *exec.ExitError
	return errors.As(err, &ee)
}
