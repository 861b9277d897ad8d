package phorg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Trace is the per-run trace log: one tab-separated terminal line per
// attempted file, including errored ones, plus the ordered flag trail
// collected from each sub-step.
type Trace struct {
	f *os.File
}

// OpenTrace creates log/<command>-<batch>.log under logDir.
func OpenTrace(logDir, command, batch string) (*Trace, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	p := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", command, batch))
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening trace log: %w", err)
	}
	return &Trace{f: f}, nil
}

// File writes one terminal line for a processed file.
func (t *Trace) File(path, canonical, outcome string, flags []string) {
	fmt.Fprintf(t.f, "%s\t%s\t%s\t%s\n", path, canonical, outcome, strings.Join(flags, ""))
}

// Error writes one terminal line for a failed file, with the partial flag
// trail collected before the failure.
func (t *Trace) Error(path string, flags []string, err error) {
	fmt.Fprintf(t.f, "%s\t\tERROR %v\t%s\n", path, err, strings.Join(flags, ""))
}

// Summary appends the end-of-run counts.
func (t *Trace) Summary(s Stats) {
	fmt.Fprintf(t.f, "# %s\n", s.Summary())
}

// Close flushes and closes the trace file.
func (t *Trace) Close() error {
	if t.f == nil {
		return nil
	}
	return t.f.Close()
}
