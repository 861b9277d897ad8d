// Package extract reads metadata tag maps from media files, either through
// a long-lived exiftool subprocess or a native in-process decoder.
package extract

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path"
	"strings"

	"phorg/internal/phorg"
)

// DefaultCommand is the exiftool binary looked up on PATH.
const DefaultCommand = "exiftool"

// DefaultRecycleAfter bounds the subprocess lifetime: after this many
// extractions the process is restarted to cap its memory growth.
const DefaultRecycleAfter = 500

// readyMarker terminates each response in stay_open mode.
const readyMarker = "{ready}"

// ExifTool is an Extractor backed by a persistent exiftool subprocess in
// -stay_open mode. The process is started lazily on first Extract and
// restarted transparently after RecycleAfter calls. Not safe for
// concurrent use.
type ExifTool struct {
	command      string
	recycleAfter int
	scrubber     *Scrubber
	logger       phorg.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	calls  int
}

// NewExifTool creates an ExifTool runner. A nil scrubber keeps every tag.
func NewExifTool(command string, recycleAfter int, scrubber *Scrubber, logger phorg.Logger) *ExifTool {
	if command == "" {
		command = DefaultCommand
	}
	if recycleAfter < 1 {
		recycleAfter = DefaultRecycleAfter
	}
	if logger == nil {
		logger = phorg.NewNopLogger()
	}
	return &ExifTool{
		command:      command,
		recycleAfter: recycleAfter,
		scrubber:     scrubber,
		logger:       logger,
	}
}

// Extract runs exiftool on the given file and returns the scrubbed tag map.
// Subprocess failures are operational: one broken file or a crashed helper
// must not take the whole batch down.
func (e *ExifTool) Extract(path string) (map[string]any, error) {
	if e.calls >= e.recycleAfter {
		e.logger.Debug("recycling exiftool process", "calls", e.calls)
		if err := e.Close(); err != nil {
			e.logger.Warn("closing exiftool for recycle", "error", err)
		}
	}
	if e.cmd == nil {
		if err := e.start(); err != nil {
			return nil, phorg.Operational("starting exiftool", err)
		}
	}
	e.calls++

	if _, err := fmt.Fprintf(e.stdin, "%s\n-execute\n", path); err != nil {
		e.shutdown()
		return nil, phorg.Operational("writing to exiftool", err)
	}
	raw, err := e.readResponse()
	if err != nil {
		e.shutdown()
		return nil, phorg.Operational("reading from exiftool", err)
	}

	tags, err := parseTags(raw)
	if err != nil {
		return nil, phorg.Operational("parsing exiftool output for "+path, err)
	}
	if e.scrubber != nil {
		tags = e.scrubber.Scrub(tags)
	}
	return tags, nil
}

// start launches the subprocess with the shared argument set. -n keeps
// numeric values numeric and -b inlines binary tags base64-encoded.
func (e *ExifTool) start() error {
	cmd := exec.Command(e.command,
		"-stay_open", "True",
		"-@", "-",
		"-common_args", "-json", "-n", "-b")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("opening stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("opening stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", e.command, err)
	}
	e.cmd = cmd
	e.stdin = stdin
	e.stdout = bufio.NewReader(stdout)
	e.calls = 0
	return nil
}

// readResponse collects output lines until the ready marker.
func (e *ExifTool) readResponse() ([]byte, error) {
	var buf strings.Builder
	for {
		line, err := e.stdout.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if strings.TrimSpace(line) == readyMarker {
			return []byte(buf.String()), nil
		}
		buf.WriteString(line)
	}
}

// Close asks the subprocess to exit and waits for it.
func (e *ExifTool) Close() error {
	if e.cmd == nil {
		return nil
	}
	if _, err := io.WriteString(e.stdin, "-stay_open\nFalse\n"); err != nil {
		e.shutdown()
		return fmt.Errorf("stopping exiftool: %w", err)
	}
	err := e.cmd.Wait()
	e.cmd = nil
	e.stdin = nil
	e.stdout = nil
	if err != nil {
		return fmt.Errorf("waiting for exiftool: %w", err)
	}
	return nil
}

// shutdown force-kills a wedged subprocess so the next Extract restarts it.
func (e *ExifTool) shutdown() {
	if e.cmd == nil {
		return
	}
	e.cmd.Process.Kill()
	e.cmd.Wait()
	e.cmd = nil
	e.stdin = nil
	e.stdout = nil
}

// parseTags decodes an exiftool -json response: a one-element array of tag
// objects. Binary values arrive with a "base64:" prefix and are decoded in
// place.
func parseTags(raw []byte) (map[string]any, error) {
	var results []map[string]any
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decoding tag array: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("empty tag array")
	}
	tags := results[0]
	for key, value := range tags {
		s, ok := value.(string)
		if !ok || !strings.HasPrefix(s, "base64:") {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, "base64:"))
		if err != nil {
			return nil, fmt.Errorf("decoding binary tag %s: %w", key, err)
		}
		tags[key] = string(decoded)
	}
	return tags, nil
}

// DefaultScrubPatterns removes bulky or volatile tags that would bloat the
// catalog without helping organization. FileModifyDate stays: it is the
// timestamp source of last resort.
var DefaultScrubPatterns = []string{
	"*Preview*",
	"Thumbnail*",
	"ExifToolVersion",
	"Directory",
	"SourceFile",
	"FileAccessDate",
	"FileInodeChangeDate",
	"FilePermissions",
}

// Scrubber drops tags whose names match any of a set of glob patterns.
type Scrubber struct {
	patterns []string
}

// NewScrubber builds a Scrubber; with no patterns it scrubs nothing.
func NewScrubber(patterns []string) *Scrubber {
	return &Scrubber{patterns: patterns}
}

// Scrub returns a copy of tags without the matching entries.
func (s *Scrubber) Scrub(tags map[string]any) map[string]any {
	out := make(map[string]any, len(tags))
	for key, value := range tags {
		if !s.matches(key) {
			out[key] = value
		}
	}
	return out
}

func (s *Scrubber) matches(key string) bool {
	for _, pattern := range s.patterns {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			return true
		}
	}
	return false
}

// Compile-time check that ExifTool implements phorg.Extractor
var _ phorg.Extractor = (*ExifTool)(nil)
