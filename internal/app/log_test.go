package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestPhorgHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		batch   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			batch:   "20240615-143045",
			level:   slog.LevelInfo,
			message: "file processed",
			want:    "2024-06-15T14:30:45Z\tINFO\t20240615-143045\tfile processed\n",
		},
		{
			name:    "debug level",
			batch:   "20240615-143045",
			level:   slog.LevelDebug,
			message: "clone unavailable, copying",
			want:    "2024-06-15T14:30:45Z\tDEBUG\t20240615-143045\tclone unavailable, copying\n",
		},
		{
			name:    "with record attrs",
			batch:   "20240615-143045",
			level:   slog.LevelInfo,
			message: "imported",
			attrs:   []slog.Attr{slog.String("path", "/photos/a.jpg"), slog.Int("size", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\t20240615-143045\timported\tpath=/photos/a.jpg\tsize=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &phorgHandler{w: &buf, batch: tt.batch}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestPhorgHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &phorgHandler{w: &buf, batch: "b-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "store")}).(*phorgHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "ingest", 0)
	r.AddAttrs(slog.String("key", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=store") {
		t.Errorf("expected pre-set attr component=store, got: %q", got)
	}
	if !strings.Contains(got, "key=abc") {
		t.Errorf("expected record attr key=abc, got: %q", got)
	}
}

func TestPhorgHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &phorgHandler{w: &buf, batch: "b-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*phorgHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestPhorgHandler_Enabled(t *testing.T) {
	h := &phorgHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "20240615-143045")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("newLogger() returned nil logger")
	}
	if f == nil {
		t.Fatal("newLogger() returned nil file")
	}
}
