package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestLoggerJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithOptions(LoggerOptions{JSON: true, Writer: &buf, Level: "debug"})

	l.With("run_id", "abc").Info("page %d captured", 2)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "page 2 captured" {
		t.Errorf("msg: got %v, want %q", entry["msg"], "page 2 captured")
	}
	if entry["run_id"] != "abc" {
		t.Errorf("run_id: got %v, want %q", entry["run_id"], "abc")
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithOptions(LoggerOptions{Writer: &buf, Level: "warn"})

	l.Info("hidden")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output below warn, got %q", buf.String())
	}
	l.Warn("shown %s", "now")
	if !strings.Contains(buf.String(), "shown now") {
		t.Errorf("warn output missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

type fakePoster struct {
	mu    sync.Mutex
	tags  []string
	posts []map[string]interface{}
}

func (f *fakePoster) Post(tag string, msg interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, tag)
	f.posts = append(f.posts, msg.(map[string]interface{}))
	return nil
}

func TestFluentHandlerFanout(t *testing.T) {
	var buf bytes.Buffer
	poster := &fakePoster{}
	l := NewLoggerWithOptions(LoggerOptions{
		Writer: &buf,
		Extra:  []slog.Handler{newFluentHandler(poster, slog.LevelInfo)},
	})

	l.With("run_id", "r1").Error("solver failed: %s", "timeout")
	l.Debug("not forwarded")

	if len(poster.posts) != 1 {
		t.Fatalf("posts: got %d, want 1", len(poster.posts))
	}
	if poster.tags[0] != "error" {
		t.Errorf("tag: got %q, want %q", poster.tags[0], "error")
	}
	post := poster.posts[0]
	if post["message"] != "solver failed: timeout" {
		t.Errorf("message: got %v", post["message"])
	}
	if post["run_id"] != "r1" {
		t.Errorf("run_id: got %v, want r1", post["run_id"])
	}
	if !strings.Contains(buf.String(), "solver failed") {
		t.Errorf("console output missing: %q", buf.String())
	}
}
