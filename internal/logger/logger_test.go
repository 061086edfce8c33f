package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf)

	l.Info("Pipeline", "hidden %d", 1)
	l.Warn("Pipeline", "shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line written at WARN level: %q", out)
	}
	if !strings.Contains(out, "[WARN] [Pipeline] shown 2") {
		t.Fatalf("missing warn line: %q", out)
	}
}

func TestSilentWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	l := New(SILENT, &buf)
	l.Error("Pipeline", "boom")
	if buf.Len() != 0 {
		t.Fatalf("silent logger wrote %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"", INFO, false},
		{"warning", WARN, false},
		{"error", ERROR, false},
		{"off", SILENT, false},
		{"loud", INFO, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStdLoggerRoutesThroughLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(INFO, &buf)
	l.StdLogger("Server").Printf("listening on %s", ":8080")
	if !strings.Contains(buf.String(), "[INFO] [Server] listening on :8080") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
