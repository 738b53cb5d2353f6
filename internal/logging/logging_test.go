package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func Test_ParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func Test_NewWithOptions_Format(t *testing.T) {
	t.Parallel()

	var jsonBuf, textBuf bytes.Buffer
	NewWithOptions(Options{Writer: &jsonBuf}).Info("hello", "k", "v")
	NewWithOptions(Options{Format: "text", Writer: &textBuf}).Info("hello", "k", "v")

	if !strings.HasPrefix(jsonBuf.String(), "{") {
		t.Errorf("default format should be json, got %q", jsonBuf.String())
	}
	if !strings.Contains(textBuf.String(), "k=v") {
		t.Errorf("text format should contain k=v, got %q", textBuf.String())
	}
}

func Test_NewWithOptions_LevelFilters(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: "warn", Writer: &buf})
	log.Info("dropped")
	log.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func Test_FromContext(t *testing.T) {
	t.Parallel()
	if FromContext(context.Background()) != slog.Default() {
		t.Error("empty context should yield slog.Default")
	}
	l := Discard()
	if FromContext(WithLogger(context.Background(), l)) != l {
		t.Error("logger stored in context not returned")
	}
}
