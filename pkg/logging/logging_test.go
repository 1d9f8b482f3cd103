package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(Config{Level: LevelInfo, Format: FormatText, Output: &buf})
		log.Info("hello", "key", "value")

		out := buf.String()
		if !strings.Contains(out, "hello") || !strings.Contains(out, "key=value") {
			t.Errorf("unexpected text output: %q", out)
		}
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})
		log.Info("hello", "key", "value")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if entry["msg"] != "hello" || entry["key"] != "value" {
			t.Errorf("unexpected json output: %v", entry)
		}
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(Config{Level: LevelWarn, Output: &buf})
		log.Info("suppressed")
		log.Warn("emitted")

		out := buf.String()
		if strings.Contains(out, "suppressed") {
			t.Error("info message should be filtered at warn level")
		}
		if !strings.Contains(out, "emitted") {
			t.Error("warn message should be emitted")
		}
	})
}

func TestNop(t *testing.T) {
	log := Nop()
	if log == nil {
		t.Fatal("Nop returned nil")
	}
	log.Info("discarded") // must not panic
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("json") != FormatJSON {
		t.Error("expected json format")
	}
	if ParseFormat("text") != FormatText {
		t.Error("expected text format")
	}
	if ParseFormat("bogus") != FormatText {
		t.Error("unknown format should default to text")
	}
}
