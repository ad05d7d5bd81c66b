package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"kinsync/internal/model"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info("hello", "person_id", 7)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "hello" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

// Every format DefaultConfig may carry, including the console alias from
// older config files, must produce a working logger.
func TestNewFromConfig_DefaultConfig(t *testing.T) {
	if _, err := NewFromConfig(model.DefaultConfig()); err != nil {
		t.Fatalf("default config log settings rejected: %v", err)
	}

	cfg := model.DefaultConfig()
	cfg.Log.Format = "console"
	if _, err := NewFromConfig(cfg); err != nil {
		t.Fatalf("console format rejected: %v", err)
	}
}
