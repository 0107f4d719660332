package infra

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewLoggerToProduction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "production")
	scoped := Component(logger, "session")

	scoped.Debug().Msg("hidden")
	scoped.Info().Str("session_id", "s1").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["env"] != "production" || entry["component"] != "session" || entry["session_id"] != "s1" || entry["message"] != "visible" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewLoggerToDevelopmentIsVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "development")
	logger.Debug().Msg("debug line")
	if !strings.Contains(buf.String(), "debug line") {
		t.Fatalf("debug output missing: %q", buf.String())
	}
}

func TestDiscardLogger(t *testing.T) {
	DiscardLogger().Error().Msg("dropped")
}

func TestHTTPServerWriteTimeoutCoversEditor(t *testing.T) {
	cfg := &Config{Port: "9999", HTTPWriteTimeout: 10 * time.Second, EditorTimeout: 90 * time.Second}
	srv := NewHTTPServer(cfg, nil)
	if srv.Addr() != ":9999" {
		t.Fatalf("Addr = %q", srv.Addr())
	}
	if got := srv.server.WriteTimeout; got != 95*time.Second {
		t.Fatalf("WriteTimeout = %s, want 95s", got)
	}

	cfg.HTTPWriteTimeout = 5 * time.Minute
	if got := NewHTTPServer(cfg, nil).server.WriteTimeout; got != 5*time.Minute {
		t.Fatalf("WriteTimeout = %s, want 5m", got)
	}
}
