package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/AndreOrlov/cozytime-bridge/internal/config"
)

func TestNewWithWriter_ReleaseIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}, "1.2.0", "cozytime-gateway")

	logger.Debug("hidden")
	logger.Info("reading forwarded", "station_id", "bedroom")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1 (debug filtered): %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	for k, want := range map[string]string{
		"msg":        "reading forwarded",
		"app":        "cozytime-gateway",
		"version":    "1.2.0",
		"env":        "prod",
		"station_id": "bedroom",
	} {
		if rec[k] != want {
			t.Errorf("%s = %v, want %q", k, rec[k], want)
		}
	}
}

func TestNewWithWriter_DevIsText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug}, "dev", "cozytime-gateway")

	logger.Debug("frame decoded")

	out := buf.String()
	if !strings.Contains(out, "frame decoded") {
		t.Errorf("output %q missing message", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("dev output looks like JSON: %q", out)
	}
}
