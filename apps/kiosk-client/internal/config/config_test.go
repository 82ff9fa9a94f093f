package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kiosk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Backend.URL)
	assert.Equal(t, time.Second, cfg.Channel.BaseDelay)
	assert.Equal(t, 5, cfg.Channel.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Emitter.Period)
	assert.Equal(t, 640, cfg.Camera.Width)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
backend:
  url: https://kiosk.example.com
channel:
  base_delay: 250ms
  max_attempts: 3
camera:
  driver: dir
  dir: /var/lib/kiosk/frames
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://kiosk.example.com", cfg.Backend.URL)
	assert.Equal(t, "/ws", cfg.Backend.WSPath)
	assert.Equal(t, 250*time.Millisecond, cfg.Channel.BaseDelay)
	assert.Equal(t, 3, cfg.Channel.MaxAttempts)
	assert.Equal(t, "dir", cfg.Camera.Driver)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("KIOSK_BACKEND_URL", "http://10.0.0.5:8000")
	t.Setenv("KIOSK_FRAME_PERIOD", "500ms")
	t.Setenv("KIOSK_LOG_LEVEL", "warn")
	t.Setenv("KIOSK_ID", "lane-3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8000", cfg.Backend.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Emitter.Period)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "lane-3", cfg.Service.KioskID)
}

func TestValidation(t *testing.T) {
	tests := map[string]string{
		"bad scheme":      "backend:\n  url: ftp://x\n",
		"zero attempts":   "channel:\n  max_attempts: 0\n",
		"ping after pong": "channel:\n  ping_period: 90s\n  pong_wait: 60s\n",
		"unknown driver":  "camera:\n  driver: usb\n",
		"dir missing":     "camera:\n  driver: dir\n",
		"bad level":       "log:\n  level: loud\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "backend: [\n"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
