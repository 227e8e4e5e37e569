package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"openob.io/openob/internal/core"
	"openob.io/openob/internal/link"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
openob:
  link:
    name: "studio-a"
    role: "tx"
    config_host: "redis.example.net:6380"
  source:
    receiver_host: "rx.example.net"
    audio_input: "jack"
    port: 5004
    jitter_buffer: 60
    encoding: "CELT"
    bitrate: 128
  store:
    dial_timeout: "500ms"
  engine:
    name: "rtp"
    options:
      idle_timeout: "3s"
  log:
    level: "debug"
    format: "json"
  events:
    kafka:
      enabled: true
      brokers:
        - "localhost:9092"
  daemon:
    pid_file: "/tmp/openob.pid"
`)

	cfg, err := Load(configPath, nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Link.Name != "studio-a" {
		t.Errorf("Expected link name studio-a, got %s", cfg.Link.Name)
	}
	if cfg.Link.Role != core.RoleSource {
		t.Errorf("Expected role tx, got %s", cfg.Link.Role)
	}
	if cfg.Source.Encoding != link.EncodingCELT {
		t.Errorf("Expected encoding celt, got %s", cfg.Source.Encoding)
	}
	want := link.Params{Port: 5004, JitterBufferMS: 60, Encoding: link.EncodingCELT, BitrateKbps: 128}
	if cfg.Source.Params() != want {
		t.Errorf("Expected params %+v, got %+v", want, cfg.Source.Params())
	}
	if cfg.Store.DialTimeout != 500*time.Millisecond {
		t.Errorf("Expected dial timeout 500ms, got %s", cfg.Store.DialTimeout)
	}
	if cfg.Engine.Options["idle_timeout"] != "3s" {
		t.Errorf("Expected engine option idle_timeout 3s, got %v", cfg.Engine.Options["idle_timeout"])
	}
	if !cfg.Events.Kafka.Enabled || cfg.Events.Kafka.Topic != "openob-events" {
		t.Errorf("Expected kafka events on default topic, got %+v", cfg.Events.Kafka)
	}
	if cfg.Daemon.PIDFile != "/tmp/openob.pid" {
		t.Errorf("Expected PIDFile /tmp/openob.pid, got %s", cfg.Daemon.PIDFile)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", map[string]any{"link.name": "studio", "link.role": "rx"})
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Link.ConfigHost != "localhost" {
		t.Errorf("Expected default config host localhost, got %s", cfg.Link.ConfigHost)
	}
	if cfg.Source.Port != 3000 || cfg.Source.JitterBufferMS != 150 || cfg.Source.BitrateKbps != 96 {
		t.Errorf("Unexpected source defaults %+v", cfg.Source)
	}
	if cfg.Source.Encoding != link.EncodingOpus {
		t.Errorf("Expected default encoding opus, got %s", cfg.Source.Encoding)
	}
	if cfg.Source.Device != "hw:0" || cfg.Sink.Device != "hw:0" {
		t.Errorf("Expected default device hw:0, got %q/%q", cfg.Source.Device, cfg.Sink.Device)
	}
	if cfg.Store.Backend != "redis" {
		t.Errorf("Expected default store backend redis, got %s", cfg.Store.Backend)
	}
	if cfg.Engine.Name != "gst" {
		t.Errorf("Expected default engine gst, got %s", cfg.Engine.Name)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Expected default log info/text, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Daemon.PIDFile != "" {
		t.Errorf("Expected no default PID file, got %s", cfg.Daemon.PIDFile)
	}
}

func TestLoadRoleAliases(t *testing.T) {
	cfg, err := Load("", map[string]any{"link.name": "l", "link.role": "sink"})
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Link.Role != core.RoleSink {
		t.Errorf("Expected role rx, got %s", cfg.Link.Role)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	configPath := writeConfig(t, `
openob:
  link:
    name: "studio"
    role: "rx"
  log:
    level: "info"
`)
	t.Setenv("OPENOB_LOG_LEVEL", "debug")
	t.Setenv("OPENOB_LINK_CONFIG_HOST", "10.0.0.5")

	cfg, err := Load(configPath, nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Log.Level)
	}
	if cfg.Link.ConfigHost != "10.0.0.5" {
		t.Errorf("Expected config host from env var, got %s", cfg.Link.ConfigHost)
	}
}

func TestOverridesWinOverFile(t *testing.T) {
	configPath := writeConfig(t, `
openob:
  link:
    name: "from-file"
    role: "tx"
  source:
    receiver_host: "a"
    port: 4000
`)

	cfg, err := Load(configPath, map[string]any{"link.name": "from-flag", "source.port": 4010})
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Link.Name != "from-flag" || cfg.Source.Port != 4010 {
		t.Errorf("Expected overrides to win, got %s/%d", cfg.Link.Name, cfg.Source.Port)
	}
}

func TestLoadInvalid(t *testing.T) {
	base := map[string]any{"link.name": "studio", "link.role": "tx", "source.receiver_host": "rx"}
	tests := []struct {
		name     string
		override map[string]any
	}{
		{"log level", map[string]any{"log.level": "verbose"}},
		{"log format", map[string]any{"log.format": "xml"}},
		{"missing link name", map[string]any{"link.name": ""}},
		{"unknown role", map[string]any{"link.role": "relay"}},
		{"missing receiver", map[string]any{"source.receiver_host": ""}},
		{"port out of range", map[string]any{"source.port": 70000}},
		{"negative jitter", map[string]any{"source.jitter_buffer": -1}},
		{"bitrate not offered", map[string]any{"source.bitrate": 100}},
		{"store backend", map[string]any{"store.backend": "etcd"}},
		{"no config host", map[string]any{"link.config_host": ""}},
		{"no engine", map[string]any{"engine.name": ""}},
		{"kafka without brokers", map[string]any{"events.kafka.enabled": true}},
		{"metrics without listen", map[string]any{"metrics.enabled": true, "metrics.listen": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			overrides := map[string]any{}
			for k, v := range base {
				overrides[k] = v
			}
			for k, v := range tt.override {
				overrides[k] = v
			}
			_, err := Load("", overrides)
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoadInvalidEncoding(t *testing.T) {
	_, err := Load("", map[string]any{"link.name": "l", "link.role": "tx", "source.receiver_host": "rx", "source.encoding": "mp3"})
	if err == nil {
		t.Error("Expected error for unknown encoding, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"), nil)
	if err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestMemoryBackendNeedsNoHost(t *testing.T) {
	_, err := Load("", map[string]any{"link.name": "l", "link.role": "rx", "store.backend": "memory", "link.config_host": ""})
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
