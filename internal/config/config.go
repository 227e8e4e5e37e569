// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"openob.io/openob/internal/core"
	"openob.io/openob/internal/link"
)

// rootKey is the YAML root key; it also yields the OPENOB_ environment prefix.
const rootKey = "openob"

// GlobalConfig represents the whole configuration of one openob process.
// Maps to the `openob:` root key in YAML.
type GlobalConfig struct {
	Link    LinkConfig    `mapstructure:"link"`
	Source  SourceConfig  `mapstructure:"source"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Store   StoreConfig   `mapstructure:"store"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Events  EventsConfig  `mapstructure:"events"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
}

// ─── Link ───

// LinkConfig identifies the link and this process's role in it.
type LinkConfig struct {
	Name       string    `mapstructure:"name"`
	Role       core.Role `mapstructure:"role"`        // tx | rx
	ConfigHost string    `mapstructure:"config_host"` // configuration store address, port optional
}

// SourceConfig is the local configuration of a transmitter.
type SourceConfig struct {
	ReceiverHost   string        `mapstructure:"receiver_host"`
	AudioInput     string        `mapstructure:"audio_input"` // alsa | jack | pulseaudio | test | silence
	Device         string        `mapstructure:"device"`
	Port           int           `mapstructure:"port"`
	JitterBufferMS int           `mapstructure:"jitter_buffer"`
	Encoding       link.Encoding `mapstructure:"encoding"`
	BitrateKbps    int           `mapstructure:"bitrate"`
}

// Params returns the scalar link parameters this source publishes.
func (s SourceConfig) Params() link.Params {
	return link.Params{
		Port:           s.Port,
		JitterBufferMS: s.JitterBufferMS,
		Encoding:       s.Encoding,
		BitrateKbps:    s.BitrateKbps,
	}
}

// SinkConfig is the local configuration of a receiver.
type SinkConfig struct {
	AudioOutput string `mapstructure:"audio_output"` // alsa | jack | pulseaudio | null | file
	Device      string `mapstructure:"device"`
}

// ─── Store ───

// StoreConfig configures the configuration store client.
type StoreConfig struct {
	Backend      string        `mapstructure:"backend"` // redis | memory
	DB           int           `mapstructure:"db"`
	Password     string        `mapstructure:"password"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ─── Engine ───

// EngineConfig selects the transport engine. Options are passed to the engine verbatim.
type EngineConfig struct {
	Name    string         `mapstructure:"name"`
	Options map[string]any `mapstructure:"options"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Events ───

// EventsConfig configures where link events go besides the log.
type EventsConfig struct {
	Kafka KafkaEventsConfig `mapstructure:"kafka"`
}

// KafkaEventsConfig configures the Kafka event publisher.
type KafkaEventsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Compression  string        `mapstructure:"compression"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// ─── Daemon ───

// DaemonConfig contains process settings.
type DaemonConfig struct {
	PIDFile string `mapstructure:"pid_file"` // empty = no PID file
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `openob: ...`.
type configRoot struct {
	OpenOB GlobalConfig `mapstructure:"openob"`
}

// Load loads configuration from an optional file, the environment and overrides.
//
// The YAML file uses `openob:` as root key; env vars use the OPENOB_ prefix (e.g.
// OPENOB_LOG_LEVEL). Override keys omit the root key ("link.name") and win over both.
// An empty path skips the file.
func Load(path string, overrides map[string]any) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "openob.log.level" -> env "OPENOB_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for k, val := range overrides {
		v.Set(rootKey+"."+k, val)
	}

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		encodingHook(),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.OpenOB

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// encodingHook parses link.Encoding values case-insensitively.
func encodingHook() mapstructure.DecodeHookFuncType {
	encType := reflect.TypeOf(link.Encoding(""))
	return func(from, to reflect.Type, data any) (any, error) {
		if to != encType || from.Kind() != reflect.String {
			return data, nil
		}
		return link.ParseEncoding(reflect.ValueOf(data).String())
	}
}

// setDefaults sets default values for configuration.
// All keys use the "openob." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Link defaults
	v.SetDefault("openob.link.name", "")
	v.SetDefault("openob.link.role", "")
	v.SetDefault("openob.link.config_host", "localhost")

	// Source defaults
	v.SetDefault("openob.source.receiver_host", "")
	v.SetDefault("openob.source.audio_input", "alsa")
	v.SetDefault("openob.source.device", "hw:0")
	v.SetDefault("openob.source.port", link.DefaultPort)
	v.SetDefault("openob.source.jitter_buffer", link.DefaultJitterBufferMS)
	v.SetDefault("openob.source.encoding", string(link.DefaultEncoding))
	v.SetDefault("openob.source.bitrate", link.DefaultBitrateKbps)

	// Sink defaults
	v.SetDefault("openob.sink.audio_output", "alsa")
	v.SetDefault("openob.sink.device", "hw:0")

	// Store defaults
	v.SetDefault("openob.store.backend", "redis")
	v.SetDefault("openob.store.db", 0)
	v.SetDefault("openob.store.password", "")
	v.SetDefault("openob.store.dial_timeout", "2s")
	v.SetDefault("openob.store.read_timeout", "1s")
	v.SetDefault("openob.store.write_timeout", "1s")

	// Engine defaults
	v.SetDefault("openob.engine.name", "gst")

	// Log defaults
	v.SetDefault("openob.log.level", "info")
	v.SetDefault("openob.log.format", "text")
	v.SetDefault("openob.log.outputs.file.enabled", false)
	v.SetDefault("openob.log.outputs.file.path", "/var/log/openob/openob.log")
	v.SetDefault("openob.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("openob.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("openob.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("openob.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("openob.metrics.enabled", false)
	v.SetDefault("openob.metrics.listen", ":9464")
	v.SetDefault("openob.metrics.path", "/metrics")

	// Events defaults
	v.SetDefault("openob.events.kafka.enabled", false)
	v.SetDefault("openob.events.kafka.topic", "openob-events")
	v.SetDefault("openob.events.kafka.compression", "snappy")
	v.SetDefault("openob.events.kafka.batch_timeout", "10ms")
	v.SetDefault("openob.events.kafka.max_attempts", 3)

	// Daemon defaults
	v.SetDefault("openob.daemon.pid_file", "")
}

// ValidateAndApplyDefaults validates configuration and normalizes values.
// Every error wraps core.ErrConfigInvalid.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return nil
}

func (cfg *GlobalConfig) validate() error {
	// ── Log validation ──
	if err := cfg.Log.Validate(); err != nil {
		return err
	}

	// ── Link ──
	if cfg.Link.Name == "" {
		return fmt.Errorf("link.name is required")
	}
	role, err := core.ParseRole(string(cfg.Link.Role))
	if err != nil {
		return fmt.Errorf("link.role: %q (must be tx or rx)", cfg.Link.Role)
	}
	cfg.Link.Role = role

	// ── Store ──
	switch cfg.Store.Backend {
	case "redis":
		if cfg.Link.ConfigHost == "" {
			return fmt.Errorf("link.config_host is required for the redis store backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported store.backend: %s (must be redis or memory)", cfg.Store.Backend)
	}

	// ── Engine ──
	if cfg.Engine.Name == "" {
		return fmt.Errorf("engine.name is required")
	}

	// ── Role specific ──
	switch role {
	case core.RoleSource:
		if cfg.Source.ReceiverHost == "" {
			return fmt.Errorf("source.receiver_host is required for tx")
		}
		if cfg.Source.AudioInput == "" {
			return fmt.Errorf("source.audio_input is required for tx")
		}
		if err := cfg.Source.Params().ValidateScalars(); err != nil {
			return fmt.Errorf("source: %v", err)
		}
		if err := link.ValidateSourceBitrate(cfg.Source.BitrateKbps); err != nil {
			return fmt.Errorf("source: bitrate %d not in %v", cfg.Source.BitrateKbps, link.Bitrates)
		}
	case core.RoleSink:
		if cfg.Sink.AudioOutput == "" {
			return fmt.Errorf("sink.audio_output is required for rx")
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}

	// ── Events ──
	if k := cfg.Events.Kafka; k.Enabled {
		if len(k.Brokers) == 0 {
			return fmt.Errorf("events.kafka.brokers is required when events.kafka.enabled=true")
		}
		if k.Topic == "" {
			return fmt.Errorf("events.kafka.topic is required when events.kafka.enabled=true")
		}
	}

	return nil
}

// Validate checks the log settings alone. It is used when re-applying logging at runtime.
func (l LogConfig) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", l.Level)
	}
	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", l.Format)
	}
	return nil
}
