// Package server provides configuration helpers that define runtime defaults,
// validation, and environment/file loading for the chat router.
package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-session message rate limiting.
type RateLimitConfig struct {
	Burst          int      `toml:"burst" yaml:"burst"`
	RefillInterval Duration `toml:"refill_interval" yaml:"refill_interval"`
}

// HeartbeatConfig controls the PING/PONG liveness monitor.
type HeartbeatConfig struct {
	InitialDelay Duration `toml:"initial_delay" yaml:"initial_delay"`
	Interval     Duration `toml:"interval" yaml:"interval"`
	Timeout      Duration `toml:"timeout" yaml:"timeout"`
}

// Config holds the server configuration settings.
type Config struct {
	Port             int             `toml:"port" yaml:"port"`
	HTTPAddr         string          `toml:"http_addr" yaml:"http_addr"`
	AllowedOrigins   []string        `toml:"allowed_origins" yaml:"allowed_origins"`
	MaxLineSize      int             `toml:"max_line_size" yaml:"max_line_size"`
	SendBuffer       int             `toml:"send_buffer" yaml:"send_buffer"`
	WriteTimeout     Duration        `toml:"write_timeout" yaml:"write_timeout"`
	HandshakeTimeout Duration        `toml:"handshake_timeout" yaml:"handshake_timeout"`
	ShutdownTimeout  Duration        `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	Heartbeat        HeartbeatConfig `toml:"heartbeat" yaml:"heartbeat"`
	RateLimit        RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	LogLevel         string          `toml:"log_level" yaml:"log_level"`
	LogFormat        string          `toml:"log_format" yaml:"log_format"`
}

// Duration is a time.Duration that config files and environment variables
// may give either as a Go duration string ("15s") or as whole seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, ok := parseDuration(string(text))
	if !ok {
		return fmt.Errorf("invalid duration %q", string(text))
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

const (
	defaultPort             = 9000
	defaultMaxLineSize      = 4096
	defaultSendBuffer       = 256
	defaultWriteTimeout     = 10 * time.Second
	defaultShutdownTimeout  = 5 * time.Second
	defaultHeartbeatDelay   = 10 * time.Second
	defaultHeartbeatEvery   = 10 * time.Second
	defaultHeartbeatTimeout = 30 * time.Second
	defaultRateBurst        = 5
	defaultRateRefill       = time.Second
)

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxLineSize:     defaultMaxLineSize,
		SendBuffer:      defaultSendBuffer,
		WriteTimeout:    Duration(defaultWriteTimeout),
		ShutdownTimeout: Duration(defaultShutdownTimeout),
		Heartbeat: HeartbeatConfig{
			InitialDelay: Duration(defaultHeartbeatDelay),
			Interval:     Duration(defaultHeartbeatEvery),
			Timeout:      Duration(defaultHeartbeatTimeout),
		},
		RateLimit: RateLimitConfig{
			Burst:          defaultRateBurst,
			RefillInterval: Duration(defaultRateRefill),
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func positiveDuration(d Duration, fallback time.Duration) Duration {
	if d <= 0 {
		return Duration(fallback)
	}
	return d
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port < 0 || cfg.Port > 65535 {
		cfg.Port = defaultPort
	}

	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = defaultMaxLineSize
	}

	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}

	cfg.WriteTimeout = positiveDuration(cfg.WriteTimeout, defaultWriteTimeout)
	if cfg.HandshakeTimeout < 0 {
		cfg.HandshakeTimeout = 0
	}
	cfg.ShutdownTimeout = positiveDuration(cfg.ShutdownTimeout, defaultShutdownTimeout)
	cfg.Heartbeat.InitialDelay = positiveDuration(cfg.Heartbeat.InitialDelay, defaultHeartbeatDelay)
	cfg.Heartbeat.Interval = positiveDuration(cfg.Heartbeat.Interval, defaultHeartbeatEvery)
	cfg.Heartbeat.Timeout = positiveDuration(cfg.Heartbeat.Timeout, defaultHeartbeatTimeout)

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultRateBurst
	}
	cfg.RateLimit.RefillInterval = positiveDuration(cfg.RateLimit.RefillInterval, defaultRateRefill)

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins
	if allowAll {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins, "*")
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// Sanitized returns a copy of the configuration with invalid values replaced
// by their defaults.
func (c Config) Sanitized() Config {
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return sanitizeConfig(c)
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	cfg.ApplyEnv()
	return &cfg
}

// ApplyEnv overrides fields for every CHAT_* environment variable that is set.
func (c *Config) ApplyEnv() {
	if port := os.Getenv("CHAT_PORT"); port != "" {
		c.Port = parseIntValue(port, c.Port)
	}

	if addr := os.Getenv("CHAT_HTTP_ADDR"); addr != "" {
		c.HTTPAddr = addr
	}

	if origins := os.Getenv("CHAT_ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = parseOrigins(origins)
	}

	if size := os.Getenv("CHAT_MAX_LINE_SIZE"); size != "" {
		c.MaxLineSize = parseIntValue(size, c.MaxLineSize)
	}

	if interval := os.Getenv("CHAT_HEARTBEAT_INTERVAL"); interval != "" {
		c.Heartbeat.Interval = parseDurationValue(interval, c.Heartbeat.Interval)
	}

	if timeout := os.Getenv("CHAT_HEARTBEAT_TIMEOUT"); timeout != "" {
		c.Heartbeat.Timeout = parseDurationValue(timeout, c.Heartbeat.Timeout)
	}

	if burst := os.Getenv("CHAT_RATE_LIMIT_BURST"); burst != "" {
		c.RateLimit.Burst = parseIntValue(burst, c.RateLimit.Burst)
	}

	if interval := os.Getenv("CHAT_RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		c.RateLimit.RefillInterval = parseDurationValue(interval, c.RateLimit.RefillInterval)
	}

	if level := os.Getenv("CHAT_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	if format := os.Getenv("CHAT_LOG_FORMAT"); format != "" {
		c.LogFormat = format
	}
}

// LoadConfigFile reads a TOML (.toml) or YAML (.yaml, .yml) file over the
// defaults. Keys missing from the file keep their default values.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := defaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}

	return &cfg, nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseDurationValue(value string, defaultValue Duration) Duration {
	if d, ok := parseDuration(value); ok && d > 0 {
		return Duration(d)
	}
	return defaultValue
}

// parseDuration accepts "15s"-style strings and bare integer seconds.
func parseDuration(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, true
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false
	}
	return d, true
}
