package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/dalnet/chanctl/internal/events"
)

// EnvPrefix is the prefix of environment variables that override file values.
const EnvPrefix = "CHANCTL_"

// Config holds all bot configuration
type Config struct {
	// IRC identity and server
	Nick          string   `koanf:"nick"`
	Alternate     string   `koanf:"alternate"`
	NickPass      string   `koanf:"nick_pass"`
	Server        string   `koanf:"server"`
	Port          int      `koanf:"port"`
	ServerPass    string   `koanf:"server_pass"`
	UseTLS        bool     `koanf:"use_tls"`
	TLSSkipVerify bool     `koanf:"tls_skip_verify"`
	IRCName       string   `koanf:"irc_name"`
	Username      string   `koanf:"username"`
	Channels      []string `koanf:"channels"`

	// Storage
	DataDir string `koanf:"data_dir"`
	DBPath  string `koanf:"db_path"`

	// Observability
	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`
	MetricsAddr string `koanf:"metrics_addr"`

	// Scheduling
	QueueInterval    time.Duration `koanf:"queue_interval"`
	GCInterval       time.Duration `koanf:"gc_interval"`
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`
	SentRetention    time.Duration `koanf:"sent_retention"`
	EventBuffer      int           `koanf:"event_buffer"`

	// Flood protection
	RateShortWindow time.Duration `koanf:"rate_short_window"`
	RateShortLimit  int           `koanf:"rate_short_limit"`
	RateLongWindow  time.Duration `koanf:"rate_long_window"`
	RateLongLimit   int           `koanf:"rate_long_limit"`
	RateBanDuration time.Duration `koanf:"rate_ban_duration"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"port":              6667,
		"use_tls":           false,
		"tls_skip_verify":   false,
		"irc_name":          "chanctl",
		"username":          "chanctl",
		"data_dir":          "./data",
		"log_level":         "info",
		"log_format":        "json",
		"metrics_addr":      "",
		"queue_interval":    "5s",
		"gc_interval":       "60s",
		"snapshot_interval": "5s",
		"sent_retention":    "60s",
		"event_buffer":      256,
		"rate_short_window": "10s",
		"rate_short_limit":  10,
		"rate_long_window":  "60s",
		"rate_long_limit":   50,
		"rate_ban_duration": "180s",
	}
}

// Load reads a YAML configuration file and applies CHANCTL_* environment
// overrides on top. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(&rawProvider{data: defaults()}, nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		file := map[string]interface{}{}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if err := k.Load(&rawProvider{data: file}, nil); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// "." keeps CHANCTL_NICK_PASS flat as nick_pass.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// YAML gives a list, the environment a comma-separated string.
	cfg.Channels = channelList(k.Get("channels"))

	if cfg.DBPath == "" {
		cfg.DBPath = cfg.DataDir + "/chanctl.db"
	}
	if cfg.Alternate == "" && cfg.Nick != "" {
		cfg.Alternate = cfg.Nick + "_"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and semantic constraints.
func (c *Config) Validate() error {
	if c.Nick == "" {
		return fmt.Errorf("nick is required")
	}
	if c.Server == "" {
		return fmt.Errorf("server is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be 1-65535; got %d", c.Port)
	}
	for _, ch := range c.Channels {
		if !events.IsChannel(ch) {
			return fmt.Errorf("channels: %q is not a channel name", ch)
		}
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of trace,debug,info,warn,error,fatal,panic; got %q", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log_format must be json or text; got %q", c.LogFormat)
	}

	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"queue_interval", c.QueueInterval},
		{"gc_interval", c.GCInterval},
		{"snapshot_interval", c.SnapshotInterval},
		{"sent_retention", c.SentRetention},
		{"rate_short_window", c.RateShortWindow},
		{"rate_long_window", c.RateLongWindow},
		{"rate_ban_duration", c.RateBanDuration},
	} {
		if d.val <= 0 {
			return fmt.Errorf("%s must be > 0; got %s", d.name, d.val)
		}
	}
	if c.RateShortWindow > c.RateLongWindow {
		return fmt.Errorf("rate_short_window (%s) must not exceed rate_long_window (%s)", c.RateShortWindow, c.RateLongWindow)
	}
	if c.RateShortLimit < 1 || c.RateLongLimit < 1 {
		return fmt.Errorf("rate limits must be >= 1; got %d/%d", c.RateShortLimit, c.RateLongLimit)
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be >= 1; got %d", c.EventBuffer)
	}
	return nil
}

func channelList(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return splitCSV(val)
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	}
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// rawProvider implements koanf.Provider for a map[string]interface{}.
type rawProvider struct {
	data map[string]interface{}
}

// Read returns the config map directly (no Parser needed).
func (r *rawProvider) Read() (map[string]interface{}, error) {
	return r.data, nil
}

// ReadBytes is not used by rawProvider; koanf calls Read() when no Parser is given.
func (r *rawProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("rawProvider does not support ReadBytes")
}
