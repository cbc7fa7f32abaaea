// Package config loads and validates the bridge's TOML configuration:
// LoadConfig applies defaults, Validate rejects bad combinations. TOML is
// parsed via github.com/pelletier/go-toml/v2, with per-field env var
// overrides and XDG-style default-path resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// VendorCompat names the Samsung vendor-extension compatibility mode.
type VendorCompat string

const (
	VendorCompatNone    VendorCompat = "none"
	VendorCompatSamsung VendorCompat = "samsung"
)

// Target describes the amplifier's resolved (or to-be-discovered) IP
// control endpoint.
type Target struct {
	IP              string  `toml:"ip"`
	Port            int     `toml:"port"`
	BasePath        string  `toml:"base_path"`
	DiscoverTimeout float64 `toml:"discover_timeout"`
	Index           int     `toml:"index"`
}

// Config is the bridge's immutable-after-load configuration (spec.md §3,
// §6.2).
type Config struct {
	Target Target `toml:"target"`

	CECDevice        string       `toml:"cec_device"`
	CECOSDName       string       `toml:"cec_osd_name"`
	CECVendorCompat  VendorCompat `toml:"cec_vendor_compat"`
	ReconnectDelayS  float64      `toml:"reconnect_delay_s"`
	LogLevel         string       `toml:"log_level"`
	DedupeWindowS    float64      `toml:"dedupe_window_s"`
	MinIntervalS     float64      `toml:"min_interval_s"`

	// StatusAddr is the optional "host:port" the status HTTP/websocket
	// surface listens on (pkg/statusapi). Empty disables it.
	StatusAddr string `toml:"status_addr"`

	Logging Logging `toml:"logging"`
}

// Logging configures the ambient logger (pkg/logging).
type Logging struct {
	File       string `toml:"file"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
	Structured bool   `toml:"structured"`
}

const envPrefix = "CECBRIDGE_"

// DefaultConfigPath resolves $XDG_CONFIG_HOME/cecbridge/config.toml,
// falling back to ~/.config/cecbridge/config.toml, matching the original
// daemon's _default_config_path() resolution order.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cecbridge", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "cecbridge", "config.toml")
}

// LoadConfig reads path (or, if empty, DefaultConfigPath()), applies
// CECBRIDGE_* environment overrides, and fills in defaults for anything
// left unset. A missing config file is not an error: every field simply
// takes its default, mirroring the original's _load_toml returning {}
// for a nonexistent path.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if uErr := toml.Unmarshal(data, &cfg); uErr != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", uErr)
		}
	case os.IsNotExist(err):
		// fall through with zero-value cfg; defaults applied below
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv(envPrefix + "IP"); ok {
		cfg.Target.IP = v
	}
	if v, ok := os.LookupEnv(envPrefix + "PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Target.Port = port
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "BASE_PATH"); ok {
		cfg.Target.BasePath = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv(envPrefix + "CEC_DEVICE"); ok {
		cfg.CECDevice = v
	}
	if v, ok := os.LookupEnv(envPrefix + "CEC_VENDOR_COMPAT"); ok {
		cfg.CECVendorCompat = VendorCompat(v)
	}
}

func applyDefaults(cfg *Config) {
	cfg.Target.BasePath = NormalizeBasePath(cfg.Target.BasePath)
	if cfg.Target.Port == 0 {
		cfg.Target.Port = 80
	}
	if cfg.Target.DiscoverTimeout == 0 {
		cfg.Target.DiscoverTimeout = 3.0
	}
	if cfg.CECDevice == "" {
		cfg.CECDevice = "/dev/cec0"
	}
	if cfg.CECOSDName == "" {
		cfg.CECOSDName = "Audio"
	}
	if cfg.CECVendorCompat == "" {
		cfg.CECVendorCompat = VendorCompatNone
	} else {
		cfg.CECVendorCompat = VendorCompat(strings.ToLower(strings.TrimSpace(string(cfg.CECVendorCompat))))
	}
	if cfg.ReconnectDelayS == 0 {
		cfg.ReconnectDelayS = 2.0
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DedupeWindowS == 0 {
		cfg.DedupeWindowS = 0.080
	}
	if cfg.MinIntervalS == 0 {
		cfg.MinIntervalS = 0.120
	}
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAge == 0 {
		cfg.Logging.MaxAge = 30
	}
}

// NormalizeBasePath matches the original's normalize_base_path: empty or
// "/" collapses to the default, a leading "/" is enforced, and any
// trailing "/" is stripped. Exported so pkg/discovery can apply the same
// rule to an mDNS TXT record's "path" value.
func NormalizeBasePath(v string) string {
	raw := strings.TrimSpace(v)
	if raw == "" || raw == "/" {
		return "/ipcontrol/v1"
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	raw = strings.TrimRight(raw, "/")
	if raw == "" {
		return "/ipcontrol/v1"
	}
	return raw
}

// Validate rejects configuration combinations the daemon cannot run with:
// an unparseable/unknown vendor-compat value is a FatalError-shaped
// problem (spec.md §7), surfaced before the daemon tries to use it.
func (c *Config) Validate() error {
	switch c.CECVendorCompat {
	case VendorCompatNone, VendorCompatSamsung:
	default:
		return fmt.Errorf("cec_vendor_compat must be one of: none, samsung (got %q)", c.CECVendorCompat)
	}
	if c.Target.Port <= 0 || c.Target.Port > 65535 {
		return fmt.Errorf("target.port out of range: %d", c.Target.Port)
	}
	if c.DedupeWindowS < 0 {
		return fmt.Errorf("dedupe_window_s must be >= 0")
	}
	if c.MinIntervalS < 0 {
		return fmt.Errorf("min_interval_s must be >= 0")
	}
	if c.ReconnectDelayS <= 0 {
		return fmt.Errorf("reconnect_delay_s must be > 0")
	}
	if len(c.CECOSDName) == 0 || len(c.CECOSDName) > 14 {
		return fmt.Errorf("cec_osd_name must be 1-14 ASCII bytes, got %d", len(c.CECOSDName))
	}
	return nil
}
