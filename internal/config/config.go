// Package config loads shellpilot configuration from defaults, .env files,
// an optional YAML config file and SHELLPILOT_* environment variables.
//
// Priority (highest to lowest): environment variables > config file > .env files > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"shellpilot/internal/logger"
)

// EnvPrefix is the prefix for every environment override.
const EnvPrefix = "SHELLPILOT"

// Configuration keys.
const (
	KeyShell            = "shell"
	KeyTimeout          = "timeout"
	KeyHandshakeTimeout = "handshake_timeout"
	KeyCacheTTL         = "protocol_cache_ttl"
	KeyMaxOutputChars   = "max_output_chars"
	KeyProgressInterval = "progress_interval"
	KeySandbox          = "sandbox"
	KeyAutoMonitor      = "auto_monitor"
	KeyPreFilter        = "pre_filter"
	KeyRequireApproval  = "require_approval"
	KeyPatternFile      = "pattern_file"
	KeyLogLevel         = "log_level"
	KeyLogFile          = "log_file"
)

// Config holds the effective engine configuration.
type Config struct {
	Shell            string
	Timeout          time.Duration
	HandshakeTimeout time.Duration
	CacheTTL         time.Duration
	MaxOutputChars   int
	ProgressInterval time.Duration
	Sandbox          bool
	AutoMonitor      bool
	PreFilter        bool
	RequireApproval  bool
	PatternFile      string
	LogLevel         string
	LogFile          string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyShell, "bash")
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyHandshakeTimeout, 3*time.Second)
	v.SetDefault(KeyCacheTTL, 5*time.Minute)
	v.SetDefault(KeyMaxOutputChars, 30000)
	v.SetDefault(KeyProgressInterval, time.Second)
	v.SetDefault(KeySandbox, true)
	v.SetDefault(KeyAutoMonitor, true)
	v.SetDefault(KeyPreFilter, false)
	v.SetDefault(KeyRequireApproval, false)
	v.SetDefault(KeyPatternFile, "")
	v.SetDefault(KeyLogLevel, "")
	v.SetDefault(KeyLogFile, "")
}

// New returns a viper instance wired with defaults and environment overrides.
// configFile may be empty; a missing explicit file is an error.
func New(configFile string) (*viper.Viper, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := UserConfigDir(); err == nil {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load builds a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Shell:            v.GetString(KeyShell),
		Timeout:          v.GetDuration(KeyTimeout),
		HandshakeTimeout: v.GetDuration(KeyHandshakeTimeout),
		CacheTTL:         v.GetDuration(KeyCacheTTL),
		MaxOutputChars:   v.GetInt(KeyMaxOutputChars),
		ProgressInterval: v.GetDuration(KeyProgressInterval),
		Sandbox:          v.GetBool(KeySandbox),
		AutoMonitor:      v.GetBool(KeyAutoMonitor),
		PreFilter:        v.GetBool(KeyPreFilter),
		RequireApproval:  v.GetBool(KeyRequireApproval),
		PatternFile:      v.GetString(KeyPatternFile),
		LogLevel:         v.GetString(KeyLogLevel),
		LogFile:          v.GetString(KeyLogFile),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Shell == "" {
		return fmt.Errorf("%s must not be empty", KeyShell)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s must be positive, got %v", KeyTimeout, c.Timeout)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %v", KeyHandshakeTimeout, c.HandshakeTimeout)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%s must be positive, got %v", KeyCacheTTL, c.CacheTTL)
	}
	if c.MaxOutputChars <= 0 {
		return fmt.Errorf("%s must be positive, got %d", KeyMaxOutputChars, c.MaxOutputChars)
	}
	return nil
}

// Watch reloads the config file whenever it changes and hands the new value to
// onChange. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(v)
		if err != nil {
			logger.Warn("Ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		logger.Info("Configuration reloaded", "file", e.Name, "op", e.Op.String())
		onChange(cfg)
	})
	v.WatchConfig()
}

// UserConfigDir returns the shellpilot directory under the user's config dir.
func UserConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "shellpilot"), nil
}

// LoadDotEnv loads a local .env and then the user-level one. Existing
// environment variables are never overwritten, so the local file wins.
func LoadDotEnv() error {
	paths := []string{".env"}
	if dir, err := UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, ".env"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}
