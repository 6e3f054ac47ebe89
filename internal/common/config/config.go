// Package config loads the orchestrator's JSON configuration file, adapted
// from this codebase's viper-based config lineage but targeting the
// single JSON file at ~/.<app>/config.json this orchestration core reads,
// and the recognized keys timeouts/limits/per-agent model strings name.
// Every field is validated independently; an invalid value falls back to
// its documented default rather than failing Load.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/fedi-cli/fedi/internal/relayerr"
)

// Config holds every recognized orchestrator configuration key: timeouts,
// relay limits, and per-agent model overrides.
type Config struct {
	ExecTimeoutMs        int               `mapstructure:"execTimeoutMs"`
	DelegateTimeoutMs    int               `mapstructure:"delegateTimeoutMs"`
	MaxRelaysPerWindow   int               `mapstructure:"maxRelaysPerWindow"`
	RelayWindowMs        int               `mapstructure:"relayWindowMs"`
	FlushIntervalMs      int               `mapstructure:"flushIntervalMs"`
	MaxMessages          int               `mapstructure:"maxMessages"`
	MaxCrossTalkPerRound int               `mapstructure:"maxCrossTalkPerRound"`
	MaxLogFiles          int               `mapstructure:"maxLogFiles"`
	Models               map[string]string `mapstructure:"models"`
	CheckpointThrottleMs int               `mapstructure:"checkpointThrottleMs"`

	Logging LoggingConfig `mapstructure:"logging"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Server  ServerConfig  `mapstructure:"server"`

	// Warnings accumulates ConfigError-worthy per-field fallbacks recorded
	// during validate, for the caller to log after the logger is up.
	Warnings []string `mapstructure:"-"`
}

// LoggingConfig controls the rotating log sink (§4.8, §10.1).
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	MaxLogFiles int    `mapstructure:"maxLogFiles"`
}

// NATSConfig controls the optional event mirror (§11.3). An empty URL
// disables the mirror entirely.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// ServerConfig controls the HTTP control plane (§11.1).
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Load reads ~/.<appName>/config.json, falling back to documented defaults
// per field when absent, missing, or invalid. It only returns a non-nil
// error when the file exists and fails to parse as JSON at all — the
// "malformed beyond per-field recovery" case that exit code 2 is reserved
// for.
func Load(appName string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return LoadPath(filepath.Join(home, "."+appName, "config.json"))
}

// LoadPath loads configuration from an explicit path, primarily for tests.
func LoadPath(path string) (*Config, error) {
	if err := validateJSONSyntax(path); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	validate(&cfg)

	// Top-level "<agent>Model" keys fill Models for agents the nested
	// "models" object does not name. viper lowercases keys, so
	// "worker_aModel" arrives as "worker_amodel".
	for _, key := range v.AllKeys() {
		if strings.Contains(key, ".") || !strings.HasSuffix(key, "model") || key == "model" {
			continue
		}
		agent := strings.TrimSuffix(key, "model")
		if _, set := cfg.Models[agent]; !set {
			cfg.Models[agent] = v.GetString(key)
		}
	}
	return &cfg, nil
}

// validateJSONSyntax returns an error only if path exists and is not
// syntactically valid JSON; a missing file is not an error here (Load
// falls back to defaults).
func validateJSONSyntax(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var probe map[string]interface{}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("config file %s is not valid JSON: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("execTimeoutMs", 120000)
	v.SetDefault("delegateTimeoutMs", 180000)
	v.SetDefault("maxRelaysPerWindow", 50)
	v.SetDefault("relayWindowMs", 60000)
	v.SetDefault("flushIntervalMs", 400)
	v.SetDefault("maxMessages", 200)
	v.SetDefault("maxCrossTalkPerRound", 20)
	v.SetDefault("maxLogFiles", 20)
	v.SetDefault("checkpointThrottleMs", 5000)
	v.SetDefault("models", map[string]string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.maxLogFiles", 20)

	v.SetDefault("nats.url", "")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8787)
}

// validate checks each field independently, replacing out-of-range or
// malformed values with their documented default and recording a warning
// (a ConfigError, per §7) rather than failing the load.
func validate(cfg *Config) {
	fallback := func(field string, cond bool, ptr *int, def int) {
		if cond {
			*ptr = def
			cfg.Warnings = append(cfg.Warnings, relayerr.Config(field, fmt.Errorf("out of range")).Error())
		}
	}

	fallback("execTimeoutMs", cfg.ExecTimeoutMs < 0, &cfg.ExecTimeoutMs, 120000)
	fallback("delegateTimeoutMs", cfg.DelegateTimeoutMs <= 0, &cfg.DelegateTimeoutMs, 180000)
	fallback("maxRelaysPerWindow", cfg.MaxRelaysPerWindow <= 0, &cfg.MaxRelaysPerWindow, 50)
	fallback("relayWindowMs", cfg.RelayWindowMs <= 0, &cfg.RelayWindowMs, 60000)
	fallback("flushIntervalMs", cfg.FlushIntervalMs <= 0, &cfg.FlushIntervalMs, 400)
	fallback("maxMessages", cfg.MaxMessages <= 0, &cfg.MaxMessages, 200)
	fallback("maxCrossTalkPerRound", cfg.MaxCrossTalkPerRound <= 0, &cfg.MaxCrossTalkPerRound, 20)
	fallback("maxLogFiles", cfg.MaxLogFiles <= 0, &cfg.MaxLogFiles, 20)
	fallback("checkpointThrottleMs", cfg.CheckpointThrottleMs < 0, &cfg.CheckpointThrottleMs, 5000)

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		cfg.Logging.Level = "info"
		cfg.Warnings = append(cfg.Warnings, relayerr.Config("logging.level", fmt.Errorf("unrecognized level")).Error())
	}
	if cfg.Logging.MaxLogFiles <= 0 {
		cfg.Logging.MaxLogFiles = cfg.MaxLogFiles
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = 8787
		cfg.Warnings = append(cfg.Warnings, relayerr.Config("server.port", fmt.Errorf("out of range")).Error())
	}
	if cfg.Models == nil {
		cfg.Models = map[string]string{}
	}
}

// ModelFor returns the configured model for agentID, or the empty string
// if none is configured (callers fall back to the agent's own default).
func (c *Config) ModelFor(agentID string) string {
	return c.Models[agentID]
}
