// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads flightlink settings from flags, environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

// EnvPrefix is prepended to every environment override, e.g. FLIGHTLINK_BAUD
const EnvPrefix = "FLIGHTLINK"

// LogConfig selects log level, encoding and an optional rotating log file
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MetricsConfig holds the Prometheus listen address; empty disables it
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LinkConfig tunes the protocol link
type LinkConfig struct {
	SendRate   float64 `mapstructure:"send-rate"`
	SendBurst  int     `mapstructure:"send-burst"`
	BufferSize int     `mapstructure:"buffer-size"`
}

// Config is the top-level configuration
type Config struct {
	Port        string        `mapstructure:"port"`
	Baud        int           `mapstructure:"baud"`
	URL         string        `mapstructure:"url"`
	Username    string        `mapstructure:"username"`
	NoSSLVerify bool          `mapstructure:"no-ssl-verify"`
	Log         LogConfig     `mapstructure:"log"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Link        LinkConfig    `mapstructure:"link"`
}

// New returns a viper instance with defaults and environment overrides set
// up. Callers bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file at path, if any, and unmarshals the merged
// result. Without a path it looks for flightlink.{yaml,toml,json} in the
// working directory and $HOME/.config/flightlink, and a missing file is
// not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flightlink")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/flightlink")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can work with
func (c *Config) Validate() error {
	if c.Baud <= 0 {
		return fmt.Errorf("config: baud must be positive, got %d", c.Baud)
	}
	if c.Link.SendRate <= 0 {
		return fmt.Errorf("config: link.send-rate must be positive, got %g", c.Link.SendRate)
	}
	if c.Link.SendBurst < 1 {
		return fmt.Errorf("config: link.send-burst must be at least 1, got %d", c.Link.SendBurst)
	}
	if c.Link.BufferSize < lpfc.MinStreamBufferSize {
		return fmt.Errorf("config: link.buffer-size must be at least %d, got %d",
			lpfc.MinStreamBufferSize, c.Link.BufferSize)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("config: log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "")
	v.SetDefault("baud", 115200)
	v.SetDefault("url", "")
	v.SetDefault("username", "")
	v.SetDefault("no-ssl-verify", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("link.send-rate", 20.0)
	v.SetDefault("link.send-burst", 4)
	v.SetDefault("link.buffer-size", 1024)
}
