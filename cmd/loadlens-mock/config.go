package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/loadlens/internal/model"
)

const (
	defaultLatency = 300 * time.Millisecond
	defaultJitter  = 200 * time.Millisecond
	defaultSeed    = 1
)

// mockConfig holds the fake analysis service configuration.
type mockConfig struct {
	Addr       string        `mapstructure:"addr"`
	Dataset    string        `mapstructure:"dataset"`
	Latency    time.Duration `mapstructure:"latency"`
	Jitter     time.Duration `mapstructure:"jitter"`
	Seed       int64         `mapstructure:"seed"`
	LogLevel   string        `mapstructure:"log-level"`
	Presave    bool          `mapstructure:"presave"`
	ConfigPath string        `mapstructure:"-"`
}

func loadMockConfig(configPath string) (mockConfig, error) {
	var cfg mockConfig

	v := viper.New()
	v.SetEnvPrefix("LOADLENS_MOCK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("addr", model.DefaultMockAddr)
	v.SetDefault("dataset", "")
	v.SetDefault("latency", defaultLatency)
	v.SetDefault("jitter", defaultJitter)
	v.SetDefault("seed", defaultSeed)
	v.SetDefault("log-level", "info")
	v.SetDefault("presave", true)

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("finding home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "loadlens", "mock.yml")
	}
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	} else {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Latency < 0 || cfg.Jitter < 0 {
		return cfg, fmt.Errorf("latency and jitter must not be negative")
	}

	return cfg, nil
}
