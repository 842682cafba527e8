package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/loadlens/internal/model"
)

// cliConfig holds the client configuration.
type cliConfig struct {
	APIURL            string        `mapstructure:"api-url"`
	RequestTimeout    time.Duration `mapstructure:"request-timeout"`
	RequestsPerSecond float64       `mapstructure:"requests-per-second"`
	RequestBurst      int           `mapstructure:"request-burst"`
	BreakerFailures   uint32        `mapstructure:"breaker-failures"`
	BreakerCooldown   time.Duration `mapstructure:"breaker-cooldown"`
	SpoolDir          string        `mapstructure:"spool-dir"`
	LogFile           string        `mapstructure:"log-file"`
	LogLevel          string        `mapstructure:"log-level"`
	DebugAddr         string        `mapstructure:"debug-addr"`
	WaitForService    int           `mapstructure:"wait-for-service"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	// .env is optional.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("loading .env: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOADLENS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("api-url", model.DefaultAPIURL)
	v.SetDefault("request-timeout", model.DefaultRequestTimeout)
	v.SetDefault("requests-per-second", model.DefaultRequestsPerSecond)
	v.SetDefault("request-burst", model.DefaultRequestBurst)
	v.SetDefault("breaker-failures", model.DefaultBreakerFailures)
	v.SetDefault("breaker-cooldown", model.DefaultBreakerCooldown)
	v.SetDefault("spool-dir", filepath.Join(os.TempDir(), "loadlens"))
	v.SetDefault("log-file", filepath.Join(home, ".local", "state", "loadlens", "loadlens.log"))
	v.SetDefault("log-level", "info")
	v.SetDefault("debug-addr", "")
	v.SetDefault("wait-for-service", model.DefaultWaitForServiceTries)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "loadlens", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
