// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/shopsight/config.yaml",
	"/etc/shopsight/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "SHOPSIGHT_CONFIG"

// envPrefix scopes the environment variables read by Load.
const envPrefix = "SHOPSIGHT_"

// defaultConfig returns a Config with all defaults applied. Defaults are
// layered first, then overridden by config file and environment.
func defaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Start: "",
			Days:  90,
		},
		Analytics: AnalyticsConfig{
			BucketWidthDays:     7,
			Granularity:         "weekly",
			DenseBuckets:        false,
			HorizonPeriods:      12,
			MinSupportThreshold: 0,
			MaxAffinityPairs:    0,
			AssociationWindow:   30 * time.Minute,
			ErrorAbortThreshold: 0.05,
			TopSpenders:         20,
			Workers:             0, // 0 = runtime.NumCPU()
		},
		Database: DatabaseConfig{
			Path:      "/data/shopsight.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Sessions: SessionsConfig{
			Path:     "/data/sessions",
			InMemory: false,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8384,
			Timeout:            30 * time.Second,
			CORSAllowedOrigins: []string{"*"},
			RateLimitRequests:  100,
			RateLimitWindow:    time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds configuration from layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML file (first of DefaultConfigPaths, or
//     SHOPSIGHT_CONFIG)
//  3. Environment variables: SHOPSIGHT_ANALYTICS_BUCKET_WIDTH_DAYS and
//     friends, highest priority
//
// The result is validated; a ConfigurationError means the job must not start.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		return ""
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf paths.
// The first underscore after the prefix separates the section from the key:
// SHOPSIGHT_ANALYTICS_BUCKET_WIDTH_DAYS -> analytics.bucket_width_days.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return key
	}
	return parts[0] + "." + parts[1]
}
