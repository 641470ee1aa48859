// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package config

import (
	"fmt"
	"time"
)

// ConfigurationError reports an invalid parameter. It is fatal: the job
// does not start.
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Param, e.Reason)
}

// Config is the root application configuration.
type Config struct {
	Window    WindowConfig    `koanf:"window"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Database  DatabaseConfig  `koanf:"database"`
	Sessions  SessionsConfig  `koanf:"sessions"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// WindowConfig fixes the observation window all entities are scoped to.
type WindowConfig struct {
	// Start is the window start as an RFC3339 date ("2026-01-01") or
	// timestamp. Empty means derive the start from the earliest ingested
	// session or transaction.
	Start string `koanf:"start"`

	// Days is the window length. Default: 90.
	Days int `koanf:"days"`
}

// AnalyticsConfig is the recognized analytics option surface.
type AnalyticsConfig struct {
	// BucketWidthDays is the cohort acquisition-bucket width in days.
	BucketWidthDays int `koanf:"bucket_width_days"`

	// Granularity is the aggregation time bucket: "daily" or "weekly".
	Granularity string `koanf:"granularity"`

	// DenseBuckets zero-fills empty calendar buckets instead of omitting them.
	DenseBuckets bool `koanf:"dense_buckets"`

	// HorizonPeriods is the CLV projection horizon in bucket-width periods.
	HorizonPeriods int `koanf:"horizon_periods"`

	// MinSupportThreshold excludes affinity pairs below this support.
	// 0 keeps every co-occurring pair.
	MinSupportThreshold float64 `koanf:"min_support_threshold"`

	// MaxAffinityPairs caps the affinity table after sorting. 0 = unlimited.
	MaxAffinityPairs int `koanf:"max_affinity_pairs"`

	// AssociationWindow bounds how long after a session's last event an
	// associated purchase transaction may occur.
	AssociationWindow time.Duration `koanf:"association_window"`

	// ErrorAbortThreshold aborts the run when failed/seen exceeds this rate.
	ErrorAbortThreshold float64 `koanf:"error_abort_threshold"`

	// TopSpenders is the size of the top-spenders table.
	TopSpenders int `koanf:"top_spenders"`

	// Workers is the data-parallel worker count. 0 = runtime.NumCPU().
	Workers int `koanf:"workers"`
}

// BucketWidth returns the cohort bucket width as a duration.
func (a AnalyticsConfig) BucketWidth() time.Duration {
	return time.Duration(a.BucketWidthDays) * 24 * time.Hour
}

// DatabaseConfig configures the DuckDB warehouse.
type DatabaseConfig struct {
	// Path is the database file path. ":memory:" opens an in-memory database.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// SessionsConfig configures the Badger session event store.
type SessionsConfig struct {
	Path string `koanf:"path"`
	// InMemory runs Badger without disk persistence (tests, one-shot runs).
	InMemory bool `koanf:"in_memory"`
}

// ServerConfig configures the read-only results API.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSAllowedOrigins lists origins allowed to read the results API.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// RateLimitRequests caps requests per client IP per RateLimitWindow.
	// 0 disables rate limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// WindowStart parses the configured window start. The zero time is returned
// when no start is configured.
func (w WindowConfig) WindowStart() (time.Time, error) {
	if w.Start == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, w.Start); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ConfigurationError{Param: "window.start", Reason: fmt.Sprintf("unparseable date %q", w.Start)}
}

// Validate checks every parameter, returning ConfigurationError for the
// first violation found.
func (c *Config) Validate() error {
	if c.Window.Days <= 0 {
		return &ConfigurationError{Param: "window.days", Reason: "must be positive"}
	}
	if _, err := c.Window.WindowStart(); err != nil {
		return err
	}
	if c.Analytics.BucketWidthDays <= 0 {
		return &ConfigurationError{Param: "analytics.bucket_width_days", Reason: "must be positive"}
	}
	switch c.Analytics.Granularity {
	case "daily", "weekly":
	default:
		return &ConfigurationError{Param: "analytics.granularity", Reason: fmt.Sprintf("must be daily or weekly, got %q", c.Analytics.Granularity)}
	}
	if c.Analytics.HorizonPeriods < 0 {
		return &ConfigurationError{Param: "analytics.horizon_periods", Reason: "must be non-negative"}
	}
	if c.Analytics.MinSupportThreshold < 0 || c.Analytics.MinSupportThreshold > 1 {
		return &ConfigurationError{Param: "analytics.min_support_threshold", Reason: "must be within [0,1]"}
	}
	if c.Analytics.MaxAffinityPairs < 0 {
		return &ConfigurationError{Param: "analytics.max_affinity_pairs", Reason: "must be non-negative"}
	}
	if c.Analytics.AssociationWindow < 0 {
		return &ConfigurationError{Param: "analytics.association_window", Reason: "must be non-negative"}
	}
	if c.Analytics.ErrorAbortThreshold < 0 || c.Analytics.ErrorAbortThreshold > 1 {
		return &ConfigurationError{Param: "analytics.error_abort_threshold", Reason: "must be within [0,1]"}
	}
	if c.Analytics.TopSpenders < 0 {
		return &ConfigurationError{Param: "analytics.top_spenders", Reason: "must be non-negative"}
	}
	if c.Analytics.Workers < 0 {
		return &ConfigurationError{Param: "analytics.workers", Reason: "must be non-negative"}
	}
	if c.Database.Path == "" {
		return &ConfigurationError{Param: "database.path", Reason: "must not be empty"}
	}
	if c.Sessions.Path == "" && !c.Sessions.InMemory {
		return &ConfigurationError{Param: "sessions.path", Reason: "must not be empty unless sessions.in_memory is set"}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ConfigurationError{Param: "server.port", Reason: "must be within [1,65535]"}
	}
	if c.Server.RateLimitRequests < 0 {
		return &ConfigurationError{Param: "server.rate_limit_requests", Reason: "must be non-negative"}
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return &ConfigurationError{Param: "server.rate_limit_window", Reason: "must be positive when rate limiting is enabled"}
	}
	return nil
}
