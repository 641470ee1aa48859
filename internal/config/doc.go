// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

// Package config loads and validates application configuration using
// koanf v2 with layered sources: struct defaults, an optional YAML file,
// then environment variables. Invalid parameters surface as
// ConfigurationError before any job starts.
package config
