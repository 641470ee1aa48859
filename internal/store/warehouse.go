// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/shopsight/shopsight/internal/config"
	"github.com/shopsight/shopsight/internal/logging"
)

// Warehouse wraps the DuckDB connection holding entity inputs and
// analytics result tables.
type Warehouse struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// OpenWarehouse opens (or creates) the DuckDB database at cfg.Path and
// initializes the schema. Pass ":memory:" for an ephemeral warehouse.
func OpenWarehouse(cfg *config.DatabaseConfig) (*Warehouse, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	// Auto-install/auto-load stays off so the process never reaches for the
	// network in locked-down environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	w := &Warehouse{conn: conn, cfg: cfg}
	if err := w.initSchema(context.Background()); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", numThreads).Msg("Warehouse opened")
	return w, nil
}

// Close closes the underlying connection.
func (w *Warehouse) Close() error {
	return w.conn.Close()
}

// Ping verifies the connection is alive.
func (w *Warehouse) Ping(ctx context.Context) error {
	return w.conn.PingContext(ctx)
}

func closeQuietly(c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Msg("Close failed")
	}
}

// schemaStatements create the entity and result tables. DuckDB executes
// these idempotently on every open.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id VARCHAR PRIMARY KEY,
		registration_date TIMESTAMP NOT NULL,
		last_active TIMESTAMP,
		country VARCHAR,
		city VARCHAR,
		user_doc JSON
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		category_id VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL,
		parent_id VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		product_id VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL,
		category_id VARCHAR NOT NULL,
		subcategory_id VARCHAR,
		base_price DECIMAL(12,2) NOT NULL,
		current_stock INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id VARCHAR PRIMARY KEY,
		user_id VARCHAR NOT NULL,
		session_id VARCHAR,
		ts TIMESTAMP NOT NULL,
		subtotal DECIMAL(12,2) NOT NULL,
		discount DECIMAL(12,2) NOT NULL,
		total DECIMAL(12,2) NOT NULL,
		payment_method VARCHAR,
		status VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS transaction_items (
		transaction_id VARCHAR NOT NULL,
		product_id VARCHAR NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price DECIMAL(12,2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_ts ON transactions (user_id, ts)`,
	`CREATE TABLE IF NOT EXISTS runs (
		run_id VARCHAR PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		records_seen INTEGER NOT NULL,
		records_failed INTEGER NOT NULL,
		empty_sessions INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS run_errors (
		run_id VARCHAR NOT NULL,
		entity VARCHAR NOT NULL,
		record_id VARCHAR NOT NULL,
		kind VARCHAR NOT NULL,
		reason VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS funnel_summary (
		run_id VARCHAR NOT NULL,
		stage VARCHAR NOT NULL,
		session_count INTEGER NOT NULL,
		conversion_from_prev DOUBLE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS popularity_revenue (
		run_id VARCHAR NOT NULL,
		bucket TIMESTAMP NOT NULL,
		group_kind VARCHAR NOT NULL,
		group_id VARCHAR NOT NULL,
		popularity INTEGER NOT NULL,
		revenue DECIMAL(12,2) NOT NULL,
		units_sold INTEGER NOT NULL,
		orders INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS top_spenders (
		run_id VARCHAR NOT NULL,
		rank INTEGER NOT NULL,
		user_id VARCHAR NOT NULL,
		total_spend DECIMAL(12,2) NOT NULL,
		orders INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cohort_curves (
		run_id VARCHAR NOT NULL,
		cohort INTEGER NOT NULL,
		cohort_start TIMESTAMP NOT NULL,
		cohort_size INTEGER NOT NULL,
		period INTEGER NOT NULL,
		active_users INTEGER NOT NULL,
		retention DOUBLE NOT NULL,
		mean_revenue DECIMAL(12,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_clv (
		run_id VARCHAR NOT NULL,
		user_id VARCHAR NOT NULL,
		cohort INTEGER NOT NULL,
		transactions INTEGER NOT NULL,
		active_periods INTEGER NOT NULL,
		historical DECIMAL(12,2) NOT NULL,
		projected DECIMAL(12,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cohort_clv (
		run_id VARCHAR NOT NULL,
		cohort INTEGER NOT NULL,
		cohort_size INTEGER NOT NULL,
		mean_historical DECIMAL(12,2) NOT NULL,
		mean_projected DECIMAL(12,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS affinity_pairs (
		run_id VARCHAR NOT NULL,
		product_a VARCHAR NOT NULL,
		product_b VARCHAR NOT NULL,
		pair_count INTEGER NOT NULL,
		count_a INTEGER NOT NULL,
		count_b INTEGER NOT NULL,
		support DOUBLE NOT NULL,
		confidence_a_to_b DOUBLE NOT NULL,
		confidence_b_to_a DOUBLE NOT NULL,
		lift DOUBLE NOT NULL
	)`,
}

func (w *Warehouse) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := w.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
