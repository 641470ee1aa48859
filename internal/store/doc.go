// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

// Package store provides the persistence layer: a DuckDB warehouse holding
// entity inputs and analytics result tables, and a Badger key-value store
// for raw session documents keyed for per-user range scans.
//
// Monetary values cross the DuckDB boundary as fixed-point DECIMAL(12,2)
// and are surfaced to Go as shopspring decimals, never floats.
package store
