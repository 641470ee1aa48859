// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

// Package analytics implements the batch computation core: session funnel
// reconstruction, windowed popularity/revenue aggregation, cohort retention
// and lifetime-value estimation, and co-purchase affinity analysis.
//
// Every component is a pure, side-effect-free transformation over immutable
// input collections. Partial aggregates merge associatively and
// commutatively, so transactions and sessions can be partitioned across
// workers and combined in a final reduce step. Re-running the pipeline on
// unchanged input yields byte-identical result tables.
//
// Per-record failures (malformed fields, dangling references) are collected
// into a structured report and excluded from aggregates; only configuration
// errors and an exceeded abort threshold fail a run outright.
package analytics
