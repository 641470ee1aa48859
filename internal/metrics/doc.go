// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

// Package metrics provides Prometheus instrumentation for ingestion and
// pipeline runs. Metrics are exported on the results API's /metrics
// endpoint.
package metrics
