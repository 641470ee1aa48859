// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

// Package ingest reads generator dataset directories: users.json,
// categories.json, products.json, transactions.json, and chunked
// sessions_N.json files. Files are decoded as streams so a multi-gigabyte
// session chunk never has to fit in memory at once.
//
// Raw session documents carry page_views; ingestion maps each page view to
// a typed browsing event. Structurally invalid records are collected as
// per-record errors and skipped, never failing the whole load.
package ingest
