// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

// Package logging provides the centralized zerolog-based logger used by
// every component. JSON output is the default; console output is available
// for local runs.
package logging
