// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

// Package validation provides struct validation using go-playground/validator
// v10 through a thread-safe singleton instance. Field-level failures are
// translated into structured errors that the analytics error report can
// carry per record.
package validation
