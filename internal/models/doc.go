// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

// Package models defines the entity schemas shared by every analytics
// component: users, categories, products, sessions with their ordered
// events, transactions with line items, and the derived funnel and
// result-table shapes consumed by reporting collaborators.
//
// All entities are immutable once created and owned by the observation
// window. Monetary fields use shopspring/decimal so that aggregating many
// small transactions cannot accumulate floating-point drift.
package models
