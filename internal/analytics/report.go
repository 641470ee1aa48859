// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package analytics

import (
	"sort"
	"time"
)

// Report is the structured per-run error report returned alongside
// successful results. A run with a non-empty error list still succeeds
// unless the error rate exceeds the abort threshold.
type Report struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	RecordsSeen   int           `json:"records_seen"`
	RecordsFailed int           `json:"records_failed"`
	EmptySessions int           `json:"empty_sessions_skipped"`
	Errors        []RecordError `json:"errors"`
}

// add appends a record error and bumps the failure count.
func (r *Report) add(err *RecordError) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, *err)
	r.RecordsFailed++
}

// addAll appends a batch of record errors.
func (r *Report) addAll(errs []RecordError) {
	for i := range errs {
		r.add(&errs[i])
	}
}

// ErrorRate returns failed/seen, or 0 when nothing was seen.
func (r *Report) ErrorRate() float64 {
	if r.RecordsSeen == 0 {
		return 0
	}
	return float64(r.RecordsFailed) / float64(r.RecordsSeen)
}

// sortErrors orders the error list by (entity, id, kind, reason) so reports
// are reproducible regardless of worker scheduling.
func (r *Report) sortErrors() {
	sort.Slice(r.Errors, func(i, j int) bool {
		a, b := r.Errors[i], r.Errors[j]
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Reason < b.Reason
	})
}
