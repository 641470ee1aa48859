// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsIngested counts records accepted per entity type.
	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsight_records_ingested_total",
			Help: "Total records accepted during ingestion",
		},
		[]string{"entity"},
	)

	// RecordsRejected counts records excluded per entity and error kind.
	RecordsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsight_records_rejected_total",
			Help: "Total records rejected during ingestion or analysis",
		},
		[]string{"entity", "kind"},
	)

	// StageDuration observes per-component pipeline durations.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopsight_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// RunsTotal counts pipeline runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsight_runs_total",
			Help: "Total pipeline runs by outcome",
		},
		[]string{"status"}, // "ok", "aborted", "error"
	)

	// ResultRows reports the row count of each persisted result table for
	// the most recent run.
	ResultRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shopsight_result_rows",
			Help: "Rows in each result table for the latest run",
		},
		[]string{"table"},
	)
)

// ObserveStage records the duration of a pipeline stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
