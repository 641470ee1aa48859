// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopsight/shopsight/internal/analytics"
	"github.com/shopsight/shopsight/internal/metrics"
	"github.com/shopsight/shopsight/internal/models"
)

// ErrNoRuns indicates an empty runs table.
var ErrNoRuns = errors.New("no analytics runs recorded")

// SaveResults persists one run's output tables and its error report.
// Results for a given run id are written exactly once.
func (w *Warehouse) SaveResults(ctx context.Context, res *analytics.Results) error {
	runID := res.Report.RunID

	dbTx, err := w.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin results batch: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	if _, err := dbTx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, finished_at, records_seen, records_failed, empty_sessions)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, res.Report.StartedAt, res.Report.FinishedAt,
		res.Report.RecordsSeen, res.Report.RecordsFailed, res.Report.EmptySessions); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i := range res.Report.Errors {
		e := &res.Report.Errors[i]
		if _, err := dbTx.ExecContext(ctx,
			`INSERT INTO run_errors (run_id, entity, record_id, kind, reason) VALUES (?, ?, ?, ?, ?)`,
			runID, e.Entity, e.ID, string(e.Kind), e.Reason); err != nil {
			return fmt.Errorf("insert run error: %w", err)
		}
	}

	for _, row := range res.Funnel {
		if _, err := dbTx.ExecContext(ctx,
			`INSERT INTO funnel_summary (run_id, stage, session_count, conversion_from_prev) VALUES (?, ?, ?, ?)`,
			runID, row.StageName, row.Count, row.ConversionFromPrev); err != nil {
			return fmt.Errorf("insert funnel row: %w", err)
		}
	}

	for _, table := range [][]models.PopularityRevenueRow{res.ProductTable, res.CategoryTable} {
		for _, row := range table {
			if _, err := dbTx.ExecContext(ctx,
				`INSERT INTO popularity_revenue (run_id, bucket, group_kind, group_id, popularity, revenue, units_sold, orders)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, row.Bucket, string(row.GroupKind), row.GroupID,
				row.Popularity, row.Revenue.StringFixed(2), row.UnitsSold, row.Orders); err != nil {
				return fmt.Errorf("insert popularity row: %w", err)
			}
		}
	}

	for i, row := range res.TopSpenders {
		if _, err := dbTx.ExecContext(ctx,
			`INSERT INTO top_spenders (run_id, rank, user_id, total_spend, orders) VALUES (?, ?, ?, ?, ?)`,
			runID, i+1, row.UserID, row.TotalSpent.StringFixed(2), row.Orders); err != nil {
			return fmt.Errorf("insert top spender row: %w", err)
		}
	}

	for _, row := range res.CohortCurves {
		if _, err := dbTx.ExecContext(ctx,
			`INSERT INTO cohort_curves (run_id, cohort, cohort_start, cohort_size, period, active_users, retention, mean_revenue)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, int(row.Cohort), row.CohortStart, row.CohortSize,
			row.ElapsedPeriod, row.ActiveUsers, row.RetentionFraction, row.MeanRevenue.StringFixed(2)); err != nil {
			return fmt.Errorf("insert cohort curve row: %w", err)
		}
	}

	for _, row := range res.UserCLV {
		if _, err := dbTx.ExecContext(ctx,
			`INSERT INTO user_clv (run_id, user_id, cohort, transactions, active_periods, historical, projected)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, row.UserID, int(row.Cohort), row.Transactions, row.ActivePeriods,
			row.HistoricalCLV.StringFixed(2), row.ProjectedCLV.StringFixed(2)); err != nil {
			return fmt.Errorf("insert user clv row: %w", err)
		}
	}

	for _, row := range res.CohortCLV {
		if _, err := dbTx.ExecContext(ctx,
			`INSERT INTO cohort_clv (run_id, cohort, cohort_size, mean_historical, mean_projected)
			 VALUES (?, ?, ?, ?, ?)`,
			runID, int(row.Cohort), row.Users,
			row.AvgHistoricalCLV.StringFixed(2), row.AvgProjectedCLV.StringFixed(2)); err != nil {
			return fmt.Errorf("insert cohort clv row: %w", err)
		}
	}

	for _, row := range res.Affinity {
		if _, err := dbTx.ExecContext(ctx,
			`INSERT INTO affinity_pairs (run_id, product_a, product_b, pair_count, count_a, count_b, support, confidence_a_to_b, confidence_b_to_a, lift)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, row.ProductA, row.ProductB, row.PairCount, row.CountA, row.CountB,
			row.Support, row.ConfidenceAToB, row.ConfidenceBToA, row.Lift); err != nil {
			return fmt.Errorf("insert affinity row: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit results batch: %w", err)
	}

	metrics.ResultRows.WithLabelValues("funnel_summary").Set(float64(len(res.Funnel)))
	metrics.ResultRows.WithLabelValues("popularity_revenue").Set(float64(len(res.ProductTable) + len(res.CategoryTable)))
	metrics.ResultRows.WithLabelValues("cohort_curves").Set(float64(len(res.CohortCurves)))
	metrics.ResultRows.WithLabelValues("user_clv").Set(float64(len(res.UserCLV)))
	metrics.ResultRows.WithLabelValues("affinity_pairs").Set(float64(len(res.Affinity)))
	return nil
}

// LatestRunID returns the most recently finished run id.
func (w *Warehouse) LatestRunID(ctx context.Context) (string, error) {
	var runID string
	err := w.conn.QueryRowContext(ctx,
		`SELECT run_id FROM runs ORDER BY finished_at DESC, run_id DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRuns
	}
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return runID, nil
}

// QueryRunReport reconstructs the error report for a run.
func (w *Warehouse) QueryRunReport(ctx context.Context, runID string) (*analytics.Report, error) {
	rep := &analytics.Report{RunID: runID}
	err := w.conn.QueryRowContext(ctx,
		`SELECT started_at, finished_at, records_seen, records_failed, empty_sessions FROM runs WHERE run_id = ?`,
		runID).Scan(&rep.StartedAt, &rep.FinishedAt, &rep.RecordsSeen, &rep.RecordsFailed, &rep.EmptySessions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	rows, err := w.conn.QueryContext(ctx,
		`SELECT entity, record_id, kind, reason FROM run_errors WHERE run_id = ?
		 ORDER BY entity, record_id, kind, reason`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run errors: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var e analytics.RecordError
		var kind string
		if err := rows.Scan(&e.Entity, &e.ID, &kind, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan run error: %w", err)
		}
		e.Kind = analytics.ErrorKind(kind)
		rep.Errors = append(rep.Errors, e)
	}
	return rep, rows.Err()
}

// QueryFunnel returns the funnel summary table for a run in stage order.
func (w *Warehouse) QueryFunnel(ctx context.Context, runID string) ([]models.FunnelSummaryRow, error) {
	rows, err := w.conn.QueryContext(ctx,
		`SELECT stage, session_count, conversion_from_prev FROM funnel_summary
		 WHERE run_id = ? ORDER BY session_count DESC, stage`, runID)
	if err != nil {
		return nil, fmt.Errorf("query funnel: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.FunnelSummaryRow
	for rows.Next() {
		var r models.FunnelSummaryRow
		if err := rows.Scan(&r.StageName, &r.Count, &r.ConversionFromPrev); err != nil {
			return nil, fmt.Errorf("scan funnel row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryPopularity returns the popularity/revenue table for a run and group
// kind, preserving the pipeline's revenue-descending ordering.
func (w *Warehouse) QueryPopularity(ctx context.Context, runID string, kind models.GroupKind, limit int) ([]models.PopularityRevenueRow, error) {
	query := `SELECT bucket, group_id, popularity, CAST(revenue AS VARCHAR), units_sold, orders
	          FROM popularity_revenue WHERE run_id = ? AND group_kind = ?
	          ORDER BY revenue DESC, group_id, bucket`
	args := []any{runID, string(kind)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := w.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query popularity: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.PopularityRevenueRow
	for rows.Next() {
		r := models.PopularityRevenueRow{GroupKind: kind}
		var bucket time.Time
		var revenue string
		if err := rows.Scan(&bucket, &r.GroupID, &r.Popularity, &revenue, &r.UnitsSold, &r.Orders); err != nil {
			return nil, fmt.Errorf("scan popularity row: %w", err)
		}
		r.Bucket = bucket.UTC()
		if r.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, fmt.Errorf("decode revenue: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryTopSpenders returns the ranked top spenders for a run.
func (w *Warehouse) QueryTopSpenders(ctx context.Context, runID string) ([]models.TopSpenderRow, error) {
	rows, err := w.conn.QueryContext(ctx,
		`SELECT user_id, CAST(total_spend AS VARCHAR), orders FROM top_spenders
		 WHERE run_id = ? ORDER BY rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("query top spenders: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.TopSpenderRow
	for rows.Next() {
		var r models.TopSpenderRow
		var spend string
		if err := rows.Scan(&r.UserID, &spend, &r.Orders); err != nil {
			return nil, fmt.Errorf("scan top spender row: %w", err)
		}
		if r.TotalSpent, err = decimal.NewFromString(spend); err != nil {
			return nil, fmt.Errorf("decode spend: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryCohortCurves returns the retention curves for a run ordered by
// cohort then elapsed period.
func (w *Warehouse) QueryCohortCurves(ctx context.Context, runID string) ([]models.CohortCurveRow, error) {
	rows, err := w.conn.QueryContext(ctx,
		`SELECT cohort, cohort_start, cohort_size, period, active_users, retention, CAST(mean_revenue AS VARCHAR)
		 FROM cohort_curves WHERE run_id = ? ORDER BY cohort, period`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cohort curves: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.CohortCurveRow
	for rows.Next() {
		var r models.CohortCurveRow
		var cohort int
		var start time.Time
		var revenue string
		if err := rows.Scan(&cohort, &start, &r.CohortSize, &r.ElapsedPeriod, &r.ActiveUsers, &r.RetentionFraction, &revenue); err != nil {
			return nil, fmt.Errorf("scan cohort curve row: %w", err)
		}
		r.Cohort = models.CohortKey(cohort)
		r.CohortStart = start.UTC()
		if r.MeanRevenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, fmt.Errorf("decode mean revenue: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryUserCLV returns per-user lifetime value rows for a run ordered by
// user id.
func (w *Warehouse) QueryUserCLV(ctx context.Context, runID string) ([]models.UserCLVRow, error) {
	rows, err := w.conn.QueryContext(ctx,
		`SELECT user_id, cohort, transactions, active_periods, CAST(historical AS VARCHAR), CAST(projected AS VARCHAR)
		 FROM user_clv WHERE run_id = ? ORDER BY user_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query user clv: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.UserCLVRow
	for rows.Next() {
		var r models.UserCLVRow
		var cohort int
		var hist, proj string
		if err := rows.Scan(&r.UserID, &cohort, &r.Transactions, &r.ActivePeriods, &hist, &proj); err != nil {
			return nil, fmt.Errorf("scan user clv row: %w", err)
		}
		r.Cohort = models.CohortKey(cohort)
		if r.HistoricalCLV, err = decimal.NewFromString(hist); err != nil {
			return nil, fmt.Errorf("decode historical clv: %w", err)
		}
		if r.ProjectedCLV, err = decimal.NewFromString(proj); err != nil {
			return nil, fmt.Errorf("decode projected clv: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryCohortCLV returns cohort-average lifetime value rows for a run.
func (w *Warehouse) QueryCohortCLV(ctx context.Context, runID string) ([]models.CohortCLVRow, error) {
	rows, err := w.conn.QueryContext(ctx,
		`SELECT cohort, cohort_size, CAST(mean_historical AS VARCHAR), CAST(mean_projected AS VARCHAR)
		 FROM cohort_clv WHERE run_id = ? ORDER BY cohort`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cohort clv: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.CohortCLVRow
	for rows.Next() {
		var r models.CohortCLVRow
		var cohort int
		var hist, proj string
		if err := rows.Scan(&cohort, &r.Users, &hist, &proj); err != nil {
			return nil, fmt.Errorf("scan cohort clv row: %w", err)
		}
		r.Cohort = models.CohortKey(cohort)
		if r.AvgHistoricalCLV, err = decimal.NewFromString(hist); err != nil {
			return nil, fmt.Errorf("decode mean historical clv: %w", err)
		}
		if r.AvgProjectedCLV, err = decimal.NewFromString(proj); err != nil {
			return nil, fmt.Errorf("decode mean projected clv: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryAffinity returns the co-purchase pair table for a run in lift order.
func (w *Warehouse) QueryAffinity(ctx context.Context, runID string, limit int) ([]models.AffinityPairRow, error) {
	query := `SELECT product_a, product_b, pair_count, count_a, count_b, support, confidence_a_to_b, confidence_b_to_a, lift
	          FROM affinity_pairs WHERE run_id = ?
	          ORDER BY lift DESC, support DESC, product_a, product_b`
	args := []any{runID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := w.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query affinity: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.AffinityPairRow
	for rows.Next() {
		var r models.AffinityPairRow
		if err := rows.Scan(&r.ProductA, &r.ProductB, &r.PairCount, &r.CountA, &r.CountB,
			&r.Support, &r.ConfidenceAToB, &r.ConfidenceBToA, &r.Lift); err != nil {
			return nil, fmt.Errorf("scan affinity row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
