// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

// Package report exports a run's result tables as headered CSV files, one
// file per table, suitable for spreadsheets and downstream BI loads.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopsight/shopsight/internal/analytics"
	"github.com/shopsight/shopsight/internal/logging"
	"github.com/shopsight/shopsight/internal/models"
)

// ExportCSV writes every result table of the run into dir. Existing files
// are overwritten. File contents are deterministic for identical results.
func ExportCSV(dir string, res *analytics.Results) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}

	files := []struct {
		name string
		rows func() ([][]string, error)
	}{
		{"funnel_summary.csv", func() ([][]string, error) { return funnelRows(res.Funnel), nil }},
		{"popularity_by_product.csv", func() ([][]string, error) { return popularityRows(res.ProductTable), nil }},
		{"revenue_by_category.csv", func() ([][]string, error) { return popularityRows(res.CategoryTable), nil }},
		{"top_spenders.csv", func() ([][]string, error) { return spenderRows(res.TopSpenders), nil }},
		{"cohort_retention.csv", func() ([][]string, error) { return cohortRows(res.CohortCurves), nil }},
		{"user_clv.csv", func() ([][]string, error) { return userCLVRows(res.UserCLV), nil }},
		{"cohort_clv.csv", func() ([][]string, error) { return cohortCLVRows(res.CohortCLV), nil }},
		{"also_bought.csv", func() ([][]string, error) { return affinityRows(res.Affinity), nil }},
		{"run_report.csv", func() ([][]string, error) { return reportRows(&res.Report), nil }},
	}

	for _, f := range files {
		rows, err := f.rows()
		if err != nil {
			return err
		}
		if err := writeCSV(filepath.Join(dir, f.name), rows); err != nil {
			return err
		}
	}

	logging.Info().Str("dir", dir).Str("run_id", res.Report.RunID).Msg("CSV export complete")
	return nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func funnelRows(rows []models.FunnelSummaryRow) [][]string {
	out := [][]string{{"stage", "sessions", "conversion_from_previous"}}
	for _, r := range rows {
		out = append(out, []string{r.StageName, strconv.FormatInt(r.Count, 10), formatRate(r.ConversionFromPrev)})
	}
	return out
}

func popularityRows(rows []models.PopularityRevenueRow) [][]string {
	out := [][]string{{"bucket", "group_id", "popularity", "revenue", "units_sold", "orders"}}
	for _, r := range rows {
		out = append(out, []string{
			r.Bucket.UTC().Format(time.RFC3339),
			r.GroupID,
			strconv.FormatInt(r.Popularity, 10),
			r.Revenue.StringFixed(2),
			strconv.FormatInt(r.UnitsSold, 10),
			strconv.FormatInt(r.Orders, 10),
		})
	}
	return out
}

func spenderRows(rows []models.TopSpenderRow) [][]string {
	out := [][]string{{"rank", "user_id", "total_spent", "num_orders"}}
	for i, r := range rows {
		out = append(out, []string{
			strconv.Itoa(i + 1),
			r.UserID,
			r.TotalSpent.StringFixed(2),
			strconv.FormatInt(r.Orders, 10),
		})
	}
	return out
}

func cohortRows(rows []models.CohortCurveRow) [][]string {
	out := [][]string{{"cohort", "cohort_start", "cohort_size", "period", "active_users", "retention", "mean_revenue"}}
	for _, r := range rows {
		out = append(out, []string{
			strconv.Itoa(int(r.Cohort)),
			r.CohortStart.UTC().Format(time.RFC3339),
			strconv.Itoa(r.CohortSize),
			strconv.Itoa(r.ElapsedPeriod),
			strconv.Itoa(r.ActiveUsers),
			formatRate(r.RetentionFraction),
			r.MeanRevenue.StringFixed(2),
		})
	}
	return out
}

func userCLVRows(rows []models.UserCLVRow) [][]string {
	out := [][]string{{"user_id", "cohort", "transactions", "active_periods", "historical_clv", "projected_clv"}}
	for _, r := range rows {
		out = append(out, []string{
			r.UserID,
			strconv.Itoa(int(r.Cohort)),
			strconv.Itoa(r.Transactions),
			strconv.Itoa(r.ActivePeriods),
			r.HistoricalCLV.StringFixed(2),
			r.ProjectedCLV.StringFixed(2),
		})
	}
	return out
}

func cohortCLVRows(rows []models.CohortCLVRow) [][]string {
	out := [][]string{{"cohort", "users", "avg_historical_clv", "avg_projected_clv"}}
	for _, r := range rows {
		out = append(out, []string{
			strconv.Itoa(int(r.Cohort)),
			strconv.Itoa(r.Users),
			r.AvgHistoricalCLV.StringFixed(2),
			r.AvgProjectedCLV.StringFixed(2),
		})
	}
	return out
}

func affinityRows(rows []models.AffinityPairRow) [][]string {
	out := [][]string{{"product_a", "product_b", "pair_count", "support", "confidence_a_to_b", "confidence_b_to_a", "lift"}}
	for _, r := range rows {
		out = append(out, []string{
			r.ProductA,
			r.ProductB,
			strconv.FormatInt(r.PairCount, 10),
			formatRate(r.Support),
			formatRate(r.ConfidenceAToB),
			formatRate(r.ConfidenceBToA),
			formatRate(r.Lift),
		})
	}
	return out
}

func reportRows(rep *analytics.Report) [][]string {
	out := [][]string{{"kind", "entity", "record_id", "reason"}}
	for _, e := range rep.Errors {
		out = append(out, []string{string(e.Kind), e.Entity, e.ID, e.Reason})
	}
	return out
}

// formatRate renders fractions with fixed precision so exports stay
// byte-identical run to run.
func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
