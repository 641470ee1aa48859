// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopsight/shopsight/internal/analytics"
	"github.com/shopsight/shopsight/internal/models"
)

func fixtureResults() *analytics.Results {
	bucket := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	return &analytics.Results{
		Funnel: []models.FunnelSummaryRow{
			{StageName: "view", Count: 10, ConversionFromPrev: 1},
			{StageName: "cart", Count: 4, ConversionFromPrev: 0.4},
		},
		ProductTable: []models.PopularityRevenueRow{
			{Bucket: bucket, GroupID: "p1", Popularity: 7, Revenue: decimal.RequireFromString("49.99"), UnitsSold: 1, Orders: 1},
		},
		CategoryTable: []models.PopularityRevenueRow{
			{Bucket: bucket, GroupID: "c1", Popularity: 7, Revenue: decimal.RequireFromString("49.99"), UnitsSold: 1, Orders: 1},
		},
		TopSpenders: []models.TopSpenderRow{
			{UserID: "u1", TotalSpent: decimal.RequireFromString("49.99"), Orders: 1},
		},
		CohortCurves: []models.CohortCurveRow{
			{Cohort: 0, CohortStart: bucket, CohortSize: 2, ElapsedPeriod: 0, ActiveUsers: 1, RetentionFraction: 0.5, MeanRevenue: decimal.RequireFromString("24.99")},
		},
		UserCLV: []models.UserCLVRow{
			{UserID: "u1", Cohort: 0, Transactions: 1, ActivePeriods: 1, HistoricalCLV: decimal.RequireFromString("49.99"), ProjectedCLV: decimal.RequireFromString("149.97")},
		},
		CohortCLV: []models.CohortCLVRow{
			{Cohort: 0, Users: 2, AvgHistoricalCLV: decimal.RequireFromString("25.00"), AvgProjectedCLV: decimal.RequireFromString("74.99")},
		},
		Affinity: []models.AffinityPairRow{
			{ProductA: "p1", ProductB: "p2", PairCount: 3, Support: 0.3, ConfidenceAToB: 0.75, ConfidenceBToA: 0.6, Lift: 1.5},
		},
		Report: analytics.Report{
			RunID: "test-run",
			Errors: []analytics.RecordError{
				{Kind: analytics.KindValidation, Entity: "transaction", ID: "t9", Reason: "total mismatch"},
			},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return rows
}

func TestExportCSVWritesAllFiles(t *testing.T) {
	dir := t.TempDir()
	if err := ExportCSV(dir, fixtureResults()); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}

	wantFiles := []string{
		"funnel_summary.csv",
		"popularity_by_product.csv",
		"revenue_by_category.csv",
		"top_spenders.csv",
		"cohort_retention.csv",
		"user_clv.csv",
		"cohort_clv.csv",
		"also_bought.csv",
		"run_report.csv",
	}
	for _, name := range wantFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing export %s: %v", name, err)
		}
	}
}

func TestExportCSVContents(t *testing.T) {
	dir := t.TempDir()
	if err := ExportCSV(dir, fixtureResults()); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}

	funnel := readCSV(t, filepath.Join(dir, "funnel_summary.csv"))
	wantFunnel := [][]string{
		{"stage", "sessions", "conversion_from_previous"},
		{"view", "10", "1.000000"},
		{"cart", "4", "0.400000"},
	}
	if !reflect.DeepEqual(funnel, wantFunnel) {
		t.Errorf("funnel_summary.csv = %v, want %v", funnel, wantFunnel)
	}

	pop := readCSV(t, filepath.Join(dir, "popularity_by_product.csv"))
	wantPop := [][]string{
		{"bucket", "group_id", "popularity", "revenue", "units_sold", "orders"},
		{"2026-01-05T00:00:00Z", "p1", "7", "49.99", "1", "1"},
	}
	if !reflect.DeepEqual(pop, wantPop) {
		t.Errorf("popularity_by_product.csv = %v, want %v", pop, wantPop)
	}

	spenders := readCSV(t, filepath.Join(dir, "top_spenders.csv"))
	if len(spenders) != 2 || spenders[1][0] != "1" || spenders[1][1] != "u1" || spenders[1][2] != "49.99" {
		t.Errorf("top_spenders.csv = %v", spenders)
	}

	affinity := readCSV(t, filepath.Join(dir, "also_bought.csv"))
	wantAffinity := [][]string{
		{"product_a", "product_b", "pair_count", "support", "confidence_a_to_b", "confidence_b_to_a", "lift"},
		{"p1", "p2", "3", "0.300000", "0.750000", "0.600000", "1.500000"},
	}
	if !reflect.DeepEqual(affinity, wantAffinity) {
		t.Errorf("also_bought.csv = %v, want %v", affinity, wantAffinity)
	}

	report := readCSV(t, filepath.Join(dir, "run_report.csv"))
	wantReport := [][]string{
		{"kind", "entity", "record_id", "reason"},
		{"validation", "transaction", "t9", "total mismatch"},
	}
	if !reflect.DeepEqual(report, wantReport) {
		t.Errorf("run_report.csv = %v, want %v", report, wantReport)
	}
}

func TestExportCSVOverwrites(t *testing.T) {
	dir := t.TempDir()
	res := fixtureResults()
	if err := ExportCSV(dir, res); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	res.Funnel = res.Funnel[:1]
	if err := ExportCSV(dir, res); err != nil {
		t.Fatalf("ExportCSV() second run error = %v", err)
	}
	funnel := readCSV(t, filepath.Join(dir, "funnel_summary.csv"))
	if len(funnel) != 2 {
		t.Errorf("funnel rows after overwrite = %d, want header + 1", len(funnel))
	}
}

func TestExportCSVDeterministic(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	if err := ExportCSV(dirA, fixtureResults()); err != nil {
		t.Fatal(err)
	}
	if err := ExportCSV(dirB, fixtureResults()); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"funnel_summary.csv", "cohort_retention.csv", "user_clv.csv"} {
		a, err := os.ReadFile(filepath.Join(dirA, name))
		if err != nil {
			t.Fatal(err)
		}
		b, err := os.ReadFile(filepath.Join(dirB, name))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("%s differs between identical exports", name)
		}
	}
}
