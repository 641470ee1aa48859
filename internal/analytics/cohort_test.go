// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopsight/shopsight/internal/models"
)

const week = 7 * 24 * time.Hour

func TestComputeCohortsRetentionCurve(t *testing.T) {
	// Three users registered on day 0, day 10, day 50. The first makes two
	// $10 purchases of one product, in week 0 and week 2 of its own life.
	windowStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 0, 21)

	users := []models.User{
		testUser("u1", windowStart),
		testUser("u2", windowStart.AddDate(0, 0, 10)),
		testUser("u3", windowStart.AddDate(0, 0, 50)),
	}
	txs := []models.Transaction{
		testTx("t1", "u1", "", windowStart.Add(24*time.Hour), item("p1", 1, "10.00")),
		testTx("t2", "u1", "", windowStart.AddDate(0, 0, 15), item("p1", 1, "10.00")),
	}

	res := ComputeCohorts(CohortConfig{
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		BucketWidth:    week,
		HorizonPeriods: 0,
	}, users, txs)

	got := make(map[int]models.CohortCurveRow)
	for _, row := range res.Curves {
		if row.Cohort == 0 {
			got[row.ElapsedPeriod] = row
		}
	}

	wantRetention := map[int]float64{0: 1.0, 1: 0.0, 2: 1.0}
	for period, want := range wantRetention {
		row, ok := got[period]
		if !ok {
			t.Fatalf("cohort 0 period %d missing", period)
		}
		if row.RetentionFraction != want {
			t.Errorf("period %d: retention = %v, want %v", period, row.RetentionFraction, want)
		}
		if row.CohortSize != 1 {
			t.Errorf("period %d: cohort size = %d, want 1", period, row.CohortSize)
		}
	}
	if !got[0].MeanRevenue.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("period 0 mean revenue = %s, want 10.00", got[0].MeanRevenue)
	}
}

func TestComputeCohortsRetentionBounds(t *testing.T) {
	windowStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	users := []models.User{
		testUser("u1", windowStart),
		testUser("u2", windowStart.Add(time.Hour)),
		testUser("u3", windowStart.Add(2*time.Hour)),
	}
	txs := []models.Transaction{
		testTx("t1", "u1", "", windowStart.Add(24*time.Hour), item("p1", 1, "5.00")),
		testTx("t2", "u2", "", windowStart.AddDate(0, 0, 8), item("p1", 2, "5.00")),
	}
	res := ComputeCohorts(CohortConfig{
		WindowStart: windowStart,
		WindowEnd:   windowStart.AddDate(0, 0, 14),
		BucketWidth: week,
	}, users, txs)

	for _, row := range res.Curves {
		if row.RetentionFraction < 0 || row.RetentionFraction > 1 {
			t.Errorf("cohort %d period %d: retention %v out of [0,1]", row.Cohort, row.ElapsedPeriod, row.RetentionFraction)
		}
	}
}

func TestComputeCohortsCLVProjection(t *testing.T) {
	windowStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	users := []models.User{
		testUser("spender", windowStart),
		testUser("dormant", windowStart),
	}
	txs := []models.Transaction{
		testTx("t1", "spender", "", windowStart.Add(24*time.Hour), item("p1", 1, "10.00")),
		testTx("t2", "spender", "", windowStart.AddDate(0, 0, 15), item("p1", 2, "10.00")),
	}

	res := ComputeCohorts(CohortConfig{
		WindowStart:    windowStart,
		WindowEnd:      windowStart.AddDate(0, 0, 21),
		BucketWidth:    week,
		HorizonPeriods: 4,
	}, users, txs)

	if len(res.UserCLV) != 2 {
		t.Fatalf("len(UserCLV) = %d, want 2", len(res.UserCLV))
	}
	byUser := make(map[string]models.UserCLVRow, 2)
	for _, row := range res.UserCLV {
		byUser[row.UserID] = row
	}

	spender := byUser["spender"]
	if !spender.HistoricalCLV.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("historical = %s, want 30.00", spender.HistoricalCLV)
	}
	// Two active periods averaging $15: horizon of 4 adds $60.
	if !spender.ProjectedCLV.Equal(decimal.RequireFromString("90.00")) {
		t.Errorf("projected = %s, want 90.00", spender.ProjectedCLV)
	}
	if spender.ProjectedCLV.LessThan(spender.HistoricalCLV) {
		t.Error("projection subtracted value")
	}

	dormant := byUser["dormant"]
	if !dormant.HistoricalCLV.IsZero() || !dormant.ProjectedCLV.IsZero() {
		t.Errorf("dormant CLV = %s/%s, want zeros", dormant.HistoricalCLV, dormant.ProjectedCLV)
	}

	if len(res.CohortCLV) != 1 {
		t.Fatalf("len(CohortCLV) = %d, want 1", len(res.CohortCLV))
	}
	coh := res.CohortCLV[0]
	if coh.Users != 2 {
		t.Errorf("cohort users = %d, want 2", coh.Users)
	}
	if !coh.AvgHistoricalCLV.Equal(decimal.RequireFromString("15.00")) {
		t.Errorf("cohort avg historical = %s, want 15.00", coh.AvgHistoricalCLV)
	}
	if !coh.AvgProjectedCLV.Equal(decimal.RequireFromString("45.00")) {
		t.Errorf("cohort avg projected = %s, want 45.00", coh.AvgProjectedCLV)
	}
}

func TestComputeCohortsZeroBucketWidth(t *testing.T) {
	// The zero value of CohortConfig must not divide by zero: a non-positive
	// width folds every user into cohort 0 and all activity into period 0.
	windowStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	users := []models.User{
		testUser("u1", windowStart),
		testUser("u2", windowStart.AddDate(0, 0, 30)),
	}
	txs := []models.Transaction{
		testTx("t1", "u1", "", windowStart.Add(24*time.Hour), item("p1", 1, "10.00")),
		testTx("t2", "u2", "", windowStart.AddDate(0, 0, 45), item("p1", 1, "10.00")),
	}

	for _, width := range []time.Duration{0, -week} {
		res := ComputeCohorts(CohortConfig{
			WindowStart: windowStart,
			WindowEnd:   windowStart.AddDate(0, 0, 60),
			BucketWidth: width,
		}, users, txs)

		if len(res.Curves) != 1 {
			t.Fatalf("width %v: len(Curves) = %d, want 1", width, len(res.Curves))
		}
		row := res.Curves[0]
		if row.Cohort != 0 || row.ElapsedPeriod != 0 {
			t.Errorf("width %v: curve row = cohort %d period %d, want 0/0", width, row.Cohort, row.ElapsedPeriod)
		}
		if row.CohortSize != 2 || row.ActiveUsers != 2 {
			t.Errorf("width %v: size/active = %d/%d, want 2/2", width, row.CohortSize, row.ActiveUsers)
		}
		if row.RetentionFraction != 1.0 {
			t.Errorf("width %v: retention = %v, want 1.0", width, row.RetentionFraction)
		}
		for _, clv := range res.UserCLV {
			if clv.Cohort != 0 {
				t.Errorf("width %v: user %s cohort = %d, want 0", width, clv.UserID, clv.Cohort)
			}
		}
	}
}

func TestComputeCohortsPreWindowRegistration(t *testing.T) {
	windowStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	users := []models.User{testUser("early", windowStart.AddDate(0, 0, -30))}
	res := ComputeCohorts(CohortConfig{
		WindowStart: windowStart,
		WindowEnd:   windowStart.AddDate(0, 0, 7),
		BucketWidth: week,
	}, users, nil)

	if len(res.UserCLV) != 1 {
		t.Fatalf("len(UserCLV) = %d, want 1", len(res.UserCLV))
	}
	if res.UserCLV[0].Cohort != 0 {
		t.Errorf("pre-window registration cohort = %d, want 0", res.UserCLV[0].Cohort)
	}
}
