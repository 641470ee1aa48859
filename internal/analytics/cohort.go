// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopsight/shopsight/internal/models"
)

// CohortConfig parameterizes cohort assignment and CLV projection.
type CohortConfig struct {
	// WindowStart anchors cohort bucket 0.
	WindowStart time.Time

	// WindowEnd bounds the observable elapsed periods per cohort.
	WindowEnd time.Time

	// BucketWidth is the acquisition-period width (and the elapsed-period
	// width used for retention and CLV).
	BucketWidth time.Duration

	// HorizonPeriods is the number of periods beyond the window that
	// projected CLV extends the observed per-active-period average over.
	HorizonPeriods int
}

// CohortResult bundles the three cohort/CLV output tables.
type CohortResult struct {
	Curves    []models.CohortCurveRow
	UserCLV   []models.UserCLVRow
	CohortCLV []models.CohortCLVRow
}

type userActivity struct {
	cohort        models.CohortKey
	registration  time.Time
	transactions  int
	historical    decimal.Decimal
	periodRevenue map[int]decimal.Decimal
}

// ComputeCohorts assigns every user to its acquisition cohort, builds the
// per-(cohort, elapsed period) retention and revenue curve, and estimates
// per-user and per-cohort lifetime value.
//
// Elapsed periods are relative to each user's own registration, aligning
// cohorts of different start dates on a common age-since-acquisition axis.
// Retention denominators are full cohort sizes. Projected CLV adds
// HorizonPeriods of the user's observed per-active-period average spend to
// the historical total, so projection never subtracts value; users with no
// transactions are zero-extrapolated.
func ComputeCohorts(cfg CohortConfig, users []models.User, txs []models.Transaction) CohortResult {
	width := cfg.BucketWidth

	// Non-positive widths fold everything into a single elapsed period,
	// mirroring models.CohortOf folding them into cohort 0.
	periodOf := func(elapsed time.Duration) int {
		if elapsed < 0 {
			return -1
		}
		if width <= 0 {
			return 0
		}
		return int(elapsed / width)
	}

	activity := make(map[string]*userActivity, len(users))
	cohortUsers := make(map[models.CohortKey][]string)
	for i := range users {
		u := &users[i]
		key := models.CohortOf(u.RegistrationDate.Time, cfg.WindowStart, width)
		activity[u.UserID] = &userActivity{
			cohort:        key,
			registration:  u.RegistrationDate.Time,
			historical:    decimal.Zero,
			periodRevenue: make(map[int]decimal.Decimal),
		}
		cohortUsers[key] = append(cohortUsers[key], u.UserID)
	}

	for i := range txs {
		tx := &txs[i]
		ua, ok := activity[tx.UserID]
		if !ok {
			continue // dangling user refs are reported upstream
		}
		period := periodOf(tx.Timestamp.Sub(ua.registration))
		if period < 0 {
			continue
		}
		ua.transactions++
		ua.historical = ua.historical.Add(tx.Total)
		rev, ok := ua.periodRevenue[period]
		if !ok {
			rev = decimal.Zero
		}
		ua.periodRevenue[period] = rev.Add(tx.Total)
	}

	cohorts := make([]models.CohortKey, 0, len(cohortUsers))
	for key := range cohortUsers {
		cohorts = append(cohorts, key)
	}
	sort.Slice(cohorts, func(i, j int) bool { return cohorts[i] < cohorts[j] })

	var curves []models.CohortCurveRow
	for _, key := range cohorts {
		members := cohortUsers[key]
		size := len(members)
		cohortStart := cfg.WindowStart.Add(time.Duration(key) * width)

		maxPeriod := 0
		if width > 0 && cfg.WindowEnd.After(cohortStart) {
			maxPeriod = int(cfg.WindowEnd.Sub(cohortStart) / width)
		}

		for period := 0; period <= maxPeriod; period++ {
			active := 0
			revenue := decimal.Zero
			for _, uid := range members {
				ua := activity[uid]
				if rev, ok := ua.periodRevenue[period]; ok {
					active++
					revenue = revenue.Add(rev)
				}
			}
			mean := decimal.Zero
			retention := 0.0
			if size > 0 {
				mean = revenue.Div(decimal.NewFromInt(int64(size))).Round(2)
				retention = float64(active) / float64(size)
			}
			curves = append(curves, models.CohortCurveRow{
				Cohort:            key,
				CohortStart:       cohortStart,
				CohortSize:        size,
				ElapsedPeriod:     period,
				ActiveUsers:       active,
				RetentionFraction: retention,
				MeanRevenue:       mean,
			})
		}
	}

	userCLV := make([]models.UserCLVRow, 0, len(activity))
	type cohortAccum struct {
		users      int
		historical decimal.Decimal
		projected  decimal.Decimal
	}
	byCohort := make(map[models.CohortKey]*cohortAccum)

	for uid, ua := range activity {
		historical := ua.historical.Round(2)
		projected := historical
		activePeriods := len(ua.periodRevenue)
		if activePeriods > 0 && cfg.HorizonPeriods > 0 {
			avg := ua.historical.Div(decimal.NewFromInt(int64(activePeriods)))
			projected = ua.historical.Add(avg.Mul(decimal.NewFromInt(int64(cfg.HorizonPeriods)))).Round(2)
		}
		userCLV = append(userCLV, models.UserCLVRow{
			UserID:        uid,
			Cohort:        ua.cohort,
			Transactions:  ua.transactions,
			ActivePeriods: activePeriods,
			HistoricalCLV: historical,
			ProjectedCLV:  projected,
		})

		acc, ok := byCohort[ua.cohort]
		if !ok {
			acc = &cohortAccum{historical: decimal.Zero, projected: decimal.Zero}
			byCohort[ua.cohort] = acc
		}
		acc.users++
		acc.historical = acc.historical.Add(historical)
		acc.projected = acc.projected.Add(projected)
	}
	sort.Slice(userCLV, func(i, j int) bool { return userCLV[i].UserID < userCLV[j].UserID })

	cohortCLV := make([]models.CohortCLVRow, 0, len(byCohort))
	for _, key := range cohorts {
		acc := byCohort[key]
		if acc == nil || acc.users == 0 {
			continue
		}
		n := decimal.NewFromInt(int64(acc.users))
		cohortCLV = append(cohortCLV, models.CohortCLVRow{
			Cohort:           key,
			Users:            acc.users,
			AvgHistoricalCLV: acc.historical.Div(n).Round(2),
			AvgProjectedCLV:  acc.projected.Div(n).Round(2),
		})
	}

	return CohortResult{Curves: curves, UserCLV: userCLV, CohortCLV: cohortCLV}
}
