// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GroupKind distinguishes the grouping dimension of a popularity/revenue row.
type GroupKind string

// Grouping dimensions for aggregation rows.
const (
	GroupProduct  GroupKind = "product"
	GroupCategory GroupKind = "category"
)

// PopularityRevenueRow is one row of the popularity/revenue table:
// per (time bucket, product or category), the purchase-event count and the
// revenue from line items, plus units sold and distinct order count.
// Rows are ordered by revenue descending, group id ascending.
type PopularityRevenueRow struct {
	Bucket     time.Time       `json:"bucket"`
	GroupKind  GroupKind       `json:"group_kind"`
	GroupID    string          `json:"group_id"`
	Popularity int64           `json:"popularity_count"`
	Revenue    decimal.Decimal `json:"revenue"`
	UnitsSold  int64           `json:"units_sold"`
	Orders     int64           `json:"orders"`
}

// CohortCurveRow is one (cohort, elapsed period) point of the retention and
// revenue curve. ElapsedPeriod is measured from each user's own registration,
// not from calendar dates.
type CohortCurveRow struct {
	Cohort            CohortKey       `json:"cohort_key"`
	CohortStart       time.Time       `json:"cohort_start"`
	CohortSize        int             `json:"cohort_size"`
	ElapsedPeriod     int             `json:"elapsed_period"`
	ActiveUsers       int             `json:"active_users"`
	RetentionFraction float64         `json:"retention_fraction"`
	MeanRevenue       decimal.Decimal `json:"mean_revenue"`
}

// UserCLVRow reports per-user lifetime value: observed spend through window
// end plus a linear projection over the configured horizon.
type UserCLVRow struct {
	UserID        string          `json:"user_id"`
	Cohort        CohortKey       `json:"cohort_key"`
	Transactions  int             `json:"transactions"`
	ActivePeriods int             `json:"active_periods"`
	HistoricalCLV decimal.Decimal `json:"historical_clv"`
	ProjectedCLV  decimal.Decimal `json:"projected_clv"`
}

// CohortCLVRow reports cohort-average lifetime value.
type CohortCLVRow struct {
	Cohort           CohortKey       `json:"cohort_key"`
	Users            int             `json:"users"`
	AvgHistoricalCLV decimal.Decimal `json:"avg_historical_clv"`
	AvgProjectedCLV  decimal.Decimal `json:"avg_projected_clv"`
}

// AffinityPairRow reports co-purchase association statistics for one
// unordered product pair (ProductA < ProductB). Confidence is directional
// and reported both ways; lift is symmetric and computed once.
type AffinityPairRow struct {
	ProductA       string  `json:"product_a"`
	ProductB       string  `json:"product_b"`
	PairCount      int64   `json:"pair_count"`
	CountA         int64   `json:"count_a"`
	CountB         int64   `json:"count_b"`
	Support        float64 `json:"support"`
	ConfidenceAToB float64 `json:"confidence_a_to_b"`
	ConfidenceBToA float64 `json:"confidence_b_to_a"`
	Lift           float64 `json:"lift"`
}

// FunnelSummaryRow reports, per stage, the number of sessions whose maximal
// classified stage reached at least that stage, and the conversion rate from
// the previous stage.
type FunnelSummaryRow struct {
	Stage              FunnelStage `json:"-"`
	StageName          string      `json:"stage"`
	Count              int64       `json:"count"`
	ConversionFromPrev float64     `json:"conversion_rate_from_previous_stage"`
}

// TopSpenderRow reports a user's total observed spend and order count.
type TopSpenderRow struct {
	UserID     string          `json:"user_id"`
	TotalSpent decimal.Decimal `json:"total_spent"`
	Orders     int64           `json:"num_orders"`
}
