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

// Granularity selects the aggregation time bucket.
type Granularity string

// Supported aggregation granularities.
const (
	GranularityDaily  Granularity = "daily"
	GranularityWeekly Granularity = "weekly"
)

// BucketStart truncates a timestamp to its containing bucket in UTC.
// Weekly buckets start on Monday.
func BucketStart(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if g == GranularityWeekly {
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	}
	return day
}

// bucketStep advances a bucket start to the next bucket.
func bucketStep(t time.Time, g Granularity) time.Time {
	if g == GranularityWeekly {
		return t.AddDate(0, 0, 7)
	}
	return t.AddDate(0, 0, 1)
}

type groupKey struct {
	bucket time.Time
	kind   models.GroupKind
	id     string
}

type groupTotals struct {
	popularity int64
	revenue    decimal.Decimal
	units      int64
	orders     int64
}

type spendTotals struct {
	total  decimal.Decimal
	orders int64
}

// PartialAggregate accumulates popularity, revenue, and spend totals over a
// partition of the input. All base aggregates are counts and sums, so Merge
// is associative and commutative and partials can be computed in parallel
// and combined in any order.
type PartialAggregate struct {
	granularity Granularity
	groups      map[groupKey]*groupTotals
	spend       map[string]*spendTotals
}

// NewPartialAggregate returns an empty partial for the given granularity.
func NewPartialAggregate(g Granularity) *PartialAggregate {
	return &PartialAggregate{
		granularity: g,
		groups:      make(map[groupKey]*groupTotals),
		spend:       make(map[string]*spendTotals),
	}
}

func (p *PartialAggregate) group(key groupKey) *groupTotals {
	g, ok := p.groups[key]
	if !ok {
		g = &groupTotals{revenue: decimal.Zero}
		p.groups[key] = g
	}
	return g
}

// AddTransaction accumulates revenue, units, and order counts per product
// and per category bucket, plus the owning user's spend. categoryOf maps
// product id to category id; line items whose product has no known category
// still count toward the product table.
func (p *PartialAggregate) AddTransaction(tx *models.Transaction, categoryOf map[string]string) {
	bucket := BucketStart(tx.Timestamp.Time, p.granularity)

	// Collapse line items by product so a transaction counts one order per
	// product and per category.
	perProduct := make(map[string]*groupTotals, len(tx.Items))
	for _, li := range tx.Items {
		t, ok := perProduct[li.ProductID]
		if !ok {
			t = &groupTotals{revenue: decimal.Zero}
			perProduct[li.ProductID] = t
		}
		t.revenue = t.revenue.Add(li.Amount())
		t.units += int64(li.Quantity)
	}

	catSeen := make(map[string]struct{}, len(perProduct))
	for pid, t := range perProduct {
		g := p.group(groupKey{bucket: bucket, kind: models.GroupProduct, id: pid})
		g.revenue = g.revenue.Add(t.revenue)
		g.units += t.units
		g.orders++

		cid, ok := categoryOf[pid]
		if !ok || cid == "" {
			continue
		}
		c := p.group(groupKey{bucket: bucket, kind: models.GroupCategory, id: cid})
		c.revenue = c.revenue.Add(t.revenue)
		c.units += t.units
		if _, dup := catSeen[cid]; !dup {
			catSeen[cid] = struct{}{}
			c.orders++
		}
	}

	s, ok := p.spend[tx.UserID]
	if !ok {
		s = &spendTotals{total: decimal.Zero}
		p.spend[tx.UserID] = s
	}
	s.total = s.total.Add(tx.Total)
	s.orders++
}

// AddPurchaseEvent counts one purchase funnel event toward the referenced
// product's popularity. Non-purchase events and events without a product
// are ignored.
func (p *PartialAggregate) AddPurchaseEvent(fe models.FunnelEvent, categoryOf map[string]string) {
	if fe.Stage != models.StagePurchase || fe.ProductID == "" {
		return
	}
	bucket := BucketStart(fe.Timestamp, p.granularity)
	p.group(groupKey{bucket: bucket, kind: models.GroupProduct, id: fe.ProductID}).popularity++
	if cid := categoryOf[fe.ProductID]; cid != "" {
		p.group(groupKey{bucket: bucket, kind: models.GroupCategory, id: cid}).popularity++
	}
}

// Merge folds other into p. Merge(a, b) == Merge(b, a) element-wise since
// every field is a count or sum.
func (p *PartialAggregate) Merge(other *PartialAggregate) {
	for key, g := range other.groups {
		dst := p.group(key)
		dst.popularity += g.popularity
		dst.revenue = dst.revenue.Add(g.revenue)
		dst.units += g.units
		dst.orders += g.orders
	}
	for uid, s := range other.spend {
		dst, ok := p.spend[uid]
		if !ok {
			dst = &spendTotals{total: decimal.Zero}
			p.spend[uid] = dst
		}
		dst.total = dst.total.Add(s.total)
		dst.orders += s.orders
	}
}

// Rows materializes the table for one grouping dimension, sorted by revenue
// descending, group id ascending, bucket ascending. Empty buckets are
// omitted unless dense is set, in which case every bucket of
// [windowStart, windowEnd) is emitted (zero-filled) for each group that
// appears at all.
func (p *PartialAggregate) Rows(kind models.GroupKind, dense bool, windowStart, windowEnd time.Time) []models.PopularityRevenueRow {
	rows := make([]models.PopularityRevenueRow, 0, len(p.groups))
	present := make(map[string]map[time.Time]struct{})

	for key, g := range p.groups {
		if key.kind != kind {
			continue
		}
		rows = append(rows, models.PopularityRevenueRow{
			Bucket:     key.bucket,
			GroupKind:  kind,
			GroupID:    key.id,
			Popularity: g.popularity,
			Revenue:    g.revenue.Round(2),
			UnitsSold:  g.units,
			Orders:     g.orders,
		})
		if present[key.id] == nil {
			present[key.id] = make(map[time.Time]struct{})
		}
		present[key.id][key.bucket] = struct{}{}
	}

	if dense && !windowStart.IsZero() && windowEnd.After(windowStart) {
		first := BucketStart(windowStart, p.granularity)
		for id, buckets := range present {
			for b := first; b.Before(windowEnd); b = bucketStep(b, p.granularity) {
				if _, ok := buckets[b]; ok {
					continue
				}
				rows = append(rows, models.PopularityRevenueRow{
					Bucket:    b,
					GroupKind: kind,
					GroupID:   id,
					Revenue:   decimal.Zero,
				})
			}
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Revenue.Equal(rows[j].Revenue) {
			return rows[i].Revenue.GreaterThan(rows[j].Revenue)
		}
		if rows[i].GroupID != rows[j].GroupID {
			return rows[i].GroupID < rows[j].GroupID
		}
		return rows[i].Bucket.Before(rows[j].Bucket)
	})
	return rows
}

// TopSpenders returns the n highest-spending users, total descending with
// user id tiebreak.
func (p *PartialAggregate) TopSpenders(n int) []models.TopSpenderRow {
	rows := make([]models.TopSpenderRow, 0, len(p.spend))
	for uid, s := range p.spend {
		rows = append(rows, models.TopSpenderRow{
			UserID:     uid,
			TotalSpent: s.total.Round(2),
			Orders:     s.orders,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].TotalSpent.Equal(rows[j].TotalSpent) {
			return rows[i].TotalSpent.GreaterThan(rows[j].TotalSpent)
		}
		return rows[i].UserID < rows[j].UserID
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}
