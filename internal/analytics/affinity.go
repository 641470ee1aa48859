// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package analytics

import (
	"sort"

	"github.com/shopsight/shopsight/internal/models"
)

// AffinityConfig parameterizes co-purchase association mining.
type AffinityConfig struct {
	// MinSupport excludes pairs whose support falls below the threshold.
	// 0 keeps every co-occurring pair.
	MinSupport float64

	// MaxPairs caps the output after sorting. 0 = unlimited.
	MaxPairs int
}

// pairKey identifies an unordered product pair with A < B.
type pairKey struct {
	a, b string
}

// AffinityCounts is the partial co-occurrence aggregate over a partition of
// transactions. All fields are counts, so Merge is associative and
// commutative and partials combine in any order.
type AffinityCounts struct {
	transactions int64
	products     map[string]int64
	pairs        map[pairKey]int64
}

// NewAffinityCounts returns an empty partial.
func NewAffinityCounts() *AffinityCounts {
	return &AffinityCounts{
		products: make(map[string]int64),
		pairs:    make(map[pairKey]int64),
	}
}

// AddTransaction counts the transaction's distinct product set and every
// unordered pair within it. Quantity does not matter for association
// statistics; only presence within the basket does.
func (c *AffinityCounts) AddTransaction(tx *models.Transaction) {
	products := tx.ProductSet()
	c.transactions++
	for _, pid := range products {
		c.products[pid]++
	}
	for i := 0; i < len(products); i++ {
		for j := i + 1; j < len(products); j++ {
			c.pairs[pairKey{a: products[i], b: products[j]}]++
		}
	}
}

// Merge folds other into c.
func (c *AffinityCounts) Merge(other *AffinityCounts) {
	c.transactions += other.transactions
	for pid, n := range other.products {
		c.products[pid] += n
	}
	for key, n := range other.pairs {
		c.pairs[key] += n
	}
}

// Rows materializes the affinity table:
//
//	support        = pairCount / totalTransactions
//	confidence A-B = pairCount / countA   (directional, reported both ways)
//	lift           = confidence(A-B) / (countB / totalTransactions)
//
// Lift is symmetric and computed once per unordered pair. Output is sorted
// by lift descending, support descending, then pair ascending, and filtered
// by the support threshold.
func (c *AffinityCounts) Rows(cfg AffinityConfig) []models.AffinityPairRow {
	if c.transactions == 0 {
		return nil
	}
	total := float64(c.transactions)

	rows := make([]models.AffinityPairRow, 0, len(c.pairs))
	for key, pairCount := range c.pairs {
		countA := c.products[key.a]
		countB := c.products[key.b]
		if countA == 0 || countB == 0 {
			continue
		}
		support := float64(pairCount) / total
		if support < cfg.MinSupport {
			continue
		}
		confAB := float64(pairCount) / float64(countA)
		confBA := float64(pairCount) / float64(countB)
		lift := confAB / (float64(countB) / total)

		rows = append(rows, models.AffinityPairRow{
			ProductA:       key.a,
			ProductB:       key.b,
			PairCount:      pairCount,
			CountA:         countA,
			CountB:         countB,
			Support:        support,
			ConfidenceAToB: confAB,
			ConfidenceBToA: confBA,
			Lift:           lift,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Lift != rows[j].Lift {
			return rows[i].Lift > rows[j].Lift
		}
		if rows[i].Support != rows[j].Support {
			return rows[i].Support > rows[j].Support
		}
		if rows[i].ProductA != rows[j].ProductA {
			return rows[i].ProductA < rows[j].ProductA
		}
		return rows[i].ProductB < rows[j].ProductB
	})

	if cfg.MaxPairs > 0 && len(rows) > cfg.MaxPairs {
		rows = rows[:cfg.MaxPairs]
	}
	return rows
}
