// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package analytics

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopsight/shopsight/internal/models"
)

// fixtureInputs builds a small but fully connected dataset: two users, a
// two-level category tree, three products, browsing sessions, and
// transactions both linked and unlinked to sessions.
func fixtureInputs() Inputs {
	windowStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	users := []models.User{
		testUser("u1", windowStart),
		testUser("u2", windowStart.AddDate(0, 0, 3)),
	}
	categories := []models.Category{
		{CategoryID: "c1", Name: "Electronics"},
		{CategoryID: "c2", Name: "Phones", ParentID: "c1"},
	}
	products := []models.Product{
		{ProductID: "p1", CategoryID: "c2", BasePrice: decimal.RequireFromString("10.00"), CurrentStock: 5},
		{ProductID: "p2", CategoryID: "c2", BasePrice: decimal.RequireFromString("4.00"), CurrentStock: 5},
		{ProductID: "p3", CategoryID: "c1", BasePrice: decimal.RequireFromString("7.50"), CurrentStock: 5},
	}

	s1Start := windowStart.AddDate(0, 0, 1)
	s2Start := windowStart.AddDate(0, 0, 4)
	sessions := []models.Session{
		testSession("s1", "u1", s1Start,
			event(models.EventView, s1Start, "p1"),
			event(models.EventAddToCart, s1Start.Add(5*time.Minute), "p1"),
			event(models.EventCheckoutStart, s1Start.Add(10*time.Minute), ""),
		),
		testSession("s2", "u2", s2Start,
			event(models.EventView, s2Start, "p2"),
			event(models.EventView, s2Start.Add(2*time.Minute), "p3"),
		),
	}
	transactions := []models.Transaction{
		testTx("t1", "u1", "s1", s1Start.Add(12*time.Minute), item("p1", 1, "10.00")),
		testTx("t2", "u2", "", s2Start.AddDate(0, 0, 8), item("p2", 2, "4.00"), item("p3", 1, "7.50")),
	}

	return Inputs{
		Users:        users,
		Categories:   categories,
		Products:     products,
		Sessions:     sessions,
		Transactions: transactions,
	}
}

func fixtureConfig() Config {
	windowStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	return Config{
		WindowStart:       windowStart,
		WindowEnd:         windowStart.AddDate(0, 0, 28),
		Granularity:       GranularityWeekly,
		BucketWidth:       week,
		HorizonPeriods:    4,
		AssociationWindow: 30 * time.Minute,
		TopSpenders:       10,
		Workers:           3,
	}
}

func TestRunEndToEnd(t *testing.T) {
	res, err := Run(context.Background(), fixtureConfig(), fixtureInputs())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Report.RecordsFailed != 0 {
		t.Fatalf("records failed = %d, errors = %v", res.Report.RecordsFailed, res.Report.Errors)
	}
	if res.Report.RunID == "" {
		t.Error("run id is empty")
	}

	// Session s1 converts through its linked transaction; s2 stops at view.
	byStage := make(map[string]models.FunnelSummaryRow)
	for _, row := range res.Funnel {
		byStage[row.StageName] = row
	}
	if byStage["view"].Count != 2 {
		t.Errorf("view count = %d, want 2", byStage["view"].Count)
	}
	if byStage["purchase"].Count != 1 {
		t.Errorf("purchase count = %d, want 1", byStage["purchase"].Count)
	}

	// Popularity conservation: p1 has exactly one purchase-stage event.
	var p1Popularity int64
	p1Revenue := decimal.Zero
	for _, row := range res.ProductTable {
		if row.GroupID == "p1" {
			p1Popularity += row.Popularity
			p1Revenue = p1Revenue.Add(row.Revenue)
		}
	}
	if p1Popularity != 1 {
		t.Errorf("p1 popularity = %d, want 1", p1Popularity)
	}
	if !p1Revenue.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("p1 revenue = %s, want 10.00", p1Revenue)
	}

	// Both users registered within cohort 0; u2's transaction lands in its
	// own second week of life.
	if len(res.CohortCurves) == 0 {
		t.Fatal("no cohort curves")
	}
	if len(res.UserCLV) != 2 {
		t.Errorf("len(UserCLV) = %d, want 2", len(res.UserCLV))
	}
	for _, row := range res.UserCLV {
		if row.ProjectedCLV.LessThan(row.HistoricalCLV) {
			t.Errorf("user %s: projected %s < historical %s", row.UserID, row.ProjectedCLV, row.HistoricalCLV)
		}
	}

	// Only t2 holds two distinct products.
	if len(res.Affinity) != 1 {
		t.Fatalf("len(Affinity) = %d, want 1", len(res.Affinity))
	}
	if res.Affinity[0].ProductA != "p2" || res.Affinity[0].ProductB != "p3" {
		t.Errorf("affinity pair = (%s, %s), want (p2, p3)", res.Affinity[0].ProductA, res.Affinity[0].ProductB)
	}

	if len(res.TopSpenders) != 2 {
		t.Errorf("len(TopSpenders) = %d, want 2", len(res.TopSpenders))
	}
}

func TestRunIdempotent(t *testing.T) {
	cfg := fixtureConfig()

	first, err := Run(context.Background(), cfg, fixtureInputs())
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := Run(context.Background(), cfg, fixtureInputs())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	tables := []struct {
		name string
		a, b any
	}{
		{"funnel", first.Funnel, second.Funnel},
		{"products", first.ProductTable, second.ProductTable},
		{"categories", first.CategoryTable, second.CategoryTable},
		{"top spenders", first.TopSpenders, second.TopSpenders},
		{"cohort curves", first.CohortCurves, second.CohortCurves},
		{"user clv", first.UserCLV, second.UserCLV},
		{"cohort clv", first.CohortCLV, second.CohortCLV},
		{"affinity", first.Affinity, second.Affinity},
	}
	for _, tbl := range tables {
		if !reflect.DeepEqual(tbl.a, tbl.b) {
			t.Errorf("%s table differs between identical runs:\n%v\n%v", tbl.name, tbl.a, tbl.b)
		}
	}
}

func TestRunCollectsRecordErrors(t *testing.T) {
	in := fixtureInputs()
	// A transaction violating conservation and a session owned by nobody.
	// Line items sum to $13 but the stored total claims $10.
	bad := testTx("t-bad", "u1", "", in.Transactions[0].Timestamp.Time,
		item("p1", 2, "5.00"), item("p2", 1, "3.00"))
	bad.Total = decimal.RequireFromString("10.00")
	bad.Subtotal = decimal.Zero
	in.Transactions = append(in.Transactions, bad)
	in.Sessions = append(in.Sessions, testSession("s-ghost", "nobody", in.Sessions[0].StartTime.Time,
		event(models.EventView, in.Sessions[0].StartTime.Time, "p1")))

	res, err := Run(context.Background(), fixtureConfig(), in)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Report.RecordsFailed != 2 {
		t.Fatalf("records failed = %d, want 2 (errors: %v)", res.Report.RecordsFailed, res.Report.Errors)
	}

	kinds := make(map[ErrorKind]int)
	for _, e := range res.Report.Errors {
		kinds[e.Kind]++
	}
	if kinds[KindValidation] != 1 || kinds[KindReferential] != 1 {
		t.Errorf("error kinds = %v, want one validation and one referential", kinds)
	}
}

func TestRunAbortThreshold(t *testing.T) {
	in := fixtureInputs()
	for i := 0; i < 50; i++ {
		bad := testTx("t-bad", "ghost", "", in.Transactions[0].Timestamp.Time, item("p1", 1, "1.00"))
		in.Transactions = append(in.Transactions, bad)
	}

	cfg := fixtureConfig()
	cfg.ErrorAbortThreshold = 0.05

	res, err := Run(context.Background(), cfg, in)
	if res != nil {
		t.Error("results not discarded on abort")
	}
	var abort *AbortThresholdError
	if !errors.As(err, &abort) {
		t.Fatalf("Run() error = %v, want *AbortThresholdError", err)
	}
	if abort.Rate <= abort.Threshold {
		t.Errorf("abort rate %v not above threshold %v", abort.Rate, abort.Threshold)
	}
}

func TestRunEmptySessionsSkipped(t *testing.T) {
	in := fixtureInputs()
	in.Sessions = append(in.Sessions, testSession("s-empty", "u1", in.Sessions[0].StartTime.Time))

	res, err := Run(context.Background(), fixtureConfig(), in)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Report.EmptySessions != 1 {
		t.Errorf("empty sessions = %d, want 1", res.Report.EmptySessions)
	}
	if res.Report.RecordsFailed != 0 {
		t.Errorf("records failed = %d, want 0", res.Report.RecordsFailed)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, fixtureConfig(), fixtureInputs()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}
