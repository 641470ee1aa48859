// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/shopsight/shopsight/internal/analytics"
	"github.com/shopsight/shopsight/internal/config"
	"github.com/shopsight/shopsight/internal/models"
	"github.com/shopsight/shopsight/internal/store"
)

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Host:               "127.0.0.1",
		Port:               8384,
		Timeout:            5 * time.Second,
		CORSAllowedOrigins: []string{"*"},
	}
}

func newTestServerWithConfig(t *testing.T, cfg *config.ServerConfig, results ...*analytics.Results) *httptest.Server {
	t.Helper()
	w, err := store.OpenWarehouse(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 2})
	if err != nil {
		t.Fatalf("OpenWarehouse() error = %v", err)
	}
	t.Cleanup(func() {
		if err := w.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	for _, res := range results {
		if err := w.SaveResults(context.Background(), res); err != nil {
			t.Fatalf("SaveResults() error = %v", err)
		}
	}
	srv := httptest.NewServer(Router(NewHandler(w), cfg))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, results ...*analytics.Results) *httptest.Server {
	t.Helper()
	return newTestServerWithConfig(t, testServerConfig(), results...)
}

func apiResults(runID string, finished time.Time) *analytics.Results {
	bucket := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	return &analytics.Results{
		Funnel: []models.FunnelSummaryRow{
			{Stage: models.StageView, StageName: "view", Count: 10, ConversionFromPrev: 1},
			{Stage: models.StageCart, StageName: "cart", Count: 4, ConversionFromPrev: 0.4},
		},
		ProductTable: []models.PopularityRevenueRow{
			{Bucket: bucket, GroupKind: models.GroupProduct, GroupID: "p1", Popularity: 7,
				Revenue: decimal.RequireFromString("49.99"), UnitsSold: 1, Orders: 1},
		},
		TopSpenders: []models.TopSpenderRow{
			{UserID: "u1", TotalSpent: decimal.RequireFromString("49.99"), Orders: 1},
		},
		Affinity: []models.AffinityPairRow{
			{ProductA: "p1", ProductB: "p2", PairCount: 3, CountA: 4, CountB: 5,
				Support: 0.3, ConfidenceAToB: 0.75, ConfidenceBToA: 0.6, Lift: 1.5},
		},
		Report: analytics.Report{
			RunID:       runID,
			StartedAt:   finished.Add(-time.Minute),
			FinishedAt:  finished,
			RecordsSeen: 50,
		},
	}
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return body
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	body := getJSON(t, srv.URL+"/healthz", http.StatusOK)
	if body["status"] != "ok" {
		t.Errorf("health = %v", body)
	}
}

func TestResultsNoRuns(t *testing.T) {
	srv := newTestServer(t)
	body := getJSON(t, srv.URL+"/api/v1/results/funnel", http.StatusNotFound)
	if body["error"] == "" {
		t.Errorf("404 body = %v", body)
	}
}

func TestFunnelDefaultsToLatestRun(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	srv := newTestServer(t,
		apiResults("run-old", base),
		apiResults("run-new", base.Add(time.Hour)),
	)

	body := getJSON(t, srv.URL+"/api/v1/results/funnel", http.StatusOK)
	if body["run_id"] != "run-new" {
		t.Errorf("run_id = %v, want run-new", body["run_id"])
	}
	rows, ok := body["rows"].([]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("rows = %v", body["rows"])
	}
	first, _ := rows[0].(map[string]any)
	if first["stage"] != "view" || first["count"] != float64(10) {
		t.Errorf("first row = %v", first)
	}
}

func TestExplicitRunID(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	srv := newTestServer(t,
		apiResults("run-old", base),
		apiResults("run-new", base.Add(time.Hour)),
	)

	body := getJSON(t, srv.URL+"/api/v1/results/spenders?run_id=run-old", http.StatusOK)
	if body["run_id"] != "run-old" {
		t.Errorf("run_id = %v, want run-old", body["run_id"])
	}
}

func TestPopularityProducts(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	srv := newTestServer(t, apiResults("run-1", base))

	body := getJSON(t, srv.URL+"/api/v1/results/popularity/products", http.StatusOK)
	rows, ok := body["rows"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("rows = %v", body["rows"])
	}
	row, _ := rows[0].(map[string]any)
	if row["group_id"] != "p1" || row["revenue"] != "49.99" {
		t.Errorf("row = %v", row)
	}
}

func TestAffinityEndpoint(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	srv := newTestServer(t, apiResults("run-1", base))

	body := getJSON(t, srv.URL+"/api/v1/results/affinity", http.StatusOK)
	rows, ok := body["rows"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("rows = %v", body["rows"])
	}
	row, _ := rows[0].(map[string]any)
	if row["product_a"] != "p1" || row["lift"] != 1.5 {
		t.Errorf("row = %v", row)
	}
}

func TestReportEndpoint(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	srv := newTestServer(t, apiResults("run-1", base))

	body := getJSON(t, srv.URL+"/api/v1/results/report", http.StatusOK)
	if body["run_id"] != "run-1" {
		t.Errorf("run_id = %v", body["run_id"])
	}
	if body["records_seen"] != float64(50) {
		t.Errorf("records_seen = %v", body["records_seen"])
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "https://dash.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimitRequests = 3
	cfg.RateLimitWindow = time.Minute
	srv := newTestServerWithConfig(t, cfg)

	var last int
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after exceeding limit = %d, want %d", last, http.StatusTooManyRequests)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	srv := newTestServer(t) // RateLimitRequests 0 disables limiting

	for i := 0; i < 10; i++ {
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}
