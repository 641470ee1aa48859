// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

// Package api serves the results of completed analytics runs over HTTP.
// All endpoints are read-only; the pipeline itself never runs in-request.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopsight/shopsight/internal/config"
	"github.com/shopsight/shopsight/internal/logging"
	"github.com/shopsight/shopsight/internal/models"
	"github.com/shopsight/shopsight/internal/store"
)

// Handler exposes result tables from the warehouse.
type Handler struct {
	warehouse *store.Warehouse
}

// NewHandler builds a result-serving handler over the warehouse.
func NewHandler(w *store.Warehouse) *Handler {
	return &Handler{warehouse: w}
}

// Router builds the HTTP routing tree.
func Router(h *Handler, cfg *config.ServerConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if cfg.RateLimitRequests > 0 {
		r.Use(httprate.Limit(cfg.RateLimitRequests, cfg.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/results", func(r chi.Router) {
		r.Get("/report", h.Report)
		r.Get("/funnel", h.Funnel)
		r.Get("/popularity/products", h.PopularityProducts)
		r.Get("/popularity/categories", h.PopularityCategories)
		r.Get("/spenders", h.TopSpenders)
		r.Get("/cohorts", h.CohortCurves)
		r.Get("/clv/users", h.UserCLV)
		r.Get("/clv/cohorts", h.CohortCLV)
		r.Get("/affinity", h.Affinity)
	})
	return r
}

// Health reports process liveness and warehouse reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.warehouse.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "warehouse unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runID resolves the requested run, defaulting to the latest.
func (h *Handler) runID(w http.ResponseWriter, r *http.Request) (string, bool) {
	runID := r.URL.Query().Get("run_id")
	if runID != "" {
		return runID, true
	}
	runID, err := h.warehouse.LatestRunID(r.Context())
	if errors.Is(err, store.ErrNoRuns) {
		writeError(w, http.StatusNotFound, "no analytics runs recorded")
		return "", false
	}
	if err != nil {
		logging.Error().Err(err).Msg("Failed to resolve latest run")
		writeError(w, http.StatusInternalServerError, "query failed")
		return "", false
	}
	return runID, true
}

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Report returns the run's error report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	rep, err := h.warehouse.QueryRunReport(r.Context(), runID)
	if errors.Is(err, store.ErrNoRuns) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("run_id", runID).Msg("Report query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Funnel returns the stage summary table.
func (h *Handler) Funnel(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	rows, err := h.warehouse.QueryFunnel(r.Context(), runID)
	h.respond(w, runID, rows, err)
}

// PopularityProducts returns the per-product popularity/revenue table.
func (h *Handler) PopularityProducts(w http.ResponseWriter, r *http.Request) {
	h.popularity(w, r, models.GroupProduct)
}

// PopularityCategories returns the per-category popularity/revenue table.
func (h *Handler) PopularityCategories(w http.ResponseWriter, r *http.Request) {
	h.popularity(w, r, models.GroupCategory)
}

func (h *Handler) popularity(w http.ResponseWriter, r *http.Request, kind models.GroupKind) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	rows, err := h.warehouse.QueryPopularity(r.Context(), runID, kind, limitParam(r))
	h.respond(w, runID, rows, err)
}

// TopSpenders returns the ranked spender table.
func (h *Handler) TopSpenders(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	rows, err := h.warehouse.QueryTopSpenders(r.Context(), runID)
	h.respond(w, runID, rows, err)
}

// CohortCurves returns the retention and revenue curves.
func (h *Handler) CohortCurves(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	rows, err := h.warehouse.QueryCohortCurves(r.Context(), runID)
	h.respond(w, runID, rows, err)
}

// UserCLV returns per-user lifetime value estimates.
func (h *Handler) UserCLV(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	rows, err := h.warehouse.QueryUserCLV(r.Context(), runID)
	h.respond(w, runID, rows, err)
}

// CohortCLV returns cohort-average lifetime value estimates.
func (h *Handler) CohortCLV(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	rows, err := h.warehouse.QueryCohortCLV(r.Context(), runID)
	h.respond(w, runID, rows, err)
}

// Affinity returns the co-purchase pair table.
func (h *Handler) Affinity(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	rows, err := h.warehouse.QueryAffinity(r.Context(), runID, limitParam(r))
	h.respond(w, runID, rows, err)
}

func (h *Handler) respond(w http.ResponseWriter, runID string, rows any, err error) {
	if err != nil {
		logging.Error().Err(err).Str("run_id", runID).Msg("Result query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "rows": rows})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug().Err(err).Msg("Response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
