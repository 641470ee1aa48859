// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package analytics

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopsight/shopsight/internal/logging"
	"github.com/shopsight/shopsight/internal/metrics"
	"github.com/shopsight/shopsight/internal/models"
)

// Config parameterizes one pipeline run. Zero window bounds are derived
// from the input data.
type Config struct {
	WindowStart         time.Time
	WindowEnd           time.Time
	Granularity         Granularity
	DenseBuckets        bool
	BucketWidth         time.Duration
	HorizonPeriods      int
	MinSupport          float64
	MaxAffinityPairs    int
	AssociationWindow   time.Duration
	ErrorAbortThreshold float64
	TopSpenders         int
	// Workers is the data-parallel worker count. 0 = runtime.NumCPU().
	Workers int
}

// Inputs are the fully materialized entity collections for one run. The
// pipeline never touches storage; collaborators load these slices first.
type Inputs struct {
	Users        []models.User
	Categories   []models.Category
	Products     []models.Product
	Sessions     []models.Session
	Transactions []models.Transaction

	// DecodeErrors are per-record failures collected upstream (ingestion
	// decode failures). They are folded into the run report and count
	// toward the abort threshold.
	DecodeErrors []RecordError
}

// Results bundles every output table plus the per-run error report.
// Tables are deterministically ordered: identical inputs produce
// byte-identical tables.
type Results struct {
	Funnel        []models.FunnelSummaryRow
	ProductTable  []models.PopularityRevenueRow
	CategoryTable []models.PopularityRevenueRow
	TopSpenders   []models.TopSpenderRow
	CohortCurves  []models.CohortCurveRow
	UserCLV       []models.UserCLVRow
	CohortCLV     []models.CohortCLVRow
	Affinity      []models.AffinityPairRow
	Report        Report
}

// ContextCancelled reports whether the context has been cancelled.
func ContextCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Run executes the full analytics pipeline over the inputs.
//
// Per-record failures are collected into the report and the offending
// records excluded; the run fails only on context cancellation or when the
// error rate exceeds the abort threshold, in which case partial results are
// discarded.
func Run(ctx context.Context, cfg Config, in Inputs) (*Results, error) {
	started := time.Now().UTC()
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: started,
		RecordsSeen: len(in.Users) + len(in.Categories) + len(in.Products) +
			len(in.Sessions) + len(in.Transactions) + len(in.DecodeErrors),
	}
	report.addAll(in.DecodeErrors)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	windowStart, windowEnd := deriveWindow(cfg, in)
	log := logging.With().Str("component", "pipeline").Str("run_id", report.RunID).Logger()
	log.Info().
		Time("window_start", windowStart).
		Time("window_end", windowEnd).
		Int("workers", workers).
		Int("records", report.RecordsSeen).
		Msg("Pipeline run starting")

	// Validation pass: build the reference sets everything downstream keys on.
	stageStart := time.Now()

	validUsers := make([]models.User, 0, len(in.Users))
	userByID := make(map[string]*models.User, len(in.Users))
	for i := range in.Users {
		u := &in.Users[i]
		if err := validateUser(u); err != nil {
			report.add(err)
			continue
		}
		validUsers = append(validUsers, *u)
		userByID[u.UserID] = u
	}

	validCats, catErrs := validateCategories(in.Categories)
	report.addAll(catErrs)

	productSet := make(map[string]struct{}, len(in.Products))
	categoryOf := make(map[string]string, len(in.Products))
	for i := range in.Products {
		p := &in.Products[i]
		if err := validateProduct(p, validCats); err != nil {
			report.add(err)
			continue
		}
		productSet[p.ProductID] = struct{}{}
		categoryOf[p.ProductID] = p.CategoryID
	}

	validTxs := make([]models.Transaction, 0, len(in.Transactions))
	for i := range in.Transactions {
		tx := &in.Transactions[i]
		if err := validateTransaction(tx, userByID, productSet, windowStart, windowEnd); err != nil {
			report.add(err)
			continue
		}
		validTxs = append(validTxs, *tx)
	}
	metrics.ObserveStage("validate", stageStart)

	// Session reconstruction, partitioned across workers. Outcomes land in
	// per-session slots so the merged order is independent of scheduling.
	stageStart = time.Now()
	recon := NewReconstructor(cfg.AssociationWindow, validUsers, validTxs)

	type sessionOutcome struct {
		events []models.FunnelEvent
		err    *RecordError
		empty  bool
	}
	outcomes := make([]sessionOutcome, len(in.Sessions))
	parallelChunks(ctx, workers, len(in.Sessions), func(startIdx, endIdx int) {
		for i := startIdx; i < endIdx; i++ {
			if ContextCancelled(ctx) {
				return
			}
			events, err := recon.Reconstruct(&in.Sessions[i])
			switch {
			case err == nil:
				outcomes[i].events = events
			case errors.Is(err, ErrEmptySession):
				outcomes[i].empty = true
			default:
				var recErr *RecordError
				if errors.As(err, &recErr) {
					outcomes[i].err = recErr
				} else {
					outcomes[i].err = NewValidationError("session", in.Sessions[i].SessionID, err.Error())
				}
			}
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var funnelEvents []models.FunnelEvent
	maxStages := make([]models.FunnelStage, 0, len(in.Sessions))
	for i := range outcomes {
		o := &outcomes[i]
		switch {
		case o.err != nil:
			report.add(o.err)
		case o.empty:
			report.EmptySessions++
		default:
			funnelEvents = append(funnelEvents, o.events...)
			maxStages = append(maxStages, MaxStage(o.events))
		}
	}
	funnel := SummarizeFunnel(maxStages)
	metrics.ObserveStage("funnel", stageStart)

	// Windowed aggregation: per-worker partials merged associatively.
	stageStart = time.Now()
	aggParts := make([]*PartialAggregate, workers)
	parallelChunksIndexed(ctx, workers, len(validTxs), func(w, startIdx, endIdx int) {
		part := NewPartialAggregate(cfg.Granularity)
		for i := startIdx; i < endIdx; i++ {
			part.AddTransaction(&validTxs[i], categoryOf)
		}
		aggParts[w] = part
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agg := NewPartialAggregate(cfg.Granularity)
	for _, part := range aggParts {
		if part != nil {
			agg.Merge(part)
		}
	}
	for _, fe := range funnelEvents {
		agg.AddPurchaseEvent(fe, categoryOf)
	}
	productTable := agg.Rows(models.GroupProduct, cfg.DenseBuckets, windowStart, windowEnd)
	categoryTable := agg.Rows(models.GroupCategory, cfg.DenseBuckets, windowStart, windowEnd)
	topSpenders := agg.TopSpenders(cfg.TopSpenders)
	metrics.ObserveStage("aggregate", stageStart)

	// Cohort assignment, retention curves, and CLV estimation.
	stageStart = time.Now()
	cohorts := ComputeCohorts(CohortConfig{
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		BucketWidth:    cfg.BucketWidth,
		HorizonPeriods: cfg.HorizonPeriods,
	}, validUsers, validTxs)
	metrics.ObserveStage("cohort", stageStart)

	// Co-purchase affinity over transaction baskets.
	stageStart = time.Now()
	affParts := make([]*AffinityCounts, workers)
	parallelChunksIndexed(ctx, workers, len(validTxs), func(w, startIdx, endIdx int) {
		part := NewAffinityCounts()
		for i := startIdx; i < endIdx; i++ {
			part.AddTransaction(&validTxs[i])
		}
		affParts[w] = part
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	affCounts := NewAffinityCounts()
	for _, part := range affParts {
		if part != nil {
			affCounts.Merge(part)
		}
	}
	affinity := affCounts.Rows(AffinityConfig{
		MinSupport: cfg.MinSupport,
		MaxPairs:   cfg.MaxAffinityPairs,
	})
	metrics.ObserveStage("affinity", stageStart)

	report.sortErrors()
	report.FinishedAt = time.Now().UTC()
	for i := range report.Errors {
		e := &report.Errors[i]
		metrics.RecordsRejected.WithLabelValues(e.Entity, string(e.Kind)).Inc()
	}

	if rate := report.ErrorRate(); cfg.ErrorAbortThreshold > 0 && rate > cfg.ErrorAbortThreshold {
		metrics.RunsTotal.WithLabelValues("aborted").Inc()
		log.Error().
			Float64("rate", rate).
			Float64("threshold", cfg.ErrorAbortThreshold).
			Int("failed", report.RecordsFailed).
			Msg("Error rate exceeds abort threshold, discarding results")
		return nil, &AbortThresholdError{
			Seen:      report.RecordsSeen,
			Failed:    report.RecordsFailed,
			Rate:      rate,
			Threshold: cfg.ErrorAbortThreshold,
		}
	}

	metrics.RunsTotal.WithLabelValues("ok").Inc()
	log.Info().
		Int("failed_records", report.RecordsFailed).
		Int("empty_sessions", report.EmptySessions).
		Dur("elapsed", time.Since(started)).
		Msg("Pipeline run complete")

	return &Results{
		Funnel:        funnel,
		ProductTable:  productTable,
		CategoryTable: categoryTable,
		TopSpenders:   topSpenders,
		CohortCurves:  cohorts.Curves,
		UserCLV:       cohorts.UserCLV,
		CohortCLV:     cohorts.CohortCLV,
		Affinity:      affinity,
		Report:        report,
	}, nil
}

// deriveWindow fills zero window bounds from the data: the earliest session
// or transaction timestamp, and the latest event or transaction timestamp.
func deriveWindow(cfg Config, in Inputs) (time.Time, time.Time) {
	start, end := cfg.WindowStart, cfg.WindowEnd
	if start.IsZero() {
		for i := range in.Sessions {
			if t := in.Sessions[i].StartTime.Time; start.IsZero() || t.Before(start) {
				start = t
			}
		}
		for i := range in.Transactions {
			if t := in.Transactions[i].Timestamp.Time; start.IsZero() || t.Before(start) {
				start = t
			}
		}
		start = start.Truncate(24 * time.Hour)
	}
	if end.IsZero() {
		for i := range in.Sessions {
			if t := in.Sessions[i].LastEventTime(); t.After(end) {
				end = t
			}
		}
		for i := range in.Transactions {
			if t := in.Transactions[i].Timestamp.Time; t.After(end) {
				end = t
			}
		}
	}
	return start, end
}

// parallelChunks splits n items into contiguous chunks and runs fn
// concurrently over [start, end) index ranges.
func parallelChunks(ctx context.Context, workers, n int, fn func(start, end int)) {
	parallelChunksIndexed(ctx, workers, n, func(_, start, end int) { fn(start, end) })
}

// parallelChunksIndexed is parallelChunks with the worker index exposed, for
// callers collecting per-worker partials.
func parallelChunksIndexed(ctx context.Context, workers, n int, fn func(worker, start, end int)) {
	if n == 0 {
		return
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			if ContextCancelled(ctx) {
				return
			}
			fn(w, start, end)
		}(w, start, end)
	}
	wg.Wait()
}
