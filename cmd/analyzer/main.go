// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

// Command analyzer runs the batch analytics pipeline over a generator
// dataset and optionally serves the results over HTTP.
//
// Typical invocations:
//
//	analyzer -data ./dataset -output ./results
//	analyzer -data ./dataset -serve
//	analyzer -serve-only
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopsight/shopsight/internal/analytics"
	"github.com/shopsight/shopsight/internal/api"
	"github.com/shopsight/shopsight/internal/config"
	"github.com/shopsight/shopsight/internal/ingest"
	"github.com/shopsight/shopsight/internal/logging"
	"github.com/shopsight/shopsight/internal/report"
	"github.com/shopsight/shopsight/internal/store"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Analyzer failed")
	}
}

func run() error {
	dataDir := flag.String("data", "", "generator dataset directory to ingest before analyzing")
	outputDir := flag.String("output", "", "directory for CSV exports (empty disables export)")
	serve := flag.Bool("serve", false, "serve the results API after the run")
	serveOnly := flag.Bool("serve-only", false, "skip the pipeline and serve previously stored results")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warehouse, err := store.OpenWarehouse(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := warehouse.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Warehouse close failed")
		}
	}()

	if !*serveOnly {
		if err := analyze(ctx, cfg, warehouse, *dataDir, *outputDir); err != nil {
			return err
		}
	}

	if *serve || *serveOnly {
		return api.Serve(ctx, &cfg.Server, api.Router(api.NewHandler(warehouse), &cfg.Server))
	}
	return nil
}

// analyze materializes the inputs, runs the pipeline, and persists results.
func analyze(ctx context.Context, cfg *config.Config, warehouse *store.Warehouse, dataDir, outputDir string) error {
	sessions, err := store.OpenSessionStore(&cfg.Sessions)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sessions.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Session store close failed")
		}
	}()

	inputs, err := materialize(ctx, warehouse, sessions, dataDir)
	if err != nil {
		return err
	}

	pipelineCfg, err := pipelineConfig(cfg)
	if err != nil {
		return err
	}

	results, err := analytics.Run(ctx, pipelineCfg, inputs)
	if err != nil {
		var abort *analytics.AbortThresholdError
		if errors.As(err, &abort) {
			return fmt.Errorf("run aborted: %w", abort)
		}
		return err
	}

	if err := warehouse.SaveResults(ctx, results); err != nil {
		return fmt.Errorf("persist results: %w", err)
	}
	if outputDir != "" {
		if err := report.ExportCSV(outputDir, results); err != nil {
			return fmt.Errorf("export results: %w", err)
		}
	}

	logging.Info().
		Str("run_id", results.Report.RunID).
		Int("funnel_rows", len(results.Funnel)).
		Int("product_rows", len(results.ProductTable)).
		Int("category_rows", len(results.CategoryTable)).
		Int("cohort_rows", len(results.CohortCurves)).
		Int("affinity_rows", len(results.Affinity)).
		Msg("Results persisted")
	return nil
}

// materialize returns the pipeline inputs, either freshly ingested from a
// dataset directory or loaded from the stores of a previous ingest.
func materialize(ctx context.Context, warehouse *store.Warehouse, sessions *store.SessionStore, dataDir string) (analytics.Inputs, error) {
	if dataDir != "" {
		ds, err := ingest.LoadDataset(dataDir)
		if err != nil {
			return analytics.Inputs{}, fmt.Errorf("ingest dataset: %w", err)
		}
		if err := warehouse.SaveUsers(ctx, ds.Users); err != nil {
			return analytics.Inputs{}, err
		}
		if err := warehouse.SaveCategories(ctx, ds.Categories); err != nil {
			return analytics.Inputs{}, err
		}
		if err := warehouse.SaveProducts(ctx, ds.Products); err != nil {
			return analytics.Inputs{}, err
		}
		if err := warehouse.SaveTransactions(ctx, ds.Transactions); err != nil {
			return analytics.Inputs{}, err
		}
		if err := sessions.PutBatch(ds.Sessions); err != nil {
			return analytics.Inputs{}, err
		}
		return ds.Inputs(), nil
	}

	var in analytics.Inputs
	var err error
	if in.Users, err = warehouse.LoadUsers(ctx); err != nil {
		return in, err
	}
	if in.Categories, err = warehouse.LoadCategories(ctx); err != nil {
		return in, err
	}
	if in.Products, err = warehouse.LoadProducts(ctx); err != nil {
		return in, err
	}
	if in.Transactions, err = warehouse.LoadTransactions(ctx, store.TransactionFilter{}); err != nil {
		return in, err
	}
	if in.Sessions, err = sessions.ScanAll(); err != nil {
		return in, err
	}
	return in, nil
}

// pipelineConfig maps the configuration surface onto pipeline parameters.
func pipelineConfig(cfg *config.Config) (analytics.Config, error) {
	windowStart, err := cfg.Window.WindowStart()
	if err != nil {
		return analytics.Config{}, err
	}
	pc := analytics.Config{
		WindowStart:         windowStart,
		Granularity:         analytics.Granularity(cfg.Analytics.Granularity),
		DenseBuckets:        cfg.Analytics.DenseBuckets,
		BucketWidth:         cfg.Analytics.BucketWidth(),
		HorizonPeriods:      cfg.Analytics.HorizonPeriods,
		MinSupport:          cfg.Analytics.MinSupportThreshold,
		MaxAffinityPairs:    cfg.Analytics.MaxAffinityPairs,
		AssociationWindow:   cfg.Analytics.AssociationWindow,
		ErrorAbortThreshold: cfg.Analytics.ErrorAbortThreshold,
		TopSpenders:         cfg.Analytics.TopSpenders,
		Workers:             cfg.Analytics.Workers,
	}
	if !windowStart.IsZero() && cfg.Window.Days > 0 {
		pc.WindowEnd = windowStart.AddDate(0, 0, cfg.Window.Days)
	}
	return pc, nil
}
