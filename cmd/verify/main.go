// Package main checks a stored panel: the invariant battery by default,
// plus an optional row-by-row rebuild comparison.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"firm-panel-lab/internal/config"
	"firm-panel-lab/internal/orchestrator"
	"firm-panel-lab/internal/pipeline"
	"firm-panel-lab/internal/storage"
	chstore "firm-panel-lab/internal/storage/clickhouse"
	"firm-panel-lab/internal/storage/memory"
	pgstore "firm-panel-lab/internal/storage/postgres"
	"firm-panel-lab/internal/verification"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration file")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	useFixtures := flag.Bool("use-fixtures", false, "Verify a freshly built in-memory fixture panel")
	gvkey := flag.String("gvkey", "", "Verify a single firm's rebuild instead of the whole panel")
	rebuild := flag.Bool("rebuild", false, "Also rebuild the full panel and compare row by row")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *postgresDSN != "" {
		cfg.Database.PostgresDSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.Database.ClickHouseDSN = *clickhouseDSN
	}

	if !*useFixtures && (cfg.Database.PostgresDSN == "" || cfg.Database.ClickHouseDSN == "") {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn and --clickhouse-dsn are required when not using fixtures")
		os.Exit(1)
	}

	verifier, cleanup, err := createVerifier(ctx, cfg, *useFixtures)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if *gvkey != "" {
		os.Exit(verifyFirm(ctx, verifier, *gvkey))
	}
	os.Exit(verifyPanel(ctx, verifier, *rebuild))
}

// verifyPanel runs the invariant battery and optionally the full rebuild.
// Returns the process exit code.
func verifyPanel(ctx context.Context, verifier verification.Verifier, rebuild bool) int {
	report, err := verifier.VerifyPanel(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error verifying panel: %v\n", err)
		return 1
	}

	fmt.Printf("Invariant battery: %d rows, %d firms, %d violations\n",
		report.TotalRows, report.TotalFirms, len(report.Violations))
	for _, v := range report.Violations {
		fmt.Printf("  %s: gvkey=%s period=%s %s\n", v.Property, v.GVKey, v.PeriodID, v.Detail)
	}

	failed := len(report.Violations) > 0

	if rebuild {
		rb, err := verifier.VerifyAll(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error rebuilding panel: %v\n", err)
			return 1
		}
		fmt.Printf("Rebuild comparison: %d rows, %d matched, %d divergent\n",
			rb.TotalRows, rb.MatchedRows, rb.DivergentRows)
		printDivergences(rb.Divergences)
		failed = failed || rb.DivergentRows > 0
	}

	if failed {
		return 1
	}
	fmt.Println("OK")
	return 0
}

// verifyFirm rebuilds one firm and compares its stored rows.
// Returns the process exit code.
func verifyFirm(ctx context.Context, verifier verification.Verifier, gvkey string) int {
	result, err := verifier.VerifyFirm(ctx, gvkey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error verifying firm %s: %v\n", gvkey, err)
		return 1
	}

	fmt.Printf("Firm %s: %d rows, match=%t\n", result.GVKey, result.Rows, result.Match)
	printDivergences(result.Divergences)

	if !result.Match {
		return 1
	}
	fmt.Println("OK")
	return 0
}

func printDivergences(divergences []verification.RowDivergence) {
	for _, d := range divergences {
		for _, f := range d.Fields {
			fmt.Printf("  %s: %s stored=%v rebuilt=%v\n", d.PeriodID, f.Field, f.Expected, f.Actual)
		}
	}
}

// createVerifier builds a verifier over memory fixtures or the databases.
func createVerifier(ctx context.Context, cfg *config.Config, useFixtures bool) (verification.Verifier, func(), error) {
	var (
		panel   storage.PanelRowStore
		periods storage.FirmPeriodStore
		shocks  storage.ShockEventStore
		patents storage.PatentGrantStore
		cleanup = func() {}
	)

	if useFixtures {
		rawStore := memory.NewRawRecordStore()
		periodStore := memory.NewFirmPeriodStore()
		panelStore := memory.NewPanelRowStore()
		shockStore := memory.NewShockEventStore()
		patentStore := memory.NewPatentGrantStore()

		if err := pipeline.LoadFixtures(ctx, rawStore, shockStore, patentStore); err != nil {
			return nil, nil, fmt.Errorf("load fixtures: %w", err)
		}

		// Build without the in-run battery; this command is the check.
		orch := orchestrator.New(orchestrator.Options{
			RawStore:       rawStore,
			PeriodStore:    periodStore,
			PanelStore:     panelStore,
			ShockStore:     shockStore,
			PatentStore:    patentStore,
			RunStore:       memory.NewPipelineRunStore(),
			AttritionStore: memory.NewAttritionStore(),
			StatStore:      memory.NewSampleStatStore(),
			WinsorLow:      cfg.Sample.WinsorLow,
			WinsorHigh:     cfg.Sample.WinsorHigh,
			SkipVerify:     true,
		})
		if _, err := orch.Run(ctx); err != nil {
			return nil, nil, fmt.Errorf("build fixture panel: %w", err)
		}

		panel, periods, shocks, patents = panelStore, periodStore, shockStore, patentStore
	} else {
		pgPool, err := pgstore.NewPool(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		chConn, err := chstore.NewConn(ctx, cfg.Database.ClickHouseDSN)
		if err != nil {
			pgPool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}

		panel = chstore.NewPanelRowStore(chConn)
		periods = pgstore.NewFirmPeriodStore(pgPool)
		shocks = chstore.NewShockEventStore(chConn)
		patents = chstore.NewPatentGrantStore(chConn)

		cleanup = func() {
			chConn.Close()
			pgPool.Close()
		}
	}

	verifier := verification.NewPanelVerifier(verification.PanelVerifierOptions{
		PanelStore:  panel,
		PeriodStore: periods,
		ShockStore:  shocks,
		PatentStore: patents,
		WinsorLow:   cfg.Sample.WinsorLow,
		WinsorHigh:  cfg.Sample.WinsorHigh,
	})
	return verifier, cleanup, nil
}
