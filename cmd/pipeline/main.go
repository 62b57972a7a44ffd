// Package main provides the end-to-end pipeline entry point on fixture data.
// Executes: resolve → normalize → sample → verify → reporting.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firm-panel-lab/internal/orchestrator"
	"firm-panel-lab/internal/pipeline"
	"firm-panel-lab/internal/storage"
	"firm-panel-lab/internal/storage/memory"
	"firm-panel-lab/internal/verification"
)

func main() {
	// Parse flags
	outputDir := flag.String("output-dir", "docs", "Output directory for generated files")
	skipVerify := flag.Bool("skip-verify", false, "Skip the invariant battery after the build")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling pipeline...\n", sig)
		cancel()
	}()

	// Create all memory stores
	stores := createAllMemoryStores()

	// Load fixture data for raw records and event series
	if err := pipeline.LoadFixtures(ctx, stores.rawStore, stores.shockStore, stores.patentStore); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading fixtures: %v\n", err)
		os.Exit(1)
	}

	// Phase 1-5: Run orchestrator (resolve → normalize → sample → persist → verify)
	fmt.Println("=== Panel Build ===")
	orch := orchestrator.New(orchestrator.Options{
		RawStore:       stores.rawStore,
		PeriodStore:    stores.periodStore,
		PanelStore:     stores.panelStore,
		ShockStore:     stores.shockStore,
		PatentStore:    stores.patentStore,
		RunStore:       stores.runStore,
		AttritionStore: stores.attritionStore,
		StatStore:      stores.statStore,
		SkipVerify:     *skipVerify,
		Verbose:        *verbose,
	})

	result, err := orch.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Orchestrator error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Panel build completed:\n")
	fmt.Printf("  Raw records: %d\n", result.RawRecords)
	fmt.Printf("  Firm-periods: %d\n", result.FirmPeriods)
	fmt.Printf("  Panel rows: %d\n", result.PanelRows)
	fmt.Printf("  Sample rows: %d\n", result.SampleRows)
	if result.RejectedKeys > 0 {
		fmt.Printf("  Rejected keys: %d\n", result.RejectedKeys)
	}
	if len(result.Errors) > 0 {
		fmt.Printf("  Violations: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	// Reporting
	fmt.Println("\n=== Reporting ===")

	verifier := verification.NewPanelVerifier(verification.PanelVerifierOptions{
		PanelStore:  stores.panelStore,
		PeriodStore: stores.periodStore,
		ShockStore:  stores.shockStore,
		PatentStore: stores.patentStore,
	})

	// Create pipeline with fixed clock for deterministic output
	fixedTime := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	p := pipeline.NewReportPipeline(
		stores.panelStore,
		stores.runStore,
		stores.attritionStore,
		stores.statStore,
		*outputDir,
	).WithSufficiencyChecker(
		pipeline.NewSufficiencyChecker(stores.panelStore),
	).WithVerifier(verifier).WithClock(func() time.Time { return fixedTime }).WithDataSource("e2e-pipeline")

	// Run reporting pipeline
	if err := p.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nPipeline completed successfully:")
	fmt.Printf("  - %s/PANEL_REPORT.md\n", *outputDir)
	fmt.Printf("  - %s/panel_rows.csv\n", *outputDir)
	fmt.Printf("  - %s/attrition.csv\n", *outputDir)
	fmt.Printf("  - %s/sample_stats.csv\n", *outputDir)
}

// allStores holds all memory stores.
type allStores struct {
	rawStore       storage.RawRecordStore
	periodStore    storage.FirmPeriodStore
	panelStore     storage.PanelRowStore
	shockStore     storage.ShockEventStore
	patentStore    storage.PatentGrantStore
	runStore       storage.PipelineRunStore
	attritionStore storage.AttritionStore
	statStore      storage.SampleStatStore
}

// createAllMemoryStores creates all required memory stores.
func createAllMemoryStores() *allStores {
	return &allStores{
		rawStore:       memory.NewRawRecordStore(),
		periodStore:    memory.NewFirmPeriodStore(),
		panelStore:     memory.NewPanelRowStore(),
		shockStore:     memory.NewShockEventStore(),
		patentStore:    memory.NewPatentGrantStore(),
		runStore:       memory.NewPipelineRunStore(),
		attritionStore: memory.NewAttritionStore(),
		statStore:      memory.NewSampleStatStore(),
	}
}
