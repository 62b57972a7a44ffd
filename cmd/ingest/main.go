package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"firm-panel-lab/internal/config"
	"firm-panel-lab/internal/ingestion"
	"firm-panel-lab/internal/observability"
	"firm-panel-lab/internal/storage"
	chstore "firm-panel-lab/internal/storage/clickhouse"
	"firm-panel-lab/internal/storage/memory"
	"firm-panel-lab/internal/storage/migrations"
	pgstore "firm-panel-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	mode := flag.String("mode", "full", "Ingestion mode: load, resolve, or full")
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration file")
	accountingCSV := flag.String("accounting-csv", "", "Path to the accounting panel CSV")
	shocksXLSX := flag.String("shocks-xlsx", "", "Path to the shock series workbook")
	shocksSheet := flag.String("shocks-sheet", "", "Workbook sheet name (default: first sheet)")
	patentsCSV := flag.String("patents-csv", "", "Path to the patent grants CSV")
	overridesYAML := flag.String("overrides", "", "Path to the duplicate-override YAML")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of databases (dry run)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	applyFlagOverrides(cfg, *accountingCSV, *shocksXLSX, *patentsCSV, *overridesYAML, *postgresDSN, *clickhouseDSN)

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling...", sig)
		cancel()
	}()

	stores, cleanup, err := createStores(ctx, cfg, *useMemory)
	if err != nil {
		logger.Fatalf("Create stores: %v", err)
	}
	defer cleanup()

	manager, err := createManager(cfg, stores, *shocksSheet, logger)
	if err != nil {
		logger.Fatalf("Create manager: %v", err)
	}

	switch *mode {
	case "load":
		err = runLoad(ctx, logger, manager)
	case "resolve":
		err = runResolve(ctx, logger, manager)
	case "full":
		if err = runLoad(ctx, logger, manager); err == nil {
			err = runResolve(ctx, logger, manager)
		}
	default:
		logger.Fatalf("Unknown mode: %s", *mode)
	}

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Done")
}

// applyFlagOverrides lets command-line flags win over config file values.
func applyFlagOverrides(cfg *config.Config, accounting, shocks, patents, overrides, postgresDSN, clickhouseDSN string) {
	if accounting != "" {
		cfg.Inputs.AccountingCSV = accounting
	}
	if shocks != "" {
		cfg.Inputs.ShocksXLSX = shocks
	}
	if patents != "" {
		cfg.Inputs.PatentsCSV = patents
	}
	if overrides != "" {
		cfg.Inputs.OverridesYAML = overrides
	}
	if postgresDSN != "" {
		cfg.Database.PostgresDSN = postgresDSN
	}
	if clickhouseDSN != "" {
		cfg.Database.ClickHouseDSN = clickhouseDSN
	}
}

// ingestStores holds the stores the ingestion stages write to.
type ingestStores struct {
	raw     storage.RawRecordStore
	periods storage.FirmPeriodStore
	shocks  storage.ShockEventStore
	patents storage.PatentGrantStore
}

// createStores builds memory or database-backed stores. Raw records and
// firm-periods live in PostgreSQL; event series live in ClickHouse.
func createStores(ctx context.Context, cfg *config.Config, useMemory bool) (*ingestStores, func(), error) {
	if useMemory {
		stores := &ingestStores{
			raw:     memory.NewRawRecordStore(),
			periods: memory.NewFirmPeriodStore(),
			shocks:  memory.NewShockEventStore(),
			patents: memory.NewPatentGrantStore(),
		}
		return stores, func() {}, nil
	}

	if cfg.Database.PostgresDSN == "" || cfg.Database.ClickHouseDSN == "" {
		return nil, nil, fmt.Errorf("postgres and clickhouse DSNs are required (use --use-memory for a dry run)")
	}

	pool, err := pgstore.NewPool(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.Database.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &ingestStores{
		raw:     pgstore.NewRawRecordStore(pool),
		periods: pgstore.NewFirmPeriodStore(pool),
		shocks:  chstore.NewShockEventStore(chConn),
		patents: chstore.NewPatentGrantStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// createManager wires sources and stores into an ingestion manager.
// Sources whose input path is unset are left nil; the manager skips them.
func createManager(cfg *config.Config, stores *ingestStores, shocksSheet string, logger *log.Logger) (*ingestion.Manager, error) {
	opts := ingestion.ManagerOptions{
		RawStore:    stores.raw,
		PeriodStore: stores.periods,
		ShockStore:  stores.shocks,
		PatentStore: stores.patents,
		Logger:      logger,
	}

	if cfg.Inputs.AccountingCSV != "" {
		opts.AccountingSource = ingestion.NewCSVAccountingSource(cfg.Inputs.AccountingCSV)
	}
	if cfg.Inputs.ShocksXLSX != "" {
		opts.ShockSource = ingestion.NewXLSXShockSource(cfg.Inputs.ShocksXLSX, shocksSheet)
	}
	if cfg.Inputs.PatentsCSV != "" {
		opts.PatentSource = ingestion.NewCSVPatentSource(cfg.Inputs.PatentsCSV)
	}

	if cfg.Inputs.OverridesYAML != "" {
		overrides, err := config.LoadOverrides(cfg.Inputs.OverridesYAML)
		if err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
		logger.Printf("Loaded %d duplicate overrides from %s", overrides.Len(), cfg.Inputs.OverridesYAML)
		opts.Resolver = ingestion.NewResolver(overrides)
	}

	return ingestion.NewManager(opts), nil
}

// runLoad reads each configured source into its store.
func runLoad(ctx context.Context, logger *log.Logger, manager *ingestion.Manager) error {
	logger.Println("Loading sources...")

	accounting, err := manager.IngestAccounting(ctx)
	if err != nil {
		return fmt.Errorf("ingest accounting: %w", err)
	}
	logStats(logger, "Accounting", accounting)

	shocks, err := manager.IngestShocks(ctx)
	if err != nil {
		return fmt.Errorf("ingest shocks: %w", err)
	}
	logStats(logger, "Shocks", shocks)

	patents, err := manager.IngestPatents(ctx)
	if err != nil {
		return fmt.Errorf("ingest patents: %w", err)
	}
	logStats(logger, "Patents", patents)

	return nil
}

// runResolve collapses duplicate report dates into unique firm-periods.
func runResolve(ctx context.Context, logger *log.Logger, manager *ingestion.Manager) error {
	logger.Println("Resolving duplicate report dates...")

	stats, err := manager.ResolveDuplicates(ctx)
	if err != nil {
		return fmt.Errorf("resolve duplicates: %w", err)
	}

	logger.Printf("Resolved %d keys: %d single, %d coalesced, %d calendar tiebreaks, %d overridden",
		stats.Keys, stats.Single, stats.Coalesced, stats.CalendarTies, stats.Overridden)
	if stats.Rejected() > 0 {
		logger.Printf("Rejected %d keys: %d irreconcilable, %d with too many records",
			stats.Rejected(), stats.Irreconcilable, stats.TooMany)
	}

	return nil
}

func logStats(logger *log.Logger, source string, stats *ingestion.IngestStats) {
	logger.Printf("%s: %d rows loaded, %d rejected", source, stats.Loaded, stats.Rejected())

	reasons := make([]string, 0, len(stats.Rejects))
	for reason := range stats.Rejects {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		logger.Printf("  %s: %d", reason, stats.Rejects[reason])
	}
}
