// Package main provides the unified panel service:
// - Source load (once at startup): accounting CSV, shock XLSX, patent CSV
// - Panel build (scheduled): resolve → normalize → sample → verify
// - Reporting (scheduled): PANEL_REPORT.md, CSVs
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"firm-panel-lab/internal/config"
	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/ingestion"
	"firm-panel-lab/internal/observability"
	"firm-panel-lab/internal/orchestrator"
	"firm-panel-lab/internal/pipeline"
	"firm-panel-lab/internal/progress"
	"firm-panel-lab/internal/storage"
	chstore "firm-panel-lab/internal/storage/clickhouse"
	"firm-panel-lab/internal/storage/memory"
	"firm-panel-lab/internal/storage/migrations"
	pgstore "firm-panel-lab/internal/storage/postgres"
	"firm-panel-lab/internal/verification"
)

// Server holds all components of the unified service.
type Server struct {
	// Configuration
	cfg              *config.Config
	useMemory        bool
	shocksSheet      string
	outputDir        string
	pipelineInterval time.Duration
	reportInterval   time.Duration

	// Stores
	stores *allStores

	// Components
	hub      *progress.Hub
	resolver *ingestion.Resolver
	logger   *log.Logger

	// State
	mu              sync.Mutex
	lastPipelineRun time.Time
	lastReportRun   time.Time
	pipelineRunning bool
	reportRunning   bool
	serverStarted   time.Time

	// Stats
	pipelineRuns int
	reportRuns   int
}

// allStores holds all storage implementations.
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

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration file")
	accountingCSV := flag.String("accounting-csv", "", "Path to quarterly accounting CSV")
	shocksXLSX := flag.String("shocks-xlsx", "", "Path to policy shock XLSX workbook")
	shocksSheet := flag.String("shocks-sheet", "", "Workbook sheet name (default: first sheet)")
	patentsCSV := flag.String("patents-csv", "", "Path to patent grant CSV")
	overridesPath := flag.String("overrides", "", "Path to manual override YAML")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	outputDir := flag.String("output-dir", "", "Output directory for reports (default: from config)")
	pipelineInterval := flag.Duration("pipeline-interval", 24*time.Hour, "Panel build interval")
	reportInterval := flag.Duration("report-interval", 24*time.Hour, "Report generation interval")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	httpAddr := flag.String("http-addr", ":8080", "HTTP address for health/metrics/status/ws")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Load configuration, then apply flag overrides
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if *accountingCSV != "" {
		cfg.Inputs.AccountingCSV = *accountingCSV
	}
	if *shocksXLSX != "" {
		cfg.Inputs.ShocksXLSX = *shocksXLSX
	}
	if *patentsCSV != "" {
		cfg.Inputs.PatentsCSV = *patentsCSV
	}
	if *overridesPath != "" {
		cfg.Inputs.OverridesYAML = *overridesPath
	}
	if *postgresDSN != "" {
		cfg.Database.PostgresDSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.Database.ClickHouseDSN = *clickhouseDSN
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}

	// Validate required flags
	if !*useMemory && (cfg.Database.PostgresDSN == "" || cfg.Database.ClickHouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, cfg, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Load manual overrides for duplicate resolution
	resolver := ingestion.NewResolver(nil)
	if cfg.Inputs.OverridesYAML != "" {
		overrides, err := config.LoadOverrides(cfg.Inputs.OverridesYAML)
		if err != nil {
			logger.Fatalf("Failed to load overrides: %v", err)
		}
		logger.Printf("Loaded %d manual override entries", overrides.Len())
		resolver = ingestion.NewResolver(overrides)
	}

	// Create progress hub for live build events
	hub := progress.NewHub(log.New(os.Stdout, "[progress] ", log.LstdFlags))
	hub.Start()
	defer hub.Stop()

	// Create server
	server := &Server{
		cfg:              cfg,
		useMemory:        *useMemory,
		shocksSheet:      *shocksSheet,
		outputDir:        cfg.Output.Dir,
		pipelineInterval: *pipelineInterval,
		reportInterval:   *reportInterval,
		stores:           stores,
		hub:              hub,
		resolver:         resolver,
		logger:           logger,
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*httpAddr)

	// Run the unified server
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates all required stores.
func createStores(ctx context.Context, cfg *config.Config, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			rawStore:       memory.NewRawRecordStore(),
			periodStore:    memory.NewFirmPeriodStore(),
			panelStore:     memory.NewPanelRowStore(),
			shockStore:     memory.NewShockEventStore(),
			patentStore:    memory.NewPatentGrantStore(),
			runStore:       memory.NewPipelineRunStore(),
			attritionStore: memory.NewAttritionStore(),
			statStore:      memory.NewSampleStatStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.Database.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
	}

	stores := &allStores{
		// PostgreSQL stores (source data + build state)
		rawStore:    pgstore.NewRawRecordStore(pool),
		periodStore: pgstore.NewFirmPeriodStore(pool),
		runStore:    pgstore.NewPipelineRunStore(pool),

		// ClickHouse stores (analytics)
		panelStore:     chstore.NewPanelRowStore(chConn),
		shockStore:     chstore.NewShockEventStore(chConn),
		patentStore:    chstore.NewPatentGrantStore(chConn),
		attritionStore: chstore.NewAttritionStore(chConn),
		statStore:      chstore.NewSampleStatStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// Run starts the unified server with all components.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting unified server...")

	s.mu.Lock()
	s.serverStarted = time.Now()
	s.mu.Unlock()

	// Load source files before the first build
	if err := s.loadSources(ctx); err != nil {
		return fmt.Errorf("load source files: %w", err)
	}

	// Create error channel for goroutines
	errCh := make(chan error, 2)

	// Start pipeline scheduler in background
	go func() {
		err := s.runPipelineScheduler(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("pipeline scheduler: %w", err)
		}
	}()

	// Start report scheduler in background
	go func() {
		err := s.runReportScheduler(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("report scheduler: %w", err)
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// loadSources ingests the configured input files. Skipped when the raw store
// already holds records, so a restart against a populated database does not
// attempt a second load.
func (s *Server) loadSources(ctx context.Context) error {
	count, err := s.stores.rawStore.Count(ctx)
	if err != nil {
		return fmt.Errorf("count raw records: %w", err)
	}
	if count > 0 {
		s.logger.Printf("Raw store already holds %d records, skipping file load", count)
		return nil
	}

	opts := ingestion.ManagerOptions{
		RawStore:    s.stores.rawStore,
		PeriodStore: s.stores.periodStore,
		ShockStore:  s.stores.shockStore,
		PatentStore: s.stores.patentStore,
		Logger:      s.logger,
	}
	if s.cfg.Inputs.AccountingCSV != "" {
		opts.AccountingSource = ingestion.NewCSVAccountingSource(s.cfg.Inputs.AccountingCSV)
	}
	if s.cfg.Inputs.ShocksXLSX != "" {
		opts.ShockSource = ingestion.NewXLSXShockSource(s.cfg.Inputs.ShocksXLSX, s.shocksSheet)
	}
	if s.cfg.Inputs.PatentsCSV != "" {
		opts.PatentSource = ingestion.NewCSVPatentSource(s.cfg.Inputs.PatentsCSV)
	}
	mgr := ingestion.NewManager(opts)

	accStats, err := mgr.IngestAccounting(ctx)
	if err != nil {
		return fmt.Errorf("ingest accounting: %w", err)
	}
	s.logger.Printf("Accounting: %d rows loaded, %d rejected", accStats.Loaded, accStats.Rejected())

	shockStats, err := mgr.IngestShocks(ctx)
	if err != nil {
		return fmt.Errorf("ingest shocks: %w", err)
	}
	s.logger.Printf("Shocks: %d rows loaded, %d rejected", shockStats.Loaded, shockStats.Rejected())

	patentStats, err := mgr.IngestPatents(ctx)
	if err != nil {
		return fmt.Errorf("ingest patents: %w", err)
	}
	s.logger.Printf("Patents: %d rows loaded, %d rejected", patentStats.Loaded, patentStats.Rejected())

	return nil
}

// runPipelineScheduler runs the panel build on schedule.
func (s *Server) runPipelineScheduler(ctx context.Context) error {
	s.logger.Printf("Starting pipeline scheduler (interval: %v)...", s.pipelineInterval)

	// Run immediately on start
	s.runPipeline(ctx)

	ticker := time.NewTicker(s.pipelineInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runPipeline(ctx)
		}
	}
}

// runPipeline executes one panel build.
func (s *Server) runPipeline(ctx context.Context) {
	s.mu.Lock()
	if s.pipelineRunning {
		s.mu.Unlock()
		s.logger.Println("Pipeline already running, skipping...")
		return
	}
	s.pipelineRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pipelineRunning = false
		s.lastPipelineRun = time.Now()
		s.pipelineRuns++
		s.mu.Unlock()
	}()

	// Builds run from scratch, so a rerun over the same inputs would collide
	// on period IDs. Skip when the raw set is unchanged.
	rawCount, err := s.stores.rawStore.Count(ctx)
	if err != nil {
		s.logger.Printf("Pipeline error: count raw records: %v", err)
		return
	}
	last, err := s.stores.runStore.GetLatest(ctx)
	switch {
	case err == nil:
		if last.Status == domain.RunStatusCompleted && last.RawRecords == rawCount {
			s.logger.Printf("Raw records unchanged since run %s, skipping build", last.RunID)
			return
		}
	case !errors.Is(err, storage.ErrNotFound):
		s.logger.Printf("Pipeline error: load last run: %v", err)
		return
	}

	s.logger.Println("Running panel build...")
	start := time.Now()

	// Create orchestrator
	orch := orchestrator.New(orchestrator.Options{
		RawStore:       s.stores.rawStore,
		PeriodStore:    s.stores.periodStore,
		PanelStore:     s.stores.panelStore,
		ShockStore:     s.stores.shockStore,
		PatentStore:    s.stores.patentStore,
		RunStore:       s.stores.runStore,
		AttritionStore: s.stores.attritionStore,
		StatStore:      s.stores.statStore,
		Resolver:       s.resolver,
		WinsorLow:      s.cfg.Sample.WinsorLow,
		WinsorHigh:     s.cfg.Sample.WinsorHigh,
		Publisher:      s.hub,
		Verbose:        true,
	})

	result, err := orch.Run(ctx)
	if err != nil {
		s.logger.Printf("Pipeline error: %v", err)
		observability.RecordPipelineRun("orchestrator", "error", time.Since(start).Seconds())
		return
	}

	s.logger.Printf("Panel build completed in %v: %d firm-periods, %d panel rows, %d in sample, %d violations",
		time.Since(start), result.FirmPeriods, result.PanelRows, result.SampleRows, result.Violations)

	observability.RecordPipelineRun("orchestrator", "success", time.Since(start).Seconds())
}

// runReportScheduler runs report generation on schedule.
func (s *Server) runReportScheduler(ctx context.Context) error {
	s.logger.Printf("Starting report scheduler (interval: %v)...", s.reportInterval)

	// Let the first panel build land before the first report
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(1 * time.Minute):
	}

	s.runReport(ctx)

	ticker := time.NewTicker(s.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runReport(ctx)
		}
	}
}

// runReport generates reports.
func (s *Server) runReport(ctx context.Context) {
	s.mu.Lock()
	if s.reportRunning {
		s.mu.Unlock()
		s.logger.Println("Report generation already running, skipping...")
		return
	}
	// Wait for pipeline to finish
	if s.pipelineRunning {
		s.mu.Unlock()
		s.logger.Println("Pipeline running, waiting before report generation...")
		time.Sleep(30 * time.Second)
		s.mu.Lock()
	}
	s.reportRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reportRunning = false
		s.lastReportRun = time.Now()
		s.reportRuns++
		s.mu.Unlock()
	}()

	s.logger.Println("Generating reports...")
	start := time.Now()

	// Ensure output directory exists
	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		s.logger.Printf("Failed to create output directory: %v", err)
		return
	}

	verifier := verification.NewPanelVerifier(verification.PanelVerifierOptions{
		PanelStore:  s.stores.panelStore,
		PeriodStore: s.stores.periodStore,
		ShockStore:  s.stores.shockStore,
		PatentStore: s.stores.patentStore,
		WinsorLow:   s.cfg.Sample.WinsorLow,
		WinsorHigh:  s.cfg.Sample.WinsorHigh,
	})

	// Create pipeline
	p := pipeline.NewReportPipeline(
		s.stores.panelStore,
		s.stores.runStore,
		s.stores.attritionStore,
		s.stores.statStore,
		s.outputDir,
	).WithSufficiencyChecker(pipeline.NewSufficiencyChecker(s.stores.panelStore)).
		WithVerifier(verifier)

	// Set data source based on mode
	if s.useMemory {
		p = p.WithDataSource("panel-server")
	} else {
		p = p.WithDBSource(s.cfg.Database.PostgresDSN, s.cfg.Database.ClickHouseDSN)
	}

	// Run reporting pipeline
	if err := p.Run(ctx); err != nil {
		s.logger.Printf("Report generation error: %v", err)
		return
	}

	s.logger.Printf("Reports generated in %v to %s/", time.Since(start), s.outputDir)
}

// startHTTPServer starts the HTTP server for health/metrics/status/ws.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	// Live build progress over WebSocket
	mux.Handle("/ws", s.hub)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status          string    `json:"status"`
	Uptime          string    `json:"uptime"`
	ServerStarted   time.Time `json:"server_started"`
	LastPipelineRun time.Time `json:"last_pipeline_run,omitempty"`
	LastReportRun   time.Time `json:"last_report_run,omitempty"`
	PipelineRuns    int       `json:"pipeline_runs"`
	ReportRuns      int       `json:"report_runs"`
	PipelineRunning bool      `json:"pipeline_running"`
	ReportRunning   bool      `json:"report_running"`
	ProgressClients int       `json:"progress_clients"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:          "running",
		Uptime:          time.Since(s.serverStarted).String(),
		ServerStarted:   s.serverStarted,
		LastPipelineRun: s.lastPipelineRun,
		LastReportRun:   s.lastReportRun,
		PipelineRuns:    s.pipelineRuns,
		ReportRuns:      s.reportRuns,
		PipelineRunning: s.pipelineRunning,
		ReportRunning:   s.reportRunning,
		ProgressClients: s.hub.ClientCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
