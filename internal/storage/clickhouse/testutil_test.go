package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a ClickHouse container and returns a connection.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start ClickHouse container
	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60 * time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_DB":       "test",
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	// Get native port (9000)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port())

	// Connect to ClickHouse
	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)

	// Run migrations
	runMigrations(t, conn)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

// runMigrations applies all SQL files from internal/storage/migrations/clickhouse.
// The migrations package embeds the same files but cannot be imported from
// here without a cycle, so tests read them off disk. Falls back to inline
// table definitions when the directory is not reachable from the test cwd.
func runMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	dir := findMigrationsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Logf("Could not read migrations dir %s: %v, using inline migrations", dir, err)
		runInlineMigrations(t, conn)
		return
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := os.ReadFile(filepath.Join(dir, file))
		require.NoError(t, err, "failed to read migration %s", file)

		// The driver cannot multiquery, so apply one statement at a time.
		for _, stmt := range splitTestStatements(string(content)) {
			err = conn.Exec(ctx, stmt)
			require.NoError(t, err, "failed to apply migration %s", file)
		}
	}
}

// findMigrationsDir attempts to locate the clickhouse migrations directory.
func findMigrationsDir() string {
	paths := []string{
		"../migrations/clickhouse",
		"../../migrations/clickhouse",
		"internal/storage/migrations/clickhouse",
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	// Default path
	return "../migrations/clickhouse"
}

// splitTestStatements strips -- comment lines and splits on semicolons,
// mirroring how the migrations package applies these files.
func splitTestStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(filtered, "\n"), ";") {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// runInlineMigrations applies migrations directly without reading files.
func runInlineMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	// 001_panel_rows.sql
	err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS panel_rows (
			period_id             String,
			gvkey                 String,
			report_date           Date32,
			fiscal_year           Int32,
			fiscal_quarter        Int32,
			reported_quarter      String,
			sic                   String,
			atq                   Nullable(Float64),
			cheq                  Nullable(Float64),
			dlcq                  Nullable(Float64),
			dlttq                 Nullable(Float64),
			saleq                 Nullable(Float64),
			ibq                   Nullable(Float64),
			dpq                   Nullable(Float64),
			ppentq                Nullable(Float64),
			xrdq                  Nullable(Float64),
			calendar_quarter      String,
			calendar_aligned      Bool,
			expected_quarter_days Int32,
			quarter_end_ms        Int64,
			quarter_end1_ms       Int64,
			quarter_end2_ms       Int64,
			lag1_genuine          Bool,
			lag2_genuine          Bool,
			lag_unavailable       Bool,
			run_id                Int32,
			run_seq               Int32,
			gap_days              Nullable(Int64),
			leverage              Nullable(Float64),
			liquidity             Nullable(Float64),
			investment            Nullable(Float64),
			cash_flow             Nullable(Float64),
			sales_growth          Nullable(Float64),
			size                  Nullable(Float64),
			rd_intensity          Nullable(Float64),
			patent_count          Nullable(Int64),
			shock_count           Nullable(Int64),
			shock_sum             Nullable(Float64),
			in_sample             Bool,
			exclude_reason        String,
			created_at            Int64
		) ENGINE = MergeTree()
		ORDER BY (gvkey, report_date)
		SETTINGS index_granularity = 8192
	`)
	require.NoError(t, err)

	// 002_events.sql
	err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS shock_events (
			event_id        String,
			series          String,
			announced_at_ms Int64,
			surprise        Float64,
			created_at      Int64
		) ENGINE = MergeTree()
		ORDER BY (announced_at_ms, event_id)
		SETTINGS index_granularity = 8192
	`)
	require.NoError(t, err)

	err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS patent_grants (
			patent_id     String,
			gvkey         String,
			granted_at_ms Int64,
			value         Nullable(Float64),
			created_at    Int64
		) ENGINE = MergeTree()
		ORDER BY (gvkey, granted_at_ms, patent_id)
		SETTINGS index_granularity = 8192
	`)
	require.NoError(t, err)

	// 003_run_accounting.sql
	err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS attrition_stages (
			pipeline_run_id String,
			stage           String,
			reason          String,
			count           Int64,
			created_at      Int64
		) ENGINE = MergeTree()
		ORDER BY (pipeline_run_id, stage, reason)
		SETTINGS index_granularity = 8192
	`)
	require.NoError(t, err)

	err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sample_stats (
			pipeline_run_id String,
			variable        String,
			pct_low         Float64,
			pct_high        Float64,
			lower_bound     Float64,
			upper_bound     Float64,
			clamped_low     Int64,
			clamped_high    Int64,
			observations    Int64,
			created_at      Int64
		) ENGINE = MergeTree()
		ORDER BY (pipeline_run_id, variable)
		SETTINGS index_granularity = 8192
	`)
	require.NoError(t, err)
}

// ptr is a helper to create pointers for test values
func ptr[T any](v T) *T {
	return &v
}
