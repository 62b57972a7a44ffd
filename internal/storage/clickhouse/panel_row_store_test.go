package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// testPanelRow builds a first-of-run panel row for the given report date.
func testPanelRow(periodID, gvkey string, date time.Time) *domain.PanelRow {
	end := date.AddDate(0, 0, 1)
	return &domain.PanelRow{
		PeriodID:        periodID,
		GVKey:           gvkey,
		ReportDate:      date,
		FiscalYear:      date.Year(),
		FiscalQuarter:   int(date.Month()-1)/3 + 1,
		ReportedQuarter: "1999Q1",
		SIC:             "3674",
		Fields: domain.AccountingFields{
			ATQ:    ptr(100.0),
			CHEQ:   ptr(20.0),
			DLCQ:   ptr(10.0),
			DLTTQ:  ptr(30.0),
			SALEQ:  ptr(50.0),
			IBQ:    ptr(5.0),
			DPQ:    ptr(2.0),
			PPENTQ: ptr(40.0),
			XRDQ:   nil,
		},
		CalendarQuarter:     "1999Q1b",
		CalendarAligned:     true,
		ExpectedQuarterDays: 90,
		QuarterEndMs:        end.UnixMilli(),
		QuarterEnd1Ms:       end.AddDate(0, 0, -90).UnixMilli(),
		QuarterEnd2Ms:       end.AddDate(0, 0, -181).UnixMilli(),
		Lag1Genuine:         false,
		Lag2Genuine:         false,
		LagUnavailable:      true,
		RunID:               1,
		RunSeq:              1,
		GapDays:             nil,
		Leverage:            ptr(0.4),
		Liquidity:           ptr(0.2),
		Size:                ptr(4.605170185988092),
		RDIntensity:         ptr(0.0),
		InSample:            true,
		CreatedAt:           1700000000000,
	}
}

func TestPanelRowStore_InsertBulkRoundTrip(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPanelRowStore(conn)
	ctx := context.Background()

	// Test empty insert
	err := store.InsertBulk(ctx, nil)
	assert.NoError(t, err)

	date := time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)
	row := testPanelRow("per-1", "001000", date)

	err = store.InsertBulk(ctx, []*domain.PanelRow{row})
	require.NoError(t, err)

	got, err := store.GetByGVKey(ctx, "001000")
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, "per-1", r.PeriodID)
	assert.Equal(t, "001000", r.GVKey)
	assert.True(t, r.ReportDate.Equal(date), "report date %v", r.ReportDate)
	assert.Equal(t, 1999, r.FiscalYear)
	assert.Equal(t, 1, r.FiscalQuarter)
	assert.Equal(t, "1999Q1", r.ReportedQuarter)
	assert.Equal(t, "3674", r.SIC)
	require.NotNil(t, r.Fields.ATQ)
	assert.Equal(t, 100.0, *r.Fields.ATQ)
	assert.Nil(t, r.Fields.XRDQ)
	assert.Equal(t, "1999Q1b", r.CalendarQuarter)
	assert.True(t, r.CalendarAligned)
	assert.Equal(t, 90, r.ExpectedQuarterDays)
	assert.Equal(t, row.QuarterEndMs, r.QuarterEndMs)
	assert.Equal(t, row.QuarterEnd1Ms, r.QuarterEnd1Ms)
	assert.Equal(t, row.QuarterEnd2Ms, r.QuarterEnd2Ms)
	assert.False(t, r.Lag1Genuine)
	assert.True(t, r.LagUnavailable)
	assert.Equal(t, 1, r.RunID)
	assert.Equal(t, 1, r.RunSeq)
	assert.Nil(t, r.GapDays)
	require.NotNil(t, r.Leverage)
	assert.Equal(t, 0.4, *r.Leverage)
	assert.Nil(t, r.Investment)
	assert.Nil(t, r.PatentCount)
	assert.True(t, r.InSample)
	assert.Empty(t, r.ExcludeReason)
	assert.Equal(t, int64(1700000000000), r.CreatedAt)
}

func TestPanelRowStore_NullableRoundTrip(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPanelRowStore(conn)
	ctx := context.Background()

	date := time.Date(1999, 6, 30, 0, 0, 0, 0, time.UTC)
	row := testPanelRow("per-2", "001000", date)
	row.RunSeq = 2
	row.GapDays = ptr(int64(91))
	row.Lag1Genuine = true
	row.LagUnavailable = false
	row.Investment = ptr(0.09531017980432493)
	row.CashFlow = ptr(0.07)
	row.SalesGrowth = ptr(0.1)
	row.PatentCount = ptr(int64(2))
	row.ShockCount = ptr(int64(1))
	row.ShockSum = ptr(-0.25)
	row.InSample = false
	row.ExcludeReason = domain.ExcludeSICFinancial

	err := store.InsertBulk(ctx, []*domain.PanelRow{row})
	require.NoError(t, err)

	got, err := store.GetByGVKey(ctx, "001000")
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	require.NotNil(t, r.GapDays)
	assert.Equal(t, int64(91), *r.GapDays)
	assert.True(t, r.Lag1Genuine)
	assert.False(t, r.LagUnavailable)
	require.NotNil(t, r.Investment)
	assert.InDelta(t, 0.0953, *r.Investment, 0.0001)
	require.NotNil(t, r.PatentCount)
	assert.Equal(t, int64(2), *r.PatentCount)
	require.NotNil(t, r.ShockSum)
	assert.Equal(t, -0.25, *r.ShockSum)
	assert.False(t, r.InSample)
	assert.Equal(t, domain.ExcludeSICFinancial, r.ExcludeReason)
}

func TestPanelRowStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPanelRowStore(conn)
	ctx := context.Background()

	date := time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)
	rows := []*domain.PanelRow{testPanelRow("per-1", "001000", date)}

	err := store.InsertBulk(ctx, rows)
	require.NoError(t, err)

	// Same period_id again
	err = store.InsertBulk(ctx, rows)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestPanelRowStore_InsertBulk_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPanelRowStore(conn)
	ctx := context.Background()

	date := time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)
	rows := []*domain.PanelRow{
		testPanelRow("per-1", "001000", date),
		testPanelRow("per-1", "002000", date),
	}

	err := store.InsertBulk(ctx, rows)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestPanelRowStore_GetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPanelRowStore(conn)
	ctx := context.Background()

	d1 := time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(1999, 6, 30, 0, 0, 0, 0, time.UTC)
	d3 := time.Date(1999, 9, 30, 0, 0, 0, 0, time.UTC)

	r1 := testPanelRow("per-1", "001000", d1)
	r2 := testPanelRow("per-2", "001000", d2)
	r3 := testPanelRow("per-3", "001000", d3)

	err := store.InsertBulk(ctx, []*domain.PanelRow{r1, r2, r3})
	require.NoError(t, err)

	// Inclusive range covering the middle endpoint only
	got, err := store.GetByTimeRange(ctx, "001000", r2.QuarterEndMs, r2.QuarterEndMs)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "per-2", got[0].PeriodID)

	// Range covering the last two
	got, err = store.GetByTimeRange(ctx, "001000", r2.QuarterEndMs, r3.QuarterEndMs)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "per-2", got[0].PeriodID)
	assert.Equal(t, "per-3", got[1].PeriodID)

	// Other firm sees nothing
	got, err = store.GetByTimeRange(ctx, "002000", r1.QuarterEndMs, r3.QuarterEndMs)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPanelRowStore_GetAllOrdering(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPanelRowStore(conn)
	ctx := context.Background()

	d1 := time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(1999, 6, 30, 0, 0, 0, 0, time.UTC)

	// Insert interleaved across firms, out of order
	err := store.InsertBulk(ctx, []*domain.PanelRow{
		testPanelRow("b-2", "002000", d2),
		testPanelRow("a-2", "001000", d2),
		testPanelRow("b-1", "002000", d1),
		testPanelRow("a-1", "001000", d1),
	})
	require.NoError(t, err)

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "a-1", got[0].PeriodID)
	assert.Equal(t, "a-2", got[1].PeriodID)
	assert.Equal(t, "b-1", got[2].PeriodID)
	assert.Equal(t, "b-2", got[3].PeriodID)
}
