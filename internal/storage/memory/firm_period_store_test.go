package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

func firmPeriod(id, gvkey string, date time.Time) *domain.FirmPeriod {
	return &domain.FirmPeriod{
		PeriodID:      id,
		GVKey:         gvkey,
		ReportDate:    date,
		FiscalYear:    date.Year(),
		FiscalQuarter: 1,
		SourceRecords: 1,
		Resolution:    domain.ResolutionNone,
	}
}

func TestFirmPeriodStore_InsertAndGet(t *testing.T) {
	store := NewFirmPeriodStore()
	ctx := context.Background()

	date := time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)
	if err := store.Insert(ctx, firmPeriod("p1", "001690", date)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	byID, err := store.GetByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byID.GVKey != "001690" {
		t.Errorf("GVKey mismatch: got %s, want 001690", byID.GVKey)
	}

	byKey, err := store.GetByKey(ctx, "001690", date)
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if byKey.PeriodID != "p1" {
		t.Errorf("PeriodID mismatch: got %s, want p1", byKey.PeriodID)
	}
}

func TestFirmPeriodStore_NotFound(t *testing.T) {
	store := NewFirmPeriodStore()
	ctx := context.Background()

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	date := time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)
	if _, err := store.GetByKey(ctx, "001690", date); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFirmPeriodStore_DuplicateNaturalKey(t *testing.T) {
	store := NewFirmPeriodStore()
	ctx := context.Background()

	date := time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)
	if err := store.Insert(ctx, firmPeriod("p1", "001690", date)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// Different period_id, same (gvkey, report date) key.
	err := store.Insert(ctx, firmPeriod("p2", "001690", date))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestFirmPeriodStore_InsertBulkPartialDuplicate(t *testing.T) {
	store := NewFirmPeriodStore()
	ctx := context.Background()

	q1 := time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)
	q2 := time.Date(1999, 6, 30, 0, 0, 0, 0, time.UTC)

	if err := store.Insert(ctx, firmPeriod("p1", "001690", q1)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	batch := []*domain.FirmPeriod{
		firmPeriod("p2", "001690", q2), // new
		firmPeriod("p3", "001690", q1), // natural-key duplicate
	}

	err := store.InsertBulk(ctx, batch)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Verify no partial insert
	periods, _ := store.GetByGVKey(ctx, "001690")
	if len(periods) != 1 {
		t.Errorf("Expected 1 period (rollback), got %d", len(periods))
	}
}

func TestFirmPeriodStore_GetByGVKeyOrdered(t *testing.T) {
	store := NewFirmPeriodStore()
	ctx := context.Background()

	dates := []time.Time{
		time.Date(1999, 9, 30, 0, 0, 0, 0, time.UTC),
		time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC),
		time.Date(1999, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	batch := []*domain.FirmPeriod{
		firmPeriod("p3", "001690", dates[0]),
		firmPeriod("p1", "001690", dates[1]),
		firmPeriod("p2", "001690", dates[2]),
	}
	if err := store.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, _ := store.GetByGVKey(ctx, "001690")
	for i := 1; i < len(result); i++ {
		if result[i].ReportDate.Before(result[i-1].ReportDate) {
			t.Errorf("Results not ordered: %v before %v", result[i].ReportDate, result[i-1].ReportDate)
		}
	}
}
