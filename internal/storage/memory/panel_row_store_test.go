package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

func panelRow(id, gvkey string, quarterEndMs int64) *domain.PanelRow {
	return &domain.PanelRow{
		PeriodID:     id,
		GVKey:        gvkey,
		ReportDate:   time.UnixMilli(quarterEndMs).UTC().AddDate(0, 0, -1),
		QuarterEndMs: quarterEndMs,
		RunID:        1,
		RunSeq:       1,
	}
}

func TestPanelRowStore_InsertBulkAndGet(t *testing.T) {
	store := NewPanelRowStore()
	ctx := context.Background()

	rows := []*domain.PanelRow{
		panelRow("p1", "001690", 1000),
		panelRow("p2", "001690", 2000),
		panelRow("p3", "002030", 1500),
	}
	if err := store.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByGVKey(ctx, "001690")
	if err != nil {
		t.Fatalf("GetByGVKey failed: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(result))
	}
}

func TestPanelRowStore_DuplicateInBatch(t *testing.T) {
	store := NewPanelRowStore()
	ctx := context.Background()

	rows := []*domain.PanelRow{
		panelRow("p1", "001690", 1000),
		panelRow("p1", "001690", 2000), // same period_id
	}

	err := store.InsertBulk(ctx, rows)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	all, _ := store.GetAll(ctx)
	if len(all) != 0 {
		t.Errorf("Expected 0 rows (rollback), got %d", len(all))
	}
}

func TestPanelRowStore_GetByTimeRange(t *testing.T) {
	store := NewPanelRowStore()
	ctx := context.Background()

	rows := []*domain.PanelRow{
		panelRow("p1", "001690", 1000),
		panelRow("p2", "001690", 2000),
		panelRow("p3", "001690", 3000),
		panelRow("p4", "002030", 2500), // different firm
	}
	if err := store.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTimeRange(ctx, "001690", 1500, 2500)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}

	if len(result) != 1 {
		t.Fatalf("Expected 1 row in range, got %d", len(result))
	}
	if result[0].PeriodID != "p2" {
		t.Errorf("Expected p2, got %s", result[0].PeriodID)
	}
}

func TestPanelRowStore_GetAllOrdered(t *testing.T) {
	store := NewPanelRowStore()
	ctx := context.Background()

	rows := []*domain.PanelRow{
		panelRow("p3", "002030", 1000),
		panelRow("p2", "001690", 2000),
		panelRow("p1", "001690", 1000),
	}
	if err := store.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	all, _ := store.GetAll(ctx)
	if len(all) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(all))
	}

	if all[0].PeriodID != "p1" || all[1].PeriodID != "p2" || all[2].PeriodID != "p3" {
		t.Errorf("Wrong order: got %s, %s, %s", all[0].PeriodID, all[1].PeriodID, all[2].PeriodID)
	}
}
