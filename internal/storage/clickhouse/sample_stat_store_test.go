package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

func TestSampleStatStore_InsertBulkAndGetByPipelineRun(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSampleStatStore(conn)
	ctx := context.Background()

	// Test empty insert
	err := store.InsertBulk(ctx, nil)
	assert.NoError(t, err)

	stats := []*domain.SampleStat{
		{
			PipelineRunID: "run-1",
			Variable:      domain.VarSize,
			PctLow:        0.01,
			PctHigh:       0.99,
			LowerBound:    2.1,
			UpperBound:    9.8,
			ClampedLow:    3,
			ClampedHigh:   2,
			Observations:  250,
			CreatedAt:     10,
		},
		{
			PipelineRunID: "run-1",
			Variable:      domain.VarLeverage,
			PctLow:        0.01,
			PctHigh:       0.99,
			LowerBound:    0.0,
			UpperBound:    0.93,
			ClampedLow:    0,
			ClampedHigh:   4,
			Observations:  250,
			CreatedAt:     10,
		},
		{
			PipelineRunID: "run-2",
			Variable:      domain.VarSize,
			PctLow:        0.05,
			PctHigh:       0.95,
			LowerBound:    2.5,
			UpperBound:    9.1,
			Observations:  120,
			CreatedAt:     20,
		},
	}

	err = store.InsertBulk(ctx, stats)
	require.NoError(t, err)

	// Ordered by variable, scoped to the run
	got, err := store.GetByPipelineRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.VarLeverage, got[0].Variable)
	assert.Equal(t, 0.93, got[0].UpperBound)
	assert.Equal(t, int64(4), got[0].ClampedHigh)
	assert.Equal(t, domain.VarSize, got[1].Variable)
	assert.Equal(t, 0.01, got[1].PctLow)
	assert.Equal(t, int64(250), got[1].Observations)

	got, err = store.GetByPipelineRun(ctx, "run-9")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSampleStatStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSampleStatStore(conn)
	ctx := context.Background()

	stats := []*domain.SampleStat{
		{PipelineRunID: "run-1", Variable: domain.VarSize, PctLow: 0.01, PctHigh: 0.99, Observations: 10, CreatedAt: 10},
	}

	err := store.InsertBulk(ctx, stats)
	require.NoError(t, err)

	err = store.InsertBulk(ctx, stats)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSampleStatStore_InsertBulk_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSampleStatStore(conn)
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.SampleStat{
		{PipelineRunID: "run-1", Variable: domain.VarSize, PctLow: 0.01, PctHigh: 0.99, Observations: 10, CreatedAt: 10},
		{PipelineRunID: "run-1", Variable: domain.VarSize, PctLow: 0.05, PctHigh: 0.95, Observations: 10, CreatedAt: 10},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
