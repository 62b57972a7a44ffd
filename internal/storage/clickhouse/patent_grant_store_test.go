package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

func TestPatentGrantStore_InsertBulkAndGetByGVKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPatentGrantStore(conn)
	ctx := context.Background()

	// Test empty insert
	err := store.InsertBulk(ctx, nil)
	assert.NoError(t, err)

	grants := []*domain.PatentGrant{
		{PatentID: "p-2", GVKey: "001000", GrantedAtMs: 2000, Value: nil, CreatedAt: 10},
		{PatentID: "p-1", GVKey: "001000", GrantedAtMs: 1000, Value: ptr(3.5), CreatedAt: 10},
		{PatentID: "p-3", GVKey: "002000", GrantedAtMs: 1500, Value: nil, CreatedAt: 10},
	}

	err = store.InsertBulk(ctx, grants)
	require.NoError(t, err)

	// Ordered by grant instant, other firms filtered out
	got, err := store.GetByGVKey(ctx, "001000")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p-1", got[0].PatentID)
	require.NotNil(t, got[0].Value)
	assert.Equal(t, 3.5, *got[0].Value)
	assert.Equal(t, "p-2", got[1].PatentID)
	assert.Nil(t, got[1].Value)

	got, err = store.GetByGVKey(ctx, "003000")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPatentGrantStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPatentGrantStore(conn)
	ctx := context.Background()

	grants := []*domain.PatentGrant{
		{PatentID: "p-1", GVKey: "001000", GrantedAtMs: 1000, CreatedAt: 10},
	}

	err := store.InsertBulk(ctx, grants)
	require.NoError(t, err)

	err = store.InsertBulk(ctx, grants)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestPatentGrantStore_SamePatentDifferentFirm(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPatentGrantStore(conn)
	ctx := context.Background()

	// The key is (patent_id, gvkey): a patent split across assignees is
	// two distinct rows.
	err := store.InsertBulk(ctx, []*domain.PatentGrant{
		{PatentID: "p-1", GVKey: "001000", GrantedAtMs: 1000, CreatedAt: 10},
		{PatentID: "p-1", GVKey: "002000", GrantedAtMs: 1000, CreatedAt: 10},
	})
	require.NoError(t, err)

	got, err := store.GetByGVKey(ctx, "002000")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPatentGrantStore_InsertBulk_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPatentGrantStore(conn)
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.PatentGrant{
		{PatentID: "p-1", GVKey: "001000", GrantedAtMs: 1000, CreatedAt: 10},
		{PatentID: "p-1", GVKey: "001000", GrantedAtMs: 2000, CreatedAt: 10},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestPatentGrantStore_GetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPatentGrantStore(conn)
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.PatentGrant{
		{PatentID: "p-1", GVKey: "001000", GrantedAtMs: 1000, CreatedAt: 10},
		{PatentID: "p-2", GVKey: "001000", GrantedAtMs: 2000, CreatedAt: 10},
		{PatentID: "p-3", GVKey: "001000", GrantedAtMs: 3000, CreatedAt: 10},
		{PatentID: "p-4", GVKey: "002000", GrantedAtMs: 2500, CreatedAt: 10},
	})
	require.NoError(t, err)

	// Inclusive bounds, single firm
	got, err := store.GetByTimeRange(ctx, "001000", 2000, 3000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p-2", got[0].PatentID)
	assert.Equal(t, "p-3", got[1].PatentID)
}
