package clickhouse

import (
	"context"
	"fmt"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// PatentGrantStore implements storage.PatentGrantStore using ClickHouse.
type PatentGrantStore struct {
	conn *Conn
}

// NewPatentGrantStore creates a new PatentGrantStore.
func NewPatentGrantStore(conn *Conn) *PatentGrantStore {
	return &PatentGrantStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PatentGrantStore = (*PatentGrantStore)(nil)

// InsertBulk adds multiple grants. Fails entire batch on duplicate (patent_id, gvkey).
func (s *PatentGrantStore) InsertBulk(ctx context.Context, grants []*domain.PatentGrant) error {
	if len(grants) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		patentID string
		gvkey    string
	}
	seen := make(map[key]struct{}, len(grants))
	for _, g := range grants {
		if g == nil || g.PatentID == "" || g.GVKey == "" {
			return storage.ErrInvalidInput
		}
		k := key{g.PatentID, g.GVKey}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, g := range grants {
		exists, err := s.exists(ctx, g.PatentID, g.GVKey)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO patent_grants (
			patent_id, gvkey, granted_at_ms, value, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, g := range grants {
		err = batch.Append(
			g.PatentID, g.GVKey, g.GrantedAtMs, g.Value, g.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByGVKey retrieves all grants for a firm, ordered by grant instant ASC.
func (s *PatentGrantStore) GetByGVKey(ctx context.Context, gvkey string) ([]*domain.PatentGrant, error) {
	query := `
		SELECT patent_id, gvkey, granted_at_ms, value, created_at
		FROM patent_grants
		WHERE gvkey = ?
		ORDER BY granted_at_ms ASC, patent_id ASC
	`

	rows, err := s.conn.Query(ctx, query, gvkey)
	if err != nil {
		return nil, fmt.Errorf("query by gvkey: %w", err)
	}
	defer rows.Close()

	return scanPatentGrants(rows)
}

// GetByTimeRange retrieves grants for a firm within [start, end] (inclusive, ms).
func (s *PatentGrantStore) GetByTimeRange(ctx context.Context, gvkey string, start, end int64) ([]*domain.PatentGrant, error) {
	query := `
		SELECT patent_id, gvkey, granted_at_ms, value, created_at
		FROM patent_grants
		WHERE gvkey = ? AND granted_at_ms >= ? AND granted_at_ms <= ?
		ORDER BY granted_at_ms ASC, patent_id ASC
	`

	rows, err := s.conn.Query(ctx, query, gvkey, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPatentGrants(rows)
}

// exists checks if a grant with the given key exists.
func (s *PatentGrantStore) exists(ctx context.Context, patentID, gvkey string) (bool, error) {
	query := `
		SELECT count(*) FROM patent_grants
		WHERE patent_id = ? AND gvkey = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, patentID, gvkey).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanPatentGrants scans multiple rows into a slice of PatentGrant.
func scanPatentGrants(rows chRows) ([]*domain.PatentGrant, error) {
	var grants []*domain.PatentGrant

	for rows.Next() {
		var g domain.PatentGrant

		err := rows.Scan(
			&g.PatentID, &g.GVKey, &g.GrantedAtMs, &g.Value, &g.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan patent grant row: %w", err)
		}

		grants = append(grants, &g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patent grant rows: %w", err)
	}

	return grants, nil
}
