package clickhouse

import (
	"context"
	"fmt"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// ShockEventStore implements storage.ShockEventStore using ClickHouse.
type ShockEventStore struct {
	conn *Conn
}

// NewShockEventStore creates a new ShockEventStore.
func NewShockEventStore(conn *Conn) *ShockEventStore {
	return &ShockEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ShockEventStore = (*ShockEventStore)(nil)

// InsertBulk adds multiple events. Fails entire batch on duplicate event_id.
func (s *ShockEventStore) InsertBulk(ctx context.Context, events []*domain.ShockEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, e := range events {
		exists, err := s.exists(ctx, e.EventID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO shock_events (
			event_id, series, announced_at_ms, surprise, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.EventID, e.Series, e.AnnouncedAtMs, e.Surprise, e.CreatedAt,
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

// GetAll retrieves all events, ordered by announcement instant ASC.
func (s *ShockEventStore) GetAll(ctx context.Context) ([]*domain.ShockEvent, error) {
	query := `
		SELECT event_id, series, announced_at_ms, surprise, created_at
		FROM shock_events
		ORDER BY announced_at_ms ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all: %w", err)
	}
	defer rows.Close()

	return scanShockEvents(rows)
}

// GetByTimeRange retrieves events announced within [start, end] (inclusive, ms).
func (s *ShockEventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ShockEvent, error) {
	query := `
		SELECT event_id, series, announced_at_ms, surprise, created_at
		FROM shock_events
		WHERE announced_at_ms >= ? AND announced_at_ms <= ?
		ORDER BY announced_at_ms ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanShockEvents(rows)
}

// exists checks if an event with the given id exists.
func (s *ShockEventStore) exists(ctx context.Context, eventID string) (bool, error) {
	query := `
		SELECT count(*) FROM shock_events
		WHERE event_id = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, eventID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanShockEvents scans multiple rows into a slice of ShockEvent.
func scanShockEvents(rows chRows) ([]*domain.ShockEvent, error) {
	var events []*domain.ShockEvent

	for rows.Next() {
		var e domain.ShockEvent

		err := rows.Scan(
			&e.EventID, &e.Series, &e.AnnouncedAtMs, &e.Surprise, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan shock event row: %w", err)
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shock event rows: %w", err)
	}

	return events, nil
}
