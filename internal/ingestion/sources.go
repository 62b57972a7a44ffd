package ingestion

import (
	"context"

	"firm-panel-lab/internal/domain"
)

// AccountingSource provides raw accounting observations from an external
// panel export.
type AccountingSource interface {
	// Fetch returns schema-valid raw records plus one RowError per rejected
	// source row. Records may be unordered; Manager enforces deterministic
	// ordering. The error return is reserved for file-level failures.
	Fetch(ctx context.Context) ([]*domain.RawAccountingRecord, []RowError, error)
}

// ShockSource provides monetary-policy shock announcements.
type ShockSource interface {
	// Fetch returns shock events plus one RowError per rejected source row.
	Fetch(ctx context.Context) ([]*domain.ShockEvent, []RowError, error)
}

// PatentSource provides patent grant events keyed to firms.
type PatentSource interface {
	// Fetch returns patent grants plus one RowError per rejected source row.
	Fetch(ctx context.Context) ([]*domain.PatentGrant, []RowError, error)
}
