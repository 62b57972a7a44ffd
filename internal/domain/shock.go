package domain

// ShockEvent is one monetary-policy announcement with its measured surprise.
// Corresponds to shock_events table in ClickHouse. Events are matched to
// firm-quarters by announcement instant against the quarter-endpoint window.
type ShockEvent struct {
	EventID       string  // sha256 hash of (series, announced_at)
	Series        string  // source series name, e.g. "ffr_surprise"
	AnnouncedAtMs int64   // announcement instant (ms)
	Surprise      float64 // policy surprise, basis points
	CreatedAt     int64   // record creation timestamp (ms)
}
