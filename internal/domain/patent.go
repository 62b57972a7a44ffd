package domain

// PatentGrant is one granted patent attributed to a firm. Corresponds to
// patent_grants table in ClickHouse. Grants are counted per firm-quarter by
// grant instant against the quarter-endpoint window.
type PatentGrant struct {
	PatentID    string   // source patent number
	GVKey       string   // firm identifier the grant is matched to
	GrantedAtMs int64    // grant instant (ms)
	Value       *float64 // estimated economic value, when the source provides one
	CreatedAt   int64    // record creation timestamp (ms)
}
