package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComputeRecordID computes a deterministic raw-record identifier using SHA256.
// Formula: SHA256(gvkey|report_date|source_line)
// Returns hex-encoded hash (64 characters). The source line keeps the two
// members of a duplicate pair distinct in the append-only raw store.
func ComputeRecordID(gvkey string, reportDate time.Time, sourceLine int) string {
	data := fmt.Sprintf("%s|%s|%d",
		gvkey,
		reportDate.UTC().Format("2006-01-02"),
		sourceLine,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeShockID computes a deterministic shock-event identifier using SHA256.
// Formula: SHA256(series|announced_at_ms)
func ComputeShockID(series string, announcedAtMs int64) string {
	data := fmt.Sprintf("%s|%d", series, announcedAtMs)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputePipelineRunID computes a deterministic pipeline-run identifier.
// Formula: SHA256(started_at_ms|nonce)
func ComputePipelineRunID(startedAtMs int64, nonce string) string {
	data := fmt.Sprintf("%d|%s", startedAtMs, nonce)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
