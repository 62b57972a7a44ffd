package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComputePeriodID computes a deterministic firm-period identifier using SHA256.
// Formula: SHA256(gvkey|report_date)
// Returns hex-encoded hash (64 characters). One period id exists per canonical
// (gvkey, report date) key, so duplicate raw records resolve to the same id.
func ComputePeriodID(gvkey string, reportDate time.Time) string {
	data := fmt.Sprintf("%s|%s", gvkey, reportDate.UTC().Format("2006-01-02"))

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
