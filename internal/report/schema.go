// Package report publishes a per-job ledger of upload batches as parquet.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// BatchRow is one row of the batches table: a single completed batch.
type BatchRow struct {
	JobID      string    `parquet:"job_id"`
	Seq        int32     `parquet:"seq"`
	CursorFrom string    `parquet:"cursor_from"`
	CursorTo   string    `parquet:"cursor_to"`
	Uploaded   int64     `parquet:"uploaded"`
	Cumulative int64     `parquet:"cumulative"`
	Total      int64     `parquet:"total"`
	DurationMs int64     `parquet:"duration_ms"`
	Completed  time.Time `parquet:"completed_at,timestamp(millisecond)"`
}

// TableName returns the canonical table name.
func (BatchRow) TableName() string {
	return "raiser_upload_batches"
}

// SchemaVersion is bumped on breaking changes to BatchRow.
const SchemaVersion = "1.0.0"

// Run is everything needed to publish the report of one finished job.
type Run struct {
	JobID     string
	Status    string
	Total     int64
	Uploaded  int64
	StartedAt time.Time
	Error     string
	Batches   []BatchRow
}

// ComputeChecksum computes a SHA256 checksum for the given data.
func ComputeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// VerifyChecksum verifies that data matches the expected checksum.
func VerifyChecksum(data []byte, expected string) bool {
	return ComputeChecksum(data) == expected
}
