package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	reportFile   = "batches.parquet"
	manifestFile = "_manifest.json"
)

// RunRef locates the report of one upload job.
type RunRef struct {
	JobID     string
	StartedAt time.Time
}

// DirPath returns the directory for this run's report.
func (r RunRef) DirPath(prefix string) string {
	d := r.StartedAt.UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%s", prefix, d.Year(), int(d.Month()), d.Day(), r.JobID)
}

// Path returns the storage path for this run's parquet file.
func (r RunRef) Path(prefix string) string {
	return r.DirPath(prefix) + "/" + reportFile
}

// ManifestPath returns the storage path for this run's manifest.
func (r RunRef) ManifestPath(prefix string) string {
	return r.DirPath(prefix) + "/" + manifestFile
}

// Manifest describes the contents of a report directory.
type Manifest struct {
	Job       JobInfo      `json:"job"`
	Report    FileInfo     `json:"report"`
	Quality   QualityInfo  `json:"quality"`
	Producer  ProducerInfo `json:"producer"`
	CreatedAt time.Time    `json:"created_at"`
}

// QualityInfo records the consistency checks run on the batch ledger.
type QualityInfo struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// JobInfo summarises the job the report belongs to.
type JobInfo struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Total     int64     `json:"total"`
	Uploaded  int64     `json:"uploaded"`
	Batches   int       `json:"batches"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

// FileInfo describes the parquet file.
type FileInfo struct {
	File     string `json:"file"`
	Checksum string `json:"checksum"`
	RowCount int64  `json:"row_count"`
	ByteSize int64  `json:"byte_size"`
}

// ProducerInfo describes the software that produced the report.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// MarshalJSON returns the manifest as JSON bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.MarshalIndent((*Alias)(m), "", "  ")
}

// ReportStore abstracts where run reports live.
type ReportStore interface {
	// Exists checks if a report already exists.
	Exists(ctx context.Context, ref RunRef) (bool, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// AtomicStore extends ReportStore with atomic publish capabilities.
type AtomicStore interface {
	ReportStore

	// WriteReportTemp writes parquet bytes to a temporary location.
	// Returns the temp key that can be passed to Finalize.
	WriteReportTemp(ctx context.Context, ref RunRef, parquetBytes []byte) (tempKey string, err error)

	// WriteManifestTemp writes a manifest to a temporary location.
	WriteManifestTemp(ctx context.Context, ref RunRef, manifest *Manifest) (tempKey string, err error)

	// Finalize moves temp files to their canonical location, report first
	// then manifest. If any file fails to finalize, all are rolled back.
	Finalize(ctx context.Context, ref RunRef, tempKeys []string) error

	// Abort removes temporary files without publishing.
	Abort(ctx context.Context, tempKeys []string) error

	// Head returns metadata about a stored object.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ListReports returns the published parquet reports under prefix. Temp
// objects and manifests are skipped.
func ListReports(ctx context.Context, s AtomicStore, prefix string) ([]ObjectInfo, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var out []ObjectInfo
	for _, key := range keys {
		if !strings.HasSuffix(key, "/"+reportFile) {
			continue
		}
		info, err := s.Head(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ETag    string // MD5 for S3/GCS, empty for local
	ModTime time.Time
}

// StorageConfig configures the storage backend.
type StorageConfig struct {
	Backend string // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string

	// GCS or S3 bucket name
	Bucket string

	// S3 (also works for B2, R2, MinIO)
	S3Endpoint string
	S3Region   string

	// Common
	Prefix string // "reports/"
}

// NewAtomicStore creates a storage backend based on configuration.
// All supported backends implement AtomicStore.
func NewAtomicStore(ctx context.Context, cfg StorageConfig) (AtomicStore, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for gcs backend")
		}
		return NewGCSStore(ctx, cfg.Bucket, cfg.Prefix)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for s3 backend")
		}
		return NewS3Store(ctx, cfg.Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
