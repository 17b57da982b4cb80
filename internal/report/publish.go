package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/withObsrvr/raiser-uploader/internal/storage"
)

// ErrReportExists is returned when a report for the job is already published.
var ErrReportExists = errors.New("report already exists")

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// Publisher is implemented by anything that can persist a finished run.
type Publisher interface {
	Publish(ctx context.Context, run Run) (*Result, error)
}

// Result describes a published report.
type Result struct {
	ReportURI   string
	ManifestURI string
	Checksum    string
	ByteSize    int64
	Rows        int
}

// Writer publishes reports to an atomic store.
type Writer struct {
	store  storage.AtomicStore
	prefix string
	log    *slog.Logger
}

// NewWriter creates a report writer. prefix must match the store's prefix
// so that returned URIs point at the published objects.
func NewWriter(store storage.AtomicStore, prefix string) *Writer {
	return &Writer{
		store:  store,
		prefix: prefix,
		log:    slog.With("component", "report"),
	}
}

// Publish encodes the run's batches and publishes them with a manifest.
//
// Order of operations:
//  1. Skip if the job already has a published report
//  2. Validate the ledger and encode parquet in memory
//  3. Write report and manifest to temp keys
//  4. Finalize (report first, manifest last)
func (w *Writer) Publish(ctx context.Context, run Run) (*Result, error) {
	start := time.Now()
	ref := storage.RunRef{JobID: run.JobID, StartedAt: run.StartedAt}

	exists, err := w.store.Exists(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("check existing report: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("job %s: %w", run.JobID, ErrReportExists)
	}

	quality := Validate(run)
	if !quality.Passed {
		w.log.Warn("batch ledger failed validation", "job_id", run.JobID, "errors", quality.String())
	}

	data, err := Encode(run.Batches)
	if err != nil {
		return nil, fmt.Errorf("encode parquet: %w", err)
	}
	checksum := ComputeChecksum(data)

	manifest := buildManifest(run, quality, checksum, len(data))

	tempReport, err := w.store.WriteReportTemp(ctx, ref, data)
	if err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	tempManifest, err := w.store.WriteManifestTemp(ctx, ref, manifest)
	if err != nil {
		w.store.Abort(ctx, []string{tempReport})
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := w.store.Finalize(ctx, ref, []string{tempReport, tempManifest}); err != nil {
		return nil, fmt.Errorf("finalize report: %w", err)
	}

	res := &Result{
		ReportURI:   w.store.URI(ref.Path(w.prefix)),
		ManifestURI: w.store.URI(ref.ManifestPath(w.prefix)),
		Checksum:    checksum,
		ByteSize:    int64(len(data)),
		Rows:        len(run.Batches),
	}

	w.log.Info("published run report",
		"job_id", run.JobID,
		"uri", res.ReportURI,
		"rows", res.Rows,
		"bytes", res.ByteSize,
		"duration", time.Since(start).String(),
	)
	return res, nil
}

// Encode writes rows as a snappy-compressed parquet file.
func Encode(rows []BatchRow) ([]byte, error) {
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows, parquet.Compression(&parquet.Snappy)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads rows back from parquet bytes.
func Decode(data []byte) ([]BatchRow, error) {
	return parquet.Read[BatchRow](bytes.NewReader(data), int64(len(data)))
}

func buildManifest(run Run, quality ValidationResult, checksum string, size int) *storage.Manifest {
	return &storage.Manifest{
		Job: storage.JobInfo{
			JobID:     run.JobID,
			Status:    run.Status,
			Total:     run.Total,
			Uploaded:  run.Uploaded,
			Batches:   len(run.Batches),
			StartedAt: run.StartedAt,
			Error:     run.Error,
		},
		Report: storage.FileInfo{
			File:     "batches.parquet",
			Checksum: checksum,
			RowCount: int64(len(run.Batches)),
			ByteSize: int64(size),
		},
		Quality: storage.QualityInfo{
			Passed:   quality.Passed,
			Errors:   quality.Errors,
			Warnings: quality.Warnings,
		},
		Producer: storage.ProducerInfo{
			Name:    "raiser-uploader",
			Version: Version,
			GitSHA:  GitSHA,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// noopPublisher discards reports.
type noopPublisher struct{}

// NewNoop returns a publisher for when reports are disabled.
func NewNoop() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(_ context.Context, run Run) (*Result, error) {
	return &Result{Rows: len(run.Batches)}, nil
}
