// Package jobstore persists the upload job descriptor: the trigger flag that
// asks for a run plus enough progress to resume one after a restart.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/withObsrvr/raiser-uploader/internal/raisers"
)

var (
	// ErrNoJob is returned when no descriptor has been stored.
	ErrNoJob = errors.New("no job descriptor found")
)

// Status is the lifecycle state of an upload job.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further batches may follow.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusFailed
}

// Descriptor is the persisted form of an upload job.
type Descriptor struct {
	JobID      string         `json:"job_id,omitempty"`
	Pending    bool           `json:"pending"`
	Status     Status         `json:"status"`
	Total      int64          `json:"total"`
	Uploaded   int64          `json:"uploaded"`
	Cursor     raisers.Cursor `json:"cursor"`
	Batches    int            `json:"batches"`
	Error      string         `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Resumable reports whether the descriptor describes a run that was
// interrupted mid-way and can continue from its cursor.
func (d *Descriptor) Resumable() bool {
	return d != nil && d.Pending && d.Status == StatusRunning && d.JobID != "" && d.Total > 0
}

// Store handles descriptor persistence and retrieval.
type Store interface {
	// Load reads the current descriptor.
	Load(ctx context.Context) (*Descriptor, error)

	// Save persists the descriptor.
	Save(ctx context.Context, d *Descriptor) error

	// Clear removes the descriptor.
	Clear(ctx context.Context) error

	// Close releases any resources.
	Close() error
}

// Config configures the job store.
type Config struct {
	Backend     string // "memory" | "file" | "blob" | "postgres" | "redis"
	Name        string // descriptor name within the backend
	Dir         string
	BucketURL   string
	PostgresDSN string
	RedisURL    string
}

// New creates a store based on configuration.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Name == "" {
		cfg.Name = "ktech-raisers"
	}

	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("Dir required for file backend")
		}
		return NewFileStore(cfg.Dir, cfg.Name)
	case "blob":
		if cfg.BucketURL == "" {
			return nil, fmt.Errorf("BucketURL required for blob backend")
		}
		return OpenBlobStore(ctx, cfg.BucketURL, cfg.Name)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("PostgresDSN required for postgres backend")
		}
		return NewPostgresStore(ctx, cfg.PostgresDSN, cfg.Name)
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("RedisURL required for redis backend")
		}
		return NewRedisStore(ctx, cfg.RedisURL, cfg.Name)
	default:
		return nil, fmt.Errorf("unknown jobstore backend: %s", cfg.Backend)
	}
}

// Trigger marks a run as pending. A pending running or interrupted run is
// returned as stored: the controller owns that descriptor and writing it
// back could restore older progress over a newer save. An unflagged
// running descriptor keeps its progress; anything else is replaced by a
// fresh request.
func Trigger(ctx context.Context, s Store) (*Descriptor, error) {
	d, err := s.Load(ctx)
	if err != nil && !errors.Is(err, ErrNoJob) {
		return nil, fmt.Errorf("load descriptor: %w", err)
	}
	if d != nil && d.Status == StatusRunning && d.Pending {
		return d, nil
	}

	if d == nil || d.Status != StatusRunning {
		d = &Descriptor{Status: StatusIdle}
	}
	d.Pending = true
	d.UpdatedAt = time.Now().UTC()

	if err := s.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("save descriptor: %w", err)
	}
	return d, nil
}

// Untrigger clears the pending flag. An interrupted run is marked cancelled
// so it is not resumed later; its recorded progress is kept.
func Untrigger(ctx context.Context, s Store) error {
	d, err := s.Load(ctx)
	if errors.Is(err, ErrNoJob) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load descriptor: %w", err)
	}

	now := time.Now().UTC()
	d.Pending = false
	d.UpdatedAt = now
	if d.Status == StatusRunning {
		d.Status = StatusCancelled
		d.FinishedAt = &now
	}
	return s.Save(ctx, d)
}
