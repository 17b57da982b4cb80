// Package uploader drives the answered-form to raiser migration in
// sequential, cursor-driven batches.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/raiser-uploader/internal/jobstore"
	"github.com/withObsrvr/raiser-uploader/internal/logging"
	"github.com/withObsrvr/raiser-uploader/internal/metrics"
	"github.com/withObsrvr/raiser-uploader/internal/notify"
	"github.com/withObsrvr/raiser-uploader/internal/raisers"
	"github.com/withObsrvr/raiser-uploader/internal/report"
)

var (
	// ErrAlreadyRunning is returned when a job is started while another runs.
	ErrAlreadyRunning = errors.New("upload already running")

	// ErrNotResumable is returned by Resume when no interrupted job is stored.
	ErrNotResumable = errors.New("no resumable upload job")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller closed")
)

const (
	DefaultBatchSize  = 200
	DefaultBatchDelay = 200 * time.Millisecond

	MsgNothingToUpload = "No records to upload."
	MsgFailed          = "An error occurred while uploading records. Please try again."
)

// BatchAPI is the remote side of the migration.
type BatchAPI interface {
	CountPending(ctx context.Context) (int64, error)
	UploadBatch(ctx context.Context, limit int, cursor raisers.Cursor) (raisers.UploadResponse, error)
}

// Job is a point-in-time view of the current or last upload job. A fresh
// job reports StatusIdle with Running set while its pending count is being
// fetched, and moves to StatusRunning before the first batch.
type Job struct {
	ID         string          `json:"job_id,omitempty"`
	Status     jobstore.Status `json:"status"`
	Running    bool            `json:"running"`
	Total      int64           `json:"total"`
	Uploaded   int64           `json:"uploaded"`
	Cursor     raisers.Cursor  `json:"cursor"`
	Batches    int             `json:"batches"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Options holds the controller's collaborators. Nil fields get defaults.
type Options struct {
	Store      jobstore.Store
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
	Reports    report.Publisher
	Sleeper    Sleeper
	BatchSize  int
	BatchDelay time.Duration
	Now        func() time.Time
}

// Controller runs at most one upload job at a time.
type Controller struct {
	api       BatchAPI
	store     jobstore.Store
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	reports   report.Publisher
	sleeper   Sleeper
	batchSize int
	delay     time.Duration
	now       func() time.Time
	log       *slog.Logger

	mu             sync.Mutex
	job            Job
	running        bool
	abortRequested bool
	teardown       bool
	closed         bool
	stopDelay      context.CancelFunc
	done           chan struct{}
}

// New creates a controller.
func New(api BatchAPI, opts Options) *Controller {
	c := &Controller{
		api:       api,
		store:     opts.Store,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		reports:   opts.Reports,
		sleeper:   opts.Sleeper,
		batchSize: opts.BatchSize,
		delay:     opts.BatchDelay,
		now:       opts.Now,
		log:       logging.Component("uploader"),
		job:       Job{Status: jobstore.StatusIdle},
	}
	if c.store == nil {
		c.store = jobstore.NewMemoryStore()
	}
	if c.notifier == nil {
		c.notifier = notify.NewLogNotifier(slog.Default())
	}
	if c.metrics == nil {
		c.metrics = metrics.NewNop()
	}
	if c.reports == nil {
		c.reports = report.NewNoop()
	}
	if c.sleeper == nil {
		c.sleeper = TimerSleeper{}
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.delay == 0 {
		c.delay = DefaultBatchDelay
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Start begins a fresh job in the background. The job runs until it reaches
// a terminal state or ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	return c.launch(ctx, nil)
}

// Run starts a fresh job and blocks until it ends.
func (c *Controller) Run(ctx context.Context) (Job, error) {
	if err := c.Start(ctx); err != nil {
		return c.Snapshot(), err
	}
	c.Wait()
	return c.Snapshot(), nil
}

// Resume continues the interrupted job recorded in the store from its last
// applied cursor. The pending count is not fetched again.
func (c *Controller) Resume(ctx context.Context) error {
	d, err := c.store.Load(ctx)
	if errors.Is(err, jobstore.ErrNoJob) {
		return ErrNotResumable
	}
	if err != nil {
		c.metrics.IncStoreErrors("load")
		return fmt.Errorf("load descriptor: %w", err)
	}
	if !d.Resumable() {
		return ErrNotResumable
	}
	return c.launch(ctx, d)
}

// AutoStart acts on the stored trigger: an interrupted job is resumed, any
// other pending request starts a fresh job. It reports whether a job began.
func (c *Controller) AutoStart(ctx context.Context) (bool, error) {
	d, err := c.store.Load(ctx)
	if errors.Is(err, jobstore.ErrNoJob) {
		return false, nil
	}
	if err != nil {
		c.metrics.IncStoreErrors("load")
		return false, fmt.Errorf("load descriptor: %w", err)
	}
	if !d.Pending {
		return false, nil
	}

	if d.Resumable() {
		err = c.launch(ctx, d)
	} else {
		err = c.launch(ctx, nil)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Cancel asks the running job to stop. The in-flight batch still completes
// and is applied; no further batch is issued. It reports whether a job was
// running.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.job.Status.Terminal() {
		return false
	}
	c.abortRequested = true
	if c.stopDelay != nil {
		c.stopDelay()
	}
	c.log.Info("cancel requested", "job_id", c.job.ID, "uploaded", c.job.Uploaded)
	return true
}

// Close stops any running job without notifying and waits for it to exit.
// The stored descriptor keeps the job resumable.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.running {
		c.teardown = true
		c.abortRequested = true
		c.stopDelay()
	}
	c.mu.Unlock()

	c.Wait()
	return nil
}

// Wait blocks until the current job, if any, has ended.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Snapshot returns a copy of the current job state.
func (c *Controller) Snapshot() Job {
	c.mu.Lock()
	defer c.mu.Unlock()

	j := c.job
	j.Running = c.running
	return j
}

func (c *Controller) launch(ctx context.Context, from *jobstore.Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.running {
		return ErrAlreadyRunning
	}

	delayCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})

	c.running = true
	c.abortRequested = false
	c.teardown = false
	c.stopDelay = stop
	c.done = done
	c.job = c.newJob(from)

	if logging.CorrelationID(ctx) == "" {
		ctx = logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())
	}
	go c.loop(ctx, delayCtx, from != nil, done)
	return nil
}

func (c *Controller) newJob(from *jobstore.Descriptor) Job {
	if from == nil {
		return Job{
			ID:        uuid.NewString(),
			Status:    jobstore.StatusIdle,
			Cursor:    raisers.StartCursor,
			StartedAt: c.now().UTC(),
		}
	}

	j := Job{
		ID:       from.JobID,
		Status:   jobstore.StatusRunning,
		Total:    from.Total,
		Uploaded: from.Uploaded,
		Cursor:   from.Cursor,
		Batches:  from.Batches,
	}
	if j.Cursor.IsZero() {
		j.Cursor = raisers.StartCursor
	}
	if from.StartedAt != nil {
		j.StartedAt = *from.StartedAt
	} else {
		j.StartedAt = c.now().UTC()
	}
	return j
}

func (c *Controller) release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = false
	if c.stopDelay != nil {
		c.stopDelay()
		c.stopDelay = nil
	}
}

func (c *Controller) update(fn func(j *Job)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.job)
}
