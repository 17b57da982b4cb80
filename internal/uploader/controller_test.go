package uploader

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/raiser-uploader/internal/jobstore"
	"github.com/withObsrvr/raiser-uploader/internal/notify"
	"github.com/withObsrvr/raiser-uploader/internal/raisers"
	"github.com/withObsrvr/raiser-uploader/internal/report"
)

// fakeAPI serves count records in pages of at most limit. Cursors are
// "101", "102", ... in call order.
type fakeAPI struct {
	mu         sync.Mutex
	count      int64
	countErr   error
	remaining  int64
	served     int
	countCalls int
	cursors    []raisers.Cursor

	// script overrides the response of the n-th batch call (1-based).
	script map[int]raisers.UploadResponse
	// onBatch runs before the n-th batch call is answered; a non-nil error
	// is returned to the controller.
	onBatch func(ctx context.Context, n int) error
	// onCount runs before the count is answered.
	onCount func()
}

func (f *fakeAPI) CountPending(_ context.Context) (int64, error) {
	if f.onCount != nil {
		f.onCount()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.countCalls++
	if f.countErr != nil {
		return 0, f.countErr
	}
	f.remaining = f.count
	return f.count, nil
}

func (f *fakeAPI) UploadBatch(ctx context.Context, limit int, cursor raisers.Cursor) (raisers.UploadResponse, error) {
	f.mu.Lock()
	f.cursors = append(f.cursors, cursor)
	n := len(f.cursors)
	hook := f.onBatch
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, n); err != nil {
			return raisers.UploadResponse{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if resp, ok := f.script[n]; ok {
		return resp, nil
	}

	up := min(int64(limit), f.remaining)
	f.remaining -= up
	if up == 0 {
		return raisers.UploadResponse{Success: true, UploadedCount: 0, LastID: cursor}, nil
	}
	f.served++
	return raisers.UploadResponse{
		Success:       true,
		UploadedCount: up,
		LastID:        raisers.Cursor(strconv.Itoa(100 + f.served)),
	}, nil
}

func (f *fakeAPI) batchCalls() []raisers.Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]raisers.Cursor(nil), f.cursors...)
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	fn     func(ctx context.Context) error
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	fn := s.fn
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return ctx.Err()
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) all() []notify.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notice(nil), n.notices...)
}

type recordingPublisher struct {
	mu   sync.Mutex
	runs []report.Run
}

func (p *recordingPublisher) Publish(_ context.Context, run report.Run) (*report.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, run)
	return &report.Result{Rows: len(run.Batches)}, nil
}

type harness struct {
	api      *fakeAPI
	store    *jobstore.MemoryStore
	notifier *recordingNotifier
	reports  *recordingPublisher
	sleeper  *recordingSleeper
	ctrl     *Controller
}

func newHarness(t *testing.T, total int64) *harness {
	t.Helper()
	h := &harness{
		api:      &fakeAPI{count: total},
		store:    jobstore.NewMemoryStore(),
		notifier: &recordingNotifier{},
		reports:  &recordingPublisher{},
		sleeper:  &recordingSleeper{},
	}
	h.ctrl = New(h.api, Options{
		Store:      h.store,
		Notifier:   h.notifier,
		Reports:    h.reports,
		Sleeper:    h.sleeper,
		BatchSize:  200,
		BatchDelay: 200 * time.Millisecond,
	})
	t.Cleanup(func() { h.ctrl.Close() })
	return h
}

func (h *harness) descriptor(t *testing.T) *jobstore.Descriptor {
	t.Helper()
	d, err := h.store.Load(context.Background())
	require.NoError(t, err)
	return d
}

func cumulative(run report.Run) []int64 {
	out := make([]int64, 0, len(run.Batches))
	for _, r := range run.Batches {
		out = append(out, r.Cumulative)
	}
	return out
}

func TestRun450InBatchesOf200(t *testing.T) {
	h := newHarness(t, 450)

	job, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, jobstore.StatusCompleted, job.Status)
	assert.False(t, job.Running)
	assert.EqualValues(t, 450, job.Total)
	assert.EqualValues(t, 450, job.Uploaded)
	assert.Equal(t, 3, job.Batches)
	assert.Equal(t, raisers.Cursor("103"), job.Cursor)

	assert.Equal(t, []raisers.Cursor{"0", "101", "102"}, h.api.batchCalls())
	assert.Equal(t, 1, h.api.countCalls)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 200 * time.Millisecond}, h.sleeper.delays)

	require.Len(t, h.reports.runs, 1)
	assert.Equal(t, []int64{200, 400, 450}, cumulative(h.reports.runs[0]))
	assert.Equal(t, "101", h.reports.runs[0].Batches[1].CursorFrom)

	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.KindSuccess, notices[0].Kind)
	assert.Contains(t, notices[0].Message, "450")

	d := h.descriptor(t)
	assert.False(t, d.Pending)
	assert.Equal(t, jobstore.StatusCompleted, d.Status)
	assert.Equal(t, job.ID, d.JobID)
	assert.NotNil(t, d.FinishedAt)
}

func TestRunZeroCount(t *testing.T) {
	h := newHarness(t, 0)

	job, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, jobstore.StatusCompleted, job.Status)
	assert.Equal(t, 1, h.api.countCalls)
	assert.Empty(t, h.api.batchCalls())

	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.KindSuccess, notices[0].Kind)
	assert.Equal(t, MsgNothingToUpload, notices[0].Message)
}

func TestRunCountFetchFailure(t *testing.T) {
	h := newHarness(t, 450)
	h.api.countErr = errors.New("connection refused")

	job, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, jobstore.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "connection refused")
	assert.Empty(t, h.api.batchCalls())

	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.KindError, notices[0].Kind)
	assert.Equal(t, MsgFailed, notices[0].Message)

	d := h.descriptor(t)
	assert.False(t, d.Pending)
	assert.Equal(t, jobstore.StatusFailed, d.Status)
}

func TestBatchFailurePreservesProgress(t *testing.T) {
	h := newHarness(t, 450)
	h.api.onBatch = func(_ context.Context, n int) error {
		if n == 2 {
			return &raisers.StatusError{Method: "POST", Path: "/x", Code: 500}
		}
		return nil
	}

	job, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, jobstore.StatusFailed, job.Status)
	assert.EqualValues(t, 200, job.Uploaded)
	assert.Len(t, h.api.batchCalls(), 2, "failed batch must not be retried")

	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.KindError, notices[0].Kind)

	d := h.descriptor(t)
	assert.EqualValues(t, 200, d.Uploaded)
	assert.Equal(t, raisers.Cursor("101"), d.Cursor)
	assert.NotEmpty(t, d.Error)
}

func TestUnsuccessfulBatchFails(t *testing.T) {
	h := newHarness(t, 450)
	h.api.onBatch = func(_ context.Context, n int) error {
		return raisers.ErrUnsuccessful
	}

	job, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusFailed, job.Status)
	assert.Zero(t, job.Uploaded)
	assert.Len(t, h.api.batchCalls(), 1)
}

func TestCancelMidFlightAppliesResult(t *testing.T) {
	h := newHarness(t, 450)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.onBatch = func(_ context.Context, n int) error {
		if n == 1 {
			close(entered)
			<-release
		}
		return nil
	}

	require.NoError(t, h.ctrl.Start(context.Background()))
	<-entered
	assert.True(t, h.ctrl.Snapshot().Running)
	assert.True(t, h.ctrl.Cancel())
	close(release)
	h.ctrl.Wait()

	job := h.ctrl.Snapshot()
	assert.Equal(t, jobstore.StatusCancelled, job.Status)
	assert.EqualValues(t, 200, job.Uploaded)
	assert.Equal(t, raisers.Cursor("101"), job.Cursor)
	assert.Len(t, h.api.batchCalls(), 1)
	assert.Empty(t, h.sleeper.delays)

	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.KindInfo, notices[0].Kind)

	d := h.descriptor(t)
	assert.False(t, d.Pending)
	assert.Equal(t, jobstore.StatusCancelled, d.Status)
	assert.False(t, d.Resumable())
}

func TestCancelDuringDelay(t *testing.T) {
	h := newHarness(t, 450)
	h.sleeper.fn = func(ctx context.Context) error {
		h.ctrl.Cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	job, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, jobstore.StatusCancelled, job.Status)
	assert.EqualValues(t, 200, job.Uploaded)
	assert.Len(t, h.api.batchCalls(), 1)
}

func TestCancelWhenIdle(t *testing.T) {
	h := newHarness(t, 450)
	assert.False(t, h.ctrl.Cancel())
}

func TestRestartIsFresh(t *testing.T) {
	h := newHarness(t, 100)

	first, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)
	second, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.EqualValues(t, 100, second.Uploaded)
	assert.Equal(t, 1, second.Batches)
	assert.Equal(t, 2, h.api.countCalls)
	assert.Equal(t, []raisers.Cursor{"0", "0"}, h.api.batchCalls())
}

func TestBatchCallCount(t *testing.T) {
	tests := []struct {
		total int64
		calls int
	}{
		{1, 1},
		{199, 1},
		{200, 1},
		{201, 2},
		{450, 3},
		{1000, 5},
	}

	for _, tt := range tests {
		t.Run(strconv.FormatInt(tt.total, 10), func(t *testing.T) {
			h := newHarness(t, tt.total)

			job, err := h.ctrl.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, jobstore.StatusCompleted, job.Status)
			assert.EqualValues(t, tt.total, job.Uploaded)
			assert.Len(t, h.api.batchCalls(), tt.calls)
		})
	}
}

func TestZeroUploadedBatchCompletes(t *testing.T) {
	h := newHarness(t, 450)
	h.api.script = map[int]raisers.UploadResponse{
		2: {Success: true, UploadedCount: 0},
	}

	job, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, jobstore.StatusCompleted, job.Status)
	assert.EqualValues(t, 200, job.Uploaded)
	assert.Equal(t, raisers.Cursor("101"), job.Cursor, "empty last_id keeps the cursor")
	assert.Len(t, h.api.batchCalls(), 2)
}

func TestUploadedNeverExceedsTotal(t *testing.T) {
	h := newHarness(t, 100)
	h.api.script = map[int]raisers.UploadResponse{
		1: {Success: true, UploadedCount: 150, LastID: "250"},
	}

	job, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 100, job.Uploaded)
	assert.Len(t, h.api.batchCalls(), 1)
}

func TestConcurrentStartRejected(t *testing.T) {
	h := newHarness(t, 450)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.onBatch = func(_ context.Context, n int) error {
		if n == 1 {
			close(entered)
			<-release
		}
		return nil
	}

	require.NoError(t, h.ctrl.Start(context.Background()))
	<-entered

	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrAlreadyRunning)
	assert.ErrorIs(t, h.ctrl.Resume(context.Background()), ErrAlreadyRunning)

	h.ctrl.Cancel()
	close(release)
	h.ctrl.Wait()
	assert.Equal(t, 1, h.api.countCalls)
}

func TestResumeFromDescriptor(t *testing.T) {
	h := newHarness(t, 450)
	h.api.remaining = 250
	h.api.served = 1

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, h.store.Save(context.Background(), &jobstore.Descriptor{
		JobID:     "job-resume",
		Pending:   true,
		Status:    jobstore.StatusRunning,
		Total:     450,
		Uploaded:  200,
		Cursor:    "101",
		Batches:   1,
		StartedAt: &started,
	}))

	require.NoError(t, h.ctrl.Resume(context.Background()))
	h.ctrl.Wait()

	job := h.ctrl.Snapshot()
	assert.Equal(t, "job-resume", job.ID)
	assert.Equal(t, jobstore.StatusCompleted, job.Status)
	assert.EqualValues(t, 450, job.Uploaded)
	assert.Equal(t, 3, job.Batches)
	assert.Zero(t, h.api.countCalls, "resume must not refetch the count")
	assert.Equal(t, []raisers.Cursor{"101", "102"}, h.api.batchCalls())

	require.Len(t, h.reports.runs, 1)
	assert.EqualValues(t, 3, h.reports.runs[0].Batches[1].Seq)
	assert.True(t, started.Equal(h.reports.runs[0].StartedAt))
}

func TestResumeWithoutDescriptor(t *testing.T) {
	h := newHarness(t, 450)
	assert.ErrorIs(t, h.ctrl.Resume(context.Background()), ErrNotResumable)

	_, err := jobstore.Trigger(context.Background(), h.store)
	require.NoError(t, err)
	assert.ErrorIs(t, h.ctrl.Resume(context.Background()), ErrNotResumable)
}

func TestAutoStart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 100)

	started, err := h.ctrl.AutoStart(ctx)
	require.NoError(t, err)
	assert.False(t, started, "no descriptor")

	_, err = jobstore.Trigger(ctx, h.store)
	require.NoError(t, err)

	started, err = h.ctrl.AutoStart(ctx)
	require.NoError(t, err)
	assert.True(t, started)
	h.ctrl.Wait()

	assert.Equal(t, jobstore.StatusCompleted, h.ctrl.Snapshot().Status)
	assert.Equal(t, 1, h.api.countCalls)
	assert.False(t, h.descriptor(t).Pending, "trigger cleared when the job ends")

	started, err = h.ctrl.AutoStart(ctx)
	require.NoError(t, err)
	assert.False(t, started, "trigger already consumed")
}

func TestShutdownLeavesResumableDescriptor(t *testing.T) {
	h := newHarness(t, 450)
	ctx, cancel := context.WithCancel(context.Background())
	h.api.onBatch = func(ctx context.Context, n int) error {
		if n == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	require.NoError(t, h.ctrl.Start(ctx))
	h.ctrl.Wait()

	job := h.ctrl.Snapshot()
	assert.Equal(t, jobstore.StatusCancelled, job.Status)
	assert.EqualValues(t, 200, job.Uploaded)
	assert.Empty(t, h.notifier.all(), "shutdown is not reported to the user")
	assert.Empty(t, h.reports.runs)

	d := h.descriptor(t)
	assert.True(t, d.Pending)
	assert.Equal(t, jobstore.StatusRunning, d.Status)
	assert.Equal(t, raisers.Cursor("101"), d.Cursor)
	require.True(t, d.Resumable())

	// A new process picks the job up where it stopped.
	h.api.onBatch = nil
	next := New(h.api, Options{Store: h.store, Notifier: h.notifier, Sleeper: h.sleeper})
	defer next.Close()

	started, err := next.AutoStart(context.Background())
	require.NoError(t, err)
	require.True(t, started)
	next.Wait()

	resumed := next.Snapshot()
	assert.Equal(t, job.ID, resumed.ID)
	assert.Equal(t, jobstore.StatusCompleted, resumed.Status)
	assert.EqualValues(t, 450, resumed.Uploaded)
	assert.Equal(t, 1, h.api.countCalls)
}

func TestCloseSuppressesNotice(t *testing.T) {
	h := newHarness(t, 450)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.onBatch = func(_ context.Context, n int) error {
		if n == 1 {
			close(entered)
			<-release
		}
		return nil
	}

	require.NoError(t, h.ctrl.Start(context.Background()))
	<-entered

	closed := make(chan error, 1)
	go func() { closed <- h.ctrl.Close() }()

	require.Eventually(t, func() bool {
		h.ctrl.mu.Lock()
		defer h.ctrl.mu.Unlock()
		return h.ctrl.teardown
	}, time.Second, time.Millisecond)
	close(release)
	require.NoError(t, <-closed)

	assert.Empty(t, h.notifier.all())
	assert.Len(t, h.api.batchCalls(), 1)
	assert.True(t, h.descriptor(t).Resumable())
	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrClosed)
}

func TestUploadedIsMonotonic(t *testing.T) {
	h := newHarness(t, 1000)
	h.api.script = map[int]raisers.UploadResponse{
		2: {Success: true, UploadedCount: 50, LastID: "150"},
	}

	_, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, h.reports.runs, 1)
	var prev int64
	for _, row := range h.reports.runs[0].Batches {
		assert.GreaterOrEqual(t, row.Cumulative, prev)
		assert.LessOrEqual(t, row.Cumulative, int64(1000))
		prev = row.Cumulative
	}
}

func TestCloseDuringFailingBatch(t *testing.T) {
	h := newHarness(t, 450)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.onBatch = func(_ context.Context, n int) error {
		if n == 2 {
			close(entered)
			<-release
			return errors.New("connection reset")
		}
		return nil
	}

	require.NoError(t, h.ctrl.Start(context.Background()))
	<-entered

	closed := make(chan error, 1)
	go func() { closed <- h.ctrl.Close() }()

	require.Eventually(t, func() bool {
		h.ctrl.mu.Lock()
		defer h.ctrl.mu.Unlock()
		return h.ctrl.teardown
	}, time.Second, time.Millisecond)
	close(release)
	require.NoError(t, <-closed)

	job := h.ctrl.Snapshot()
	assert.Equal(t, jobstore.StatusCancelled, job.Status)
	assert.Empty(t, job.Error)
	assert.Empty(t, h.notifier.all())
	assert.Empty(t, h.reports.runs)

	d := h.descriptor(t)
	assert.True(t, d.Pending)
	assert.Equal(t, raisers.Cursor("101"), d.Cursor)
	assert.True(t, d.Resumable())
}

func TestResumeAtTargetCompletesWithoutBatch(t *testing.T) {
	h := newHarness(t, 450)
	require.NoError(t, h.store.Save(context.Background(), &jobstore.Descriptor{
		JobID:    "job-done",
		Pending:  true,
		Status:   jobstore.StatusRunning,
		Total:    450,
		Uploaded: 450,
		Cursor:   "103",
		Batches:  3,
	}))

	require.NoError(t, h.ctrl.Resume(context.Background()))
	h.ctrl.Wait()

	job := h.ctrl.Snapshot()
	assert.Equal(t, jobstore.StatusCompleted, job.Status)
	assert.Equal(t, 3, job.Batches)
	assert.Empty(t, h.api.batchCalls())
	assert.Zero(t, h.api.countCalls)

	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, "Successfully uploaded 450 records.", notices[0].Message)

	d := h.descriptor(t)
	assert.False(t, d.Pending)
	assert.Equal(t, jobstore.StatusCompleted, d.Status)
	assert.Equal(t, raisers.Cursor("103"), d.Cursor)
}

// cancellingNotifier calls Cancel while the job is being finished.
type cancellingNotifier struct {
	ctrl      *Controller
	cancelled []bool
}

func (n *cancellingNotifier) Notify(context.Context, notify.Notice) error {
	n.cancelled = append(n.cancelled, n.ctrl.Cancel())
	return nil
}

func (n *cancellingNotifier) Close() error { return nil }

func TestCancelRejectedWhileFinishing(t *testing.T) {
	api := &fakeAPI{count: 100}
	notifier := &cancellingNotifier{}
	ctrl := New(api, Options{Notifier: notifier, Sleeper: &recordingSleeper{}})
	notifier.ctrl = ctrl
	defer ctrl.Close()

	job, err := ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, jobstore.StatusCompleted, job.Status)
	assert.Equal(t, []bool{false}, notifier.cancelled)
}

func TestUntriggerFromAnotherWriterStopsJob(t *testing.T) {
	h := newHarness(t, 1000)
	h.api.onBatch = func(ctx context.Context, n int) error {
		if n == 2 {
			return jobstore.Untrigger(ctx, h.store)
		}
		return nil
	}

	_, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)

	job := h.ctrl.Snapshot()
	assert.Equal(t, jobstore.StatusCancelled, job.Status)
	assert.EqualValues(t, 400, job.Uploaded)
	assert.Len(t, h.api.batchCalls(), 2)

	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.KindInfo, notices[0].Kind)

	d := h.descriptor(t)
	assert.False(t, d.Pending)
	assert.Equal(t, jobstore.StatusCancelled, d.Status)
	assert.EqualValues(t, 400, d.Uploaded)
	assert.Equal(t, raisers.Cursor("102"), d.Cursor)
	assert.False(t, d.Resumable())
}

func TestSnapshotWhileCounting(t *testing.T) {
	h := newHarness(t, 0)
	counting := make(chan Job, 1)
	h.api.onCount = func() { counting <- h.ctrl.Snapshot() }

	_, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)

	job := <-counting
	assert.Equal(t, jobstore.StatusIdle, job.Status)
	assert.True(t, job.Running)
	assert.NotEmpty(t, job.ID)

	final := h.ctrl.Snapshot()
	assert.Equal(t, jobstore.StatusCompleted, final.Status)
	assert.False(t, final.Running)
}

func TestTriggerDuringJobKeepsCursor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 450)
	h.api.onBatch = func(ctx context.Context, n int) error {
		if n == 2 {
			_, err := jobstore.Trigger(ctx, h.store)
			return err
		}
		return nil
	}

	_, err := h.ctrl.Run(ctx)
	require.NoError(t, err)

	d := h.descriptor(t)
	assert.Equal(t, jobstore.StatusCompleted, d.Status)
	assert.False(t, d.Pending)
	assert.Equal(t, raisers.Cursor("103"), d.Cursor)

	started, err := h.ctrl.AutoStart(ctx)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Len(t, h.api.batchCalls(), 3)
}
