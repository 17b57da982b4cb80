package uploader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/withObsrvr/raiser-uploader/internal/jobstore"
	"github.com/withObsrvr/raiser-uploader/internal/logging"
	"github.com/withObsrvr/raiser-uploader/internal/notify"
	"github.com/withObsrvr/raiser-uploader/internal/raisers"
	"github.com/withObsrvr/raiser-uploader/internal/report"
)

// loop runs one job to its end. Requests use ctx so that only a shutdown
// interrupts them; delayCtx is additionally cancelled by Cancel and Close.
func (c *Controller) loop(ctx, delayCtx context.Context, resumed bool, done chan struct{}) {
	defer close(done)
	defer c.release()

	job := c.Snapshot()
	log := logging.JobLogger(ctx, job.ID)
	c.metrics.JobStarted()

	var rows []report.BatchRow

	if resumed {
		log.Info("resuming upload",
			"total", job.Total,
			"uploaded", job.Uploaded,
			"cursor", job.Cursor.String(),
			"batches", job.Batches,
		)
		c.metrics.SetProgress(job.Uploaded, job.Total)
		c.persist(ctx, log)
		if c.stopping(ctx, log, rows) {
			return
		}
		if job.Uploaded >= job.Total {
			msg := fmt.Sprintf("Successfully uploaded %d records.", job.Uploaded)
			c.finish(ctx, log, jobstore.StatusCompleted, notify.KindSuccess, msg, rows)
			return
		}
	} else {
		total, err := c.api.CountPending(ctx)
		if err != nil {
			c.metrics.IncAPIErrors("count")
			c.fail(ctx, log, rows, fmt.Errorf("count pending: %w", err))
			return
		}
		c.update(func(j *Job) { j.Total = total })
		c.metrics.SetProgress(0, total)
		log.Info("fetched pending count", "total", total, "batch_size", c.batchSize)

		if c.stopping(ctx, log, rows) {
			return
		}
		if total == 0 {
			c.finish(ctx, log, jobstore.StatusCompleted, notify.KindSuccess, MsgNothingToUpload, rows)
			return
		}

		c.update(func(j *Job) { j.Status = jobstore.StatusRunning })
		c.persist(ctx, log)
	}

	for {
		cursor := c.Snapshot().Cursor
		started := c.now()

		resp, err := c.api.UploadBatch(ctx, c.batchSize, cursor)
		if err != nil {
			c.metrics.IncBatchFailed()
			c.metrics.IncAPIErrors("upload")
			c.fail(ctx, log, rows, fmt.Errorf("upload batch after cursor %s: %w", cursor, err))
			return
		}
		elapsed := c.now().Sub(started)

		job := c.apply(resp)
		rows = append(rows, report.BatchRow{
			JobID:      job.ID,
			Seq:        int32(job.Batches),
			CursorFrom: cursor.String(),
			CursorTo:   job.Cursor.String(),
			Uploaded:   resp.UploadedCount,
			Cumulative: job.Uploaded,
			Total:      job.Total,
			DurationMs: elapsed.Milliseconds(),
			Completed:  c.now().UTC(),
		})
		c.metrics.ObserveBatch(elapsed.Seconds(), resp.UploadedCount)
		c.metrics.SetProgress(job.Uploaded, job.Total)
		c.persist(ctx, log)

		log.Debug("batch uploaded",
			"batch", job.Batches,
			"uploaded", resp.UploadedCount,
			"progress", job.Uploaded,
			"total", job.Total,
			"cursor", job.Cursor.String(),
			"duration", elapsed.String(),
		)

		if c.stopping(ctx, log, rows) {
			return
		}
		if resp.UploadedCount == 0 || job.Uploaded >= job.Total {
			msg := fmt.Sprintf("Successfully uploaded %d records.", job.Uploaded)
			c.finish(ctx, log, jobstore.StatusCompleted, notify.KindSuccess, msg, rows)
			return
		}

		// Cancel and Close interrupt the delay; stopping decides what follows.
		_ = c.sleeper.Sleep(delayCtx, c.delay)

		if c.stopping(ctx, log, rows) {
			return
		}
	}
}

// apply folds a batch response into the job. Uploaded never exceeds total
// and the cursor only advances to a server-supplied value.
func (c *Controller) apply(resp raisers.UploadResponse) Job {
	c.mu.Lock()
	defer c.mu.Unlock()

	j := &c.job
	j.Uploaded += resp.UploadedCount
	if j.Uploaded > j.Total {
		j.Uploaded = j.Total
	}
	if !resp.LastID.IsZero() {
		j.Cursor = resp.LastID
	}
	j.Batches++
	return *j
}

// stopping ends the job if a shutdown, teardown or user abort is pending.
func (c *Controller) stopping(ctx context.Context, log *slog.Logger, rows []report.BatchRow) bool {
	c.mu.Lock()
	abort, teardown := c.abortRequested, c.teardown
	c.mu.Unlock()

	switch {
	case ctx.Err() != nil || teardown:
		c.interrupt(log)
		return true
	case abort:
		job := c.Snapshot()
		msg := fmt.Sprintf("Upload cancelled after %d of %d records.", job.Uploaded, job.Total)
		c.finish(ctx, log, jobstore.StatusCancelled, notify.KindInfo, msg, rows)
		return true
	}
	return false
}

// fail ends the job as failed unless a shutdown or Close is under way, in
// which case the error is the interruption and the job stays resumable.
func (c *Controller) fail(ctx context.Context, log *slog.Logger, rows []report.BatchRow, err error) {
	c.mu.Lock()
	teardown := c.teardown
	c.mu.Unlock()

	if ctx.Err() != nil || teardown {
		log.Debug("batch error during shutdown", "error", err)
		c.interrupt(log)
		return
	}

	log.Error("upload failed", "error", err)
	c.update(func(j *Job) { j.Error = err.Error() })
	c.finish(ctx, log, jobstore.StatusFailed, notify.KindError, MsgFailed, rows)
}

// interrupt ends the in-memory job without touching the stored descriptor,
// which still records the last applied batch as pending and running.
func (c *Controller) interrupt(log *slog.Logger) {
	c.update(func(j *Job) {
		j.Status = jobstore.StatusCancelled
		j.FinishedAt = c.now().UTC()
	})
	c.metrics.JobFinished("interrupted")

	job := c.Snapshot()
	log.Warn("upload interrupted, job left resumable",
		"uploaded", job.Uploaded,
		"total", job.Total,
		"cursor", job.Cursor.String(),
	)
}

// finish moves the job to a terminal status, clears the trigger and
// reports the outcome.
func (c *Controller) finish(ctx context.Context, log *slog.Logger, status jobstore.Status, kind notify.Kind, msg string, rows []report.BatchRow) {
	c.update(func(j *Job) {
		j.Status = status
		j.FinishedAt = c.now().UTC()
	})
	job := c.Snapshot()

	c.save(ctx, log, c.descriptor(job, false))
	c.metrics.JobFinished(string(status))

	log.Info("upload finished",
		"status", status,
		"uploaded", job.Uploaded,
		"total", job.Total,
		"batches", job.Batches,
		"duration", job.FinishedAt.Sub(job.StartedAt).String(),
	)

	notice := notify.Notice{
		Kind:     kind,
		Message:  msg,
		JobID:    job.ID,
		Status:   string(status),
		Uploaded: job.Uploaded,
		Total:    job.Total,
		At:       job.FinishedAt,
	}
	if err := c.notifier.Notify(ctx, notice); err != nil {
		c.metrics.NotificationErrors.Inc()
		log.Warn("notification failed", "error", err)
	}

	run := report.Run{
		JobID:     job.ID,
		Status:    string(status),
		Total:     job.Total,
		Uploaded:  job.Uploaded,
		StartedAt: job.StartedAt,
		Error:     job.Error,
		Batches:   rows,
	}
	if _, err := c.reports.Publish(ctx, run); err != nil {
		c.metrics.ReportErrors.Inc()
		log.Warn("run report failed", "error", err)
	}
}

// persist records the running job's progress so it can be resumed. If the
// stored trigger for this job was withdrawn by another process, nothing is
// written and the job is asked to stop as if cancelled here.
func (c *Controller) persist(ctx context.Context, log *slog.Logger) {
	job := c.Snapshot()
	if c.withdrawn(ctx, job.ID) {
		log.Info("trigger withdrawn, stopping", "uploaded", job.Uploaded)
		c.mu.Lock()
		c.abortRequested = true
		c.mu.Unlock()
		return
	}
	c.save(ctx, log, c.descriptor(job, true))
}

// withdrawn reports whether the stored descriptor belongs to jobID and no
// longer asks for it to run. Load errors are not treated as a withdrawal.
func (c *Controller) withdrawn(ctx context.Context, jobID string) bool {
	d, err := c.store.Load(ctx)
	if err != nil {
		return false
	}
	return d.JobID == jobID && !d.Pending
}

func (c *Controller) save(ctx context.Context, log *slog.Logger, d *jobstore.Descriptor) {
	if err := c.store.Save(ctx, d); err != nil {
		c.metrics.IncStoreErrors("save")
		log.Warn("failed to save job descriptor", "status", d.Status, "error", err)
	}
}

func (c *Controller) descriptor(job Job, pending bool) *jobstore.Descriptor {
	d := &jobstore.Descriptor{
		JobID:     job.ID,
		Pending:   pending,
		Status:    job.Status,
		Total:     job.Total,
		Uploaded:  job.Uploaded,
		Cursor:    job.Cursor,
		Batches:   job.Batches,
		Error:     job.Error,
		UpdatedAt: c.now().UTC(),
	}
	if !job.StartedAt.IsZero() {
		started := job.StartedAt
		d.StartedAt = &started
	}
	if !job.FinishedAt.IsZero() {
		finished := job.FinishedAt
		d.FinishedAt = &finished
	}
	return d
}
