// Package watcher polls the job store so that a trigger set by another
// process is picked up by a running server.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/withObsrvr/raiser-uploader/internal/uploader"
)

// Starter starts a job when the stored trigger asks for one.
type Starter interface {
	AutoStart(ctx context.Context) (bool, error)
}

type Watcher struct {
	starter  Starter
	interval time.Duration
	log      *slog.Logger
}

func New(starter Starter, interval time.Duration) *Watcher {
	return &Watcher{
		starter:  starter,
		interval: interval,
		log:      slog.With("component", "watcher"),
	}
}

// Run polls until ctx is done. A poll while a job is running is a no-op.
func (w *Watcher) Run(ctx context.Context) error {
	if w.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	w.log.Info("watching for upload triggers", "interval", w.interval.String())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	started, err := w.starter.AutoStart(ctx)
	switch {
	case errors.Is(err, uploader.ErrAlreadyRunning):
	case errors.Is(err, uploader.ErrClosed):
	case err != nil:
		w.log.Error("auto-start failed", "error", err)
	case started:
		w.log.Info("picked up upload trigger")
	}
}
