package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/withObsrvr/raiser-uploader/internal/config"
	"github.com/withObsrvr/raiser-uploader/internal/jobstore"
	"github.com/withObsrvr/raiser-uploader/internal/metrics"
	"github.com/withObsrvr/raiser-uploader/internal/notify"
	"github.com/withObsrvr/raiser-uploader/internal/raisers"
	"github.com/withObsrvr/raiser-uploader/internal/report"
	"github.com/withObsrvr/raiser-uploader/internal/storage"
	"github.com/withObsrvr/raiser-uploader/internal/uploader"
)

// app holds the wired components for one process.
type app struct {
	store       jobstore.Store
	notifier    notify.Notifier
	reportStore storage.AtomicStore
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	ctrl        *uploader.Controller
}

func openJobStore(ctx context.Context, cfg config.Config) (jobstore.Store, error) {
	store, err := jobstore.New(ctx, jobstore.Config{
		Backend:     cfg.JobStore.Backend,
		Name:        cfg.JobStore.Name,
		Dir:         cfg.JobStore.Dir,
		BucketURL:   cfg.JobStore.BucketURL,
		PostgresDSN: cfg.JobStore.PostgresDSN,
		RedisURL:    cfg.JobStore.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return store, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}

	store, err := openJobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(prometheus.DefaultRegisterer, cfg.Metrics.Namespace)
		a.gatherer = prometheus.DefaultGatherer
	} else {
		reg := prometheus.NewRegistry()
		a.metrics = metrics.New(reg, cfg.Metrics.Namespace)
		a.gatherer = reg
	}

	a.notifier = notify.New(notify.Config{
		WebhookURL:     cfg.Notify.WebhookURL,
		WebhookRetries: cfg.Notify.WebhookRetries,
		WebhookTimeout: cfg.Notify.WebhookTimeout,
		JournalDir:     cfg.Notify.JournalDir,
	})

	var reports report.Publisher = report.NewNoop()
	if cfg.Report.Enabled {
		rs, err := storage.NewAtomicStore(ctx, storage.StorageConfig{
			Backend:    cfg.Report.Backend,
			LocalDir:   cfg.Report.LocalDir,
			Bucket:     cfg.Report.Bucket,
			S3Endpoint: cfg.Report.S3Endpoint,
			S3Region:   cfg.Report.S3Region,
			Prefix:     cfg.Report.Prefix,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open report storage: %w", err)
		}
		a.reportStore = rs
		reports = report.NewWriter(rs, cfg.Report.Prefix)
	}

	client := raisers.NewClient(raisers.Config{
		BaseURL:      cfg.API.BaseURL,
		Token:        cfg.API.Token,
		Timeout:      cfg.API.Timeout,
		BatchTimeout: cfg.Upload.BatchTimeout,
	}, nil)

	a.ctrl = uploader.New(client, uploader.Options{
		Store:      a.store,
		Notifier:   a.notifier,
		Metrics:    a.metrics,
		Reports:    reports,
		BatchSize:  cfg.Upload.BatchSize,
		BatchDelay: cfg.Upload.BatchDelay,
	})

	slog.Info("raiser uploader ready",
		"version", Version,
		"api", cfg.API.BaseURL,
		"jobstore", cfg.JobStore.Backend,
	)
	return a, nil
}

// Close stops the controller first so the last descriptor write lands
// before the store goes away.
func (a *app) Close() {
	if a.ctrl != nil {
		a.ctrl.Close()
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			slog.Warn("close notifier", "error", err)
		}
	}
	if a.reportStore != nil {
		if err := a.reportStore.Close(); err != nil {
			slog.Warn("close report storage", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("close job store", "error", err)
		}
	}
}
