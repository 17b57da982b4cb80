// Package notify delivers user-facing results of upload jobs.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Kind classifies a notice the way the result dialog does.
type Kind string

const (
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
	KindError   Kind = "error"
)

// Notice is one terminal-state message for the user.
type Notice struct {
	Kind     Kind      `json:"type"`
	Message  string    `json:"message"`
	JobID    string    `json:"job_id,omitempty"`
	Status   string    `json:"status"`
	Uploaded int64     `json:"uploaded"`
	Total    int64     `json:"total"`
	At       time.Time `json:"at"`
}

// Notifier is the notification surface.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
	Close() error
}

// Config selects which notifiers are active. The log notifier is always on.
type Config struct {
	WebhookURL     string
	WebhookRetries int
	WebhookTimeout time.Duration
	JournalDir     string
}

// New builds a fan-out notifier from configuration.
func New(cfg Config) Notifier {
	log := slog.With("component", "notify")
	targets := []Notifier{NewLogNotifier(slog.Default())}

	if cfg.JournalDir != "" {
		j, err := NewJournal(cfg.JournalDir)
		if err != nil {
			log.Warn("journal disabled", "dir", cfg.JournalDir, "error", err)
		} else {
			log.Info("using notice journal", "path", j.Path())
			targets = append(targets, j)
		}
	}

	if cfg.WebhookURL != "" {
		log.Info("using webhook notifier", "url", cfg.WebhookURL)
		targets = append(targets, NewWebhook(cfg.WebhookURL, cfg.WebhookRetries, cfg.WebhookTimeout))
	}

	if len(targets) == 1 {
		return targets[0]
	}
	return Multi(targets...)
}

// LogNotifier writes notices to a slog logger.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(l *slog.Logger) *LogNotifier {
	return &LogNotifier{log: l.With("component", "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, notice Notice) error {
	level := slog.LevelInfo
	if notice.Kind == KindError {
		level = slog.LevelError
	}
	n.log.Log(ctx, level, notice.Message,
		"type", notice.Kind,
		"job_id", notice.JobID,
		"status", notice.Status,
		"uploaded", notice.Uploaded,
		"total", notice.Total,
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }

type multi []Notifier

// Multi delivers to every notifier and joins their errors.
func Multi(ns ...Notifier) Notifier {
	return multi(ns)
}

func (m multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, t := range m {
		if err := t.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notice) error

func (f Func) Notify(ctx context.Context, n Notice) error { return f(ctx, n) }

func (f Func) Close() error { return nil }
