package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Webhook posts notices as JSON to an HTTP endpoint.
type Webhook struct {
	url     string
	retries int
	delay   time.Duration
	client  *http.Client
	log     *slog.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, retries int, timeout time.Duration) *Webhook {
	if retries < 1 {
		retries = 3
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:     url,
		retries: retries,
		delay:   time.Second,
		client:  &http.Client{Timeout: timeout},
		log:     slog.With("component", "notify", "notifier", "webhook"),
	}
}

// Notify sends the notice, retrying with exponential backoff.
func (w *Webhook) Notify(ctx context.Context, n Notice) error {
	var lastErr error
	delay := w.delay

	for attempt := 1; attempt <= w.retries; attempt++ {
		err := w.post(ctx, n)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < w.retries {
			w.log.Warn("webhook attempt failed",
				"attempt", attempt,
				"retries", w.retries,
				"retry_in", delay.String(),
				"error", err,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("all %d webhook attempts failed: %w", w.retries, lastErr)
}

// post sends a single POST request.
func (w *Webhook) post(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		w.log.Debug("notice delivered", "status", resp.StatusCode)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
}

func (w *Webhook) Close() error {
	return nil
}
