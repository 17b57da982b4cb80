// Package raisers talks to the KTechRaisers endpoints of the HR backend.
package raisers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	countPath  = "/KTechRaisers/countKtechToUpload.json"
	uploadPath = "/KTechRaisers/upload-from-answered-forms.json"
)

var (
	// ErrUnsuccessful is returned when the backend answers with success=false.
	ErrUnsuccessful = errors.New("backend reported success=false")

	// ErrMalformedResponse is returned when a response body cannot be used.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// CountResponse is the body of the pending-count query.
type CountResponse struct {
	Success bool  `json:"success"`
	Count   int64 `json:"count"`
}

// UploadRequest is the body of one batch request.
type UploadRequest struct {
	Limit  int    `json:"limit"`
	LastID Cursor `json:"last_id"`
}

// UploadResponse is the body returned for one batch.
type UploadResponse struct {
	Success       bool   `json:"success"`
	UploadedCount int64  `json:"uploadedCount"`
	LastID        Cursor `json:"last_id"`
}

// Config configures the client.
type Config struct {
	BaseURL string
	Token   string
	// Timeout bounds every single request, including reading the body.
	Timeout time.Duration
	// BatchTimeout overrides Timeout for upload requests.
	BatchTimeout time.Duration
}

// Client is a JSON-over-HTTP client for the raiser upload endpoints.
type Client struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

// NewClient creates a client. A nil httpClient uses a default one.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = cfg.Timeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:    cfg,
		client: httpClient,
		log:    slog.With("component", "raisers"),
	}
}

// CountPending returns how many answered-form records still need uploading.
func (c *Client) CountPending(ctx context.Context) (int64, error) {
	var resp CountResponse
	if err := c.do(ctx, c.cfg.Timeout, http.MethodGet, countPath, nil, &resp); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	if !resp.Success {
		return 0, fmt.Errorf("count pending: %w", ErrUnsuccessful)
	}
	if resp.Count < 0 {
		return 0, fmt.Errorf("count pending: %w: negative count %d", ErrMalformedResponse, resp.Count)
	}
	return resp.Count, nil
}

// UploadBatch asks the backend to move up to limit records that follow
// cursor. The returned response is authoritative for both the count and the
// next cursor.
func (c *Client) UploadBatch(ctx context.Context, limit int, cursor Cursor) (UploadResponse, error) {
	if cursor.IsZero() {
		cursor = StartCursor
	}
	req := UploadRequest{Limit: limit, LastID: cursor}

	var resp UploadResponse
	if err := c.do(ctx, c.cfg.BatchTimeout, http.MethodPost, uploadPath, req, &resp); err != nil {
		return UploadResponse{}, fmt.Errorf("upload batch after %s: %w", cursor, err)
	}
	if !resp.Success {
		return UploadResponse{}, fmt.Errorf("upload batch after %s: %w", cursor, ErrUnsuccessful)
	}
	if resp.UploadedCount < 0 {
		return UploadResponse{}, fmt.Errorf("upload batch after %s: %w: negative uploadedCount %d",
			cursor, ErrMalformedResponse, resp.UploadedCount)
	}
	if resp.UploadedCount > 0 && resp.LastID.IsZero() {
		return UploadResponse{}, fmt.Errorf("upload batch after %s: %w: missing last_id", cursor, ErrMalformedResponse)
	}
	return resp, nil
}

// do sends a single request bounded by timeout.
func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformedResponse, path, err)
	}

	c.log.Debug("request complete",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start).String(),
	)
	return nil
}
