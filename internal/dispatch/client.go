// Package dispatch submits bound job graphs to the remote engine.
package dispatch

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

	"github.com/cenkalti/backoff/v4"

	"github.com/spachava753/promptbatch/internal/metrics"
	"github.com/spachava753/promptbatch/internal/workflow"
)

// Dispatcher submits one graph and reports whether the engine accepted it.
// Acceptance means queued for processing, not finished.
type Dispatcher interface {
	Dispatch(ctx context.Context, g *workflow.Graph) (Result, error)
}

// Result describes an accepted submission.
type Result struct {
	Attempts   int
	StatusCode int
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("engine returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("engine returned HTTP %d: %s", e.Code, e.Body)
}

// Error is returned once every attempt has failed.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Options configures a Client. MaxRetries is the total number of attempts.
type Options struct {
	Endpoint       string
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    float64
	ClientID       string

	// HTTPClient defaults to a client with RequestTimeout.
	HTTPClient *http.Client
	// Timer drives backoff waits; nil uses real time.
	Timer   backoff.Timer
	Metrics *metrics.Metrics
}

// Client posts graphs to the engine with exponential backoff between attempts.
type Client struct {
	endpoint   string
	timeout    time.Duration
	maxRetries int
	base       float64
	clientID   string
	http       *http.Client
	timer      backoff.Timer
	metrics    *metrics.Metrics
}

// NewClient creates a dispatch client.
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if opts.MaxRetries < 1 {
		return nil, fmt.Errorf("max retries must be at least 1, got %d", opts.MaxRetries)
	}
	if opts.BackoffBase < 1 {
		return nil, fmt.Errorf("backoff base must be at least 1, got %v", opts.BackoffBase)
	}
	if opts.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		endpoint:   opts.Endpoint,
		timeout:    opts.RequestTimeout,
		maxRetries: opts.MaxRetries,
		base:       opts.BackoffBase,
		clientID:   opts.ClientID,
		http:       httpClient,
		timer:      opts.Timer,
		metrics:    opts.Metrics,
	}, nil
}

type submitRequest struct {
	Prompt   *workflow.Graph `json:"prompt"`
	ClientID string          `json:"client_id,omitempty"`
}

// Dispatch submits g, retrying transport errors and non-2xx responses until
// MaxRetries attempts have been made.
func (c *Client) Dispatch(ctx context.Context, g *workflow.Graph) (Result, error) {
	body, err := json.Marshal(submitRequest{Prompt: g, ClientID: c.clientID})
	if err != nil {
		return Result{}, &Error{Err: fmt.Errorf("encoding graph: %w", err)}
	}

	var (
		attempts int
		status   int
	)
	op := func() error {
		attempts++
		var err error
		status, err = c.submit(ctx, body)
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("dispatch attempt failed, backing off",
			"attempt", attempts,
			"max_attempts", c.maxRetries,
			"wait", wait,
			"error", err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&ExpBackOff{Base: c.base}, uint64(c.maxRetries-1)),
		ctx,
	)
	if err := backoff.RetryNotifyWithTimer(op, b, notify, c.timer); err != nil {
		return Result{Attempts: attempts, StatusCode: status}, &Error{Attempts: attempts, Err: err}
	}

	return Result{Attempts: attempts, StatusCode: status}, nil
}

func (c *Client) submit(ctx context.Context, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveAttempt("error", time.Since(start))
		if errors.Is(err, context.Canceled) {
			return 0, backoff.Permanent(err)
		}
		return 0, fmt.Errorf("posting to engine: %w", err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.ObserveAttempt("rejected", time.Since(start))
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	c.metrics.ObserveAttempt("accepted", time.Since(start))
	return resp.StatusCode, nil
}
