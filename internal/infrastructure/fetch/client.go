// Package fetch is the shared outbound HTTP client: a concurrency gate, a polite delay and
// bounded exponential retry.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"
)

// Options tunes the client. Zero values fall back to DefaultOptions, except PoliteDelay and
// MaxRetries where zero means none.
type Options struct {
	Concurrency    int
	PoliteDelay    time.Duration
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxBodyBytes   int64
	UserAgent      string
}

// DefaultOptions mirrors a polite crawler: 5 in flight, 300ms pause, retries after 1s, 2s and 4s.
func DefaultOptions() Options {
	return Options{
		Concurrency:    5,
		PoliteDelay:    300 * time.Millisecond,
		Timeout:        20 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     4 * time.Second,
		MaxBodyBytes:   5 << 20,
		UserAgent:      "DailyBriefAgent/1.0",
	}
}

// Response is a fully read HTTP response.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// HTTPError reports a non-2xx status.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Client gates every request through a shared semaphore.
type Client struct {
	http   *http.Client
	gate   *semaphore.Weighted
	opts   Options
	logger *slog.Logger
}

// New wires the gate around httpClient; a nil client gets one with opts.Timeout.
func New(opts Options, httpClient *http.Client, logger *slog.Logger) *Client {
	opts = withDefaults(opts)
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:   httpClient,
		gate:   semaphore.NewWeighted(int64(opts.Concurrency)),
		opts:   opts,
		logger: logger,
	}
}

// Get fetches url with retries. Client errors other than 408 and 429 are not retried.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, url, c.opts.MaxRetries)
}

// GetOnce fetches url with a single attempt.
func (c *Client) GetOnce(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, url, 0)
}

func (c *Client) do(ctx context.Context, url string, retries int) (*Response, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire fetch slot: %w", err)
	}
	defer c.gate.Release(1)

	if err := sleep(ctx, c.opts.PoliteDelay); err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	var (
		resp    *Response
		attempt int
	)
	op := func() error {
		attempt++
		r, err := c.once(ctx, url)
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && !retryable(httpErr.StatusCode) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("fetch attempt failed", "url", url, "attempt", attempt, "retry_in", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(retries, 0))), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", url, err)
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.PoliteDelay < 0 {
		opts.PoliteDelay = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	return opts
}
