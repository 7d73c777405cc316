package ats

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxAttempts = 3
	baseBackoff        = 300 * time.Millisecond
	maxBackoff         = 5 * time.Second
	maxBodyBytes       = 32 << 20
)

// StatusError is a non-retryable or exhausted HTTP failure.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string { return fmt.Sprintf("GET %s: status %d", e.URL, e.Status) }

var ErrExhausted = errors.New("retries exhausted")

// Client is the HTTP transport shared by all adapters.
type Client struct {
	hc          *http.Client
	limiter     *HostLimiter
	maxAttempts int
	userAgent   string
	sleep       func(ctx context.Context, d time.Duration) error
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption { return func(c *Client) { c.hc = hc } }

func WithLimiter(l *HostLimiter) ClientOption { return func(c *Client) { c.limiter = l } }

func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithUserAgent(ua string) ClientOption { return func(c *Client) { c.userAgent = ua } }

// WithSleep replaces the backoff sleeper; tests use it to record delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = fn }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		hc:          &http.Client{Timeout: 20 * time.Second},
		maxAttempts: DefaultMaxAttempts,
		userAgent:   "jobsync/1.0 (+ingest)",
		sleep:       sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Backoff is the delay before retry number attempt (0-based):
// min(5s, 300ms * 2^attempt).
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 10 {
		return maxBackoff
	}
	return min(maxBackoff, baseBackoff<<attempt)
}

// GetJSON fetches url and decodes it into v. found is false, with a nil
// error, when the vendor answers 404 or an empty body. 429, 5xx and network
// failures are retried with Backoff up to the attempt ceiling.
func (c *Client) GetJSON(ctx context.Context, url string, v any) (found bool, err error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			d := Backoff(attempt - 1)
			log.Debug().Str("component", "ats").Str("url", url).Int("attempt", attempt+1).Dur("backoff", d).Err(lastErr).Msg("retrying")
			if err := c.sleep(ctx, d); err != nil {
				return false, err
			}
		}

		body, status, err := c.get(ctx, url)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			lastErr = err
			continue
		case status == http.StatusNotFound:
			return false, nil
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = &StatusError{URL: url, Status: status}
			continue
		case status >= 300:
			return false, &StatusError{URL: url, Status: status}
		}

		if len(bytes.TrimSpace(body)) == 0 {
			return false, nil
		}
		if err := json.Unmarshal(body, v); err != nil {
			return false, fmt.Errorf("decode %s: %w", url, err)
		}
		return true, nil
	}
	return false, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, c.maxAttempts, lastErr)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx, url); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, res.StatusCode, err
	}
	return body, res.StatusCode, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
