package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	qerrors "github.com/lepinkainen/qidianmeta/internal/errors"
)

const (
	maxBodyBytes  = 16 << 20
	maxBackoff    = 10 * time.Second
	maxRetryAfter = time.Minute
)

var (
	// baseBackoff is the delay before the first retry. Tests shrink it.
	baseBackoff = 500 * time.Millisecond

	// sleep waits between attempts. Tests replace it to avoid real delays.
	sleep = sleepContext
)

// endpoint describes one catalog resource for fetch.
type endpoint struct {
	name string // search, detail or cover; used in logs
	url  string
	// notFound builds the terminal error for a 404. Nil treats 404 like any other 4xx.
	notFound func() error
	// doer overrides the client's page transport.
	doer HTTPDoer
}

// statusError is a non-2xx answer other than 429.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// fetch GETs ep with rate limiting, a per-attempt timeout and bounded retries
// on transient failures. Exhausted or non-retryable failures come back as
// CatalogUnavailableError, except the 404 mapping supplied by ep.
func (c *Client) fetch(ctx context.Context, ep endpoint) ([]byte, error) {
	attempts := c.maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := c.fetchOnce(ctx, ep)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if qerrors.IsNotFoundError(err) {
			return nil, err
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return nil, unavailable(ep, attempt, err)
		}
		if attempt == attempts {
			break
		}

		delay := backoffDelay(attempt)
		var rlErr *qerrors.RateLimitError
		if errors.As(err, &rlErr) && rlErr.RetryAfter > delay {
			delay = rlErr.RetryAfter
		}
		slog.Warn("catalog request failed, retrying",
			"endpoint", ep.name, "url", ep.url, "attempt", attempt, "delay", delay, "error", err)

		if err := sleep(ctx, delay); err != nil {
			return nil, unavailable(ep, attempt, err)
		}
	}

	return nil, unavailable(ep, attempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, ep endpoint) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ep.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")

	doer := ep.doer
	if doer == nil {
		doer = c.httpClient
	}
	resp, err := doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, qerrors.NewRateLimitErrorWithRetry(
			fmt.Sprintf("%s rate limited by catalog", ep.name),
			parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	case resp.StatusCode == http.StatusNotFound && ep.notFound != nil:
		return nil, ep.notFound()
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s body: %w", ep.name, err)
	}
	return body, nil
}

func unavailable(ep endpoint, attempts int, err error) error {
	status := 0
	var sErr *statusError
	switch {
	case errors.As(err, &sErr):
		status = sErr.code
	case qerrors.IsRateLimitError(err):
		status = http.StatusTooManyRequests
	}
	return qerrors.NewCatalogUnavailableError(ep.url, status, attempts, err)
}

func isRetryable(err error) bool {
	if qerrors.IsRateLimitError(err) {
		return true
	}

	var sErr *statusError
	if errors.As(err, &sErr) {
		return sErr.code >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// backoffDelay grows exponentially from baseBackoff, capped at maxBackoff,
// with up to 50% random jitter on top.
func backoffDelay(attempt int) time.Duration {
	delay := baseBackoff << uint(attempt-1)
	if delay <= 0 || delay > maxBackoff {
		delay = maxBackoff
	}
	if half := int64(delay / 2); half > 0 {
		delay += time.Duration(rand.Int64N(half))
	}
	return delay
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = at.Sub(now)
	}

	switch {
	case d < 0:
		return 0
	case d > maxRetryAfter:
		return maxRetryAfter
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
