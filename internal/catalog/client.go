// Package catalog talks to the Qidian web catalog: keyword search, book detail
// pages and cover images, all through one rate limited fetch-with-retry path.
package catalog

import (
	"net/http"
	"strings"
	"time"

	"github.com/lepinkainen/qidianmeta/internal/ratelimit"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBaseURL        = "https://www.qidian.com"
	defaultCoverBaseURL   = "https://bookcover.yuewen.com/qdbimg/349573"
	defaultMaxRetries     = 3
	defaultRequestTimeout = 30 * time.Second
	defaultInterval       = time.Second
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// Publisher and Language are the same for every work in the catalog.
	Publisher = "起点中文网"
	Language  = "zh_CN"
)

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is a Qidian catalog client. It is safe for concurrent use.
type Client struct {
	baseURL        string
	coverBaseURL   string
	userAgent      string
	httpClient     HTTPDoer
	coverClient    HTTPDoer
	rateLimiter    *ratelimit.Limiter
	maxRetries     int
	requestTimeout time.Duration

	details singleflight.Group
}

// NewClient creates a new catalog client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:        defaultBaseURL,
		coverBaseURL:   defaultCoverBaseURL,
		userAgent:      defaultUserAgent,
		httpClient:     &http.Client{},
		rateLimiter:    ratelimit.NewInterval("qidian", defaultInterval),
		maxRetries:     defaultMaxRetries,
		requestTimeout: defaultRequestTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithCoverHTTPClient sets the client used for cover images only.
// Without it covers go through the page client.
func WithCoverHTTPClient(c HTTPDoer) Option {
	return func(client *Client) {
		if c != nil {
			client.coverClient = c
		}
	}
}

// WithBaseURL sets the catalog site root used for search and detail pages.
func WithBaseURL(base string) Option {
	return func(client *Client) {
		if base != "" {
			client.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithCoverBaseURL sets the root the cover image URLs are built from.
func WithCoverBaseURL(base string) Option {
	return func(client *Client) {
		if base != "" {
			client.coverBaseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithUserAgent overrides the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(client *Client) {
		if ua != "" {
			client.userAgent = ua
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
// Zero means a single attempt.
func WithMaxRetries(retries int) Option {
	return func(client *Client) {
		if retries >= 0 {
			client.maxRetries = retries
		}
	}
}

// WithRequestTimeout bounds every single attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(client *Client) {
		if d > 0 {
			client.requestTimeout = d
		}
	}
}

// WithRateLimiter sets the limiter gating every request.
// Pass the same limiter to every client in the process.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(client *Client) {
		if limiter != nil {
			client.rateLimiter = limiter
		}
	}
}

// CoverURL returns the URL of the latest full-size cover for nativeID.
func (c *Client) CoverURL(nativeID string) string {
	return c.coverBaseURL + "/" + nativeID
}

// LegacyCoverURL returns the older cover URL form, which serves the cover
// originally uploaded for the work.
func (c *Client) LegacyCoverURL(nativeID string) string {
	return c.CoverURL(nativeID) + "/"
}
