// Package browser fetches catalog pages through headless Chrome. Qidian
// rejects many non-browser clients, so the catalog client can use Doer in
// place of net/http.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const defaultWaitSelector = "body"

var (
	chromedpExecAllocator = chromedp.NewExecAllocator
	chromedpContext       = chromedp.NewContext
	chromedpRunner        = chromedp.Run
	chromedpRunResponse   = chromedp.RunResponse

	// readHTML returns the rendered document of the current tab.
	readHTML = func(ctx context.Context) (string, error) {
		var html string
		if err := chromedpRunner(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
			return "", err
		}
		return html, nil
	}
)

// Options configures the browser.
type Options struct {
	Headless  bool
	UserAgent string
	// Settle is an extra wait after the page body is ready, for pages that
	// fill in content with scripts.
	Settle time.Duration
}

// Doer implements the catalog's HTTPDoer for GET requests by navigating a
// browser tab to the URL and returning the rendered HTML.
// The browser starts on first use; requests are served one tab at a time.
type Doer struct {
	opts Options

	mu            sync.Mutex
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// New creates a Doer. No browser is launched until the first request.
func New(opts Options) *Doer {
	return &Doer{opts: opts}
}

// Do navigates to req.URL and returns the page as an HTML response.
func (d *Doer) Do(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return nil, fmt.Errorf("browser transport supports only GET, got %s", req.Method)
	}
	target := req.URL.String()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.start(); err != nil {
		return nil, &url.Error{Op: "Get", URL: target, Err: err}
	}

	tabCtx, cancelTab := chromedpContext(d.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(req.Context(), cancelTab)
	defer stop()

	slog.Debug("browser navigating", "url", target)
	resp, err := chromedpRunResponse(tabCtx, chromedp.Navigate(target), chromedp.WaitReady(defaultWaitSelector, chromedp.ByQuery))
	if err != nil {
		return nil, &url.Error{Op: "Get", URL: target, Err: requestError(req, err)}
	}
	if resp == nil {
		return nil, &url.Error{Op: "Get", URL: target, Err: errors.New("no navigation response")}
	}

	if d.opts.Settle > 0 {
		if err := chromedpRunner(tabCtx, chromedp.Sleep(d.opts.Settle)); err != nil {
			return nil, &url.Error{Op: "Get", URL: target, Err: requestError(req, err)}
		}
	}

	html, err := readHTML(tabCtx)
	if err != nil {
		return nil, &url.Error{Op: "Get", URL: target, Err: requestError(req, err)}
	}

	status := int(resp.Status)
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, resp.StatusText),
		StatusCode:    status,
		Header:        toHeader(resp.Headers),
		Body:          io.NopCloser(strings.NewReader(html)),
		ContentLength: int64(len(html)),
		Request:       req,
	}, nil
}

// Close shuts the browser down.
func (d *Doer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancelBrowser != nil {
		d.cancelBrowser()
	}
	if d.cancelAlloc != nil {
		d.cancelAlloc()
	}
	d.browserCtx, d.cancelBrowser, d.cancelAlloc = nil, nil, nil
}

func (d *Doer) start() error {
	if d.browserCtx != nil {
		return nil
	}

	allocCtx, cancelAlloc := chromedpExecAllocator(context.Background(), buildExecAllocatorOptions(d.opts)...)
	browserCtx, cancelBrowser := chromedpContext(allocCtx)

	// An empty Run launches the browser.
	if err := chromedpRunner(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	slog.Info("Browser started", "headless", d.opts.Headless)
	d.browserCtx, d.cancelBrowser, d.cancelAlloc = browserCtx, cancelBrowser, cancelAlloc
	return nil
}

func buildExecAllocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	options := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	}
	if opts.UserAgent != "" {
		options = append(options, chromedp.UserAgent(opts.UserAgent))
	}
	return options
}

// requestError prefers the request context's error so the caller can tell a
// timeout from a browser failure.
func requestError(req *http.Request, err error) error {
	if ctxErr := req.Context().Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func toHeader(h network.Headers) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out.Set(k, fmt.Sprint(v))
	}
	return out
}
