package crawl

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Page is the outcome of one HTTP page load.
type Page struct {
	// URL is the final request URL as reported by the client.
	URL string
	// StatusCode is the HTTP status; it may be set even when the fetch
	// failed, so callers can classify errors.
	StatusCode int
	// ContentType is the response Content-Type header value.
	ContentType string
	// Body holds the raw response bytes.
	Body []byte
	// Duration measures the whole fetch including redirects.
	Duration time.Duration
}

// Fetcher loads a single page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (Page, error)
}

// FetcherConfig controls collector behavior.
type FetcherConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyFetcher implements Fetcher using the Colly collector. Each Fetch
// clones the base collector so per-request hooks never leak between calls.
// Robots.txt handling is deliberately disabled here; the engine consults its
// RobotsPolicy before a URL ever reaches the fetcher.
type CollyFetcher struct {
	cfg           FetcherConfig
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

// NewCollyFetcher builds a CollyFetcher with a pooled transport.
func NewCollyFetcher(cfg FetcherConfig) *CollyFetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	transport := newHTTPTransport()
	c.WithTransport(transport)
	return &CollyFetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. On an HTTP-level failure the returned
// Page still carries the status code when the server responded.
func (f *CollyFetcher) Fetch(ctx context.Context, pageURL string) (Page, error) {
	var (
		page     Page
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(start, &page, &fetchErr)

	if err := f.runCollector(ctx, collector, pageURL, &fetchErr); err != nil {
		page.Duration = time.Since(start)
		return page, err
	}
	return page, nil
}

func (f *CollyFetcher) buildCollector(start time.Time, page *Page, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	collector.OnResponse(func(r *colly.Response) {
		*page = Page{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			page.StatusCode = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				page.URL = r.Request.URL.String()
			}
		}
		*fetchErr = err
	})
	return collector
}

func (f *CollyFetcher) runCollector(ctx context.Context, collector *colly.Collector, pageURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
