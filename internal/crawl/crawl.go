package crawl

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/metrics"
	"github.com/sitelens/sitelens/internal/progress"
	"github.com/sitelens/sitelens/internal/urlnorm"
)

// Default engine settings applied when Options leaves them zero.
const (
	DefaultMaxPages    = 25
	DefaultPageTimeout = 15 * time.Second
)

// Options tunes one crawl invocation.
type Options struct {
	// MaxPages bounds the number of visited (fetched) pages, not the number
	// of discovered URLs.
	MaxPages int
	// PageTimeout caps each individual page load.
	PageTimeout time.Duration
	// OnVisit, when set, observes every attempted page load. It runs on the
	// crawl goroutine and must not block.
	OnVisit VisitFunc
}

// Visit describes one attempted page load for progress reporting.
type Visit struct {
	URL      urlnorm.NormalizedURL
	Status   int
	Bytes    int64
	Duration time.Duration
	Err      error
}

// VisitFunc consumes Visit notifications.
type VisitFunc func(Visit)

// Stats aggregates counters for a finished crawl.
type Stats struct {
	// PagesCrawled counts successfully loaded pages.
	PagesCrawled int `json:"pages_crawled"`
	// PagesSkipped counts pages popped but not fetched (already visited or
	// disallowed by robots).
	PagesSkipped int `json:"pages_skipped"`
	// Errors counts failed page loads.
	Errors int `json:"errors"`
	// DuplicatesSkipped counts links whose dedup key was already discovered.
	DuplicatesSkipped int `json:"duplicates_skipped"`
	// DurationSeconds is the wall time of the whole crawl.
	DurationSeconds float64 `json:"duration_seconds"`
}

// Result is the immutable outcome of one crawl. URLs lists the successfully
// visited pages in visit order; downstream stages consume exactly this list.
// Discovered lists every unique URL found, in discovery order, which may
// exceed MaxPages.
type Result struct {
	URLs       []urlnorm.NormalizedURL
	Discovered []urlnorm.NormalizedURL
	Stats      Stats
}

// Clock supplies wall-clock time for crawl timing.
type Clock interface {
	Now() time.Time
}

// Engine drives a breadth-first crawl of a single site. It is deliberately
// sequential: one in-flight page load at a time bounds the pressure on the
// target site. Pages on hosts other than the seed's are discovered but never
// followed; the seed itself is never excluded by that scope check.
type Engine struct {
	fetcher Fetcher
	norm    *urlnorm.Normalizer
	robots  RobotsPolicy
	pacer   *Pacer
	clock   Clock
	logger  *zap.Logger
}

// NewEngine assembles a crawl engine. robots and pacer may be nil, which
// disables the respective check.
func NewEngine(
	fetcher Fetcher,
	norm *urlnorm.Normalizer,
	robots RobotsPolicy,
	pacer *Pacer,
	clk Clock,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		fetcher: fetcher,
		norm:    norm,
		robots:  robots,
		pacer:   pacer,
		clock:   clk,
		logger:  logger,
	}
}

// Crawl walks the site reachable from startURL breadth-first until the
// frontier is exhausted or MaxPages pages have been visited. A failed page
// load is isolated: it increments the error counter, contributes no links,
// and the crawl continues. Only context cancellation or an unusable start
// URL abort the whole crawl.
func (e *Engine) Crawl(ctx context.Context, startURL string, opts Options) (*Result, error) {
	seed, err := e.norm.Normalize(startURL, nil)
	if err != nil {
		return nil, fmt.Errorf("normalize start url: %w", err)
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	timeout := opts.PageTimeout
	if timeout <= 0 {
		timeout = DefaultPageTimeout
	}

	frontier := NewFrontier()
	frontier.Discover(seed)

	start := e.clock.Now()
	stats := Stats{}
	var visited []urlnorm.NormalizedURL

	for !frontier.Empty() && frontier.VisitedCount() < maxPages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("crawl aborted: %w", err)
		}
		current, ok := frontier.Next()
		if !ok {
			break
		}
		if frontier.Visited(current) {
			stats.PagesSkipped++
			continue
		}
		if e.robots != nil && !e.robots.Allowed(ctx, current.URL) {
			stats.PagesSkipped++
			e.logger.Debug("robots disallowed", zap.String("url", current.URL))
			continue
		}
		if e.pacer != nil {
			if err := e.pacer.Wait(ctx, current.Host); err != nil {
				return nil, fmt.Errorf("crawl aborted: %w", err)
			}
		}

		frontier.MarkVisited(current)
		page, fetchErr := e.fetchPage(ctx, current.URL, timeout)
		e.observeVisit(opts, current, page, fetchErr)
		if fetchErr != nil {
			stats.Errors++
			e.logger.Warn("page load failed",
				zap.String("url", current.URL),
				zap.Int("status", page.StatusCode),
				zap.Error(fetchErr),
			)
			continue
		}

		stats.PagesCrawled++
		visited = append(visited, current)
		e.logger.Debug("page loaded",
			zap.String("url", current.URL),
			zap.Int("status", page.StatusCode),
			zap.Int("bytes", len(page.Body)),
		)

		stats.DuplicatesSkipped += e.discoverLinks(frontier, seed, current, page)
	}

	stats.DurationSeconds = e.clock.Now().Sub(start).Seconds()
	e.logger.Info("crawl finished",
		zap.String("seed", seed.URL),
		zap.Int("pages_crawled", stats.PagesCrawled),
		zap.Int("pages_skipped", stats.PagesSkipped),
		zap.Int("errors", stats.Errors),
		zap.Int("duplicates_skipped", stats.DuplicatesSkipped),
		zap.Float64("duration_seconds", stats.DurationSeconds),
	)
	return &Result{
		URLs:       visited,
		Discovered: frontier.Discovered(),
		Stats:      stats,
	}, nil
}

func (e *Engine) fetchPage(ctx context.Context, pageURL string, timeout time.Duration) (Page, error) {
	pageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.fetcher.Fetch(pageCtx, pageURL)
}

func (e *Engine) observeVisit(opts Options, current urlnorm.NormalizedURL, page Page, fetchErr error) {
	statusClass := string(progress.ClassifyStatus(page.StatusCode))
	metrics.ObserveCrawl(current.Host, statusClass, len(page.Body))
	if opts.OnVisit == nil {
		return
	}
	opts.OnVisit(Visit{
		URL:      current,
		Status:   page.StatusCode,
		Bytes:    int64(len(page.Body)),
		Duration: page.Duration,
		Err:      fetchErr,
	})
}

// discoverLinks normalizes the page's anchors and feeds new same-host URLs
// to the frontier, returning how many duplicates were dropped.
func (e *Engine) discoverLinks(frontier *Frontier, seed, current urlnorm.NormalizedURL, page Page) int {
	if len(page.Body) == 0 || !looksLikeHTML(page.ContentType) {
		return 0
	}
	links, err := ExtractLinks(page.Body)
	if err != nil {
		e.logger.Debug("link extraction failed", zap.String("url", current.URL), zap.Error(err))
		return 0
	}
	base, err := url.Parse(current.URL)
	if err != nil {
		return 0
	}

	duplicates := 0
	for _, raw := range links {
		normalized, err := e.norm.Normalize(raw, base)
		if err != nil {
			continue
		}
		if normalized.Host != seed.Host {
			continue
		}
		if !frontier.Discover(normalized) {
			duplicates++
		}
	}
	return duplicates
}
