package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/performance"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/browser"
)

// Collector produces a FullReport for one page.
type Collector interface {
	Collect(ctx context.Context, pageURL string) (*FullReport, error)
}

// metricsJS gathers navigation timing, paint timing and the buffered
// largest-contentful-paint, layout-shift and longtask observer entries.
// Buffered entries are delivered asynchronously, so the promise resolves
// after a short grace period.
const metricsJS = `new Promise((resolve) => {
  const r = { nav: null, fcp: 0, lcp: 0, cls: 0, longTasks: [] };
  try {
    const navEntries = performance.getEntriesByType('navigation');
    if (navEntries.length > 0) {
      const n = navEntries[0];
      r.nav = {
        ttfb: n.responseStart,
        domContentLoaded: n.domContentLoadedEventEnd,
        load: n.loadEventEnd,
        transferSize: n.transferSize || 0,
        encodedBodySize: n.encodedBodySize || 0
      };
    }
    for (const e of performance.getEntriesByType('paint')) {
      if (e.name === 'first-contentful-paint') { r.fcp = e.startTime; }
    }
    try {
      new PerformanceObserver((list) => {
        const entries = list.getEntries();
        if (entries.length > 0) { r.lcp = entries[entries.length - 1].startTime; }
      }).observe({ type: 'largest-contentful-paint', buffered: true });
    } catch (e) {}
    try {
      new PerformanceObserver((list) => {
        for (const e of list.getEntries()) {
          if (!e.hadRecentInput) { r.cls += e.value; }
        }
      }).observe({ type: 'layout-shift', buffered: true });
    } catch (e) {}
    try {
      new PerformanceObserver((list) => {
        for (const e of list.getEntries()) {
          r.longTasks.push({ start: e.startTime, duration: e.duration });
        }
      }).observe({ type: 'longtask', buffered: true });
    } catch (e) {}
    setTimeout(() => resolve(r), 200);
  } catch (e) { resolve(r); }
})`

type perfPayload struct {
	Nav *struct {
		TTFB             float64 `json:"ttfb"`
		DOMContentLoaded float64 `json:"domContentLoaded"`
		Load             float64 `json:"load"`
		TransferSize     int64   `json:"transferSize"`
		EncodedBodySize  int64   `json:"encodedBodySize"`
	} `json:"nav"`
	FCP       float64 `json:"fcp"`
	LCP       float64 `json:"lcp"`
	CLS       float64 `json:"cls"`
	LongTasks []struct {
		Start    float64 `json:"start"`
		Duration float64 `json:"duration"`
	} `json:"longTasks"`
}

// CollectorOptions tunes the browser-backed collector.
type CollectorOptions struct {
	UserAgent string
	Width     int
	Height    int
	Timeout   time.Duration
	Settle    time.Duration
}

// BrowserCollector audits pages on a shared headless browser. The browser
// process boots on the first Collect call and lives until Close.
type BrowserCollector struct {
	session *browser.Session
	width   int
	height  int
	timeout time.Duration
	settle  time.Duration
	logger  *zap.Logger
}

// NewBrowserCollector builds a collector with its own browser session.
func NewBrowserCollector(opts CollectorOptions, logger *zap.Logger) *BrowserCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}
	session := browser.NewSession(browser.Options{
		UserAgent: opts.UserAgent,
		Width:     opts.Width,
		Height:    opts.Height,
	}, logger.Named("browser"))
	return &BrowserCollector{
		session: session,
		width:   opts.Width,
		height:  opts.Height,
		timeout: opts.Timeout,
		settle:  opts.Settle,
		logger:  logger,
	}
}

// Collect navigates the page in a fresh tab with a clean profile and
// gathers timing metrics and DOM checks.
func (c *BrowserCollector) Collect(ctx context.Context, pageURL string) (*FullReport, error) {
	tab, cancelTab, err := c.session.Tab()
	if err != nil {
		return nil, err
	}
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tab, c.timeout)
	defer cancelTask()
	stop := browser.ForwardCancel(ctx, cancelTask)
	defer stop()

	status := browser.WatchDocumentStatus(taskCtx)

	navigate := chromedp.Tasks{
		network.Enable(),
		performance.Enable(),
		browser.ResetProfile(),
	}
	if c.width > 0 && c.height > 0 {
		navigate = append(navigate, chromedp.EmulateViewport(int64(c.width), int64(c.height)))
	}
	navigate = append(navigate,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err := chromedp.Run(taskCtx, navigate); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if st := status.Status(); st >= 400 {
		return nil, fmt.Errorf("page returned status %d", st)
	}

	var (
		payload perfPayload
		title   string
		html    string
		nodes   int
	)
	gather := chromedp.Tasks{
		chromedp.Sleep(c.settle),
		chromedp.Evaluate(metricsJS, &payload, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			cdpMetrics, err := performance.GetMetrics().Do(ctx)
			if err != nil {
				c.logger.Debug("performance metrics unavailable", zap.Error(err))
				return nil
			}
			for _, m := range cdpMetrics {
				if m.Name == "Nodes" {
					nodes = int(m.Value)
				}
			}
			return nil
		}),
	}
	if err := chromedp.Run(taskCtx, gather); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	checks, parsedNodes, err := RunChecks([]byte(html))
	if err != nil {
		return nil, err
	}
	if nodes == 0 {
		nodes = parsedNodes
	}

	report := &FullReport{
		URL:       pageURL,
		FinalURL:  status.FinalURL(pageURL),
		Status:    status.Status(),
		Title:     title,
		FCP:       payload.FCP,
		LCP:       payload.LCP,
		CLS:       payload.CLS,
		DOMNodes:  nodes,
		HTMLBytes: len(html),
		Checks:    checks,
	}
	if payload.Nav != nil {
		report.Timing = Timing{
			TTFB:             payload.Nav.TTFB,
			DOMContentLoaded: payload.Nav.DOMContentLoaded,
			Load:             payload.Nav.Load,
			TransferBytes:    payload.Nav.TransferSize,
			EncodedBodyBytes: payload.Nav.EncodedBodySize,
		}
	}
	for _, task := range payload.LongTasks {
		report.LongTasks = append(report.LongTasks, LongTask{
			StartMS:    task.Start,
			DurationMS: task.Duration,
		})
	}
	return report, nil
}

// Close tears down the browser process.
func (c *BrowserCollector) Close() error {
	return c.session.Close()
}
