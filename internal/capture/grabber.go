package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/browser"
)

// Shot is the raw outcome of one page capture.
type Shot struct {
	// Image holds the full-page PNG bytes.
	Image []byte
	// FinalURL is the document URL after redirects.
	FinalURL string
	// Status is the HTTP status of the main document.
	Status int
}

// Grabber captures one page inside an isolated browser context.
type Grabber interface {
	Grab(ctx context.Context, pageURL string) (Shot, error)
}

// dismissOverlayJS clicks the usual cookie/consent dismissals so banners do
// not cover the page content in the screenshot. Best effort only.
const dismissOverlayJS = `(() => {
	const selectors = [
		'[id*="cookie" i] button',
		'[class*="cookie" i] button',
		'[class*="consent" i] button',
		'[class*="overlay" i] button[class*="close" i]',
		'button[aria-label="Close" i]',
		'button[aria-label="Accept" i]',
	];
	let clicks = 0;
	for (const sel of selectors) {
		try {
			const el = document.querySelector(sel);
			if (el) { el.click(); clicks++; }
		} catch (e) {}
	}
	return clicks;
})()`

// BrowserGrabber implements Grabber on a shared headless browser. Each Grab
// opens a fresh tab, wipes cookies and origin storage so page state cannot
// leak between items, and always releases the tab, on success and failure
// alike. The browser process boots lazily on the first Grab; Close must be
// called at stage end.
type BrowserGrabber struct {
	session *browser.Session
	timeout time.Duration
	settle  time.Duration
	quality int
	logger  *zap.Logger
}

// GrabberOptions configures a BrowserGrabber.
type GrabberOptions struct {
	UserAgent string
	Width     int
	Height    int
	// Timeout bounds one navigation plus capture.
	Timeout time.Duration
	// Settle is the pause after load before the screenshot, letting lazy
	// content and dismissed overlays settle.
	Settle time.Duration
}

// NewBrowserGrabber prepares a grabber without starting the browser.
func NewBrowserGrabber(opts GrabberOptions, logger *zap.Logger) *BrowserGrabber {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	settle := opts.Settle
	if settle < 0 {
		settle = 0
	}
	return &BrowserGrabber{
		session: browser.NewSession(browser.Options{
			UserAgent: opts.UserAgent,
			Width:     opts.Width,
			Height:    opts.Height,
		}, logger),
		timeout: timeout,
		settle:  settle,
		quality: 90,
		logger:  logger,
	}
}

// Grab navigates to pageURL and returns a full-page screenshot. It fails
// fast on HTTP status >= 400 without taking a screenshot.
func (g *BrowserGrabber) Grab(ctx context.Context, pageURL string) (Shot, error) {
	tabCtx, cancelTab, err := g.session.Tab()
	if err != nil {
		return Shot{}, err
	}
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, g.timeout)
	defer cancelTask()
	stopForward := browser.ForwardCancel(ctx, cancelTask)
	defer stopForward()

	status := browser.WatchDocumentStatus(tabCtx)

	if err := chromedp.Run(taskCtx, chromedp.Tasks{
		network.Enable(),
		browser.ResetProfile(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}); err != nil {
		return Shot{}, fmt.Errorf("navigate: %w", err)
	}

	if code := status.Status(); code >= 400 {
		return Shot{}, fmt.Errorf("page returned status %d", code)
	}

	var clicks int
	if err := chromedp.Run(taskCtx, chromedp.Evaluate(dismissOverlayJS, &clicks)); err != nil {
		g.logger.Debug("overlay dismissal failed", zap.String("url", pageURL), zap.Error(err))
	} else if clicks > 0 {
		g.logger.Debug("dismissed overlays", zap.String("url", pageURL), zap.Int("clicks", clicks))
	}

	var image []byte
	if err := chromedp.Run(taskCtx, chromedp.Tasks{
		chromedp.Sleep(g.settle),
		chromedp.FullScreenshot(&image, g.quality),
	}); err != nil {
		return Shot{}, fmt.Errorf("screenshot: %w", err)
	}

	return Shot{
		Image:    image,
		FinalURL: status.FinalURL(pageURL),
		Status:   status.Status(),
	}, nil
}

// Close tears down the shared browser process.
func (g *BrowserGrabber) Close() error {
	return g.session.Close()
}
