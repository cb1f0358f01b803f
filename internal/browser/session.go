// Package browser manages the shared headless Chrome process used by the
// capture and audit stages. One Session maps to one browser process; each
// stage run owns its own Session so concurrent jobs never share state.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrStart marks a failure to boot the browser process. Stages treat it as
// fatal for the whole stage rather than as a per-item failure.
var ErrStart = errors.New("browser start failed")

// ErrSessionClosed is returned by Tab after Close.
var ErrSessionClosed = errors.New("browser session closed")

// Options configures the browser process.
type Options struct {
	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string
	// Width and Height set the window size; both must be positive to apply.
	Width  int
	Height int
}

// Session owns one headless browser process. The process boots lazily on the
// first Tab call and must be torn down with Close at stage end, including on
// error paths; a leaked process is a defect. All methods are safe for
// concurrent use.
type Session struct {
	opts   Options
	logger *zap.Logger

	mu            sync.Mutex
	started       bool
	startErr      error
	closed        bool
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewSession prepares a Session without starting the process.
func NewSession(opts Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{opts: opts, logger: logger}
}

// Tab returns a fresh tab context on the shared process, booting the process
// on first use. The caller must invoke cancel once done with the tab. A boot
// failure is remembered and reported to every subsequent caller.
func (s *Session) Tab() (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrSessionClosed
	}
	if !s.started {
		s.started = true
		s.startErr = s.start()
	}
	if s.startErr != nil {
		return nil, nil, s.startErr
	}
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	return tabCtx, cancel, nil
}

// start boots the process. Caller holds s.mu.
func (s *Session) start() error {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	if s.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.opts.UserAgent))
	}
	if s.opts.Width > 0 && s.opts.Height > 0 {
		opts = append(opts, chromedp.WindowSize(s.opts.Width, s.opts.Height))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("%w: %s", ErrStart, err)
	}

	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.logger.Debug("browser process started")
	return nil
}

// Alive reports whether the process is running.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && s.startErr == nil && !s.closed
}

// Close tears down the browser and its allocator. It is idempotent and safe
// to call even when the process never started.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	if s.started && s.startErr == nil {
		s.logger.Debug("browser process closed")
	}
	return nil
}

// ForwardCancel invokes cancel when parent is done, bridging a caller
// context into a tab context that chromedp derived elsewhere. The returned
// stop function must be called to release the watcher goroutine.
func ForwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
