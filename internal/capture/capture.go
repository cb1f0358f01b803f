// Package capture implements the screenshot stage: bounded-concurrency page
// captures on one shared browser, persisted through the artifact store.
package capture

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/artifact"
	"github.com/sitelens/sitelens/internal/batch"
	"github.com/sitelens/sitelens/internal/browser"
	"github.com/sitelens/sitelens/internal/hash/sha256"
	"github.com/sitelens/sitelens/internal/metrics"
)

// Viewport is the browser window size used for captures.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Item is the outcome of one page capture. Exactly one Item exists per
// input URL, in input order, whether or not the capture succeeded.
type Item struct {
	URL          string    `json:"url"`
	OK           bool      `json:"ok"`
	Filename     string    `json:"filename,omitempty"`
	RelativePath string    `json:"relative_path,omitempty"`
	URI          string    `json:"uri,omitempty"`
	SHA256       string    `json:"sha256,omitempty"`
	CapturedAt   time.Time `json:"captured_at,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	Viewport     Viewport  `json:"viewport"`
	Error        string    `json:"error,omitempty"`
}

// Summary aggregates one stage run.
type Summary struct {
	Total           int     `json:"total"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Clock supplies time for item stamps and durations.
type Clock interface {
	Now() time.Time
}

// Config tunes the capture stage.
type Config struct {
	// Concurrency bounds how many captures run at once.
	Concurrency int
	// Timeout bounds one navigation plus screenshot.
	Timeout time.Duration
	// Settle is the post-load pause before the screenshot.
	Settle time.Duration
	// Viewport sets the browser window size.
	Viewport Viewport
	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string
	// OnItem, when set, observes each settled item. It runs on a capture
	// goroutine and must not block.
	OnItem func(Item)
}

// Default stage settings.
const (
	DefaultConcurrency = 2
	DefaultTimeout     = 30 * time.Second
	DefaultSettle      = 2 * time.Second
)

// Stage captures screenshots for a list of page URLs. A fresh Stage is
// built per job run; the underlying browser process belongs to one Run call
// and is always torn down when Run returns.
type Stage struct {
	cfg     Config
	store   artifact.Store
	clock   Clock
	logger  *zap.Logger
	grabber Grabber
	hasher  *sha256.Hasher
}

// New builds a capture stage writing screenshots through store. A nil
// grabber selects the browser-backed implementation; tests inject fakes.
func New(cfg Config, store artifact.Store, grabber Grabber, clk Clock, logger *zap.Logger) *Stage {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.Viewport.Width <= 0 || cfg.Viewport.Height <= 0 {
		cfg.Viewport = Viewport{Width: 1366, Height: 900}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{
		cfg:     cfg,
		store:   store,
		clock:   clk,
		logger:  logger,
		grabber: grabber,
		hasher:  sha256.New(),
	}
}

// Run captures every URL and returns one Item per input in input order. A
// failed capture is recorded on its Item and never aborts the batch; only a
// browser that cannot start fails the whole stage.
func (s *Stage) Run(ctx context.Context, jobID string, urls []string) ([]Item, Summary, error) {
	start := s.clock.Now()

	grabber := s.grabber
	if grabber == nil {
		bg := NewBrowserGrabber(GrabberOptions{
			UserAgent: s.cfg.UserAgent,
			Width:     s.cfg.Viewport.Width,
			Height:    s.cfg.Viewport.Height,
			Timeout:   s.cfg.Timeout,
			Settle:    s.cfg.Settle,
		}, s.logger)
		defer func() {
			if err := bg.Close(); err != nil {
				s.logger.Warn("browser close failed", zap.Error(err))
			}
		}()
		grabber = bg
	}

	results := batch.Run(ctx, urls, s.cfg.Concurrency, func(ctx context.Context, index int, pageURL string) (Item, error) {
		return s.captureOne(ctx, grabber, jobID, index, pageURL)
	})

	items := make([]Item, len(results))
	summary := Summary{Total: len(results)}
	for i, res := range results {
		if res.Ok() {
			items[i] = res.Value
			summary.Successful++
		} else {
			if errors.Is(res.Err, browser.ErrStart) {
				return nil, Summary{}, fmt.Errorf("capture stage: %w", res.Err)
			}
			items[i] = Item{
				URL:      urls[i],
				OK:       false,
				Viewport: s.cfg.Viewport,
				Error:    res.Err.Error(),
			}
			summary.Failed++
		}
		if s.cfg.OnItem != nil {
			s.cfg.OnItem(items[i])
		}
	}
	summary.DurationSeconds = s.clock.Now().Sub(start).Seconds()

	s.logger.Info("capture stage finished",
		zap.String("job_id", jobID),
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Float64("duration_seconds", summary.DurationSeconds),
	)
	return items, summary, nil
}

func (s *Stage) captureOne(ctx context.Context, grabber Grabber, jobID string, index int, pageURL string) (Item, error) {
	itemCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := s.clock.Now()
	shot, err := grabber.Grab(itemCtx, pageURL)
	duration := s.clock.Now().Sub(start)
	metrics.ObserveCaptureItem(err == nil)
	if err != nil {
		s.logger.Warn("capture failed",
			zap.String("url", pageURL),
			zap.Int("index", index),
			zap.Error(err),
		)
		return Item{}, fmt.Errorf("capture %s: %w", pageURL, err)
	}

	filename := Filename(index, pageURL)
	digest, err := s.hasher.Hash(shot.Image)
	if err != nil {
		return Item{}, fmt.Errorf("hash screenshot %s: %w", filename, err)
	}

	relPath := path.Join(jobID, "screenshots", filename)
	uri, err := s.store.Put(ctx, relPath, "image/png", shot.Image)
	if err != nil {
		return Item{}, fmt.Errorf("store screenshot %s: %w", filename, err)
	}

	return Item{
		URL:          pageURL,
		OK:           true,
		Filename:     filename,
		RelativePath: relPath,
		URI:          uri,
		SHA256:       digest,
		CapturedAt:   start.UTC(),
		DurationMS:   duration.Milliseconds(),
		Viewport:     s.cfg.Viewport,
	}, nil
}
