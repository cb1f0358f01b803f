// Package audit implements the performance audit stage: serialized page
// audits with bounded retries, trimmed into the compact report form that
// downstream analysis consumes.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/artifact"
	"github.com/sitelens/sitelens/internal/batch"
	"github.com/sitelens/sitelens/internal/browser"
	"github.com/sitelens/sitelens/internal/metrics"
)

// auditConcurrency pins the stage to serialized execution; the collector
// misbehaves under parallel load.
const auditConcurrency = 1

// DefaultTimeout bounds one audit attempt.
const DefaultTimeout = 45 * time.Second

// Item is the outcome of one page audit. Exactly one Item exists per input
// URL, in input order. The trimmed report rides on the item; the full
// report lives in the artifact store.
type Item struct {
	URL           string         `json:"url"`
	OK            bool           `json:"ok"`
	Report        *TrimmedReport `json:"report,omitempty"`
	FullReportURI string         `json:"full_report_uri,omitempty"`
	Attempts      int            `json:"attempts"`
	DurationMS    int64          `json:"duration_ms"`
	Error         string         `json:"error,omitempty"`
}

// Summary aggregates one stage run.
type Summary struct {
	Total           int     `json:"total"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Clock supplies time for durations.
type Clock interface {
	Now() time.Time
}

// Config tunes the audit stage.
type Config struct {
	// Attempts is the total number of tries per page, including the first.
	Attempts int
	// Backoff is the fixed wait between tries.
	Backoff time.Duration
	// Timeout bounds a single audit attempt.
	Timeout time.Duration
	// Settle is the post-load pause before metrics are read.
	Settle time.Duration
	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string
	// Width and Height set the emulated viewport.
	Width  int
	Height int
	// OnItem, when set, observes each settled item and must not block.
	OnItem func(Item)
}

// Stage audits a list of page URLs. A fresh Stage is built per job run;
// the underlying browser process belongs to one Run call.
type Stage struct {
	cfg       Config
	store     artifact.Store
	clock     Clock
	logger    *zap.Logger
	collector Collector
}

// New builds an audit stage persisting full reports through store. A nil
// collector selects the browser-backed implementation; tests inject fakes.
func New(cfg Config, store artifact.Store, collector Collector, clk Clock, logger *zap.Logger) *Stage {
	if cfg.Attempts < 1 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{
		cfg:       cfg,
		store:     store,
		clock:     clk,
		logger:    logger,
		collector: collector,
	}
}

// Run audits every URL and returns one Item per input in input order. A
// failed audit is recorded on its Item after the retry budget is spent and
// never aborts the batch; only a browser that cannot start fails the stage.
func (s *Stage) Run(ctx context.Context, jobID string, urls []string) ([]Item, Summary, error) {
	start := s.clock.Now()

	collector := s.collector
	if collector == nil {
		bc := NewBrowserCollector(CollectorOptions{
			UserAgent: s.cfg.UserAgent,
			Width:     s.cfg.Width,
			Height:    s.cfg.Height,
			Timeout:   s.cfg.Timeout,
			Settle:    s.cfg.Settle,
		}, s.logger)
		defer func() {
			if err := bc.Close(); err != nil {
				s.logger.Warn("browser close failed", zap.Error(err))
			}
		}()
		collector = bc
	}

	policy := NewRetryPolicy(s.cfg.Attempts, s.cfg.Backoff)
	results := batch.Run(ctx, urls, auditConcurrency, func(ctx context.Context, index int, pageURL string) (Item, error) {
		return s.auditOne(ctx, collector, policy, jobID, index, pageURL)
	})

	items := make([]Item, len(results))
	summary := Summary{Total: len(results)}
	for i, res := range results {
		if res.Ok() {
			items[i] = res.Value
			summary.Successful++
		} else {
			if errors.Is(res.Err, browser.ErrStart) {
				return nil, Summary{}, fmt.Errorf("audit stage: %w", res.Err)
			}
			items[i] = Item{
				URL:   urls[i],
				OK:    false,
				Error: res.Err.Error(),
			}
			summary.Failed++
		}
		if s.cfg.OnItem != nil {
			s.cfg.OnItem(items[i])
		}
	}
	summary.DurationSeconds = s.clock.Now().Sub(start).Seconds()

	s.logger.Info("audit stage finished",
		zap.String("job_id", jobID),
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Float64("duration_seconds", summary.DurationSeconds),
	)
	return items, summary, nil
}

func (s *Stage) auditOne(ctx context.Context, collector Collector, policy *RetryPolicy, jobID string, index int, pageURL string) (Item, error) {
	start := s.clock.Now()

	var full *FullReport
	attempts, err := policy.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		var collectErr error
		full, collectErr = collector.Collect(attemptCtx, pageURL)
		return collectErr
	})
	duration := s.clock.Now().Sub(start)
	metrics.ObserveAuditItem(err == nil)
	if err != nil {
		s.logger.Warn("audit failed",
			zap.String("url", pageURL),
			zap.Int("index", index),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return Item{}, fmt.Errorf("audit %s: %w", pageURL, err)
	}

	raw, err := json.Marshal(full)
	if err != nil {
		return Item{}, fmt.Errorf("encode report for %s: %w", pageURL, err)
	}
	relPath := path.Join(jobID, "audits", fmt.Sprintf("%03d_full.json", index))
	uri, err := s.store.Put(ctx, relPath, "application/json", raw)
	if err != nil {
		return Item{}, fmt.Errorf("store report %s: %w", relPath, err)
	}

	trimmed := Trim(full)
	return Item{
		URL:           pageURL,
		OK:            true,
		Report:        &trimmed,
		FullReportURI: uri,
		Attempts:      attempts,
		DurationMS:    duration.Milliseconds(),
	}, nil
}
