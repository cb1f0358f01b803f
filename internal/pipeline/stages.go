package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/artifact"
	"github.com/sitelens/sitelens/internal/audit"
	"github.com/sitelens/sitelens/internal/capture"
	"github.com/sitelens/sitelens/internal/crawl"
)

// Stages runs the heavy pipeline phases for one job. The runner depends on
// this interface so tests can stand in fakes for the browser-backed work.
type Stages interface {
	Crawl(ctx context.Context, req Request, onVisit crawl.VisitFunc) (*crawl.Result, error)
	Capture(ctx context.Context, jobID string, urls []string, onItem func(capture.Item)) ([]capture.Item, capture.Summary, error)
	Audit(ctx context.Context, jobID string, urls []string, onItem func(audit.Item)) ([]audit.Item, audit.Summary, error)
}

// StageConfig carries the per-stage tunables shared by every job.
type StageConfig struct {
	// Crawl supplies the default crawl options; a request's MaxPages
	// overrides the configured bound when positive.
	Crawl crawl.Options
	// Capture and Audit are templates; the runner's callbacks are injected
	// per job.
	Capture capture.Config
	Audit   audit.Config
}

// StageSet is the production Stages implementation. The crawl engine is
// shared across jobs so its robots cache and per-host pacing persist;
// capture and audit stages are rebuilt per call so every run owns a fresh
// browser process.
type StageSet struct {
	engine *crawl.Engine
	store  artifact.Store
	clock  Clock
	logger *zap.Logger
	cfg    StageConfig
}

// NewStageSet assembles the production stages around a shared crawl engine
// and artifact store.
func NewStageSet(cfg StageConfig, engine *crawl.Engine, store artifact.Store, clk Clock, logger *zap.Logger) *StageSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageSet{
		engine: engine,
		store:  store,
		clock:  clk,
		logger: logger,
		cfg:    cfg,
	}
}

// Crawl walks the site from the request seed.
func (s *StageSet) Crawl(ctx context.Context, req Request, onVisit crawl.VisitFunc) (*crawl.Result, error) {
	opts := s.cfg.Crawl
	if req.MaxPages > 0 {
		opts.MaxPages = req.MaxPages
	}
	opts.OnVisit = onVisit
	return s.engine.Crawl(ctx, req.StartURL, opts)
}

// Capture screenshots the crawled pages on a stage-owned browser.
func (s *StageSet) Capture(ctx context.Context, jobID string, urls []string, onItem func(capture.Item)) ([]capture.Item, capture.Summary, error) {
	cfg := s.cfg.Capture
	cfg.OnItem = onItem
	stage := capture.New(cfg, s.store, nil, s.clock, s.logger.Named("capture"))
	return stage.Run(ctx, jobID, urls)
}

// Audit runs the performance audits on a stage-owned browser.
func (s *StageSet) Audit(ctx context.Context, jobID string, urls []string, onItem func(audit.Item)) ([]audit.Item, audit.Summary, error) {
	cfg := s.cfg.Audit
	cfg.OnItem = onItem
	stage := audit.New(cfg, s.store, nil, s.clock, s.logger.Named("audit"))
	return stage.Run(ctx, jobID, urls)
}
