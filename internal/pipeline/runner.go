package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/artifact"
	"github.com/sitelens/sitelens/internal/audit"
	"github.com/sitelens/sitelens/internal/capture"
	"github.com/sitelens/sitelens/internal/crawl"
	"github.com/sitelens/sitelens/internal/metrics"
	"github.com/sitelens/sitelens/internal/notify"
	"github.com/sitelens/sitelens/internal/progress"
	"github.com/sitelens/sitelens/internal/store"
)

// Runner executes dequeued jobs. It is the single writer of the job records
// it picks up: every status, stage, and progress transition goes through it,
// while stages only report upward via callbacks.
type Runner struct {
	repo      store.Repository
	stages    Stages
	artifacts artifact.Store
	publisher notify.Publisher
	hub       *progress.Hub
	clock     Clock
	logger    *zap.Logger
	topic     string
}

// NewRunner wires a runner. publisher may be nil when no hand-off is
// configured; the publish stage then only writes the report artifact.
func NewRunner(
	repo store.Repository,
	stages Stages,
	artifacts artifact.Store,
	publisher notify.Publisher,
	hub *progress.Hub,
	clk Clock,
	topic string,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		repo:      repo,
		stages:    stages,
		artifacts: artifacts,
		publisher: publisher,
		hub:       hub,
		clock:     clk,
		logger:    logger,
		topic:     topic,
	}
}

// Execute walks one job through crawl, capture, audit, and publish. A stage
// error moves the job to failed with the failing stage recorded; progress
// only ever increases while the job runs.
func (r *Runner) Execute(ctx context.Context, task Task) {
	logger := r.logger.With(zap.String("job_id", task.JobID.String()))

	rec, err := r.repo.GetJob(ctx, task.JobID)
	if err != nil {
		logger.Error("load queued job", zap.Error(err))
		return
	}
	if rec.Status != store.JobPending {
		logger.Warn("skipping job not in pending state", zap.String("status", string(rec.Status)))
		return
	}

	jobStart := r.clock.Now()
	rec.Status = store.JobRunning
	rec.Stage = string(StageCrawl)
	rec.Progress = 0
	rec.Message = "crawling " + task.Request.StartURL
	rec.StartedAt = &jobStart
	if err := r.repo.UpdateJob(ctx, rec); err != nil {
		logger.Error("mark job running", zap.Error(err))
		return
	}

	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()
	r.emitJob(task.JobID, progress.KindJobStart, "", 0, "")
	logger.Info("job started", zap.String("start_url", task.Request.StartURL))

	result := Result{StartURL: task.Request.StartURL}

	crawlOut, err := r.runCrawl(ctx, task)
	if err != nil {
		r.fail(ctx, logger, rec, StageCrawl, jobStart, err)
		return
	}
	result.Crawl = crawlOut
	rec = r.advance(ctx, logger, rec, StageCrawl, StageCapture,
		fmt.Sprintf("capturing %d pages", len(crawlOut.URLs)))

	captureOut, err := r.runCapture(ctx, task.JobID, crawlOut.URLs)
	if err != nil {
		r.fail(ctx, logger, rec, StageCapture, jobStart, err)
		return
	}
	result.Capture = captureOut
	rec = r.advance(ctx, logger, rec, StageCapture, StageAudit,
		fmt.Sprintf("auditing %d pages", len(crawlOut.URLs)))

	auditOut, err := r.runAudit(ctx, task.JobID, crawlOut.URLs)
	if err != nil {
		r.fail(ctx, logger, rec, StageAudit, jobStart, err)
		return
	}
	result.Audit = auditOut
	rec = r.advance(ctx, logger, rec, StageAudit, StagePublish, "publishing report")

	publishOut, err := r.runPublish(ctx, task.JobID, &result)
	if err != nil {
		r.fail(ctx, logger, rec, StagePublish, jobStart, err)
		return
	}
	result.Publish = publishOut

	r.complete(ctx, logger, rec, result, jobStart)
}

func (r *Runner) runCrawl(ctx context.Context, task Task) (CrawlOutput, error) {
	r.emitStage(task.JobID, progress.KindStageStart, StageCrawl, 0)
	start := r.clock.Now()

	var res *crawl.Result
	err := guard(StageCrawl, func() (err error) {
		res, err = r.stages.Crawl(ctx, task.Request, r.visitObserver(task.JobID))
		return err
	})
	if err != nil {
		return CrawlOutput{}, err
	}

	dur := r.clock.Now().Sub(start)
	metrics.ObserveStageDuration(string(StageCrawl), dur)
	r.emitStage(task.JobID, progress.KindStageDone, StageCrawl, dur)

	urls := make([]string, len(res.URLs))
	for i, u := range res.URLs {
		urls[i] = u.URL
	}
	return CrawlOutput{URLs: urls, Stats: res.Stats}, nil
}

func (r *Runner) runCapture(ctx context.Context, jobID uuid.UUID, urls []string) (CaptureOutput, error) {
	r.emitStage(jobID, progress.KindStageStart, StageCapture, 0)
	start := r.clock.Now()

	var out CaptureOutput
	err := guard(StageCapture, func() (err error) {
		out.Items, out.Summary, err = r.stages.Capture(ctx, jobID.String(), urls, r.captureObserver(jobID))
		return err
	})
	if err != nil {
		return CaptureOutput{}, err
	}

	dur := r.clock.Now().Sub(start)
	metrics.ObserveStageDuration(string(StageCapture), dur)
	r.emitStage(jobID, progress.KindStageDone, StageCapture, dur)
	return out, nil
}

func (r *Runner) runAudit(ctx context.Context, jobID uuid.UUID, urls []string) (AuditOutput, error) {
	r.emitStage(jobID, progress.KindStageStart, StageAudit, 0)
	start := r.clock.Now()

	var out AuditOutput
	err := guard(StageAudit, func() (err error) {
		out.Items, out.Summary, err = r.stages.Audit(ctx, jobID.String(), urls, r.auditObserver(jobID))
		return err
	})
	if err != nil {
		return AuditOutput{}, err
	}

	dur := r.clock.Now().Sub(start)
	metrics.ObserveStageDuration(string(StageAudit), dur)
	r.emitStage(jobID, progress.KindStageDone, StageAudit, dur)
	return out, nil
}

// runPublish writes the report artifact and, when a publisher is wired,
// hands the job summary to the analysis service. The report artifact holds
// the crawl, capture, and audit outputs; it cannot contain its own URI.
func (r *Runner) runPublish(ctx context.Context, jobID uuid.UUID, result *Result) (PublishOutput, error) {
	r.emitStage(jobID, progress.KindStageStart, StagePublish, 0)
	start := r.clock.Now()

	var out PublishOutput
	err := guard(StagePublish, func() error {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal job result: %w", err)
		}
		uri, err := r.artifacts.Put(ctx, path.Join(jobID.String(), "report.json"), "application/json", raw)
		if err != nil {
			return fmt.Errorf("store job report: %w", err)
		}
		out.ReportURI = uri

		if r.publisher == nil {
			return nil
		}
		summary := Summary{
			JobID:        jobID.String(),
			StartURL:     result.StartURL,
			PagesCrawled: result.Crawl.Stats.PagesCrawled,
			ReportURI:    uri,
			Screenshots:  screenshotURIs(result.Capture.Items),
			Audits:       result.Audit.Items,
		}
		id, err := r.publisher.Publish(ctx, r.topic, summary)
		if err != nil {
			return fmt.Errorf("publish job summary: %w", err)
		}
		out.Topic = r.topic
		out.MessageID = id
		return nil
	})
	if err != nil {
		return PublishOutput{}, err
	}

	dur := r.clock.Now().Sub(start)
	metrics.ObserveStageDuration(string(StagePublish), dur)
	r.emitStage(jobID, progress.KindStageDone, StagePublish, dur)
	return out, nil
}

// advance records a finished stage: progress jumps to the completed-stage
// percentage and the record points at the next phase. A write failure is
// logged but does not stop the job; the next transition retries the row.
func (r *Runner) advance(
	ctx context.Context,
	logger *zap.Logger,
	rec store.JobRecord,
	finished, next Stage,
	message string,
) store.JobRecord {
	rec.Progress = progressAfter(finished)
	rec.Stage = string(next)
	rec.Message = message
	if err := r.repo.UpdateJob(ctx, rec); err != nil {
		logger.Error("record stage progress",
			zap.String("stage", string(finished)),
			zap.Error(err),
		)
	}
	return rec
}

// fail moves the job to its terminal failed state. The write uses a
// detached context so shutdown cancellation cannot strand the job in
// running.
func (r *Runner) fail(
	ctx context.Context,
	logger *zap.Logger,
	rec store.JobRecord,
	stage Stage,
	jobStart time.Time,
	stageErr error,
) {
	now := r.clock.Now()
	rec.Status = store.JobFailed
	rec.Stage = string(stage)
	rec.Message = fmt.Sprintf("failed during %s", stage)
	rec.Error = stageErr.Error()
	rec.FinishedAt = &now
	if err := r.repo.UpdateJob(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("record job failure", zap.Error(err))
	}
	metrics.ObserveJob("failed")
	r.emitJob(rec.ID, progress.KindJobError, string(stage), now.Sub(jobStart), stageErr.Error())
	logger.Warn("job failed",
		zap.String("stage", string(stage)),
		zap.Error(stageErr),
	)
}

func (r *Runner) complete(
	ctx context.Context,
	logger *zap.Logger,
	rec store.JobRecord,
	result Result,
	jobStart time.Time,
) {
	raw, err := json.Marshal(result)
	if err != nil {
		r.fail(ctx, logger, rec, StagePublish, jobStart, fmt.Errorf("marshal job result: %w", err))
		return
	}

	now := r.clock.Now()
	rec.Status = store.JobCompleted
	rec.Progress = 100
	rec.Message = fmt.Sprintf("crawled %d pages, captured %d screenshots, audited %d pages",
		result.Crawl.Stats.PagesCrawled,
		result.Capture.Summary.Successful,
		result.Audit.Summary.Successful,
	)
	rec.Result = raw
	rec.ReportPath = result.Publish.ReportURI
	rec.FinishedAt = &now
	if err := r.repo.UpdateJob(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("record job completion", zap.Error(err))
	}
	metrics.ObserveJob("completed")
	r.emitJob(rec.ID, progress.KindJobDone, "", now.Sub(jobStart), "")
	logger.Info("job completed",
		zap.Int("pages_crawled", result.Crawl.Stats.PagesCrawled),
		zap.Int("screenshots", result.Capture.Summary.Successful),
		zap.Int("audits", result.Audit.Summary.Successful),
		zap.Duration("duration", now.Sub(jobStart)),
	)
}

func (r *Runner) visitObserver(jobID uuid.UUID) crawl.VisitFunc {
	return func(v crawl.Visit) {
		evt := progress.Event{
			JobID:       progress.UUIDToBytes(jobID),
			TS:          r.clock.Now(),
			Kind:        progress.KindPageVisit,
			Stage:       string(StageCrawl),
			Site:        v.URL.Host,
			URL:         v.URL.URL,
			Bytes:       v.Bytes,
			StatusClass: progress.ClassifyStatus(v.Status),
			OK:          v.Err == nil,
			Dur:         v.Duration,
		}
		if v.Err != nil {
			evt.Note = v.Err.Error()
		}
		r.hub.Emit(evt)
	}
}

func (r *Runner) captureObserver(jobID uuid.UUID) func(capture.Item) {
	return func(item capture.Item) {
		r.hub.Emit(progress.Event{
			JobID: progress.UUIDToBytes(jobID),
			TS:    r.clock.Now(),
			Kind:  progress.KindItemDone,
			Stage: string(StageCapture),
			URL:   item.URL,
			OK:    item.OK,
			Dur:   time.Duration(item.DurationMS) * time.Millisecond,
			Note:  item.Error,
		})
	}
}

func (r *Runner) auditObserver(jobID uuid.UUID) func(audit.Item) {
	return func(item audit.Item) {
		r.hub.Emit(progress.Event{
			JobID: progress.UUIDToBytes(jobID),
			TS:    r.clock.Now(),
			Kind:  progress.KindItemDone,
			Stage: string(StageAudit),
			URL:   item.URL,
			OK:    item.OK,
			Dur:   time.Duration(item.DurationMS) * time.Millisecond,
			Note:  item.Error,
		})
	}
}

func (r *Runner) emitStage(jobID uuid.UUID, kind progress.Kind, stage Stage, dur time.Duration) {
	r.hub.Emit(progress.Event{
		JobID: progress.UUIDToBytes(jobID),
		TS:    r.clock.Now(),
		Kind:  kind,
		Stage: string(stage),
		Dur:   dur,
	})
}

func (r *Runner) emitJob(jobID uuid.UUID, kind progress.Kind, stage string, dur time.Duration, note string) {
	r.hub.Emit(progress.Event{
		JobID: progress.UUIDToBytes(jobID),
		TS:    r.clock.Now(),
		Kind:  kind,
		Stage: stage,
		Dur:   dur,
		Note:  note,
	})
}

func screenshotURIs(items []capture.Item) []string {
	uris := make([]string, 0, len(items))
	for _, item := range items {
		if item.OK && item.URI != "" {
			uris = append(uris, item.URI)
		}
	}
	if len(uris) == 0 {
		return nil
	}
	return uris
}

// guard invokes one stage and converts a panic into an error so the job
// still reaches its failure transition.
func guard(stage Stage, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s stage panicked: %v", stage, rec)
		}
	}()
	return fn()
}
