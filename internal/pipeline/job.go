// Package pipeline owns job execution: a bounded queue accepts submissions,
// a dispatcher fans tasks out to runner goroutines, and each runner walks
// its job through the crawl, capture, audit, and publish stages. The runner
// that picks a job up is the only writer of that job's record; stages report
// upward through callbacks and never touch job state themselves.
package pipeline

import (
	"time"

	"github.com/sitelens/sitelens/internal/audit"
	"github.com/sitelens/sitelens/internal/capture"
	"github.com/sitelens/sitelens/internal/crawl"
)

// Stage names a pipeline phase. The values appear in job records, progress
// events, and metrics labels.
type Stage string

// Pipeline phases in execution order.
const (
	StageCrawl   Stage = "crawl"
	StageCapture Stage = "capture"
	StageAudit   Stage = "audit"
	StagePublish Stage = "publish"
)

// stageOrder fixes the sequence; progress percentages derive from the
// position of the finished stage in this list.
var stageOrder = []Stage{StageCrawl, StageCapture, StageAudit, StagePublish}

// progressAfter returns the job progress once stage has finished, as a
// whole percentage of completed stages.
func progressAfter(stage Stage) int {
	for i, s := range stageOrder {
		if s == stage {
			return (i + 1) * 100 / len(stageOrder)
		}
	}
	return 0
}

// Request describes one job submission.
type Request struct {
	// StartURL is the seed page; Submit normalizes it before queueing.
	StartURL string `json:"start_url"`
	// MaxPages overrides the configured visit bound when positive.
	MaxPages int `json:"max_pages,omitempty"`
}

// CrawlOutput is the crawl stage's contribution to the job result.
type CrawlOutput struct {
	URLs  []string    `json:"urls"`
	Stats crawl.Stats `json:"stats"`
}

// CaptureOutput is the capture stage's contribution to the job result.
type CaptureOutput struct {
	Items   []capture.Item  `json:"items"`
	Summary capture.Summary `json:"summary"`
}

// AuditOutput is the audit stage's contribution to the job result.
type AuditOutput struct {
	Items   []audit.Item  `json:"items"`
	Summary audit.Summary `json:"summary"`
}

// PublishOutput records where the job report went.
type PublishOutput struct {
	// ReportURI is the artifact location of the report tree.
	ReportURI string `json:"report_uri,omitempty"`
	// Topic and MessageID identify the hand-off message when a publisher
	// is configured.
	Topic     string `json:"topic,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Result accumulates stage outputs for one job. Completed jobs persist it
// marshaled on the job record and as the report artifact.
type Result struct {
	StartURL string        `json:"start_url"`
	Crawl    CrawlOutput   `json:"crawl"`
	Capture  CaptureOutput `json:"capture"`
	Audit    AuditOutput   `json:"audit"`
	Publish  PublishOutput `json:"publish"`
}

// Summary is the hand-off payload published for the analysis service once a
// job completes: artifact URIs plus the trimmed reports.
type Summary struct {
	JobID        string       `json:"job_id"`
	StartURL     string       `json:"start_url"`
	PagesCrawled int          `json:"pages_crawled"`
	ReportURI    string       `json:"report_uri,omitempty"`
	Screenshots  []string     `json:"screenshots,omitempty"`
	Audits       []audit.Item `json:"audits,omitempty"`
}

// Clock supplies wall-clock time for job records and events.
type Clock interface {
	Now() time.Time
}
