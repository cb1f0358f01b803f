package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist. API layers
// map it to 404; callers must not treat it as an infrastructure failure.
var ErrNotFound = errors.New("record not found")

// JobStatus enumerates the job lifecycle states.
type JobStatus string

// Job lifecycle states. Completed and Failed are terminal.
const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether s is a known lifecycle state.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed:
		return true
	default:
		return false
	}
}

// JobRecord is the persisted snapshot of a pipeline job.
type JobRecord struct {
	// ID is the job identifier handed back to submitters.
	ID uuid.UUID
	// StartURL is the seed the pipeline was asked to process.
	StartURL string
	// Status is pending/running/completed/failed.
	Status JobStatus
	// Progress is the percentage of completed stages (0..100).
	Progress int
	// Stage names the phase currently executing, empty before start.
	Stage string
	// Message carries human-readable detail about the current step.
	Message string
	// Error holds the failure reason once Status is failed.
	Error string
	// Result holds the marshaled stage outputs once the job completed. The
	// store treats it as opaque JSON.
	Result []byte
	// ReportPath is the artifact location of the trimmed report, set on
	// successful completion.
	ReportPath string
	// CreatedAt is when the job was accepted.
	CreatedAt time.Time
	// StartedAt is nil until a runner picks the job up.
	StartedAt *time.Time
	// FinishedAt is nil until the job reaches a terminal status.
	FinishedAt *time.Time
}

// SiteStats captures per-site aggregation for a job.
type SiteStats struct {
	// JobID is the owning job.
	JobID uuid.UUID
	// Site is the normalized host label (e.g. example.com).
	Site string
	// LastUpdate captures the timestamp of the most recent aggregate.
	LastUpdate time.Time
	// Visits counts completed pages for the site.
	Visits int64
	// BytesTotal accumulates response bytes.
	BytesTotal int64
	// Status2xx-5xx hold per-status-class counts for diagnostics.
	Status2xx int64
	Status3xx int64
	Status4xx int64
	Status5xx int64
}

// Repository persists job snapshots. Writes for a given job come from a
// single goroutine (its runner); reads may happen concurrently.
type Repository interface {
	// CreateJob inserts a new job record. The record's status is expected
	// to be pending.
	CreateJob(ctx context.Context, rec JobRecord) error
	// UpdateJob replaces the stored snapshot for rec.ID, returning
	// ErrNotFound when the job was never created.
	UpdateJob(ctx context.Context, rec JobRecord) error
	// GetJob loads a single job or returns ErrNotFound.
	GetJob(ctx context.Context, id uuid.UUID) (JobRecord, error)
	// ListJobs returns jobs filtered by optional status plus limit/offset,
	// newest first.
	ListJobs(ctx context.Context, status *JobStatus, limit, offset int) ([]JobRecord, error)
}

// StatsRecorder accumulates per-site visit statistics for a job.
type StatsRecorder interface {
	// UpsertSiteStats applies visit/byte deltas per (job, site, statusClass).
	UpsertSiteStats(
		ctx context.Context,
		jobID uuid.UUID,
		site string,
		deltaVisits int64,
		deltaBytes int64,
		statusClass string,
		at time.Time,
	) error
	// ListJobSites returns aggregated site stats for one job.
	ListJobSites(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]SiteStats, error)
}
