// Package memory provides an in-memory job repository for development and
// tests. All methods are safe for concurrent use and return copies, so
// callers can never mutate stored state through a returned record.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sitelens/sitelens/internal/store"
)

// Store implements store.Repository and store.StatsRecorder on maps.
type Store struct {
	mu    sync.RWMutex
	jobs  map[uuid.UUID]store.JobRecord
	order []uuid.UUID
	stats map[uuid.UUID]map[string]store.SiteStats
}

// New creates an empty store.
func New() *Store {
	return &Store{
		jobs:  make(map[uuid.UUID]store.JobRecord),
		stats: make(map[uuid.UUID]map[string]store.SiteStats),
	}
}

// CreateJob stores a new job record.
func (s *Store) CreateJob(_ context.Context, job store.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = copyJob(job)
	s.order = append(s.order, job.ID)
	return nil
}

// UpdateJob replaces a job record. Terminal records are immutable.
func (s *Store) UpdateJob(_ context.Context, job store.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.jobs[job.ID]
	if !exists {
		return store.ErrNotFound
	}
	if current.Status.Terminal() {
		return fmt.Errorf("job %s is already %s", job.ID, current.Status)
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// GetJob returns a copy of the job record.
func (s *Store) GetJob(_ context.Context, id uuid.UUID) (store.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, exists := s.jobs[id]
	if !exists {
		return store.JobRecord{}, store.ErrNotFound
	}
	return copyJob(job), nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *Store) ListJobs(_ context.Context, status *store.JobStatus, limit, offset int) ([]store.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]store.JobRecord, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		job := s.jobs[s.order[i]]
		if status != nil && job.Status != *status {
			continue
		}
		matched = append(matched, job)
	}
	return pageJobs(matched, limit, offset), nil
}

// UpsertSiteStats accumulates per-site crawl counters for a job.
func (s *Store) UpsertSiteStats(
	_ context.Context,
	jobID uuid.UUID,
	site string,
	deltaVisits, deltaBytes int64,
	statusClass string,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sites, exists := s.stats[jobID]
	if !exists {
		sites = make(map[string]store.SiteStats)
		s.stats[jobID] = sites
	}
	stat, exists := sites[site]
	if !exists {
		stat = store.SiteStats{JobID: jobID, Site: site}
	}
	stat.Visits += deltaVisits
	stat.BytesTotal += deltaBytes
	switch statusClass {
	case "2xx":
		stat.Status2xx += deltaVisits
	case "3xx":
		stat.Status3xx += deltaVisits
	case "4xx":
		stat.Status4xx += deltaVisits
	case "5xx":
		stat.Status5xx += deltaVisits
	default:
		return fmt.Errorf("unknown status class: %s", statusClass)
	}
	if at.After(stat.LastUpdate) {
		stat.LastUpdate = at
	}
	sites[site] = stat
	return nil
}

// ListJobSites returns a job's per-site stats, most recently updated first.
func (s *Store) ListJobSites(_ context.Context, jobID uuid.UUID, limit, offset int) ([]store.SiteStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sites := make([]store.SiteStats, 0, len(s.stats[jobID]))
	for _, stat := range s.stats[jobID] {
		sites = append(sites, stat)
	}
	sort.Slice(sites, func(i, j int) bool {
		if !sites[i].LastUpdate.Equal(sites[j].LastUpdate) {
			return sites[i].LastUpdate.After(sites[j].LastUpdate)
		}
		return sites[i].Site < sites[j].Site
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(sites) {
		return nil, nil
	}
	sites = sites[offset:]
	if limit > 0 && limit < len(sites) {
		sites = sites[:limit]
	}
	return sites, nil
}

func pageJobs(jobs []store.JobRecord, limit, offset int) []store.JobRecord {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(jobs) {
		return nil
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	out := make([]store.JobRecord, len(jobs))
	for i, job := range jobs {
		out[i] = copyJob(job)
	}
	return out
}

func copyJob(job store.JobRecord) store.JobRecord {
	out := job
	if job.Result != nil {
		out.Result = append([]byte(nil), job.Result...)
	}
	if job.StartedAt != nil {
		started := *job.StartedAt
		out.StartedAt = &started
	}
	if job.FinishedAt != nil {
		finished := *job.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}
