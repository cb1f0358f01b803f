// Package postgres provides the Postgres-backed job repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitelens/sitelens/internal/store"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
}

// Store implements store.Repository and store.StatsRecorder on Postgres.
//
// Expected schema:
//
//	CREATE TABLE jobs (
//		id UUID PRIMARY KEY,
//		start_url TEXT NOT NULL,
//		status TEXT NOT NULL,
//		progress INT NOT NULL DEFAULT 0,
//		stage TEXT NOT NULL DEFAULT '',
//		message TEXT NOT NULL DEFAULT '',
//		error TEXT NOT NULL DEFAULT '',
//		result JSONB,
//		report_path TEXT NOT NULL DEFAULT '',
//		created_at TIMESTAMPTZ NOT NULL,
//		started_at TIMESTAMPTZ,
//		finished_at TIMESTAMPTZ
//	);
//
//	CREATE TABLE site_stats (
//		job_id UUID NOT NULL,
//		site TEXT NOT NULL,
//		last_update TIMESTAMPTZ NOT NULL,
//		visits BIGINT NOT NULL DEFAULT 0,
//		bytes_total BIGINT NOT NULL DEFAULT 0,
//		status_2xx BIGINT NOT NULL DEFAULT 0,
//		status_3xx BIGINT NOT NULL DEFAULT 0,
//		status_4xx BIGINT NOT NULL DEFAULT 0,
//		status_5xx BIGINT NOT NULL DEFAULT 0,
//		PRIMARY KEY (job_id, site)
//	);
type Store struct {
	pool Pool
}

// New connects a pool from cfg and verifies it with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job record.
func (s *Store) CreateJob(ctx context.Context, job store.JobRecord) error {
	query := `
		INSERT INTO jobs (id, start_url, status, progress, stage, message, error, result, report_path, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	_, err := s.pool.Exec(ctx, query,
		job.ID,
		job.StartURL,
		job.Status,
		job.Progress,
		job.Stage,
		job.Message,
		job.Error,
		job.Result,
		job.ReportPath,
		job.CreatedAt,
		job.StartedAt,
		job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob replaces a job row unless it has already reached a terminal
// status; terminal rows are immutable.
func (s *Store) UpdateJob(ctx context.Context, job store.JobRecord) error {
	query := `
		UPDATE jobs
		SET status = $2, progress = $3, stage = $4, message = $5, error = $6,
			result = $7, report_path = $8, started_at = $9, finished_at = $10
		WHERE id = $1 AND status NOT IN ($11, $12);
	`
	res, err := s.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.Progress,
		job.Stage,
		job.Message,
		job.Error,
		job.Result,
		job.ReportPath,
		job.StartedAt,
		job.FinishedAt,
		store.JobCompleted,
		store.JobFailed,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if res.RowsAffected() > 0 {
		return nil
	}

	var current store.JobStatus
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1;`, job.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check job status: %w", err)
	}
	return fmt.Errorf("job %s is already %s", job.ID, current)
}

// GetJob retrieves a single job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (store.JobRecord, error) {
	query := `
		SELECT id, start_url, status, progress, stage, message, error, result, report_path, created_at, started_at, finished_at
		FROM jobs
		WHERE id = $1;
	`
	var job store.JobRecord
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.StartURL,
		&job.Status,
		&job.Progress,
		&job.Stage,
		&job.Message,
		&job.Error,
		&job.Result,
		&job.ReportPath,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.JobRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.JobRecord{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs retrieves jobs newest first, with optional status filtering.
func (s *Store) ListJobs(ctx context.Context, status *store.JobStatus, limit, offset int) ([]store.JobRecord, error) {
	query := `
		SELECT id, start_url, status, progress, stage, message, error, result, report_path, created_at, started_at, finished_at
		FROM jobs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []store.JobRecord
	for rows.Next() {
		var job store.JobRecord
		err := rows.Scan(
			&job.ID,
			&job.StartURL,
			&job.Status,
			&job.Progress,
			&job.Stage,
			&job.Message,
			&job.Error,
			&job.Result,
			&job.ReportPath,
			&job.CreatedAt,
			&job.StartedAt,
			&job.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// UpsertSiteStats accumulates per-site crawl counters for a job.
func (s *Store) UpsertSiteStats(
	ctx context.Context,
	jobID uuid.UUID,
	site string,
	deltaVisits, deltaBytes int64,
	statusClass string,
	at time.Time,
) error {
	var s2xx, s3xx, s4xx, s5xx int64
	switch statusClass {
	case "2xx":
		s2xx = deltaVisits
	case "3xx":
		s3xx = deltaVisits
	case "4xx":
		s4xx = deltaVisits
	case "5xx":
		s5xx = deltaVisits
	default:
		return fmt.Errorf("unknown status class: %s", statusClass)
	}

	query := `
		INSERT INTO site_stats (job_id, site, last_update, visits, bytes_total, status_2xx, status_3xx, status_4xx, status_5xx)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id, site) DO UPDATE SET
			visits = site_stats.visits + EXCLUDED.visits,
			bytes_total = site_stats.bytes_total + EXCLUDED.bytes_total,
			status_2xx = site_stats.status_2xx + EXCLUDED.status_2xx,
			status_3xx = site_stats.status_3xx + EXCLUDED.status_3xx,
			status_4xx = site_stats.status_4xx + EXCLUDED.status_4xx,
			status_5xx = site_stats.status_5xx + EXCLUDED.status_5xx,
			last_update = GREATEST(site_stats.last_update, EXCLUDED.last_update);
	`
	_, err := s.pool.Exec(ctx, query, jobID, site, at, deltaVisits, deltaBytes, s2xx, s3xx, s4xx, s5xx)
	if err != nil {
		return fmt.Errorf("upsert site stats: %w", err)
	}
	return nil
}

// ListJobSites retrieves aggregated site statistics for a given job.
func (s *Store) ListJobSites(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]store.SiteStats, error) {
	query := `
		SELECT job_id, site, last_update, visits, bytes_total, status_2xx, status_3xx, status_4xx, status_5xx
		FROM site_stats
		WHERE job_id = $1
		ORDER BY last_update DESC, site ASC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, jobID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list job sites: %w", err)
	}
	defer rows.Close()

	var stats []store.SiteStats
	for rows.Next() {
		var stat store.SiteStats
		err := rows.Scan(
			&stat.JobID,
			&stat.Site,
			&stat.LastUpdate,
			&stat.Visits,
			&stat.BytesTotal,
			&stat.Status2xx,
			&stat.Status3xx,
			&stat.Status4xx,
			&stat.Status5xx,
		)
		if err != nil {
			return nil, fmt.Errorf("scan site stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list job sites: %w", err)
	}
	return stats, nil
}
