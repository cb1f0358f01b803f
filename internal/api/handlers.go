package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/pipeline"
	"github.com/sitelens/sitelens/internal/store"
)

const (
	defaultJobLimit   = 50
	maxJobLimit       = 500
	defaultSitesLimit = 100
	maxSitesLimit     = 1000
	readTimeout       = 3 * time.Second
)

// submitJob handles POST /v1/jobs. It accepts {"start_url": ..., "max_pages": ...},
// returns 202 with the created record, 400 for malformed bodies or invalid
// submissions, and 500 when persistence fails. A full queue still yields 202:
// the returned record carries status "failed" and the rejection reason.
func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec, err := s.manager.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submit job failed", zap.Error(err), zap.String("start_url", req.StartURL))
		writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job": toJobDTO(rec)})
}

// listJobs handles GET /v1/jobs?status=&limit=&offset=. It returns a JSON
// object {"jobs": [...]} on success, 400 for invalid filters, or 500 if the
// repository call fails.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultJobLimit, maxJobLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.JobStatus
	if statusParam := strings.TrimSpace(r.URL.Query().Get("status")); statusParam != "" {
		statusVal, parseErr := parseStatus(statusParam)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &statusVal
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	jobs, err := s.repo.ListJobs(ctx, status, limit, offset)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": toJobDTOs(jobs)})
}

// getJob handles GET /v1/jobs/{job_id}. It returns {"job": {...}} on success,
// 400 for malformed IDs, 404 for unknown jobs, or 500 otherwise.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	rec, err := s.manager.GetStatus(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": toJobDTO(rec)})
}

// getJobReport handles GET /v1/jobs/{job_id}/report. The report only exists
// once the job reached a terminal status; before that the endpoint answers 409.
func (s *Server) getJobReport(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	rec, err := s.manager.GetStatus(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if !rec.Status.Terminal() {
		writeError(w, http.StatusConflict, "report not ready")
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(rec))
}

// listJobSites handles GET /v1/jobs/{job_id}/sites?limit=&offset=. When no
// stats recorder is configured the endpoint serves an empty list.
func (s *Server) listJobSites(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultSitesLimit, maxSitesLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.stats == nil {
		writeJSON(w, http.StatusOK, map[string]any{"sites": []siteDTO{}})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	sites, err := s.stats.ListJobSites(ctx, jobID, limit, offset)
	if err != nil {
		s.logger.Error("list job sites failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list job sites")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": toSiteDTOs(sites)})
}

func parseJobID(r *http.Request) (uuid.UUID, error) {
	jobIDStr := chi.URLParam(r, "job_id")
	if jobIDStr == "" {
		return uuid.UUID{}, errors.New("job_id is required")
	}
	jobID, err := uuid.Parse(jobIDStr)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid job_id")
	}
	return jobID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (store.JobStatus, error) {
	status := store.JobStatus(strings.ToLower(input))
	if !status.Valid() {
		return "", errors.New("invalid status")
	}
	return status, nil
}

func toJobDTOs(in []store.JobRecord) []jobDTO {
	out := make([]jobDTO, 0, len(in))
	for _, rec := range in {
		out = append(out, toJobDTO(rec))
	}
	return out
}

func toJobDTO(rec store.JobRecord) jobDTO {
	return jobDTO{
		ID:         rec.ID.String(),
		StartURL:   rec.StartURL,
		Status:     string(rec.Status),
		Progress:   rec.Progress,
		Stage:      rec.Stage,
		Message:    rec.Message,
		Error:      rec.Error,
		ReportPath: rec.ReportPath,
		CreatedAt:  rec.CreatedAt,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
}

func toReportDTO(rec store.JobRecord) reportDTO {
	dto := reportDTO{
		ID:        rec.ID.String(),
		Status:    string(rec.Status),
		ReportURI: rec.ReportPath,
		Error:     rec.Error,
	}
	if len(rec.Result) > 0 {
		dto.Result = json.RawMessage(rec.Result)
	}
	return dto
}

func toSiteDTOs(in []store.SiteStats) []siteDTO {
	out := make([]siteDTO, 0, len(in))
	for _, s := range in {
		out = append(out, siteDTO{
			Site:       s.Site,
			LastUpdate: s.LastUpdate,
			Visits:     s.Visits,
			BytesTotal: s.BytesTotal,
			Status2xx:  s.Status2xx,
			Status3xx:  s.Status3xx,
			Status4xx:  s.Status4xx,
			Status5xx:  s.Status5xx,
		})
	}
	return out
}

type jobDTO struct {
	ID         string     `json:"id"`
	StartURL   string     `json:"start_url"`
	Status     string     `json:"status"`
	Progress   int        `json:"progress"`
	Stage      string     `json:"stage,omitempty"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	ReportPath string     `json:"report_path,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type reportDTO struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	ReportURI string          `json:"report_uri,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type siteDTO struct {
	Site       string    `json:"site"`
	LastUpdate time.Time `json:"last_update"`
	Visits     int64     `json:"visits"`
	BytesTotal int64     `json:"bytes_total"`
	Status2xx  int64     `json:"status_2xx"`
	Status3xx  int64     `json:"status_3xx"`
	Status4xx  int64     `json:"status_4xx"`
	Status5xx  int64     `json:"status_5xx"`
}
