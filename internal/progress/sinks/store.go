package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/progress"
	"github.com/sitelens/sitelens/internal/store"
)

// StoreSink persists per-site visit statistics via a store.StatsRecorder. It
// collapses page-visit deltas per (job, site, status class) before writing to
// reduce write amplification. Job lifecycle rows are written by the job
// runner itself, not by this sink, so the runner stays the single writer.
type StoreSink struct {
	stats  store.StatsRecorder
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided recorder.
func NewStoreSink(stats store.StatsRecorder, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{stats: stats, logger: logger}
}

// Consume collapses site deltas and forwards them to the recorder. It
// respects ctx deadlines and returns any recorder errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.stats == nil {
		return nil
	}
	deltas := make(map[statsKey]*statsDelta)
	for _, evt := range batch {
		if evt.Kind != progress.KindPageVisit {
			continue
		}
		s.recordSiteStats(deltas, evt.JobUUID(), evt)
	}

	for key, delta := range deltas {
		if delta.visits == 0 && delta.bytes == 0 {
			continue
		}
		if err := s.stats.UpsertSiteStats(
			ctx,
			key.jobID,
			key.site,
			delta.visits,
			delta.bytes,
			key.statusClass,
			delta.at,
		); err != nil {
			return fmt.Errorf("upsert site stats: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) recordSiteStats(deltas map[statsKey]*statsDelta, jobID uuid.UUID, evt progress.Event) {
	if evt.Site == "" {
		return
	}
	key := statsKey{
		jobID:       jobID,
		site:        evt.Site,
		statusClass: string(evt.StatusClass),
	}
	delta := deltas[key]
	if delta == nil {
		delta = &statsDelta{}
		deltas[key] = delta
	}
	delta.visits++
	delta.bytes += evt.Bytes
	if evt.TS.After(delta.at) || delta.at.IsZero() {
		delta.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type statsKey struct {
	jobID       uuid.UUID
	site        string
	statusClass string
}

type statsDelta struct {
	visits int64
	bytes  int64
	at     time.Time
}
