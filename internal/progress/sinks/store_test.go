package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sitelens/sitelens/internal/progress"
	"github.com/sitelens/sitelens/internal/store"
)

// TestStoreSinkCollapsesVisits ensures visits/bytes are collapsed per site before persisting.
func TestStoreSinkCollapsesVisits(t *testing.T) {
	t.Parallel()

	rec := &fakeStatsRecorder{}
	sink := NewStoreSink(rec, nil)
	jobUUID := uuid.New()
	jobID := progress.UUIDToBytes(jobUUID)
	now := time.Now()

	batch := []progress.Event{
		{JobID: jobID, Kind: progress.KindJobStart, TS: now},
		{
			JobID:       jobID,
			Kind:        progress.KindPageVisit,
			Site:        "example.com",
			Bytes:       100,
			StatusClass: progress.Status2xx,
			TS:          now.Add(1 * time.Second),
		},
		{
			JobID:       jobID,
			Kind:        progress.KindPageVisit,
			Site:        "example.com",
			Bytes:       50,
			StatusClass: progress.Status2xx,
			TS:          now.Add(2 * time.Second),
		},
		{
			JobID:       jobID,
			Kind:        progress.KindPageVisit,
			Site:        "example.com",
			Bytes:       10,
			StatusClass: progress.Status4xx,
			TS:          now.Add(2 * time.Second),
		},
		{JobID: jobID, Kind: progress.KindJobDone, TS: now.Add(3 * time.Second), Dur: 3 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Len(t, rec.calls, 2)
	totals := map[string]siteCall{}
	for _, call := range rec.calls {
		totals[call.statusClass] = call
	}
	require.Equal(t, int64(2), totals["2xx"].deltaVisits)
	require.Equal(t, int64(150), totals["2xx"].deltaBytes)
	require.Equal(t, int64(1), totals["4xx"].deltaVisits)
	require.Equal(t, int64(10), totals["4xx"].deltaBytes)
	require.Equal(t, jobUUID, totals["2xx"].jobID)
}

// TestStoreSinkIgnoresLifecycleEvents verifies job events never reach the recorder.
func TestStoreSinkIgnoresLifecycleEvents(t *testing.T) {
	t.Parallel()

	rec := &fakeStatsRecorder{}
	sink := NewStoreSink(rec, nil)
	jobID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{JobID: jobID, Kind: progress.KindJobStart, TS: time.Now()},
		{JobID: jobID, Kind: progress.KindStageStart, Stage: "crawl", TS: time.Now()},
		{JobID: jobID, Kind: progress.KindJobError, TS: time.Now(), Note: "boom"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Empty(t, rec.calls)
}

// TestStoreSinkSurfacesErrors surfaces recorder failures back to the caller.
func TestStoreSinkSurfacesErrors(t *testing.T) {
	t.Parallel()

	rec := &fakeStatsRecorder{fail: true}
	sink := NewStoreSink(rec, nil)
	jobID := progress.UUIDToBytes(uuid.New())
	err := sink.Consume(context.Background(), []progress.Event{
		{
			JobID:       jobID,
			Kind:        progress.KindPageVisit,
			Site:        "example.com",
			Bytes:       5,
			StatusClass: progress.Status2xx,
			TS:          time.Now(),
		},
	})
	require.Error(t, err)
}

type fakeStatsRecorder struct {
	fail  bool
	calls []siteCall
}

type siteCall struct {
	jobID       uuid.UUID
	site        string
	deltaVisits int64
	deltaBytes  int64
	statusClass string
}

func (f *fakeStatsRecorder) UpsertSiteStats(
	_ context.Context,
	jobID uuid.UUID,
	site string,
	deltaVisits int64,
	deltaBytes int64,
	statusClass string,
	at time.Time,
) error {
	if f.fail {
		return assertErr("site")
	}
	_ = at
	f.calls = append(f.calls, siteCall{
		jobID:       jobID,
		site:        site,
		deltaVisits: deltaVisits,
		deltaBytes:  deltaBytes,
		statusClass: statusClass,
	})
	return nil
}

func (f *fakeStatsRecorder) ListJobSites(context.Context, uuid.UUID, int, int) ([]store.SiteStats, error) {
	return nil, assertErr("sites")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
