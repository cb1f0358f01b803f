package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind denotes the type of milestone represented by an Event.
type Kind string

// Supported event kinds.
const (
	KindJobStart   Kind = "JOB_START"
	KindJobDone    Kind = "JOB_DONE"
	KindJobError   Kind = "JOB_ERROR"
	KindStageStart Kind = "STAGE_START"
	KindStageDone  Kind = "STAGE_DONE"
	KindPageVisit  Kind = "PAGE_VISIT"
	KindItemDone   Kind = "ITEM_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for page visits.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of pipeline progress.
type Event struct {
	// JobID uniquely identifies a job run using the 16-byte UUID form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Kind denotes which lifecycle, stage, or item milestone occurred.
	Kind Kind
	// Stage names the pipeline phase (crawl, capture, audit, publish) for
	// stage and item events. Empty for job-level events.
	Stage string
	// Site optionally scopes page events to a host label.
	Site string
	// URL is the optional page URL; it should not contain credentials.
	URL string
	// Bytes carries the response size delta for a page visit.
	Bytes int64
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass
	// OK marks whether an item settled successfully.
	OK bool
	// Dur captures execution latency for visits, items, stages, and jobs.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindJobStart, KindJobDone, KindJobError:
	case KindStageStart, KindStageDone:
		if e.Stage == "" {
			return errors.New("stage events require a stage label")
		}
	case KindPageVisit:
		if e.Site == "" {
			return errors.New("page visit requires site")
		}
		if e.StatusClass == "" {
			return errors.New("page visit requires status class")
		}
	case KindItemDone:
		if e.Stage == "" {
			return errors.New("item done requires a stage label")
		}
		if e.URL == "" {
			return errors.New("item done requires url")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// JobUUID converts the binary job ID to uuid.UUID for repositories.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for page events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
