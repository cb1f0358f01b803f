package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Reset collectors for testing purposes.
	pipelineJobsTotal = nil
	crawlerPagesTotal = nil
	captureItemsTotal = nil
	httpRequestsTotal = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if pipelineJobsTotal == nil || crawlerPagesTotal == nil ||
		captureItemsTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	// A simple check to see if a metric can be used.
	crawlerPagesTotal.WithLabelValues("test.com", "success").Inc()
	if val := testutil.ToFloat64(crawlerPagesTotal); val != 1 {
		t.Errorf("Expected crawlerPagesTotal to be 1, got %f", val)
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()

	ObserveJob("completed")
	if val := testutil.ToFloat64(pipelineJobsTotal.WithLabelValues("completed")); val != 1 {
		t.Errorf("Expected pipeline_jobs_total{completed} to be 1, got %f", val)
	}

	IncActiveJobs()
	IncActiveJobs()
	DecActiveJobs()
	if val := testutil.ToFloat64(pipelineActiveJobs); val != 1 {
		t.Errorf("Expected pipeline_active_jobs to be 1, got %f", val)
	}
	DecActiveJobs()

	ObserveCaptureItem(true)
	ObserveCaptureItem(false)
	if val := testutil.ToFloat64(captureItemsTotal.WithLabelValues("failure")); val != 1 {
		t.Errorf("Expected capture_items_total{failure} to be 1, got %f", val)
	}

	ObserveAuditItem(true)
	if val := testutil.ToFloat64(auditItemsTotal.WithLabelValues("success")); val != 1 {
		t.Errorf("Expected audit_items_total{success} to be 1, got %f", val)
	}

	ObserveStageDuration("crawl", 1500*time.Millisecond)
	if val := testutil.CollectAndCount(stageDurationSeconds); val <= 0 {
		t.Errorf("Expected stage duration to be observed, got %d", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
