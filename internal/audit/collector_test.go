package audit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBrowserCollectorCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!doctype html>
<html lang="en">
<head><title>Probe</title></head>
<body><h1>Probe</h1><img src="/x.png"></body>
</html>`)
	}))
	defer srv.Close()

	collector := NewBrowserCollector(CollectorOptions{
		Width:   800,
		Height:  600,
		Timeout: 20 * time.Second,
		Settle:  100 * time.Millisecond,
	}, zap.NewNop())
	defer collector.Close()

	report, err := collector.Collect(context.Background(), srv.URL)
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}

	if report.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", report.Status)
	}
	if report.Title != "Probe" {
		t.Fatalf("title = %q, want Probe", report.Title)
	}
	if report.DOMNodes == 0 {
		t.Fatal("expected a DOM node count")
	}
	if report.HTMLBytes == 0 {
		t.Fatal("expected rendered HTML")
	}

	alt := Check{}
	for _, c := range report.Checks {
		if c.ID == "image-alt" {
			alt = c
		}
	}
	if alt.ID == "" {
		t.Fatal("image-alt check missing")
	}
	if alt.Passed || alt.Count != 1 {
		t.Fatalf("image-alt = %+v, want one missing alt", alt)
	}
}
