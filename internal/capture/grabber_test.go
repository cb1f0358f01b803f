package capture

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBrowserGrabberGrab(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><body><h1>hello</h1></body></html>`)
	}))
	defer srv.Close()

	grabber := NewBrowserGrabber(GrabberOptions{
		Width:   800,
		Height:  600,
		Timeout: 15 * time.Second,
		Settle:  100 * time.Millisecond,
	}, zap.NewNop())
	defer grabber.Close()

	shot, err := grabber.Grab(context.Background(), srv.URL)
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	if len(shot.Image) == 0 {
		t.Fatal("screenshot is empty")
	}
	if shot.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", shot.Status)
	}
}

func TestBrowserGrabberFailsFastOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	grabber := NewBrowserGrabber(GrabberOptions{
		Width:   800,
		Height:  600,
		Timeout: 15 * time.Second,
		Settle:  100 * time.Millisecond,
	}, zap.NewNop())
	defer grabber.Close()

	// Boot once against a healthy page so a missing Chrome skips instead of
	// masquerading as the expected failure.
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>ok</body></html>`)
	}))
	defer okSrv.Close()
	if _, err := grabber.Grab(context.Background(), okSrv.URL); err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}

	_, err := grabber.Grab(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404 page")
	}
	if !strings.Contains(err.Error(), "page returned status") {
		t.Fatalf("unexpected error: %v", err)
	}
}
