package browser

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

func TestSessionCloseWithoutStart(t *testing.T) {
	s := NewSession(Options{}, zap.NewNop())
	if s.Alive() {
		t.Fatal("session must not be alive before first use")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close without start: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestSessionTabAfterClose(t *testing.T) {
	s := NewSession(Options{}, zap.NewNop())
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, _, err := s.Tab()
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionNavigates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><body><h1 id="probe">up</h1></body></html>`)
	}))
	defer srv.Close()

	s := NewSession(Options{Width: 800, Height: 600}, zap.NewNop())
	defer func() {
		if err := s.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	}()

	tabCtx, cancel, err := s.Tab()
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer cancel()

	var text string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(srv.URL),
		chromedp.Text("#probe", &text, chromedp.ByID),
	); err != nil {
		t.Skipf("navigation failed: %v", err)
	}
	if text != "up" {
		t.Fatalf("unexpected page text %q", text)
	}
	if !s.Alive() {
		t.Fatal("session should report alive after successful use")
	}
}
