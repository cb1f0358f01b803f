package crawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollyFetcherFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	fetcher := NewCollyFetcher(FetcherConfig{UserAgent: "sitelens-test", Timeout: 5 * time.Second})
	page, err := fetcher.Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, page.ContentType, "text/html")
	require.Contains(t, string(page.Body), "hello")
	require.Greater(t, page.Duration, time.Duration(0))
}

func TestCollyFetcherSendsUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.UserAgent()))
	}))
	defer srv.Close()

	fetcher := NewCollyFetcher(FetcherConfig{UserAgent: "sitelens-test/1.0"})
	page, err := fetcher.Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Equal(t, "sitelens-test/1.0", string(page.Body))
}

func TestCollyFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	fetcher := NewCollyFetcher(FetcherConfig{})
	page, err := fetcher.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, page.StatusCode, "status must survive for error classification")
}

func TestCollyFetcherContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	fetcher := NewCollyFetcher(FetcherConfig{Timeout: 10 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := fetcher.Fetch(ctx, srv.URL+"/slow")
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second, "cancellation must not wait out the request timeout")
}
