package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/clock/system"
	"github.com/sitelens/sitelens/internal/config"
	idgen "github.com/sitelens/sitelens/internal/id/uuid"
	"github.com/sitelens/sitelens/internal/metrics"
	"github.com/sitelens/sitelens/internal/pipeline"
	storemem "github.com/sitelens/sitelens/internal/store/memory"
	"github.com/sitelens/sitelens/internal/urlnorm"
)

func TestServerHealthEndpoints(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t, config.Config{})

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		fx.server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t, config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "pipeline_active_jobs")
}

func TestServerUnknownRoute(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t, config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/nope", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	fx := newServerFixture(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz?api_key=secret", nil)
	rec = httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t, config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-me")
	rec = httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "trace-me", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type serverFixture struct {
	server *Server
	repo   *storemem.Store
	queue  *pipeline.Queue
}

// newServerFixture builds a Server over a real manager, memory store, and
// memory queue. No dispatcher runs, so submitted jobs stay pending.
func newServerFixture(t *testing.T, cfg config.Config) *serverFixture {
	return newServerFixtureDepth(t, cfg, 8)
}

func newServerFixtureDepth(t *testing.T, cfg config.Config, queueDepth int) *serverFixture {
	t.Helper()
	metrics.Init()

	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 30
	}

	repo := storemem.New()
	queue := pipeline.NewQueue(queueDepth)
	t.Cleanup(queue.Close)

	norm, err := urlnorm.New(nil, nil)
	require.NoError(t, err)

	mgr := pipeline.NewManager(repo, queue, idgen.New(), norm, system.New(), zap.NewNop())
	return &serverFixture{
		server: NewServer(mgr, repo, repo, cfg, zap.NewNop()),
		repo:   repo,
		queue:  queue,
	}
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
