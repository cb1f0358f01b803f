package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/clock/system"
	"github.com/sitelens/sitelens/internal/config"
	idgen "github.com/sitelens/sitelens/internal/id/uuid"
	"github.com/sitelens/sitelens/internal/metrics"
	"github.com/sitelens/sitelens/internal/pipeline"
	storemem "github.com/sitelens/sitelens/internal/store/memory"
	"github.com/sitelens/sitelens/internal/urlnorm"
)

// ExampleServer shows how a submission flows through the /v1/jobs endpoint.
// Without a dispatcher draining the queue the job stays pending.
func ExampleServer() {
	metrics.Init()
	repo := storemem.New()
	queue := pipeline.NewQueue(4)
	defer queue.Close()

	norm, err := urlnorm.New(nil, nil)
	if err != nil {
		panic(err)
	}
	mgr := pipeline.NewManager(repo, queue, idgen.New(), norm, system.New(), zap.NewNop())

	cfg := config.Config{}
	cfg.Server.RequestTimeoutSeconds = 30
	server := NewServer(mgr, repo, repo, cfg, zap.NewNop())

	body := strings.NewReader(`{"start_url": "https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", body)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var payload struct {
		Job struct {
			Status   string `json:"status"`
			Progress int    `json:"progress"`
		} `json:"job"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		panic(err)
	}
	fmt.Printf("accepted: %v\n", rec.Code == http.StatusAccepted)
	fmt.Printf("status: %s progress: %d\n", payload.Job.Status, payload.Job.Progress)
	// Output:
	// accepted: true
	// status: pending progress: 0
}
