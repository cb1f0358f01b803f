// Package main hosts the sitelens service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and job endpoints. Submissions are validated and
//     normalized, persisted as pending job records, and enqueued without blocking; a full queue yields an
//     immediately failed record instead of backpressure.
//   - Dispatcher & queue: jobs flow through a bounded in-memory queue sized by config.Pipeline.QueueDepth and are
//     fanned out to a fixed worker pool sized by config.Pipeline.Workers. Each worker walks one job at a time
//     through the four pipeline stages.
//   - Pipeline stages: crawl walks the site breadth-first with a Colly-based fetcher under robots.txt and per-host
//     pacing rules; capture screenshots every crawled page with a Chromedp browser shared across the stage run;
//     audit loads each page once more and extracts navigation and paint timings; publish writes the report
//     artifact and hands a summary to Pub/Sub when configured.
//   - Persistence & fanout: job records live in memory or Postgres; screenshots and reports go to the configured
//     artifact backend (local/memory/GCS). Progress events are batched through a hub into per-site stats, logs,
//     and Prometheus counters.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via middleware and the /metrics handler; OpenTelemetry tracing exports to Cloud Trace
//     when enabled.
//
// Operational notes:
//   - Concurrency model: bounded queue + fixed worker pool; capture fans out per page inside its stage while audit
//     stays sequential so timings are not skewed by parallel load. Shutdown closes the queue, drains it within a
//     budget, then cancels whatever is still running.
//   - Rate limiting: the crawler enforces per-host pacing via a token bucket and consults robots.txt before every
//     fetch unless disabled.
//   - Observability: zap logs carry job IDs and stages at key transitions; Prometheus counters/histograms track
//     API, crawl, capture, and audit activity; the progress hub batches lifecycle events for downstream sinks.
//
// Quick checklist:
//   - Configure env vars: SITELENS_SERVER_PORT, SITELENS_PIPELINE_WORKERS, SITELENS_CRAWL_MAX_PAGES_DEFAULT,
//     SITELENS_STORE_DRIVER/SITELENS_STORE_DSN for Postgres, SITELENS_ARTIFACTS_BACKEND plus bucket or dir, and
//     SITELENS_PUBSUB_* when the report hand-off is required.
//   - Run locally: go run ./cmd/sitelens serve --config config.yaml (or rely solely on env overrides).
//   - One-shot: go run ./cmd/sitelens run https://example.com --max-pages 10 prints the job outcome and exits
//     non-zero when the job fails.
package main
