// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs for job submission.
//   - GET /v1/jobs, /v1/jobs/{id}, /v1/jobs/{id}/report, and
//     /v1/jobs/{id}/sites for polling job progress and results.
package api
