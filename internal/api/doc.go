// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to trigger a feed build.
//   - GET /v1/runs/latest and /v1/runs/{run_id} for build summaries.
package api
