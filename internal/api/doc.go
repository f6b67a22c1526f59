// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/runs, /api/runs/{run_id} and /api/runs/{run_id}/monitors for
//     progress reporting via the store.RunRepository interface.
package api
