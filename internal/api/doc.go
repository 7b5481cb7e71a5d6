// Package api hosts the ops HTTP server for long-running harvest commands.
// Notable routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /statusz for a JSON snapshot of the current run's counters.
//   - GET /v1/counts for row counts of the harvested tables.
package api
