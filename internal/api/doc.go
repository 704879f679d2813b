// Package api hosts the operator HTTP surface that runs beside a crawl:
//   - GET /healthz for liveness.
//   - GET /readyz, which pings the listing store.
//   - GET /metrics for Prometheus scraping.
package api
