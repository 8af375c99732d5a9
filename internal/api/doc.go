// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - POST /api/v1/creative_collection/collect to submit a URL or text.
//   - GET /api/v1/creative_collection/status/{task_id} to poll a task.
//   - GET /api/v1/creative_collection/list and /{id} for the record log.
//   - GET /api/v1/history/runs for task run history via the HistoryRepository.
//   - GET /getFile?filename= to stream a managed media file.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus.
package api
