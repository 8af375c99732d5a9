// Package main hosts the creative collector service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes collection, record, history, file, health and metrics routes. A submit
//     persists a Task through the TaskStore and enqueues it; the handle is returned before any crawling happens.
//   - Dispatcher & queue: tasks flow through a bounded in-memory queue sized by workers.queue_depth and are fanned
//     out to a fixed pool sized by workers.count. Each task runs under workers.task_timeout.
//   - Crawl pipeline: douyin and toutiao links are rendered with chromedp, fields are read through ordered selector
//     tables, and the cover chain tries the scraped image, an ffmpeg frame and finally a generated placeholder.
//     Anything that is not a known platform link is stored as self-authored work.
//   - Persistence & fanout: covers land in the configured BlobStore (memory/local/GCS) and are served under /getFile.
//     Records go to memory, Postgres or MongoDB. A Pub/Sub notification is published on completion when a topic is
//     configured. Progress events are batched by the Hub into log, Prometheus and history sinks.
//
// Quick checklist:
//   - Configure env vars with the COLLECTOR_ prefix (COLLECTOR_SERVER_PORT, COLLECTOR_WORKERS_COUNT,
//     COLLECTOR_STORAGE_RECORDS, COLLECTOR_POSTGRES_DSN, COLLECTOR_MEDIA_BACKEND, COLLECTOR_PUBSUB_TOPIC). A .env file
//     next to the binary is loaded first when present.
//   - Run locally: go run ./cmd/collector -config config.yaml (or rely solely on env overrides).
package main
