// Package progress carries task lifecycle events from the orchestrator to
// pluggable sinks (logs, Prometheus, the task history store). Emitting never
// blocks the caller; a background goroutine batches and flushes.
package progress
