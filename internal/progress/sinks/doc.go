// Package sinks implements progress consumers: structured logs, Prometheus
// collectors and the task history repository.
package sinks
