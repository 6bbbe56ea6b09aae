// Package metrics exposes the loop's progress to Prometheus.
//
// Metrics is a loop.Observer; Server serves /metrics and /healthz.
package metrics
