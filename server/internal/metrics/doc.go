// Package metrics exposes server counters and gauges in the Prometheus text
// exposition format on GET /metrics. Counters are owned here; gauges are
// registered as callbacks so the handler always reports live values.
package metrics
