// Package metrics exposes Prometheus instrumentation for synthesis, cache,
// scheduling and playback.
package metrics
