// Package metrics exposes Prometheus counters for the HTTP server and the
// subtitle pipeline on a private registry.
package metrics
