// Package metrics exposes Prometheus collectors for the auth service:
// session event counts, hash latency, dispatcher drops and WebSocket
// client count.
package metrics
