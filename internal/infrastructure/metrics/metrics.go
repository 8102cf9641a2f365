package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graylogic_auth"

// hashBuckets spans bcrypt costs 4 through 14 on typical hardware.
var hashBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Collectors holds the Prometheus collectors for the credential lifecycle.
//
// Each Collectors owns its own registry so tests can create as many as they
// like without tripping duplicate-registration panics.
type Collectors struct {
	registry *prometheus.Registry

	sessionEvents *prometheus.CounterVec
	hashDuration  *prometheus.HistogramVec
	droppedEvents prometheus.Counter
	wsClients     prometheus.Gauge
}

// New creates and registers the collectors, plus the standard Go runtime
// and process collectors.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type and outcome.",
		}, []string{"event", "outcome"}),
		hashDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hash_duration_seconds",
			Help:      "Time spent computing or verifying secret hashes.",
			Buckets:   hashBuckets,
		}, []string{"op"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Session events dropped because the dispatch queue was full.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected event-stream WebSocket clients.",
		}),
	}

	c.registry.MustRegister(
		c.sessionEvents,
		c.hashDuration,
		c.droppedEvents,
		c.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveSessionEvent counts one session event.
func (c *Collectors) ObserveSessionEvent(event, outcome string) {
	c.sessionEvents.WithLabelValues(event, outcome).Inc()
}

// ObserveHash records the duration of a hash or verify call. Its signature
// matches auth.Hasher.SetObserver.
func (c *Collectors) ObserveHash(op string, d time.Duration) {
	c.hashDuration.WithLabelValues(op).Observe(d.Seconds())
}

// IncDropped counts an event the dispatcher could not queue.
func (c *Collectors) IncDropped() {
	c.droppedEvents.Inc()
}

// SetWSClients reports the current WebSocket client count.
func (c *Collectors) SetWSClients(n int) {
	c.wsClients.Set(float64(n))
}

// Registry exposes the underlying registry for tests and custom gatherers.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
