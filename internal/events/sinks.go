package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-auth/internal/audit"
	"github.com/nerrad567/gray-logic-auth/internal/auth"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/mqtt"
)

// Publisher is the part of the MQTT client the event sink needs.
type Publisher interface {
	PublishEvent(topic string, payload []byte) error
	Topics() mqtt.Topics
}

// MQTTSink publishes each event as JSON to {prefix}/events/{type}.
type MQTTSink struct {
	client Publisher
}

// NewMQTTSink creates an MQTT event sink.
func NewMQTTSink(client Publisher) *MQTTSink {
	return &MQTTSink{client: client}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Handle implements Sink.
func (s *MQTTSink) Handle(_ context.Context, ev auth.SessionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := s.client.PublishEvent(s.client.Topics().SessionEvent(string(ev.Type)), payload); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// PointWriter is the part of the InfluxDB client the event sink needs.
type PointWriter interface {
	WriteSessionEvent(p influxdb.SessionPoint)
}

// InfluxSink writes each event to the auth_sessions measurement.
type InfluxSink struct {
	writer PointWriter
}

// NewInfluxSink creates an InfluxDB event sink.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{writer: w}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Handle implements Sink. Writes are asynchronous; failures surface
// through the client's error callback.
func (s *InfluxSink) Handle(_ context.Context, ev auth.SessionEvent) error {
	s.writer.WriteSessionEvent(influxdb.SessionPoint{
		Event:     string(ev.Type),
		Outcome:   ev.Outcome,
		Role:      string(ev.Role),
		AccountID: ev.AccountID,
		Reason:    ev.Reason,
		At:        ev.At,
	})
	return nil
}

// AuditSink persists each event in the audit log.
type AuditSink struct {
	repo audit.Repository
}

// NewAuditSink creates an audit log sink.
func NewAuditSink(repo audit.Repository) *AuditSink {
	return &AuditSink{repo: repo}
}

// Name implements Sink.
func (s *AuditSink) Name() string { return "audit" }

// Handle implements Sink.
func (s *AuditSink) Handle(ctx context.Context, ev auth.SessionEvent) error {
	if err := s.repo.Create(ctx, audit.FromEvent(ev)); err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}

// Counter is the part of the metrics collectors the event sink needs.
type Counter interface {
	ObserveSessionEvent(event, outcome string)
}

// MetricsSink counts events by type and outcome.
type MetricsSink struct {
	counter Counter
}

// NewMetricsSink creates a Prometheus counting sink.
func NewMetricsSink(c Counter) *MetricsSink {
	return &MetricsSink{counter: c}
}

// Name implements Sink.
func (s *MetricsSink) Name() string { return "metrics" }

// Handle implements Sink.
func (s *MetricsSink) Handle(_ context.Context, ev auth.SessionEvent) error {
	s.counter.ObserveSessionEvent(string(ev.Type), ev.Outcome)
	return nil
}

// StreamChannel is the WebSocket channel session events are broadcast on.
const StreamChannel = "session.events"

// Broadcaster is the part of the WebSocket hub the event sink needs.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// StreamSink forwards each event to live WebSocket subscribers.
type StreamSink struct {
	hub Broadcaster
}

// NewStreamSink creates a WebSocket broadcast sink.
func NewStreamSink(hub Broadcaster) *StreamSink {
	return &StreamSink{hub: hub}
}

// Name implements Sink.
func (s *StreamSink) Name() string { return "websocket" }

// Handle implements Sink.
func (s *StreamSink) Handle(_ context.Context, ev auth.SessionEvent) error {
	s.hub.Broadcast(StreamChannel, ev)
	return nil
}
