// Package events delivers session events to the auth service's outputs.
//
// The Session Manager publishes to a Dispatcher, which queues events and
// hands them to each Sink in turn on a background goroutine: MQTT, InfluxDB,
// the audit log, Prometheus counters and the WebSocket event stream.
//
// The package also listens for revoke commands over MQTT so other services
// can end an account's session.
package events
