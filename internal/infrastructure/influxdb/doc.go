// Package influxdb provides InfluxDB connectivity for the auth service.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes, and health monitoring.
//
// # Purpose
//
// Every session lifecycle event (login, refresh, logout, registration,
// password change, admin account changes) is written as a point in the
// auth_sessions measurement so login rates and failure trends can be
// graphed over long periods.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSessionEvent(influxdb.SessionPoint{Event: "login", Outcome: "success"})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
package influxdb
