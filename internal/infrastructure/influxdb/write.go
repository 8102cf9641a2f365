package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// SessionMeasurement is the measurement session events are written to.
const SessionMeasurement = "auth_sessions"

// SessionPoint is one session lifecycle event as stored in the time series.
//
// Event, Outcome and Role are low-cardinality and become tags. AccountID and
// Reason are stored as fields so they do not explode series cardinality.
type SessionPoint struct {
	Event     string
	Outcome   string
	Role      string
	AccountID string
	Reason    string
	At        time.Time
}

// WriteSessionEvent records a session event.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Write failures are reported through the SetOnError callback.
//
// Example:
//
//	client.WriteSessionEvent(influxdb.SessionPoint{
//	    Event: "login", Outcome: "failure", Reason: "invalid credentials",
//	})
func (c *Client) WriteSessionEvent(p SessionPoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sessionPoint(p))
}

// sessionPoint converts a SessionPoint into a line-protocol point.
func sessionPoint(p SessionPoint) *write.Point {
	at := p.At
	if at.IsZero() {
		at = time.Now()
	}

	tags := map[string]string{
		"event":   p.Event,
		"outcome": p.Outcome,
	}
	if p.Role != "" {
		tags["role"] = p.Role
	}

	fields := map[string]interface{}{
		"count": int64(1),
	}
	if p.AccountID != "" {
		fields["account_id"] = p.AccountID
	}
	if p.Reason != "" {
		fields["reason"] = p.Reason
	}

	return write.NewPoint(SessionMeasurement, tags, fields, at)
}
