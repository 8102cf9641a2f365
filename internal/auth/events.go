package auth

import (
	"context"
	"time"
)

// EventType names a session or account lifecycle event.
type EventType string

// Event types.
const (
	EventRegistered      EventType = "registered"
	EventLogin           EventType = "login"
	EventRefreshed       EventType = "refreshed"
	EventLogout          EventType = "logout"
	EventPasswordChanged EventType = "password_changed"
	EventAccountCreated  EventType = "account_created"
	EventAccountUpdated  EventType = "account_updated"
	EventAccountDeleted  EventType = "account_deleted"
)

// EventTypes lists every event type in the order they are documented.
var EventTypes = []EventType{
	EventRegistered, EventLogin, EventRefreshed, EventLogout,
	EventPasswordChanged, EventAccountCreated, EventAccountUpdated, EventAccountDeleted,
}

// IsValidEventType reports whether t is one of EventTypes.
func IsValidEventType(t EventType) bool {
	for _, v := range EventTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Outcomes recorded on an event.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// SessionEvent records one lifecycle step. It never carries secrets,
// verifiers or tokens.
type SessionEvent struct {
	Type       EventType `json:"type"`
	AccountID  string    `json:"account_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Role       Role      `json:"role,omitempty"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	At         time.Time `json:"at"`
}

// EventSink receives session events. Publish must not block the caller.
type EventSink interface {
	Publish(ev SessionEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(SessionEvent)

// Publish calls f(ev).
func (f EventSinkFunc) Publish(ev SessionEvent) { f(ev) }

type discardSink struct{}

func (discardSink) Publish(SessionEvent) {}

type remoteAddrKey struct{}

// WithRemoteAddr attaches the client address to ctx so events raised
// while serving the request can record it.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}

// RemoteAddrFrom returns the client address attached by WithRemoteAddr.
func RemoteAddrFrom(ctx context.Context) string {
	addr, _ := ctx.Value(remoteAddrKey{}).(string) //nolint:errcheck // type assertion, not an error
	return addr
}
