package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "graylogic/auth"

// Topics builds the MQTT topics used by the auth service.
//
// All topics hang off a configurable prefix:
//
//	topics := mqtt.NewTopics("graylogic/auth")
//	topics.SessionEvent("login")   // graylogic/auth/events/login
//	topics.Status()                // graylogic/auth/status
//	topics.RevokeCommand()         // graylogic/auth/command/revoke
type Topics struct {
	prefix string
}

// NewTopics returns topic builders rooted at prefix. Trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root all topics hang off.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Status returns the retained online/offline status topic (also the LWT topic).
//
// Example: graylogic/auth/status
func (t Topics) Status() string {
	return t.Prefix() + "/status"
}

// SessionEvent returns the topic for one session event type.
//
// Example: graylogic/auth/events/login
func (t Topics) SessionEvent(eventType string) string {
	return t.Prefix() + "/events/" + eventType
}

// AllSessionEvents matches every session event topic.
//
// Example: graylogic/auth/events/+
func (t Topics) AllSessionEvents() string {
	return t.Prefix() + "/events/+"
}

// RevokeCommand returns the topic on which other services ask for an
// account's session to be ended.
//
// Example: graylogic/auth/command/revoke
func (t Topics) RevokeCommand() string {
	return t.Prefix() + "/command/revoke"
}
