// Package event defines the Event data model: a single notification
// addressed to a user, as it is ingested from the bus and as it is
// stored.
package event

import (
	"fmt"
	"time"
)

// Type classifies an event.
type Type string

const (
	TypeNotification Type = "NOTIFICATION"
	TypeAlert        Type = "ALERT"
	TypeWarning      Type = "WARNING"
	TypeInfo         Type = "INFO"
)

// ParseType coerces a raw event_type string to a known Type. An
// unrecognized value degrades to TypeNotification; the caller is
// expected to log a warning when ok is false.
func ParseType(raw string) (t Type, ok bool) {
	switch Type(raw) {
	case TypeNotification, TypeAlert, TypeWarning, TypeInfo:
		return Type(raw), true
	default:
		return TypeNotification, false
	}
}

// Event is a single notification record.
type Event struct {
	EventID   string         `bson:"_id"`
	UserID    string         `bson:"user_id"`
	EventType Type           `bson:"event_type"`
	Message   string         `bson:"message"`
	Sender    string         `bson:"sender"`
	Subject   string         `bson:"subject"`
	Timestamp time.Time      `bson:"timestamp"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
}

// FanOutID derives a per-recipient event id when a single bus message
// fans out to multiple user_ids: each recipient gets a distinct
// document so the store's per-event-id upsert stays idempotent per
// recipient instead of coupling them.
func FanOutID(originalID, userID string) string {
	return fmt.Sprintf("%s-%s", originalID, userID)
}
