// Package messaging defines the transport-agnostic bus contract the
// ingestion processor consumes. Concrete brokers (bus/gcppubsub,
// bus/memory) implement PubSub; nothing above this package knows
// which one is wired in.
package messaging

import (
	"context"
	"time"
)

// Message is a single bus message. Payload carries the raw JSON body;
// Attributes carries broker-level metadata (e.g. a GCP Pub/Sub
// message's delivery attempt count) that is never part of the JSON
// payload itself.
type Message struct {
	ID          string
	Topic       string
	Payload     []byte
	Attributes  map[string]string
	PublishedAt time.Time
}

// Publisher specifies message publishing API.
type Publisher interface {
	// Publishes message to the stream.
	Publish(ctx context.Context, topic string, msg *Message) error

	// Close gracefully closes message publisher's connection.
	Close() error
}

// MessageHandler represents Message handler for Subscriber. A nil
// return from Handle acknowledges the message; a non-nil return nacks
// it so the broker redelivers.
type MessageHandler interface {
	// Handle handles messages passed by underlying implementation.
	Handle(msg *Message) error

	// Cancel is used for cleanup during unsubscribing and it's optional.
	Cancel() error
}

// SubscriberConfig defines the configuration for a subscriber that processes messages from a topic.
type SubscriberConfig struct {
	ID          string         // Unique identifier for the subscriber.
	Topic       string         // Topic to subscribe to.
	Handler     MessageHandler // Function that handles incoming messages.
	MaxInFlight int            // Bounded in-flight window; 0 means the broker's default.
}

// Subscriber specifies message subscription API.
type Subscriber interface {
	// Subscribe subscribes to the message stream and consumes messages.
	Subscribe(ctx context.Context, cfg SubscriberConfig) error

	// Unsubscribe unsubscribes from the message stream and
	// stops consuming messages.
	Unsubscribe(ctx context.Context, id, topic string) error

	// Close gracefully closes message subscriber's connection.
	Close() error
}

// PubSub  represents aggregation interface for publisher and subscriber.
type PubSub interface {
	Publisher
	Subscriber
}
