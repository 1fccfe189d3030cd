// Package gcppubsub implements messaging.PubSub on top of Google
// Cloud Pub/Sub: a bounded in-flight Receive callback that Nacks on
// handler error and Acks otherwise.
package gcppubsub

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"

	"github.com/arxiv/messaging-service/pkg/logger"
	"github.com/arxiv/messaging-service/pkg/messaging"
)

// Bus adapts a *pubsub.Client to messaging.PubSub.
type Bus struct {
	client *pubsub.Client
	logger *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New wraps an already-connected GCP Pub/Sub client.
func New(client *pubsub.Client, log *logger.Logger) *Bus {
	return &Bus{
		client:  client,
		logger:  log,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Publish sends msg to the named topic, waiting for server
// acknowledgement of the publish itself (not of any subscriber).
func (b *Bus) Publish(ctx context.Context, topic string, msg *messaging.Message) error {
	t := b.client.Topic(topic)
	result := t.Publish(ctx, &pubsub.Message{
		Data:       msg.Payload,
		Attributes: msg.Attributes,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("gcppubsub: publish to %s: %w", topic, err)
	}
	msg.ID = id
	return nil
}

// Subscribe starts a Receive loop for cfg.Topic under subscription ID
// cfg.ID. Receive blocks the calling goroutine until the subscription
// context is cancelled or the broker reports a fatal error, so callers
// run it in its own goroutine.
func (b *Bus) Subscribe(ctx context.Context, cfg messaging.SubscriberConfig) error {
	sub := b.client.Subscription(cfg.ID)

	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("gcppubsub: check subscription %s: %w", cfg.ID, err)
	}
	if !exists {
		return fmt.Errorf("gcppubsub: subscription %s does not exist", cfg.ID)
	}

	if cfg.MaxInFlight > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxInFlight
	}

	subCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancels[cfg.ID] = cancel
	b.mu.Unlock()

	return sub.Receive(subCtx, func(_ context.Context, m *pubsub.Message) {
		msg := &messaging.Message{
			ID:          m.ID,
			Topic:       cfg.Topic,
			Payload:     m.Data,
			Attributes:  m.Attributes,
			PublishedAt: m.PublishTime,
		}

		if err := cfg.Handler.Handle(msg); err != nil {
			b.logger.Error("gcppubsub: handler returned error, nacking",
				"subscription", cfg.ID, "message_id", m.ID, "error", err)
			m.Nack()
			return
		}
		m.Ack()
	})
}

// Unsubscribe cancels the Receive loop started for id, if any.
func (b *Bus) Unsubscribe(ctx context.Context, id, topic string) error {
	b.mu.Lock()
	cancel, ok := b.cancels[id]
	if ok {
		delete(b.cancels, id)
	}
	b.mu.Unlock()

	if !ok {
		return nil
	}
	cancel()
	return nil
}

// Close releases the underlying Pub/Sub client.
func (b *Bus) Close() error {
	return b.client.Close()
}

var _ messaging.PubSub = (*Bus)(nil)
