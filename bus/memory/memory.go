// Package memory provides an in-process messaging.PubSub used by
// tests in place of a real broker.
package memory

import (
	"context"
	"sync"

	"github.com/arxiv/messaging-service/pkg/messaging"
)

// Bus is a synchronous, in-memory PubSub: Publish calls every
// subscriber currently registered on the topic directly, on the
// publishing goroutine.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[string]messaging.SubscriberConfig
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[string]messaging.SubscriberConfig)}
}

// Publish invokes the Handle method of every subscriber currently
// registered on msg's topic. A handler error is discarded: it is
// neither logged nor returned, and it does not stop delivery to other
// subscribers.
func (b *Bus) Publish(ctx context.Context, topic string, msg *messaging.Message) error {
	b.mu.Lock()
	handlers := make([]messaging.SubscriberConfig, 0, len(b.subs[topic]))
	for _, cfg := range b.subs[topic] {
		handlers = append(handlers, cfg)
	}
	b.mu.Unlock()

	for _, cfg := range handlers {
		_ = cfg.Handler.Handle(msg)
	}
	return nil
}

// Subscribe registers cfg.Handler for cfg.Topic under cfg.ID. It
// returns immediately; delivery happens synchronously inside Publish
// calls from any goroutine.
func (b *Bus) Subscribe(ctx context.Context, cfg messaging.SubscriberConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[cfg.Topic] == nil {
		b.subs[cfg.Topic] = make(map[string]messaging.SubscriberConfig)
	}
	b.subs[cfg.Topic][cfg.ID] = cfg
	return nil
}

// Unsubscribe removes the subscriber registered under id for topic.
func (b *Bus) Unsubscribe(ctx context.Context, id, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] != nil {
		delete(b.subs[topic], id)
	}
	return nil
}

// Close is a no-op; the memory bus owns no external resources.
func (b *Bus) Close() error {
	return nil
}

var _ messaging.PubSub = (*Bus)(nil)
