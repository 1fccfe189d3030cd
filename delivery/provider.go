// Package delivery routes sends to channel-specific providers. The
// Service holds a delivery_method to Provider mapping and wraps every
// send in panic containment and structured logging, so a misbehaving
// provider can only ever look like a failed send to its caller.
package delivery

import (
	"context"

	"github.com/arxiv/messaging-service/pkg/logger"
	"github.com/arxiv/messaging-service/subscription"
)

// Provider is the channel-specific sender capability. Implementations
// never return an error; failures are logged and folded into a false
// return, so callers never need to distinguish "provider errored"
// from "provider declined". Both mean the same thing: retry per the
// subscription's error strategy.
type Provider interface {
	// Channel identifies which subscription.DeliveryMethod this
	// provider serves.
	Channel() subscription.DeliveryMethod

	// Send attempts one delivery and reports success.
	Send(ctx context.Context, sub subscription.Subscription, body, subject, sender, correlationID string) bool
}

// Service is a provider registry plus a single Deliver entry point
// that never panics out and never retries. Retry policy belongs to
// the ingestion, scheduler, and flush callers, governed by the
// subscription's error strategy.
type Service struct {
	providers map[subscription.DeliveryMethod]Provider
	logger    *logger.Logger
}

// NewService builds a Service routing to the given providers, keyed
// by each provider's own Channel().
func NewService(log *logger.Logger, providers ...Provider) *Service {
	reg := make(map[subscription.DeliveryMethod]Provider, len(providers))
	for _, p := range providers {
		reg[p.Channel()] = p
	}
	return &Service{providers: reg, logger: log}
}

// Deliver looks up the provider for sub.DeliveryMethod and invokes it
// inside a catch-all that converts any panic to a false return.
func (s *Service) Deliver(ctx context.Context, sub subscription.Subscription, body, subject, sender, correlationID string) (ok bool) {
	provider, found := s.providers[sub.DeliveryMethod]
	if !found {
		s.logger.Error("no delivery provider registered for channel",
			"channel", sub.DeliveryMethod, "subscription_id", sub.SubscriptionID, "correlation_id", correlationID)
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("delivery provider panicked",
				"channel", sub.DeliveryMethod, "subscription_id", sub.SubscriptionID,
				"correlation_id", correlationID, "panic", r)
			ok = false
		}
	}()

	return provider.Send(ctx, sub, body, subject, sender, correlationID)
}
