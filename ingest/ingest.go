// Package ingest implements the bus consumer: decode a notification
// message, fan it out to its recipients, apply each recipient's
// subscription policy, and decide whether the whole bus message acks
// or nacks.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arxiv/messaging-service/delivery"
	"github.com/arxiv/messaging-service/event"
	"github.com/arxiv/messaging-service/pkg/logger"
	"github.com/arxiv/messaging-service/pkg/messaging"
	"github.com/arxiv/messaging-service/pkg/uuid"
	"github.com/arxiv/messaging-service/store"
	"github.com/arxiv/messaging-service/subscription"
)

// DefaultSender names the account used for gateway sends and as the
// fallback "From" when a message carries no sender.
const DefaultSender = "arXiv Messaging System"

// wireMessage mirrors the bus JSON envelope: event_id, user_id
// (string or array), email_to, event_type, message, sender, subject,
// timestamp, metadata.
type wireMessage struct {
	EventID   string          `json:"event_id"`
	UserID    json.RawMessage `json:"user_id"`
	EmailTo   string          `json:"email_to"`
	EventType string          `json:"event_type"`
	Message   string          `json:"message"`
	Sender    string          `json:"sender"`
	Subject   string          `json:"subject"`
	Timestamp string          `json:"timestamp"`
	Metadata  map[string]any  `json:"metadata"`
}

// Processor is the ingestion pipeline: it implements
// messaging.MessageHandler and is wired to a Subscribe call for the
// incoming notification topic.
type Processor struct {
	store    store.Store
	delivery *delivery.Service
	ids      uuid.IDProvider
	logger   *logger.Logger
}

// New builds a Processor over the given store and delivery service.
func New(st store.Store, deliverySvc *delivery.Service, ids uuid.IDProvider, log *logger.Logger) *Processor {
	return &Processor{store: st, delivery: deliverySvc, ids: ids, logger: log}
}

// Cancel satisfies messaging.MessageHandler; the processor holds no
// per-subscription state to release.
func (p *Processor) Cancel() error { return nil }

// Handle decodes and processes one bus message. A nil return acks the
// message; a non-nil return nacks it so the bus redelivers.
func (p *Processor) Handle(msg *messaging.Message) error {
	ctx := context.Background()
	correlationID, err := p.ids.ID()
	if err != nil {
		correlationID = "unknown"
	}

	var wire wireMessage
	if err := json.Unmarshal(msg.Payload, &wire); err != nil {
		p.logger.Error("ingest: malformed bus message, discarding",
			"correlation_id", correlationID, "error", err)
		return nil
	}

	recipients, gatewayAddress, ok := resolveRecipients(wire)
	if !ok {
		p.logger.Error("ingest: message carries neither user_id nor email_to, discarding",
			"correlation_id", correlationID, "event_id", wire.EventID)
		return nil
	}

	// Gateway messages never reach the store, so they don't need a
	// parseable timestamp.
	if gatewayAddress != "" {
		p.handleGateway(ctx, gatewayAddress, wire, correlationID)
		return nil
	}

	eventType, known := event.ParseType(wire.EventType)
	if !known {
		p.logger.Warn("ingest: unknown event_type, coercing to NOTIFICATION",
			"correlation_id", correlationID, "event_id", wire.EventID, "event_type", wire.EventType)
	}

	timestamp, err := time.Parse(time.RFC3339, wire.Timestamp)
	if err != nil {
		p.logger.Error("ingest: malformed timestamp, discarding",
			"correlation_id", correlationID, "event_id", wire.EventID, "error", err)
		return nil
	}

	anyRetryFailure := false
	multi := len(recipients) > 1

	for _, userID := range recipients {
		failed, err := p.processRecipient(ctx, userID, wire, eventType, timestamp, multi, correlationID)
		if err != nil {
			p.logger.Error("ingest: store failure while processing recipient",
				"correlation_id", correlationID, "event_id", wire.EventID, "user_id", userID, "error", err)
			anyRetryFailure = true
			continue
		}
		if failed {
			anyRetryFailure = true
		}
	}

	if anyRetryFailure {
		return fmt.Errorf("ingest: one or more recipients failed with retry strategy")
	}
	return nil
}

// resolveRecipients classifies a decoded message per the routing
// rules: gateway mode (email_to present, user_id absent), single
// recipient, multi-recipient fan-out, or undeliverable.
func resolveRecipients(wire wireMessage) (recipients []string, gatewayAddress string, ok bool) {
	hasUserID := len(wire.UserID) > 0 && string(wire.UserID) != "null"

	if !hasUserID {
		if wire.EmailTo != "" {
			return nil, wire.EmailTo, true
		}
		return nil, "", false
	}

	var single string
	if err := json.Unmarshal(wire.UserID, &single); err == nil {
		return []string{single}, "", true
	}

	var many []string
	if err := json.Unmarshal(wire.UserID, &many); err == nil {
		return many, "", true
	}

	return nil, "", false
}

// handleGateway synthesizes the transient pseudo-subscription and
// delivers once, best-effort: the message is always acked regardless
// of delivery outcome, and the event is never stored.
func (p *Processor) handleGateway(ctx context.Context, address string, wire wireMessage, correlationID string) {
	sub := subscription.Gateway(address)
	sender := wire.Sender
	if sender == "" {
		sender = DefaultSender
	}
	ok := p.delivery.Deliver(ctx, sub, wire.Message, wire.Subject, sender, correlationID)
	if !ok {
		p.logger.Warn("ingest: gateway delivery failed, acking anyway (fire-and-forget)",
			"correlation_id", correlationID, "event_id", wire.EventID, "address", address)
	}
}

// processRecipient stores the event for one recipient, delivers to
// every immediate subscription, and decides whether the event should
// be purged immediately. It returns failed=true when the recipient
// must force a message-level nack under its error strategy.
func (p *Processor) processRecipient(
	ctx context.Context,
	userID string,
	wire wireMessage,
	eventType event.Type,
	timestamp time.Time,
	multi bool,
	correlationID string,
) (failed bool, err error) {
	subs, err := p.store.GetUserSubscriptions(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("get subscriptions for %s: %w", userID, err)
	}
	if len(subs) == 0 {
		p.logger.Debug("ingest: recipient has no enabled subscriptions, skipping",
			"correlation_id", correlationID, "user_id", userID)
		return false, nil
	}

	eventID := wire.EventID
	if multi {
		eventID = event.FanOutID(wire.EventID, userID)
	}

	ev := event.Event{
		EventID:   eventID,
		UserID:    userID,
		EventType: eventType,
		Message:   wire.Message,
		Sender:    wire.Sender,
		Subject:   wire.Subject,
		Timestamp: timestamp,
		Metadata:  wire.Metadata,
	}
	if err := p.store.StoreEvent(ctx, ev); err != nil {
		return false, fmt.Errorf("store event %s: %w", eventID, err)
	}

	hasImmediate := false
	hasNonImmediate := false
	allImmediateSucceeded := true

	for _, sub := range subs {
		if sub.AggregationFrequency != subscription.FrequencyImmediate {
			hasNonImmediate = true
			continue
		}
		hasImmediate = true

		sender := wire.Sender
		if sender == "" {
			sender = DefaultSender
		}
		ok := p.delivery.Deliver(ctx, sub, wire.Message, wire.Subject, sender, correlationID)
		if ok {
			continue
		}

		switch sub.DeliveryErrorStrategy {
		case subscription.ErrorStrategyIgnore:
			p.logger.Warn("ingest: immediate delivery failed, ignoring per subscription policy",
				"correlation_id", correlationID, "user_id", userID, "subscription_id", sub.SubscriptionID)
		default:
			p.logger.Warn("ingest: immediate delivery failed, marking for retry",
				"correlation_id", correlationID, "user_id", userID, "subscription_id", sub.SubscriptionID)
			allImmediateSucceeded = false
			failed = true
		}
	}

	if hasImmediate && allImmediateSucceeded && !hasNonImmediate {
		purgeBefore := timestamp.Add(time.Second)
		if err := p.store.ClearUserEvents(ctx, userID, purgeBefore); err != nil {
			p.logger.Warn("ingest: purge after immediate delivery failed",
				"correlation_id", correlationID, "user_id", userID, "error", err)
		}
	}

	return failed, nil
}

var _ messaging.MessageHandler = (*Processor)(nil)
