// Package flush is an on-demand drain of pending events for one user
// or for every user, reusing the same aggregator and delivery
// machinery the scheduler uses on its own cadence.
package flush

import (
	"context"
	"fmt"
	"time"

	"github.com/arxiv/messaging-service/aggregator"
	"github.com/arxiv/messaging-service/delivery"
	"github.com/arxiv/messaging-service/event"
	"github.com/arxiv/messaging-service/pkg/logger"
	"github.com/arxiv/messaging-service/pkg/uuid"
	"github.com/arxiv/messaging-service/store"
)

// DefaultSender is the From address flush-triggered deliveries use.
const DefaultSender = "arxiv-messaging-flush@arxiv.org"

// Result reports the outcome of one Flush call.
type Result struct {
	UsersProcessed    int
	MessagesDelivered int
	MessagesFailed    int
	EventsCleared     int
	Errors            []string
}

// Service runs flush operations against the store and delivery
// service.
type Service struct {
	store    store.Store
	delivery *delivery.Service
	ids      uuid.IDProvider
	logger   *logger.Logger
}

// New builds a flush Service.
func New(st store.Store, deliverySvc *delivery.Service, ids uuid.IDProvider, log *logger.Logger) *Service {
	return &Service{store: st, delivery: deliverySvc, ids: ids, logger: log}
}

// Flush drains pending events for userID (or every user with pending
// events, if userID is nil). In dryRun mode it only reports what it
// would do: no delivery calls are made and nothing is purged.
// forceDelivery purges a user's events even when no delivery
// succeeded (or none was attempted).
func (s *Service) Flush(ctx context.Context, userID *string, forceDelivery, dryRun bool) (Result, error) {
	pending, err := s.gatherPending(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("flush: gather pending events: %w", err)
	}

	var result Result
	for uid, events := range pending {
		if len(events) == 0 {
			continue
		}
		result.UsersProcessed++

		if dryRun {
			continue
		}

		delivered, failed, errs := s.flushUser(ctx, uid, events)
		result.MessagesDelivered += delivered
		result.MessagesFailed += failed
		result.Errors = append(result.Errors, errs...)

		if delivered > 0 || forceDelivery {
			n := len(events)
			if err := s.clearAll(ctx, uid, events); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("user %s: purge failed: %v", uid, err))
				continue
			}
			result.EventsCleared += n
		}
	}

	return result, nil
}

// gatherPending returns every pending event, keyed by user_id, scoped
// to userID if given.
func (s *Service) gatherPending(ctx context.Context, userID *string) (map[string][]event.Event, error) {
	if userID != nil {
		events, err := s.store.GetUndeliveredEventsByUser(ctx, *userID)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			return map[string][]event.Event{}, nil
		}
		return map[string][]event.Event{*userID: events}, nil
	}
	return s.store.GetUndeliveredEvents(ctx, 0)
}

// flushUser iterates uid's enabled subscriptions, aggregating and
// delivering the gathered events to each.
func (s *Service) flushUser(ctx context.Context, uid string, events []event.Event) (delivered, failed int, errs []string) {
	subs, err := s.store.GetUserSubscriptions(ctx, uid)
	if err != nil {
		return 0, 0, []string{fmt.Sprintf("user %s: list subscriptions: %v", uid, err)}
	}
	if len(subs) == 0 {
		return 0, 0, nil
	}

	correlationID, err := s.ids.ID()
	if err != nil {
		correlationID = "unknown"
	}
	subject := fmt.Sprintf("Undelivered Messages Summary for %s", uid)

	for _, sub := range subs {
		body, err := aggregator.Aggregate(uid, events, sub.AggregationMethod)
		if err != nil {
			errs = append(errs, fmt.Sprintf("user %s: subscription %s: aggregate: %v", uid, sub.SubscriptionID, err))
			failed++
			continue
		}
		if body == "" {
			continue
		}
		if s.delivery.Deliver(ctx, sub, body, subject, DefaultSender, correlationID) {
			delivered++
			continue
		}
		failed++
		errs = append(errs, fmt.Sprintf("user %s: subscription %s: delivery failed", uid, sub.SubscriptionID))
	}

	return delivered, failed, errs
}

// clearAll purges every gathered event for uid. Flush always clears
// from the epoch through the latest gathered timestamp rather than
// relying on a subscription watermark, since a flush is an
// out-of-band drain of everything pending, not a single cadence's
// window.
func (s *Service) clearAll(ctx context.Context, uid string, events []event.Event) error {
	latest := events[0].Timestamp
	for _, ev := range events[1:] {
		if ev.Timestamp.After(latest) {
			latest = ev.Timestamp
		}
	}
	return s.store.ClearUserEvents(ctx, uid, latest.Add(time.Second))
}
