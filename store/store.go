// Package store defines the repository contract over events and
// subscriptions: per-document writes, range queries on indexed
// fields, and atomic delete. The concrete implementation lives in
// store/mongo; callers only ever see this interface, so a fake can
// stand in for tests.
package store

import (
	"context"
	"time"

	"github.com/arxiv/messaging-service/event"
	"github.com/arxiv/messaging-service/subscription"
)

// ClearBatchSize bounds how many documents ClearUserEvents deletes
// per underlying write batch.
const ClearBatchSize = 500

// UndeliveredStats summarizes the retained-event backlog, including
// the oldest pending event's timestamp per user.
type UndeliveredStats struct {
	TotalUsers    int
	TotalEvents   int
	PerUserCounts map[string]int
	PerTypeCounts map[event.Type]int
	OldestPending map[string]time.Time
}

// DeleteResult reports the outcome of a bulk-by-id delete.
type DeleteResult struct {
	Deleted   int
	FailedIDs []string
}

// EventRepository is the event half of the store.
type EventRepository interface {
	// StoreEvent upserts by event_id; idempotent by primary key.
	StoreEvent(ctx context.Context, ev event.Event) error

	// GetUserEvents returns events for userID with timestamp >= since
	// (if since is non-nil), ordered by timestamp ascending.
	GetUserEvents(ctx context.Context, userID string, since *time.Time) ([]event.Event, error)

	// ClearUserEvents deletes events for userID with timestamp <
	// before, in batches bounded by ClearBatchSize.
	ClearUserEvents(ctx context.Context, userID string, before time.Time) error

	// DeleteEventByID deletes a single event by id and reports
	// whether a document was actually removed.
	DeleteEventByID(ctx context.Context, eventID string) (bool, error)

	// DeleteEventsByIDs deletes many events by id, reporting which
	// ids (if any) could not be deleted.
	DeleteEventsByIDs(ctx context.Context, eventIDs []string) (DeleteResult, error)

	// GetUndeliveredEvents returns up to limit events (0 means no
	// limit) grouped by user_id. "Undelivered" here means "currently
	// retained": any event still in the store is pending at least one
	// subscription's aggregated delivery.
	GetUndeliveredEvents(ctx context.Context, limit int) (map[string][]event.Event, error)

	// GetUndeliveredEventsByUser returns all retained events for one user.
	GetUndeliveredEventsByUser(ctx context.Context, userID string) ([]event.Event, error)

	// GetUndeliveredStats summarizes the retained-event backlog.
	GetUndeliveredStats(ctx context.Context) (UndeliveredStats, error)
}

// SubscriptionRepository is the subscription half of the store.
type SubscriptionRepository interface {
	// StoreSubscription upserts by subscription_id. Defaults are
	// applied and the subscription is validated before the write.
	StoreSubscription(ctx context.Context, sub subscription.Subscription) error

	// GetUserSubscriptions returns only enabled subscriptions for
	// userID; the query the scheduled and ingestion paths call.
	GetUserSubscriptions(ctx context.Context, userID string) ([]subscription.Subscription, error)

	// GetUserSubscriptionsAll returns every subscription for userID
	// regardless of enabled, for administrative listing.
	GetUserSubscriptionsAll(ctx context.Context, userID string) ([]subscription.Subscription, error)

	// GetSubscriptionsByFrequency returns every enabled subscription
	// at the given cadence, across all users; what the scheduler
	// loops iterate.
	GetSubscriptionsByFrequency(ctx context.Context, freq subscription.Frequency) ([]subscription.Subscription, error)

	// DeleteSubscription deletes a subscription by id and reports
	// whether one was actually removed.
	DeleteSubscription(ctx context.Context, subscriptionID string) (bool, error)

	// GetAllUsersWithSubscriptions returns the distinct set of user
	// ids that own at least one subscription (enabled or not).
	GetAllUsersWithSubscriptions(ctx context.Context) ([]string, error)

	// UpdateLastDelivered advances a subscription's delivery
	// watermark after a successful scheduled delivery.
	UpdateLastDelivered(ctx context.Context, subscriptionID string, at time.Time) error
}

// Store bundles both repositories; most callers only need one half,
// but the ingestion processor, scheduler, and flush orchestrator all
// need both.
type Store interface {
	EventRepository
	SubscriptionRepository
}
