// Package scheduler runs the hourly/daily/weekly loops that walk
// enabled subscriptions by cadence, aggregate and deliver each one's
// pending events, and purge once every subscription on that user that
// could still need them has caught up.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/arxiv/messaging-service/aggregator"
	"github.com/arxiv/messaging-service/delivery"
	"github.com/arxiv/messaging-service/pkg/clock"
	"github.com/arxiv/messaging-service/pkg/logger"
	"github.com/arxiv/messaging-service/pkg/uuid"
	"github.com/arxiv/messaging-service/store"
	"github.com/arxiv/messaging-service/subscription"
)

// DefaultSender is the From line scheduled deliveries use.
const DefaultSender = "arXiv Messaging System"

// TickInterval is how often the scheduler loop wakes to check for due
// cadences; the loop itself is interruptible by ctx cancellation.
const TickInterval = 60 * time.Second

// cadenceWindow maps a Frequency to the lookback duration its
// aggregation window spans.
var cadenceWindow = map[subscription.Frequency]time.Duration{
	subscription.FrequencyHourly: time.Hour,
	subscription.FrequencyDaily:  24 * time.Hour,
	subscription.FrequencyWeekly: 7 * 24 * time.Hour,
}

var cadenceLabel = map[subscription.Frequency]string{
	subscription.FrequencyHourly: "Hourly",
	subscription.FrequencyDaily:  "Daily",
	subscription.FrequencyWeekly: "Weekly",
}

// Service runs the three scheduled-delivery loops against an injected
// Clock, so tests can drive ticks deterministically instead of
// sleeping on a wall clock.
type Service struct {
	store    store.Store
	delivery *delivery.Service
	ids      uuid.IDProvider
	clock    clock.Clock
	logger   *logger.Logger

	firedDaily  map[string]string // subscription_id -> "YYYY-MM-DD" already dispatched
	firedWeekly map[string]string // subscription_id -> ISO year-week already dispatched
	lastHour    int               // last hour-of-day the hourly cadence fired for, -1 if never
}

// New builds a scheduler Service.
func New(st store.Store, deliverySvc *delivery.Service, ids uuid.IDProvider, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{
		store:       st,
		delivery:    deliverySvc,
		ids:         ids,
		clock:       clk,
		logger:      log,
		firedDaily:  make(map[string]string),
		firedWeekly: make(map[string]string),
		lastHour:    -1,
	}
}

// Run blocks, waking every TickInterval to dispatch due cadences,
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(TickInterval):
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every cadence against the current clock reading and
// dispatches whichever subscriptions are due. Exported so tests can
// drive it directly against a fake clock without waiting on Run.
func (s *Service) Tick(ctx context.Context) {
	now := s.clock.Now()

	if now.Hour() != s.lastHour {
		s.lastHour = now.Hour()
		s.runCadence(ctx, subscription.FrequencyHourly, now)
	}

	dayKey := now.Format("2006-01-02")
	s.runDueByTimeOfDay(ctx, subscription.FrequencyDaily, now, dayKey, s.firedDaily)

	if now.Weekday() == time.Monday {
		year, week := now.ISOWeek()
		weekKey := fmt.Sprintf("%d-W%02d", year, week)
		s.runDueByTimeOfDay(ctx, subscription.FrequencyWeekly, now, weekKey, s.firedWeekly)
	}
}

// runCadence dispatches every enabled subscription at freq
// unconditionally. Used for the hourly loop, which fires once per
// hour boundary with no further per-subscription time check.
func (s *Service) runCadence(ctx context.Context, freq subscription.Frequency, now time.Time) {
	subs, err := s.store.GetSubscriptionsByFrequency(ctx, freq)
	if err != nil {
		s.logger.Error("scheduler: failed to list subscriptions", "frequency", freq, "error", err)
		return
	}
	for _, sub := range subs {
		s.deliverSubscription(ctx, sub, freq, now)
	}
}

// runDueByTimeOfDay dispatches subscriptions at freq whose own
// delivery_time (in its own timezone) matches now, deduplicating
// against periodKey so a subscription fires at most once per day (or
// week) even though Tick runs every minute.
func (s *Service) runDueByTimeOfDay(ctx context.Context, freq subscription.Frequency, now time.Time, periodKey string, fired map[string]string) {
	subs, err := s.store.GetSubscriptionsByFrequency(ctx, freq)
	if err != nil {
		s.logger.Error("scheduler: failed to list subscriptions", "frequency", freq, "error", err)
		return
	}

	for _, sub := range subs {
		if fired[sub.SubscriptionID] == periodKey {
			continue
		}
		if !isDue(sub, now) {
			continue
		}
		fired[sub.SubscriptionID] = periodKey
		s.deliverSubscription(ctx, sub, freq, now)
	}
}

// isDue reports whether now, converted to sub.Timezone, matches
// sub.DeliveryTime to the minute. An unknown timezone falls back to
// now's own location; a delivery_time not in "HH:MM" form never
// matches.
func isDue(sub subscription.Subscription, now time.Time) bool {
	loc, err := time.LoadLocation(sub.Timezone)
	if err != nil {
		loc = now.Location()
	}
	local := now.In(loc)
	return local.Format("15:04") == sub.DeliveryTime
}

// deliverSubscription runs the per-subscription state machine: idle →
// gathering → aggregating → delivering → {purging|retaining} → idle.
func (s *Service) deliverSubscription(ctx context.Context, sub subscription.Subscription, freq subscription.Frequency, now time.Time) {
	since := now.Add(-cadenceWindow[freq])

	events, err := s.store.GetUserEvents(ctx, sub.UserID, &since)
	if err != nil {
		s.logger.Error("scheduler: failed to read events",
			"subscription_id", sub.SubscriptionID, "user_id", sub.UserID, "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	body, err := aggregator.Aggregate(sub.UserID, events, sub.AggregationMethod)
	if err != nil {
		s.logger.Error("scheduler: aggregation failed",
			"subscription_id", sub.SubscriptionID, "user_id", sub.UserID, "error", err)
		return
	}

	correlationID, err := s.ids.ID()
	if err != nil {
		correlationID = "unknown"
	}

	subject := fmt.Sprintf("%s Summary - %d events", cadenceLabel[freq], len(events))
	ok := s.delivery.Deliver(ctx, sub, body, subject, DefaultSender, correlationID)
	if !ok {
		s.logger.Warn("scheduler: delivery failed, retaining events for next cycle",
			"subscription_id", sub.SubscriptionID, "user_id", sub.UserID)
		return
	}

	if err := s.store.UpdateLastDelivered(ctx, sub.SubscriptionID, now); err != nil {
		s.logger.Error("scheduler: failed to advance watermark",
			"subscription_id", sub.SubscriptionID, "error", err)
	}

	s.purgeIfCaughtUp(ctx, sub.UserID)
}

// purgeIfCaughtUp deletes events for userID older than the minimum
// last_delivered watermark across that user's enabled aggregated
// subscriptions. A subscription that has never delivered (zero
// watermark) blocks any purge, since it hasn't consumed anything yet.
// Immediate subscriptions don't gate the purge: they consume at
// ingestion time and never advance a watermark.
func (s *Service) purgeIfCaughtUp(ctx context.Context, userID string) {
	subs, err := s.store.GetUserSubscriptions(ctx, userID)
	if err != nil {
		s.logger.Error("scheduler: failed to list subscriptions for purge", "user_id", userID, "error", err)
		return
	}

	var minWatermark time.Time
	seen := false
	for _, sub := range subs {
		if sub.AggregationFrequency == subscription.FrequencyImmediate {
			continue
		}
		if sub.LastDelivered.IsZero() {
			return
		}
		if !seen || sub.LastDelivered.Before(minWatermark) {
			minWatermark = sub.LastDelivered
			seen = true
		}
	}
	if !seen {
		return
	}

	if err := s.store.ClearUserEvents(ctx, userID, minWatermark); err != nil {
		s.logger.Warn("scheduler: purge failed", "user_id", userID, "error", err)
	}
}
