// Package storetest provides an in-memory store.Store fake, used in
// place of store/mongo across the ingestion, scheduler, and flush
// test suites so their behavior can be exercised without a live
// MongoDB instance.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arxiv/messaging-service/event"
	storeerr "github.com/arxiv/messaging-service/pkg/errors/store"
	"github.com/arxiv/messaging-service/store"
	"github.com/arxiv/messaging-service/subscription"
)

// Store is a mutex-guarded in-memory implementation of store.Store.
type Store struct {
	mu            sync.Mutex
	events        map[string]event.Event
	subscriptions map[string]subscription.Subscription
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		events:        make(map[string]event.Event),
		subscriptions: make(map[string]subscription.Subscription),
	}
}

func (s *Store) StoreEvent(_ context.Context, ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.EventID] = ev
	return nil
}

func (s *Store) GetUserEvents(_ context.Context, userID string, since *time.Time) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, 0)
	for _, ev := range s.events {
		if ev.UserID != userID {
			continue
		}
		if since != nil && ev.Timestamp.Before(*since) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) ClearUserEvents(_ context.Context, userID string, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ev := range s.events {
		if ev.UserID == userID && ev.Timestamp.Before(before) {
			delete(s.events, id)
		}
	}
	return nil
}

func (s *Store) DeleteEventByID(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return false, nil
	}
	delete(s.events, eventID)
	return true, nil
}

func (s *Store) DeleteEventsByIDs(_ context.Context, eventIDs []string) (store.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result store.DeleteResult
	for _, id := range eventIDs {
		// An id that was never stored is not a failure, matching
		// store/mongo.
		if _, ok := s.events[id]; ok {
			delete(s.events, id)
			result.Deleted++
		}
	}
	return result, nil
}

func (s *Store) GetUndeliveredEvents(_ context.Context, limit int) (map[string][]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]event.Event, 0, len(s.events))
	for _, ev := range s.events {
		all = append(all, ev)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	byUser := make(map[string][]event.Event)
	for _, ev := range all {
		byUser[ev.UserID] = append(byUser[ev.UserID], ev)
	}
	return byUser, nil
}

func (s *Store) GetUndeliveredEventsByUser(ctx context.Context, userID string) ([]event.Event, error) {
	return s.GetUserEvents(ctx, userID, nil)
}

func (s *Store) GetUndeliveredStats(_ context.Context) (store.UndeliveredStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := store.UndeliveredStats{
		PerUserCounts: make(map[string]int),
		PerTypeCounts: make(map[event.Type]int),
		OldestPending: make(map[string]time.Time),
	}
	users := make(map[string]struct{})
	for _, ev := range s.events {
		stats.TotalEvents++
		stats.PerUserCounts[ev.UserID]++
		stats.PerTypeCounts[ev.EventType]++
		users[ev.UserID] = struct{}{}
		if oldest, ok := stats.OldestPending[ev.UserID]; !ok || ev.Timestamp.Before(oldest) {
			stats.OldestPending[ev.UserID] = ev.Timestamp
		}
	}
	stats.TotalUsers = len(users)
	return stats, nil
}

func (s *Store) StoreSubscription(_ context.Context, sub subscription.Subscription) error {
	sub.ApplyDefaults()
	if err := sub.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.SubscriptionID] = sub
	return nil
}

func (s *Store) GetUserSubscriptions(_ context.Context, userID string) ([]subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.UserID == userID && sub.Enabled {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Store) GetUserSubscriptionsAll(_ context.Context, userID string) ([]subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Store) GetSubscriptionsByFrequency(_ context.Context, freq subscription.Frequency) ([]subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.AggregationFrequency == freq && sub.Enabled {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Store) DeleteSubscription(_ context.Context, subscriptionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[subscriptionID]; !ok {
		return false, nil
	}
	delete(s.subscriptions, subscriptionID)
	return true, nil
}

func (s *Store) GetAllUsersWithSubscriptions(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, sub := range s.subscriptions {
		seen[sub.UserID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for uid := range seen {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) UpdateLastDelivered(_ context.Context, subscriptionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[subscriptionID]
	if !ok {
		return storeerr.ErrNotFound
	}
	sub.LastDelivered = at
	s.subscriptions[subscriptionID] = sub
	return nil
}

// EventCount returns the number of events currently held, for test
// assertions that need a quick total without caring about user
// grouping.
func (s *Store) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Events returns a snapshot copy of every stored event, for test
// assertions that want to inspect raw contents.
func (s *Store) Events() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	return out
}

var _ store.Store = (*Store)(nil)
