// Package aggregator is a pure, stateless formatter that turns a
// user's ordered events into a single digest body. Aggregate never
// touches the network or the store; callers pass it already-ordered
// events and get back a string.
package aggregator

import (
	"fmt"

	"github.com/arxiv/messaging-service/event"
	"github.com/arxiv/messaging-service/subscription"
)

// maxBulletedEvents is the per-type truncation point for the plain
// rendering. HTML and MIME renderings show every event.
const maxBulletedEvents = 5

// group is one event_type's events, in first-seen order across the
// whole digest.
type group struct {
	eventType event.Type
	events    []event.Event
}

// Aggregate renders events for userID as a digest body in the given
// encoding. An empty events slice renders as an empty string.
func Aggregate(userID string, events []event.Event, method subscription.AggregationMethod) (string, error) {
	if len(events) == 0 {
		return "", nil
	}

	groups := groupByType(events)

	switch method {
	case subscription.AggregationHTML:
		return renderHTML(userID, events, groups), nil
	case subscription.AggregationMIME:
		return renderMIME(userID, events, groups)
	case subscription.AggregationPlain, "":
		return renderPlain(userID, events, groups), nil
	default:
		return "", fmt.Errorf("aggregator: unknown aggregation method %q", method)
	}
}

// groupByType buckets events by event_type, preserving the order in
// which each type was first seen.
func groupByType(events []event.Event) []group {
	index := make(map[event.Type]int)
	var groups []group
	for _, ev := range events {
		i, ok := index[ev.EventType]
		if !ok {
			i = len(groups)
			index[ev.EventType] = i
			groups = append(groups, group{eventType: ev.EventType})
		}
		groups[i].events = append(groups[i].events, ev)
	}
	return groups
}
