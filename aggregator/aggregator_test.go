package aggregator_test

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/arxiv/messaging-service/aggregator"
	"github.com/arxiv/messaging-service/event"
	"github.com/arxiv/messaging-service/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkEvents(n int, userID string, typ event.Type, base time.Time) []event.Event {
	out := make([]event.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, event.Event{
			EventID:   fmt.Sprintf("e%d", i),
			UserID:    userID,
			EventType: typ,
			Message:   fmt.Sprintf("message %d", i),
			Sender:    "s@x.com",
			Subject:   "subj",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestAggregateEmptyEvents(t *testing.T) {
	body, err := aggregator.Aggregate("u1", nil, subscription.AggregationPlain)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestAggregatePlainRoundTrip(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	events := mkEvents(7, "u1", event.TypeAlert, base)

	body, err := aggregator.Aggregate("u1", events, subscription.AggregationPlain)
	require.NoError(t, err)

	assert.Contains(t, body, "Total Events: 7")
	assert.Equal(t, 5, strings.Count(body, "•"), "plain truncates each type group to 5 bullets")
	assert.Contains(t, body, "... and 2 more")

	// The bullets are the 5 most recent events, so the two oldest are
	// the ones summarized away.
	assert.Contains(t, body, "message 6")
	assert.Contains(t, body, "message 2")
	assert.NotContains(t, body, "message 0")
	assert.NotContains(t, body, "message 1")
}

func TestAggregatePlainGroupNotOverTruncationLimit(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	events := mkEvents(3, "u1", event.TypeInfo, base)

	body, err := aggregator.Aggregate("u1", events, subscription.AggregationPlain)
	require.NoError(t, err)

	assert.Equal(t, 3, strings.Count(body, "•"))
	assert.NotContains(t, body, "more")
}

func TestAggregatePlainTotalEventsMatchesParsedCount(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	events := append(mkEvents(3, "u1", event.TypeAlert, base), mkEvents(2, "u1", event.TypeInfo, base.Add(time.Hour))...)

	body, err := aggregator.Aggregate("u1", events, subscription.AggregationPlain)
	require.NoError(t, err)

	idx := strings.Index(body, "Total Events: ")
	require.GreaterOrEqual(t, idx, 0)
	rest := body[idx+len("Total Events: "):]
	rest = rest[:strings.IndexByte(rest, '\n')]
	n, err := strconv.Atoi(rest)
	require.NoError(t, err)
	assert.Equal(t, len(events), n)
}

func TestAggregateHTMLNoTruncationAndEscaping(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	events := mkEvents(6, "u1", event.TypeAlert, base)
	events[0].Subject = "<script>alert(1)</script>"

	body, err := aggregator.Aggregate("u1", events, subscription.AggregationHTML)
	require.NoError(t, err)

	assert.Equal(t, 6, strings.Count(body, "<tr><td>"), "HTML renders every event as a data row, no 5-event truncation")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "Event Summary for User u1")
}

func TestAggregateMIMEProducesMultipartEnvelope(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	events := append(mkEvents(2, "u1", event.TypeAlert, base), mkEvents(1, "u1", event.TypeWarning, base.Add(time.Hour))...)

	body, err := aggregator.Aggregate("u1", events, subscription.AggregationMIME)
	require.NoError(t, err)

	assert.Contains(t, body, "multipart/mixed")
	assert.Contains(t, body, "summary.txt")
	assert.Contains(t, body, "ALERT_events.txt")
	assert.Contains(t, body, "WARNING_events.txt")
	assert.Contains(t, body, "Total Events: 3")
}

func TestAggregateUnknownMethod(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	events := mkEvents(1, "u1", event.TypeInfo, base)

	_, err := aggregator.Aggregate("u1", events, subscription.AggregationMethod("bogus"))
	require.Error(t, err)
}

func TestAggregateGroupsPreserveFirstSeenOrder(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	events := []event.Event{
		{EventID: "a", UserID: "u1", EventType: event.TypeWarning, Timestamp: base, Message: "m1"},
		{EventID: "b", UserID: "u1", EventType: event.TypeAlert, Timestamp: base.Add(time.Minute), Message: "m2"},
		{EventID: "c", UserID: "u1", EventType: event.TypeWarning, Timestamp: base.Add(2 * time.Minute), Message: "m3"},
	}

	body, err := aggregator.Aggregate("u1", events, subscription.AggregationPlain)
	require.NoError(t, err)

	warningIdx := strings.Index(body, "WARNING")
	alertIdx := strings.Index(body, "ALERT")
	require.GreaterOrEqual(t, warningIdx, 0)
	require.GreaterOrEqual(t, alertIdx, 0)
	assert.Less(t, warningIdx, alertIdx, "WARNING was seen first and must render first")
}
