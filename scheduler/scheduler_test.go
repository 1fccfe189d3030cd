package scheduler_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/arxiv/messaging-service/delivery"
	"github.com/arxiv/messaging-service/event"
	"github.com/arxiv/messaging-service/pkg/logger"
	"github.com/arxiv/messaging-service/pkg/uuid"
	"github.com/arxiv/messaging-service/scheduler"
	"github.com/arxiv/messaging-service/store/storetest"
	"github.com/arxiv/messaging-service/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	return ch
}

type countingProvider struct {
	channel subscription.DeliveryMethod
	result  bool
	calls   int
}

func (p *countingProvider) Channel() subscription.DeliveryMethod { return p.channel }

func (p *countingProvider) Send(_ context.Context, _ subscription.Subscription, _, _, _, _ string) bool {
	p.calls++
	return p.result
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(io.Discard, "debug")
	require.NoError(t, err)
	return log
}

func TestTickHourlyDeliversAndPurges(t *testing.T) {
	st := storetest.New()
	require.NoError(t, st.StoreSubscription(context.Background(), subscription.Subscription{
		SubscriptionID: "s1", UserID: "u1", DeliveryMethod: subscription.DeliveryMethodEmail,
		AggregationFrequency: subscription.FrequencyHourly, EmailAddress: "u1@x", Enabled: true,
	}))
	base := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, st.StoreEvent(context.Background(), event.Event{
		EventID: "e1", UserID: "u1", EventType: event.TypeInfo, Timestamp: base.Add(-10 * time.Minute),
	}))

	provider := &countingProvider{channel: subscription.DeliveryMethodEmail, result: true}
	svc := delivery.NewService(newTestLogger(t), provider)
	clk := &fakeClock{now: base}
	sched := scheduler.New(st, svc, uuid.New(), clk, newTestLogger(t))

	sched.Tick(context.Background())

	assert.Equal(t, 1, provider.calls)
	events, err := st.GetUserEvents(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, events, "successful delivery purges up to the new watermark")
}

func TestTickIdempotentWithinSameHour(t *testing.T) {
	st := storetest.New()
	require.NoError(t, st.StoreSubscription(context.Background(), subscription.Subscription{
		SubscriptionID: "s1", UserID: "u1", DeliveryMethod: subscription.DeliveryMethodEmail,
		AggregationFrequency: subscription.FrequencyHourly, EmailAddress: "u1@x", Enabled: true,
	}))
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, st.StoreEvent(context.Background(), event.Event{
		EventID: "e1", UserID: "u1", EventType: event.TypeInfo, Timestamp: base.Add(-10 * time.Minute),
	}))

	provider := &countingProvider{channel: subscription.DeliveryMethodEmail, result: true}
	svc := delivery.NewService(newTestLogger(t), provider)
	clk := &fakeClock{now: base}
	sched := scheduler.New(st, svc, uuid.New(), clk, newTestLogger(t))

	sched.Tick(context.Background())
	clk.now = base.Add(20 * time.Minute) // still within the same hour
	sched.Tick(context.Background())

	assert.Equal(t, 1, provider.calls, "the same hour must not redispatch once already delivered")
}

func TestTickDailyHonorsDeliveryTimeAndTimezone(t *testing.T) {
	st := storetest.New()
	require.NoError(t, st.StoreSubscription(context.Background(), subscription.Subscription{
		SubscriptionID: "s1", UserID: "u1", DeliveryMethod: subscription.DeliveryMethodEmail,
		AggregationFrequency: subscription.FrequencyDaily, DeliveryTime: "09:00", Timezone: "UTC",
		EmailAddress: "u1@x", Enabled: true,
	}))
	require.NoError(t, st.StoreEvent(context.Background(), event.Event{
		EventID: "e1", UserID: "u1", EventType: event.TypeInfo,
		Timestamp: time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC),
	}))

	provider := &countingProvider{channel: subscription.DeliveryMethodEmail, result: true}
	svc := delivery.NewService(newTestLogger(t), provider)

	clk := &fakeClock{now: time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)}
	sched := scheduler.New(st, svc, uuid.New(), clk, newTestLogger(t))
	sched.Tick(context.Background())
	assert.Equal(t, 0, provider.calls, "not yet 09:00, must not fire")

	clk.now = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	sched.Tick(context.Background())
	assert.Equal(t, 1, provider.calls, "09:00 in the subscription's timezone must fire")
}

func TestPurgeIgnoresImmediateSubscriptions(t *testing.T) {
	st := storetest.New()
	require.NoError(t, st.StoreSubscription(context.Background(), subscription.Subscription{
		SubscriptionID: "imm", UserID: "u1", DeliveryMethod: subscription.DeliveryMethodEmail,
		AggregationFrequency: subscription.FrequencyImmediate, EmailAddress: "u1@x", Enabled: true,
	}))
	require.NoError(t, st.StoreSubscription(context.Background(), subscription.Subscription{
		SubscriptionID: "hourly", UserID: "u1", DeliveryMethod: subscription.DeliveryMethodEmail,
		AggregationFrequency: subscription.FrequencyHourly, EmailAddress: "u1@x", Enabled: true,
	}))
	base := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, st.StoreEvent(context.Background(), event.Event{
		EventID: "e1", UserID: "u1", EventType: event.TypeInfo, Timestamp: base.Add(-10 * time.Minute),
	}))

	provider := &countingProvider{channel: subscription.DeliveryMethodEmail, result: true}
	svc := delivery.NewService(newTestLogger(t), provider)
	clk := &fakeClock{now: base}
	sched := scheduler.New(st, svc, uuid.New(), clk, newTestLogger(t))

	sched.Tick(context.Background())

	events, err := st.GetUserEvents(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, events, "an immediate subscription never advances a watermark and must not block the purge")
}

func TestPurgeRespectsMinimumWatermarkAcrossCadences(t *testing.T) {
	st := storetest.New()
	require.NoError(t, st.StoreSubscription(context.Background(), subscription.Subscription{
		SubscriptionID: "hourly", UserID: "u1", DeliveryMethod: subscription.DeliveryMethodEmail,
		AggregationFrequency: subscription.FrequencyHourly, EmailAddress: "u1@x", Enabled: true,
	}))
	require.NoError(t, st.StoreSubscription(context.Background(), subscription.Subscription{
		SubscriptionID: "daily", UserID: "u1", DeliveryMethod: subscription.DeliveryMethodEmail,
		AggregationFrequency: subscription.FrequencyDaily, DeliveryTime: "09:00", Timezone: "UTC",
		EmailAddress: "u1@x", Enabled: true,
	}))
	base := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, st.StoreEvent(context.Background(), event.Event{
		EventID: "e1", UserID: "u1", EventType: event.TypeInfo, Timestamp: base.Add(-10 * time.Minute),
	}))

	provider := &countingProvider{channel: subscription.DeliveryMethodEmail, result: true}
	svc := delivery.NewService(newTestLogger(t), provider)
	clk := &fakeClock{now: base}
	sched := scheduler.New(st, svc, uuid.New(), clk, newTestLogger(t))

	sched.Tick(context.Background()) // hourly cadence fires; daily hasn't hit 09:00 yet

	events, err := st.GetUserEvents(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.Len(t, events, 1, "daily subscription has never delivered, so nothing may be purged yet")
}
