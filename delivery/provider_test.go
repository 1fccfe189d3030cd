package delivery_test

import (
	"context"
	"io"
	"testing"

	"github.com/arxiv/messaging-service/delivery"
	"github.com/arxiv/messaging-service/pkg/logger"
	"github.com/arxiv/messaging-service/subscription"
	"github.com/stretchr/testify/assert"
)

type fakeProvider struct {
	channel subscription.DeliveryMethod
	result  bool
	panics  bool
	calls   int
}

func (f *fakeProvider) Channel() subscription.DeliveryMethod { return f.channel }

func (f *fakeProvider) Send(_ context.Context, _ subscription.Subscription, _, _, _, _ string) bool {
	f.calls++
	if f.panics {
		panic("boom")
	}
	return f.result
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(io.Discard, "debug")
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	return log
}

func TestServiceDeliverRoutesByChannel(t *testing.T) {
	email := &fakeProvider{channel: subscription.DeliveryMethodEmail, result: true}
	webhook := &fakeProvider{channel: subscription.DeliveryMethodWebhook, result: false}
	svc := delivery.NewService(newTestLogger(t), email, webhook)

	ok := svc.Deliver(context.Background(), subscription.Subscription{DeliveryMethod: subscription.DeliveryMethodEmail}, "b", "s", "from", "cid")
	assert.True(t, ok)
	assert.Equal(t, 1, email.calls)

	ok = svc.Deliver(context.Background(), subscription.Subscription{DeliveryMethod: subscription.DeliveryMethodWebhook}, "b", "s", "from", "cid")
	assert.False(t, ok)
	assert.Equal(t, 1, webhook.calls)
}

func TestServiceDeliverNoProviderRegistered(t *testing.T) {
	svc := delivery.NewService(newTestLogger(t))
	ok := svc.Deliver(context.Background(), subscription.Subscription{DeliveryMethod: subscription.DeliveryMethodEmail}, "b", "s", "from", "cid")
	assert.False(t, ok)
}

func TestServiceDeliverContainsProviderPanic(t *testing.T) {
	email := &fakeProvider{channel: subscription.DeliveryMethodEmail, panics: true}
	svc := delivery.NewService(newTestLogger(t), email)

	ok := svc.Deliver(context.Background(), subscription.Subscription{DeliveryMethod: subscription.DeliveryMethodEmail}, "b", "s", "from", "cid")
	assert.False(t, ok, "a panicking provider must never escape Deliver")
}
