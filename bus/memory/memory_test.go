package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/arxiv/messaging-service/bus/memory"
	"github.com/arxiv/messaging-service/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	received []*messaging.Message
	err      error
}

func (h *recordingHandler) Handle(msg *messaging.Message) error {
	h.received = append(h.received, msg)
	return h.err
}

func (h *recordingHandler) Cancel() error { return nil }

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := memory.New()
	handler := &recordingHandler{}
	require.NoError(t, bus.Subscribe(context.Background(), messaging.SubscriberConfig{
		ID: "sub1", Topic: "notifications", Handler: handler,
	}))

	msg := &messaging.Message{ID: "m1", Topic: "notifications", Payload: []byte(`{}`)}
	require.NoError(t, bus.Publish(context.Background(), "notifications", msg))

	require.Len(t, handler.received, 1)
	assert.Equal(t, "m1", handler.received[0].ID)
}

func TestPublishIgnoresHandlerErrorForOtherSubscribers(t *testing.T) {
	bus := memory.New()
	failing := &recordingHandler{err: errors.New("boom")}
	succeeding := &recordingHandler{}
	require.NoError(t, bus.Subscribe(context.Background(), messaging.SubscriberConfig{ID: "a", Topic: "t", Handler: failing}))
	require.NoError(t, bus.Subscribe(context.Background(), messaging.SubscriberConfig{ID: "b", Topic: "t", Handler: succeeding}))

	msg := &messaging.Message{Payload: []byte(`{}`)}
	require.NoError(t, bus.Publish(context.Background(), "t", msg))

	assert.Len(t, failing.received, 1)
	assert.Len(t, succeeding.received, 1)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := memory.New()
	handler := &recordingHandler{}
	require.NoError(t, bus.Subscribe(context.Background(), messaging.SubscriberConfig{ID: "sub1", Topic: "t", Handler: handler}))
	require.NoError(t, bus.Unsubscribe(context.Background(), "sub1", "t"))

	require.NoError(t, bus.Publish(context.Background(), "t", &messaging.Message{Payload: []byte(`{}`)}))
	assert.Empty(t, handler.received)
}
