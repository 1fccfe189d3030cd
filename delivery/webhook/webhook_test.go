package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arxiv/messaging-service/delivery/webhook"
	"github.com/arxiv/messaging-service/pkg/logger"
	"github.com/arxiv/messaging-service/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(io.Discard, "debug")
	require.NoError(t, err)
	return log
}

func TestSendSuccess(t *testing.T) {
	var gotBody map[string]string
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := webhook.New(newTestLogger(t))
	sub := subscription.Subscription{DeliveryMethod: subscription.DeliveryMethodWebhook, WebhookURL: srv.URL}

	ok := p.Send(context.Background(), sub, "hello", "subj", "sender@x.com", "cid")

	assert.True(t, ok)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "hello", gotBody["message"])
	assert.Equal(t, "subj", gotBody["subject"])
	assert.Equal(t, "sender@x.com", gotBody["sender"])
}

func TestSendNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := webhook.New(newTestLogger(t))
	sub := subscription.Subscription{DeliveryMethod: subscription.DeliveryMethodWebhook, WebhookURL: srv.URL}

	ok := p.Send(context.Background(), sub, "hello", "subj", "sender@x.com", "cid")
	assert.False(t, ok)
}

func TestSendNetworkErrorFails(t *testing.T) {
	p := webhook.New(newTestLogger(t))
	sub := subscription.Subscription{DeliveryMethod: subscription.DeliveryMethodWebhook, WebhookURL: "http://127.0.0.1:1"}

	ok := p.Send(context.Background(), sub, "hello", "subj", "sender@x.com", "cid")
	assert.False(t, ok)
}

func TestChannel(t *testing.T) {
	p := webhook.New(newTestLogger(t))
	assert.Equal(t, subscription.DeliveryMethodWebhook, p.Channel())
}
