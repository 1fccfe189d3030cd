// Package webhook delivers message bodies as an HTTP POST of a JSON
// envelope to the subscription's webhook_url.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/arxiv/messaging-service/pkg/logger"
	"github.com/arxiv/messaging-service/subscription"
)

// Timeout bounds every webhook POST.
const Timeout = 30 * time.Second

type payload struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// Provider posts the delivery payload to the subscription's webhook_url.
type Provider struct {
	client *http.Client
	logger *logger.Logger
}

// New builds a webhook Provider.
func New(log *logger.Logger) *Provider {
	return &Provider{
		client: &http.Client{Timeout: Timeout},
		logger: log,
	}
}

// Channel implements delivery.Provider.
func (p *Provider) Channel() subscription.DeliveryMethod {
	return subscription.DeliveryMethodWebhook
}

// Send posts { subject, message, sender } as JSON to sub.WebhookURL.
// Success is any HTTP 2xx response; any network error, timeout, or
// non-2xx response returns false.
func (p *Provider) Send(ctx context.Context, sub subscription.Subscription, body, subject, sender, correlationID string) bool {
	data, err := json.Marshal(payload{Subject: subject, Message: body, Sender: sender})
	if err != nil {
		p.logger.Error("webhook: failed to marshal payload",
			"subscription_id", sub.SubscriptionID, "correlation_id", correlationID, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.WebhookURL, bytes.NewReader(data))
	if err != nil {
		p.logger.Error("webhook: failed to build request",
			"subscription_id", sub.SubscriptionID, "correlation_id", correlationID, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error("webhook: request failed",
			"subscription_id", sub.SubscriptionID, "correlation_id", correlationID, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Error("webhook: non-2xx response",
			"subscription_id", sub.SubscriptionID, "correlation_id", correlationID, "status", resp.StatusCode)
		return false
	}

	return true
}

var _ interface {
	Channel() subscription.DeliveryMethod
	Send(ctx context.Context, sub subscription.Subscription, body, subject, sender, correlationID string) bool
} = (*Provider)(nil)
