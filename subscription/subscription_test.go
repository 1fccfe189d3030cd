package subscription_test

import (
	"testing"

	"github.com/arxiv/messaging-service/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	sub := subscription.Subscription{}
	sub.ApplyDefaults()

	assert.Equal(t, subscription.DefaultAggregationMethod, sub.AggregationMethod)
	assert.Equal(t, subscription.DefaultErrorStrategy, sub.DeliveryErrorStrategy)
	assert.Equal(t, subscription.DefaultDeliveryTime, sub.DeliveryTime)
	assert.Equal(t, subscription.DefaultTimezone, sub.Timezone)
}

func TestApplyDefaultsPreservesSetValues(t *testing.T) {
	sub := subscription.Subscription{
		AggregationMethod:     subscription.AggregationHTML,
		DeliveryErrorStrategy: subscription.ErrorStrategyIgnore,
		DeliveryTime:          "18:30",
		Timezone:              "America/New_York",
	}
	sub.ApplyDefaults()

	assert.Equal(t, subscription.AggregationHTML, sub.AggregationMethod)
	assert.Equal(t, subscription.ErrorStrategyIgnore, sub.DeliveryErrorStrategy)
	assert.Equal(t, "18:30", sub.DeliveryTime)
	assert.Equal(t, "America/New_York", sub.Timezone)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		desc    string
		sub     subscription.Subscription
		wantErr bool
	}{
		{
			desc: "email with address is valid",
			sub: subscription.Subscription{
				DeliveryMethod: subscription.DeliveryMethodEmail,
				EmailAddress:   "u@x.com",
			},
			wantErr: false,
		},
		{
			desc: "email without address is invalid",
			sub: subscription.Subscription{
				DeliveryMethod: subscription.DeliveryMethodEmail,
			},
			wantErr: true,
		},
		{
			desc: "webhook with url is valid",
			sub: subscription.Subscription{
				DeliveryMethod: subscription.DeliveryMethodWebhook,
				WebhookURL:     "https://example.com/hook",
			},
			wantErr: false,
		},
		{
			desc: "webhook without url is invalid",
			sub: subscription.Subscription{
				DeliveryMethod: subscription.DeliveryMethodWebhook,
			},
			wantErr: true,
		},
		{
			desc: "unknown delivery method is invalid",
			sub: subscription.Subscription{
				DeliveryMethod: "carrier-pigeon",
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.sub.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	email := subscription.Subscription{DeliveryMethod: subscription.DeliveryMethodEmail, EmailAddress: "u@x.com"}
	assert.Equal(t, "u@x.com", email.Address())

	webhook := subscription.Subscription{DeliveryMethod: subscription.DeliveryMethodWebhook, WebhookURL: "https://x.com/hook"}
	assert.Equal(t, "https://x.com/hook", webhook.Address())
}

func TestGateway(t *testing.T) {
	sub := subscription.Gateway("gw@x.com")

	assert.Equal(t, subscription.DeliveryMethodEmail, sub.DeliveryMethod)
	assert.Equal(t, subscription.FrequencyImmediate, sub.AggregationFrequency)
	assert.Equal(t, "gw@x.com", sub.EmailAddress)
	assert.True(t, sub.Enabled)
	require.NoError(t, sub.Validate())
}
