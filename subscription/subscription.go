// Package subscription defines the Subscription data model: a user's
// named delivery contract controlling channel, cadence, format, and
// error policy.
package subscription

import "time"

// DeliveryMethod names the channel a subscription delivers over.
type DeliveryMethod string

const (
	DeliveryMethodEmail   DeliveryMethod = "email"
	DeliveryMethodWebhook DeliveryMethod = "webhook"
)

// Frequency is a subscription's aggregation cadence. Immediate
// delivers as part of ingestion; the rest batch on a schedule.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyHourly    Frequency = "hourly"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
)

// AggregationMethod selects the digest encoding for batched delivery.
type AggregationMethod string

const (
	AggregationPlain AggregationMethod = "plain"
	AggregationMIME  AggregationMethod = "mime"
	AggregationHTML  AggregationMethod = "html"
)

// ErrorStrategy governs what a failed immediate delivery does to the
// bus message: retry forces redelivery, ignore swallows the failure.
type ErrorStrategy string

const (
	ErrorStrategyRetry  ErrorStrategy = "retry"
	ErrorStrategyIgnore ErrorStrategy = "ignore"
)

// Defaults applied to zero-value fields before validation.
const (
	DefaultAggregationMethod = AggregationPlain
	DefaultErrorStrategy     = ErrorStrategyRetry
	DefaultDeliveryTime      = "09:00"
	DefaultTimezone          = "UTC"
)

// Subscription is a user's delivery contract.
//
// LastDelivered is a per-subscription watermark: the scheduler
// advances it on every successful delivery and purges only events
// older than the minimum watermark across a user's enabled aggregated
// subscriptions, so one cadence's delivery never discards events a
// slower cadence on the same user hasn't digested yet.
type Subscription struct {
	SubscriptionID        string            `bson:"_id"`
	UserID                string            `bson:"user_id"`
	DeliveryMethod        DeliveryMethod    `bson:"delivery_method"`
	AggregationFrequency  Frequency         `bson:"aggregation_frequency"`
	AggregationMethod     AggregationMethod `bson:"aggregation_method"`
	DeliveryErrorStrategy ErrorStrategy     `bson:"delivery_error_strategy"`
	DeliveryTime          string            `bson:"delivery_time"`
	Timezone              string            `bson:"timezone"`
	EmailAddress          string            `bson:"email_address,omitempty"`
	WebhookURL            string            `bson:"webhook_url,omitempty"`
	Enabled               bool              `bson:"enabled"`
	LastDelivered         time.Time         `bson:"last_delivered,omitempty"`
}

// ApplyDefaults fills in the zero-value fields that have defaults.
// Called before a subscription is validated and stored.
func (s *Subscription) ApplyDefaults() {
	if s.AggregationMethod == "" {
		s.AggregationMethod = DefaultAggregationMethod
	}
	if s.DeliveryErrorStrategy == "" {
		s.DeliveryErrorStrategy = DefaultErrorStrategy
	}
	if s.DeliveryTime == "" {
		s.DeliveryTime = DefaultDeliveryTime
	}
	if s.Timezone == "" {
		s.Timezone = DefaultTimezone
	}
}

// Validate checks that the delivery-method-specific address field is
// non-empty and the method itself is known.
func (s Subscription) Validate() error {
	switch s.DeliveryMethod {
	case DeliveryMethodEmail:
		if s.EmailAddress == "" {
			return errMissingEmailAddress
		}
	case DeliveryMethodWebhook:
		if s.WebhookURL == "" {
			return errMissingWebhookURL
		}
	default:
		return errUnknownDeliveryMethod
	}
	return nil
}

// Address returns the transport-specific destination address for this
// subscription (email address or webhook URL), or "" for an unknown
// delivery method.
func (s Subscription) Address() string {
	switch s.DeliveryMethod {
	case DeliveryMethodEmail:
		return s.EmailAddress
	case DeliveryMethodWebhook:
		return s.WebhookURL
	default:
		return ""
	}
}

// Gateway synthesizes the transient pseudo-subscription used for bus
// messages that carry email_to instead of user_id: one per message,
// never persisted, used only to carry an address, channel, and
// immediate frequency into the delivery service.
func Gateway(address string) Subscription {
	return Subscription{
		SubscriptionID:        "gateway",
		DeliveryMethod:        DeliveryMethodEmail,
		AggregationFrequency:  FrequencyImmediate,
		AggregationMethod:     DefaultAggregationMethod,
		DeliveryErrorStrategy: ErrorStrategyIgnore,
		EmailAddress:          address,
		Enabled:               true,
	}
}
