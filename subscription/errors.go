package subscription

import "github.com/arxiv/messaging-service/pkg/errors"

var (
	errMissingEmailAddress   = errors.New("email subscription requires a non-empty email_address")
	errMissingWebhookURL     = errors.New("webhook subscription requires a non-empty webhook_url")
	errUnknownDeliveryMethod = errors.New("unknown delivery method")
)
