// Package delivery carries the sentinel errors providers and the
// delivery service classify failures into: transient transport,
// permanent transport, and no provider for channel.
package delivery

import "github.com/arxiv/messaging-service/pkg/errors"

var (
	// ErrNoProvider indicates the delivery service has no provider
	// registered for a subscription's delivery_method.
	ErrNoProvider = errors.New("no delivery provider registered for channel")

	// ErrAuthentication indicates SMTP authentication failed.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRecipientsRefused indicates the transport rejected every
	// recipient address (permanent).
	ErrRecipientsRefused = errors.New("recipients refused")

	// ErrServerDisconnect indicates the transport connection dropped
	// mid-conversation (transient).
	ErrServerDisconnect = errors.New("server disconnected")

	// ErrTLS indicates a TLS handshake or STARTTLS upgrade failed.
	ErrTLS = errors.New("tls error")

	// ErrTransport is the catch-all for webhook/SMTP failures that
	// don't fit a more specific sentinel above (non-2xx response,
	// timeout, generic SMTP error).
	ErrTransport = errors.New("transport error")
)
