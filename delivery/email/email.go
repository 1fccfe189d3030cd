// Package email delivers message bodies over SMTP, with content-type
// inference, narrowest-encoding selection, and a TLS policy chosen by
// port and configured mode. Every send opens, authenticates, and
// closes its own connection.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
	"unicode"

	deliveryerr "github.com/arxiv/messaging-service/pkg/errors/delivery"
	"github.com/arxiv/messaging-service/pkg/logger"
	"github.com/arxiv/messaging-service/subscription"
	"github.com/emersion/go-message/mail"
)

// dialTimeout bounds SMTP connection setup.
const dialTimeout = 30 * time.Second

// implicitTLSPort always gets an implicit-TLS connection regardless of
// the configured mode.
const implicitTLSPort = 465

// TLSMode selects how the SMTP connection is secured.
type TLSMode string

const (
	// TLSImplicit opens the connection TLS-wrapped from the first byte.
	TLSImplicit TLSMode = "ssl_implicit"
	// TLSStartTLS opens plaintext and upgrades via STARTTLS before auth.
	TLSStartTLS TLSMode = "starttls"
	// TLSNone opens plaintext and never upgrades.
	TLSNone TLSMode = "none"
)

// Config holds the SMTP connection parameters a deployment supplies.
type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	TLSMode       TLSMode
	DefaultSender string
}

// Provider sends delivery bodies over SMTP. Every Send opens and
// closes its own connection; the provider keeps no persistent state.
type Provider struct {
	cfg    Config
	logger *logger.Logger
}

// New builds an email Provider from the given SMTP configuration.
func New(cfg Config, log *logger.Logger) *Provider {
	return &Provider{cfg: cfg, logger: log}
}

// Channel implements delivery.Provider.
func (p *Provider) Channel() subscription.DeliveryMethod {
	return subscription.DeliveryMethodEmail
}

// Send delivers body to sub.EmailAddress. If body is already a
// complete MIME message (as produced by the mime aggregation method),
// it is sent as-is; otherwise it is wrapped as a single text/plain or
// text/html part depending on whether it looks like an HTML document,
// using the narrowest transfer encoding that round-trips it cleanly.
func (p *Provider) Send(ctx context.Context, sub subscription.Subscription, body, subject, sender, correlationID string) bool {
	from := sender
	if from == "" {
		from = p.cfg.DefaultSender
	}

	msg, err := composeMessage(from, sub.EmailAddress, subject, body)
	if err != nil {
		p.logger.Error("email: failed to compose message",
			"subscription_id", sub.SubscriptionID, "correlation_id", correlationID, "error", err)
		return false
	}

	if err := p.sendMail(ctx, from, []string{sub.EmailAddress}, msg); err != nil {
		kind := classify(err)
		p.logger.Error("email: send failed",
			"subscription_id", sub.SubscriptionID, "correlation_id", correlationID,
			"error", err, "error_kind", kind)
		return false
	}

	return true
}

// composeMessage builds a complete RFC 5322 message. A body that
// already looks like a fully-formed MIME message (the mime
// aggregation method's output) is returned unchanged; otherwise it is
// wrapped in a single part whose content type and transfer encoding
// are inferred from the body text.
func composeMessage(from, to, subject, body string) ([]byte, error) {
	if looksLikeMIMEMessage(body) {
		return []byte(body), nil
	}

	var h mail.Header
	h.SetDate(time.Now())
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(subject)

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", from, err)
	}
	h.SetAddressList("From", []*mail.Address{fromAddr})

	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("parse to address %q: %w", to, err)
	}
	h.SetAddressList("To", []*mail.Address{toAddr})

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}

	contentType := "text/plain"
	if looksLikeHTML(body) {
		contentType = "text/html"
	}
	charset, encoding, raw := chooseEncoding(body)

	// The part writer applies the transfer encoding itself, so raw is
	// charset-converted but not yet quoted-printable/base64 encoded.
	var ph mail.InlineHeader
	ph.Set("Content-Type", fmt.Sprintf("%s; charset=%s", contentType, charset))
	ph.Set("Content-Transfer-Encoding", encoding)

	pw, err := mw.CreateSingleInline(ph)
	if err != nil {
		return nil, fmt.Errorf("create inline part: %w", err)
	}
	if _, err := pw.Write(raw); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := pw.Close(); err != nil {
		return nil, fmt.Errorf("close inline part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}

	return buf.Bytes(), nil
}

func looksLikeMIMEMessage(body string) bool {
	head := body
	if idx := strings.Index(body, "\n\n"); idx >= 0 && idx < 2048 {
		head = body[:idx]
	}
	return strings.Contains(head, "MIME-Version:") || strings.Contains(head, "Content-Type: multipart/")
}

func looksLikeHTML(body string) bool {
	trimmed := strings.TrimSpace(body)
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html")
}

// chooseEncoding picks the narrowest transport encoding that carries
// body without loss: 7bit for pure ASCII, quoted-printable over
// ISO-8859-1 for Latin-1 text, otherwise base64 over UTF-8. The
// returned bytes are in the target charset; the transfer encoding is
// applied later by the message writer.
func chooseEncoding(body string) (charset, encoding string, raw []byte) {
	if isASCII(body) {
		return "us-ascii", "7bit", []byte(body)
	}
	if isLatin1(body) {
		return "iso-8859-1", "quoted-printable", latin1Bytes(body)
	}
	return "utf-8", "base64", []byte(body)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func isLatin1(s string) bool {
	for _, r := range s {
		if r > 0xFF {
			return false
		}
	}
	return true
}

// latin1Bytes converts body to its single-byte ISO-8859-1
// representation. Callers check isLatin1 first.
func latin1Bytes(body string) []byte {
	raw := make([]byte, 0, len(body))
	for _, r := range body {
		raw = append(raw, byte(r))
	}
	return raw
}

// sendMail opens an SMTP connection per the provider's TLS policy:
// port 465 (or an explicit ssl_implicit mode) gets implicit TLS,
// anything else dials plaintext and upgrades via STARTTLS unless the
// mode is none. Authenticates only when both credentials are set, then
// transmits msg and closes.
func (p *Provider) sendMail(ctx context.Context, from string, recipients []string, msg []byte) error {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))

	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: timeout}

	implicit := p.cfg.Port == implicitTLSPort || p.cfg.TLSMode == TLSImplicit

	var client *smtp.Client
	var err error

	if implicit {
		tlsCfg := &tls.Config{ServerName: p.cfg.Host}
		conn, dialErr := tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
		if dialErr != nil {
			return fmt.Errorf("dial smtps %s: %w", addr, dialErr)
		}
		client, err = smtp.NewClient(conn, p.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create smtp client on %s: %w", addr, err)
		}
	} else {
		conn, dialErr := dialer.DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			return fmt.Errorf("dial smtp %s: %w", addr, dialErr)
		}
		client, err = smtp.NewClient(conn, p.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create smtp client on %s: %w", addr, err)
		}
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("ehlo: %w", err)
	}

	if !implicit && p.cfg.TLSMode != TLSNone {
		tlsCfg := &tls.Config{ServerName: p.cfg.Host}
		if err := client.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if p.cfg.Username != "" && p.cfg.Password != "" {
		auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// classify maps a send error to one of the delivery package's
// sentinel kinds for logging, based on the SMTP reply code when one
// is present.
func classify(err error) error {
	var proto *textproto.Error
	if ok := asTextprotoError(err, &proto); ok {
		switch {
		case proto.Code == 535 || proto.Code == 534:
			return deliveryerr.ErrAuthentication
		case proto.Code >= 550 && proto.Code <= 554:
			return deliveryerr.ErrRecipientsRefused
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "starttls") || strings.Contains(msg, "tls"):
		return deliveryerr.ErrTLS
	case strings.Contains(msg, "EOF") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe"):
		return deliveryerr.ErrServerDisconnect
	case strings.Contains(msg, "auth"):
		return deliveryerr.ErrAuthentication
	default:
		return deliveryerr.ErrTransport
	}
}

func asTextprotoError(err error, target **textproto.Error) bool {
	for err != nil {
		if pe, ok := err.(*textproto.Error); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

var _ interface {
	Channel() subscription.DeliveryMethod
	Send(ctx context.Context, sub subscription.Subscription, body, subject, sender, correlationID string) bool
} = (*Provider)(nil)
