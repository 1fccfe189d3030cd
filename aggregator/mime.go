package aggregator

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/arxiv/messaging-service/event"
	"github.com/emersion/go-message"
)

// renderMIME builds a multipart/mixed envelope whose first part is a
// plain summary.txt and whose remaining parts are one labeled-fields
// text file per event-type group, using the same go-message library
// the email provider uses for mail composition.
func renderMIME(userID string, events []event.Event, groups []group) (string, error) {
	var buf bytes.Buffer

	var h message.Header
	h.Set("Subject", "Event Summary for User "+userID)
	h.Set("From", "arXiv Messaging System")
	h.Set("To", userID)
	h.SetContentType("multipart/mixed", nil)

	mw, err := message.CreateWriter(&buf, h)
	if err != nil {
		return "", fmt.Errorf("aggregator: create mime writer: %w", err)
	}

	first, last := events[0], events[len(events)-1]
	summary := fmt.Sprintf("Period: %s to %s\nTotal Events: %d\n",
		first.Timestamp.Format("2006-01-02"), last.Timestamp.Format("2006-01-02"), len(events))
	if err := writeMIMEPart(mw, "summary.txt", summary); err != nil {
		return "", err
	}

	for _, g := range groups {
		var b strings.Builder
		for _, ev := range g.events {
			fmt.Fprintf(&b, "id: %s\n", ev.EventID)
			fmt.Fprintf(&b, "timestamp: %s\n", ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
			fmt.Fprintf(&b, "sender: %s\n", ev.Sender)
			fmt.Fprintf(&b, "subject: %s\n", ev.Subject)
			fmt.Fprintf(&b, "message: %s\n", ev.Message)
			fmt.Fprintf(&b, "metadata: %s\n\n", formatMetadata(ev.Metadata))
		}
		name := fmt.Sprintf("%s_events.txt", g.eventType)
		if err := writeMIMEPart(mw, name, b.String()); err != nil {
			return "", err
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("aggregator: close mime writer: %w", err)
	}
	return buf.String(), nil
}

func writeMIMEPart(mw *message.Writer, filename, body string) error {
	var ph message.Header
	ph.Set("Content-Type", "text/plain; charset=utf-8")
	ph.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	pw, err := mw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("aggregator: create mime part %s: %w", filename, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("aggregator: write mime part %s: %w", filename, err)
	}
	return pw.Close()
}
