package aggregator

import (
	"fmt"
	"html"
	"strings"

	"github.com/arxiv/messaging-service/event"
)

const htmlStyle = `
body { font-family: -apple-system, sans-serif; margin: 2rem; color: #1a1a1a; }
h1 { font-size: 1.4rem; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1.5rem; }
th, td { border: 1px solid #ddd; padding: 0.4rem 0.6rem; text-align: left; font-size: 0.9rem; }
th { background: #f4f4f4; }
.summary { color: #555; margin-bottom: 1.5rem; }
`

// renderHTML builds a full document with an embedded stylesheet, a
// summary block, and one table per event-type group. Every row is
// escaped, and unlike the plain rendering nothing is truncated.
func renderHTML(userID string, events []event.Event, groups []group) string {
	var b strings.Builder

	first, last := events[0], events[len(events)-1]

	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">\n")
	b.WriteString("<style>" + htmlStyle + "</style>\n</head><body>\n")
	fmt.Fprintf(&b, "<h1>Event Summary for User %s</h1>\n", html.EscapeString(userID))
	fmt.Fprintf(&b, "<div class=\"summary\">Period: %s to %s<br>Total Events: %d</div>\n",
		html.EscapeString(first.Timestamp.Format("2006-01-02")),
		html.EscapeString(last.Timestamp.Format("2006-01-02")),
		len(events),
	)

	for _, g := range groups {
		fmt.Fprintf(&b, "<h2>%s (%d)</h2>\n", html.EscapeString(string(g.eventType)), len(g.events))
		b.WriteString("<table>\n<thead><tr><th>Timestamp</th><th>Event ID</th><th>Sender</th><th>Subject</th><th>Message</th><th>Metadata</th></tr></thead>\n<tbody>\n")
		for _, ev := range g.events {
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
				html.EscapeString(ev.Timestamp.Format("2006-01-02 15:04:05")),
				html.EscapeString(ev.EventID),
				html.EscapeString(ev.Sender),
				html.EscapeString(ev.Subject),
				html.EscapeString(ev.Message),
				html.EscapeString(formatMetadata(ev.Metadata)),
			)
		}
		b.WriteString("</tbody></table>\n")
	}

	b.WriteString("</body></html>\n")
	return b.String()
}

func formatMetadata(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", m)
}
