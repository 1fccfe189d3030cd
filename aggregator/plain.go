package aggregator

import (
	"fmt"
	"strings"

	"github.com/arxiv/messaging-service/event"
)

const plainSeparator = "----------------------------------------"

// renderPlain emits the text digest: header lines, then one subheader
// plus up to 5 bulleted events per type group.
func renderPlain(userID string, events []event.Event, groups []group) string {
	var b strings.Builder

	first, last := events[0], events[len(events)-1]
	fmt.Fprintf(&b, "Event Summary for User %s\n", userID)
	fmt.Fprintf(&b, "Period: %s to %s\n", first.Timestamp.Format("2006-01-02"), last.Timestamp.Format("2006-01-02"))
	fmt.Fprintf(&b, "Total Events: %d\n", len(events))
	b.WriteString(plainSeparator + "\n")

	for _, g := range groups {
		fmt.Fprintf(&b, "\n%s (%d)\n", g.eventType, len(g.events))
		b.WriteString(plainSeparator + "\n")

		// Events are timestamp-ascending, so the tail holds the most
		// recent ones.
		shown := g.events
		if len(shown) > maxBulletedEvents {
			shown = shown[len(shown)-maxBulletedEvents:]
		}
		for _, ev := range shown {
			fmt.Fprintf(&b, "• %s - %s\n", ev.Timestamp.Format("15:04"), ev.Message)
		}
		if remaining := len(g.events) - maxBulletedEvents; remaining > 0 {
			fmt.Fprintf(&b, "... and %d more\n", remaining)
		}
	}

	return b.String()
}
