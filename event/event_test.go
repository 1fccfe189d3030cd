package event_test

import (
	"testing"

	"github.com/arxiv/messaging-service/event"
	"github.com/stretchr/testify/assert"
)

func TestParseType(t *testing.T) {
	cases := []struct {
		desc string
		raw  string
		want event.Type
		ok   bool
	}{
		{desc: "notification", raw: "NOTIFICATION", want: event.TypeNotification, ok: true},
		{desc: "alert", raw: "ALERT", want: event.TypeAlert, ok: true},
		{desc: "warning", raw: "WARNING", want: event.TypeWarning, ok: true},
		{desc: "info", raw: "INFO", want: event.TypeInfo, ok: true},
		{desc: "unknown coerces to notification", raw: "BOGUS", want: event.TypeNotification, ok: false},
		{desc: "empty coerces to notification", raw: "", want: event.TypeNotification, ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, ok := event.ParseType(tc.raw)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestFanOutID(t *testing.T) {
	assert.Equal(t, "e1-u1", event.FanOutID("e1", "u1"))
	assert.Equal(t, "e1-u2", event.FanOutID("e1", "u2"))
}
