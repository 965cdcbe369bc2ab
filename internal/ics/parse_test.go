package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gcalfeed/internal/model"
)

func icsBody(lines ...string) []byte {
	all := append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//gcalfeed//test//EN",
	}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var sampleFeed = icsBody(
	"BEGIN:VEVENT",
	"UID:allday-1",
	"DTSTART;VALUE=DATE:20261224",
	"DTEND;VALUE=DATE:20261227",
	"SUMMARY:Weihnachten",
	"LOCATION:Zuhause",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly-1",
	"DTSTART:20260907T170000Z",
	"DTEND:20260907T190000Z",
	"RRULE:FREQ=WEEKLY;BYDAY=MO,WE",
	"SUMMARY:Training",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"DTSTART:20261101T230000Z",
	"DTEND:20261102T010000Z",
	"SUMMARY:Nachtwanderung",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:broken",
	"SUMMARY:No start",
	"END:VEVENT",
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseICS(t *testing.T) {
	src := Source{ID: "club", URL: "https://calendar.example.com/private/basic.ics"}

	events, err := ParseICS(src, sampleFeed, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 3)

	allDay := events[0]
	assert.Equal(t, "allday-1", allDay.UID)
	assert.Equal(t, "club", allDay.SourceID)
	assert.Equal(t, "Weihnachten", allDay.Summary)
	assert.Equal(t, "Zuhause", allDay.Location)
	assert.True(t, allDay.AllDay)
	assert.Equal(t, day(2026, 12, 24), allDay.StartDate)
	assert.Equal(t, day(2026, 12, 27), allDay.EndDate)
	assert.Nil(t, allDay.Rule)

	weekly := events[1]
	assert.False(t, weekly.AllDay)
	assert.Equal(t, day(2026, 9, 7), weekly.StartDate)
	assert.Equal(t, day(2026, 9, 7), weekly.EndDate)
	assert.True(t, weekly.StartTime.Equal(time.Date(2026, 9, 7, 17, 0, 0, 0, time.UTC)))
	assert.Equal(t, model.RuleFields{"FREQ": "WEEKLY", "BYDAY": "MO,WE"}, weekly.Rule)
	assert.True(t, weekly.Rule.IsRecurring())

	night := events[2]
	_, err = uuid.Parse(night.UID)
	assert.NoError(t, err, "missing UID should be replaced by a UUID")
	assert.Equal(t, day(2026, 11, 1), night.StartDate)
	assert.Equal(t, day(2026, 11, 2), night.EndDate)
}

func TestParseICS_DatesFollowLocation(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)

	events, err := ParseICS(Source{ID: "club"}, sampleFeed, jst)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// 23:00Z..01:00Z is 08:00..10:00 the next day in JST.
	assert.Equal(t, day(2026, 11, 2), events[2].StartDate)
	assert.Equal(t, day(2026, 11, 2), events[2].EndDate)

	// All-day dates do not move.
	assert.Equal(t, day(2026, 12, 24), events[0].StartDate)
}

func TestParseICS_AllDayWithoutEnd(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:one-day",
		"DTSTART;VALUE=DATE:20261031",
		"SUMMARY:Reformationstag",
		"END:VEVENT",
	)

	events, err := ParseICS(Source{ID: "x"}, body, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, day(2026, 10, 31), events[0].StartDate)
	assert.Equal(t, day(2026, 11, 1), events[0].EndDate)
}

func TestParseICS_EmptyBody(t *testing.T) {
	_, err := ParseICS(Source{ID: "x"}, nil, time.UTC)
	assert.Error(t, err)
}

func TestParseRuleFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want model.RuleFields
	}{
		{"plain", "FREQ=WEEKLY;BYDAY=MO,WE", model.RuleFields{"FREQ": "WEEKLY", "BYDAY": "MO,WE"}},
		{"prefixed and lower-case keys", "RRULE:freq=MONTHLY;bymonthday=15", model.RuleFields{"FREQ": "MONTHLY", "BYMONTHDAY": "15"}},
		{"until kept verbatim", "FREQ=DAILY;UNTIL=20261231T225959Z", model.RuleFields{"FREQ": "DAILY", "UNTIL": "20261231T225959Z"}},
		{"junk parts ignored", "FREQ=DAILY;;=x;WKST", model.RuleFields{"FREQ": "DAILY"}},
		{"empty", "  ", nil},
		{"nothing usable", "garbage", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRuleFields(tt.raw))
		})
	}
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.google.com/...(redacted)",
		redactURL("https://calendar.google.com/calendar/ical/secret/private-abc/basic.ics"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
