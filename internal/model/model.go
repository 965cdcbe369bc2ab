package model

import (
	"strings"
	"time"
)

// RuleFields holds the raw recurrence descriptor of an event, keyed by the
// uppercase RFC 5545 rule part names (FREQ, INTERVAL, UNTIL, BYDAY,
// BYMONTHDAY, ...). Values are the unparsed strings from the feed.
//
// The map is shared between an event and its projections and must be treated
// as read-only once the event has been constructed.
type RuleFields map[string]string

// Get returns the trimmed value for key, or "" when the key is missing.
func (f RuleFields) Get(key string) string {
	if f == nil {
		return ""
	}
	return strings.TrimSpace(f[key])
}

// Has reports whether key carries a non-blank value.
func (f RuleFields) Has(key string) bool {
	return f.Get(key) != ""
}

// IsRecurring reports whether the fields describe a recurrence at all.
// A descriptor without FREQ is treated as a plain single event.
func (f RuleFields) IsRecurring() bool {
	return f.Has("FREQ")
}

// Event represents one calendar entry as delivered by a feed.
type Event struct {
	SourceID string `json:"source_id"` // calendar source ID (e.g., config feed ID)
	UID      string `json:"uid"`       // iCalendar UID

	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	AllDay bool `json:"all_day"`

	// StartDate / EndDate are calendar dates (see Day). For all-day events
	// EndDate is exclusive, i.e. one day past the last covered day.
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	// StartTime is the timezone-aware start instant.
	StartTime time.Time `json:"start_time"`

	// Rule is nil for non-recurring events.
	Rule RuleFields `json:"rule,omitempty"`
}

// Day truncates t to its calendar date, expressed as midnight UTC. Using a
// fixed location keeps day arithmetic free of DST transitions.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b.
// Both arguments are normalized with Day first.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
