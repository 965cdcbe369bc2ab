// Package recur evaluates the small recurrence grammar used by calendar
// feeds: it parses rule fields into a Rule, turns a Rule into a Predicate
// over calendar dates and searches a bounded window for the next date the
// predicate accepts.
//
// All dates handled by this package are calendar days as produced by
// model.Day (midnight UTC). Nothing here keeps state between calls.
package recur

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	"gcalfeed/internal/model"
)

// Frequency is the FREQ part of a rule.
type Frequency string

const (
	Yearly  Frequency = "YEARLY"
	Monthly Frequency = "MONTHLY"
	Weekly  Frequency = "WEEKLY"
	Daily   Frequency = "DAILY"
)

// ErrNoFrequency is returned by Parse for fields without FREQ. Callers are
// expected to check model.RuleFields.IsRecurring first and treat such events
// as single events.
var ErrNoFrequency = errors.New("recur: rule has no FREQ")

// weekdayCodes maps the two-letter RFC 5545 weekday codes.
var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// ByDay is one BYDAY entry, e.g. "2MO" (second Monday) or "FR".
type ByDay struct {
	Ordinal mo.Option[int]
	Weekday time.Weekday
}

// Rule is a parsed recurrence descriptor. Optional parts are absent rather
// than zero when the feed did not set them.
type Rule struct {
	Frequency  Frequency
	Interval   mo.Option[int]
	Until      mo.Option[time.Time]
	ByDay      []ByDay
	ByMonthDay mo.Option[int]
}

// Parse converts raw rule fields into a Rule.
//
// UNTIL accepts the RFC 5545 DATE and DATE-TIME forms (optionally prefixed
// with "TZID=...:") as well as plain YYYY-MM-DD dates; local values are read
// in loc and the result is reduced to its calendar date in loc. A nil loc
// means time.Local.
//
// Every unparseable field yields a *MalformedRuleError. Unknown frequencies
// are not rejected here; Build reports them.
func Parse(fields model.RuleFields, loc *time.Location) (Rule, error) {
	var r Rule

	if !fields.IsRecurring() {
		return r, ErrNoFrequency
	}
	if loc == nil {
		loc = time.Local
	}

	r.Frequency = Frequency(strings.ToUpper(fields.Get("FREQ")))

	if v := fields.Get("INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return r, &MalformedRuleError{Field: "INTERVAL", Value: v, Err: err}
		}
		if n <= 0 {
			return r, &MalformedRuleError{Field: "INTERVAL", Value: v}
		}
		r.Interval = mo.Some(n)
	}

	if v := fields.Get("UNTIL"); v != "" {
		t, err := rrule.StrToDtStart(v, loc)
		if err != nil {
			// Plain ISO dates ("2026-12-31") show up in hand-written feeds.
			iso, isoErr := time.ParseInLocation(time.DateOnly, v, loc)
			if isoErr != nil {
				return r, &MalformedRuleError{Field: "UNTIL", Value: v, Err: err}
			}
			t = iso
		}
		r.Until = mo.Some(model.Day(t.In(loc)))
	}

	if v := fields.Get("BYDAY"); v != "" {
		days, err := parseByDay(v)
		if err != nil {
			return r, err
		}
		r.ByDay = days
	}

	if v := fields.Get("BYMONTHDAY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return r, &MalformedRuleError{Field: "BYMONTHDAY", Value: v, Err: err}
		}
		if n < 1 || n > 31 {
			return r, &MalformedRuleError{Field: "BYMONTHDAY", Value: v}
		}
		r.ByMonthDay = mo.Some(n)
	}

	return r, nil
}

// parseByDay splits a BYDAY value such as "2MO,FR" into its entries. The
// trailing two letters of each token name the weekday; anything before them
// must be a signed integer ordinal.
func parseByDay(v string) ([]ByDay, error) {
	tokens := strings.Split(v, ",")
	out := make([]ByDay, 0, len(tokens))

	for _, tok := range tokens {
		tok = strings.ToUpper(strings.TrimSpace(tok))
		if len(tok) < 2 {
			return nil, &MalformedRuleError{Field: "BYDAY", Value: v}
		}

		wd, ok := weekdayCodes[tok[len(tok)-2:]]
		if !ok {
			return nil, &MalformedRuleError{Field: "BYDAY", Value: v}
		}
		entry := ByDay{Weekday: wd}

		if prefix := tok[:len(tok)-2]; prefix != "" {
			n, err := strconv.Atoi(prefix)
			if err != nil {
				return nil, &MalformedRuleError{Field: "BYDAY", Value: v, Err: err}
			}
			if n == 0 {
				return nil, &MalformedRuleError{Field: "BYDAY", Value: v}
			}
			entry.Ordinal = mo.Some(n)
		}

		out = append(out, entry)
	}

	return out, nil
}
