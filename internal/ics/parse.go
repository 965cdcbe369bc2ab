package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "gcalfeed/internal/log"
	"gcalfeed/internal/model"
)

// ParseICS parses a single ICS payload into calendar events.
//
//   - It relies on the underlying library's TZID handling to construct
//     proper time.Time values (with Location set).
//   - It detects all-day events by inspecting the DTSTART value format.
//   - StartDate/EndDate are the calendar dates in loc (nil means time.Local);
//     all-day dates are taken verbatim, keeping the exclusive DTEND.
//   - RRULE is split into raw rule fields; recurrence is evaluated later by
//     the pipeline.
func ParseICS(src Source, body []byte, loc *time.Location) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]model.Event, 0)

	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp, loc)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (model.Event, error) {
	var out model.Event
	out.SourceID = src.ID

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil && p.Value != "" {
		out.UID = p.Value
	} else {
		out.UID = uuid.NewString()
		appLog.Debug("ics vevent without UID; generated one", "id", src.ID, "uid", out.UID)
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStart)

	if out.AllDay {
		start, err := ve.GetAllDayStartAt()
		if err != nil {
			return out, err
		}
		out.StartTime = start
		out.StartDate = model.Day(start)

		// DTEND of an all-day event is already exclusive; a missing DTEND
		// means a single day.
		out.EndDate = out.StartDate.AddDate(0, 0, 1)
		if end, err := ve.GetAllDayEndAt(); err == nil {
			out.EndDate = model.Day(end)
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, err
		}
		out.StartTime = start
		out.StartDate = model.Day(start.In(loc))

		out.EndDate = out.StartDate
		if end, err := ve.GetEndAt(); err == nil {
			out.EndDate = model.Day(end.In(loc))
		}
	}

	if out.EndDate.Before(out.StartDate) {
		out.EndDate = out.StartDate
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.Rule = ParseRuleFields(p.Value)
	}

	return out, nil
}

// isDateValue reports whether a DTSTART carries a DATE (all-day) value:
// either VALUE=DATE or a value without a time part.
func isDateValue(p *ical.IANAProperty) bool {
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

// ParseRuleFields splits an RRULE value ("FREQ=WEEKLY;BYDAY=MO,WE") into
// its parts. Keys are upper-cased; parts without "=" are ignored. An empty
// rule yields nil.
func ParseRuleFields(raw string) model.RuleFields {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "RRULE:")
	if raw == "" {
		return nil
	}

	fields := make(model.RuleFields)
	for _, part := range strings.Split(raw, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
