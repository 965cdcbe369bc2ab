package recur

import (
	"time"

	"gcalfeed/internal/model"
)

// Predicate reports whether a calendar day belongs to a recurrence.
type Predicate func(day time.Time) bool

// And matches days accepted by every predicate. An empty And matches all days.
func And(ps ...Predicate) Predicate {
	return func(day time.Time) bool {
		for _, p := range ps {
			if !p(day) {
				return false
			}
		}
		return true
	}
}

// Or matches days accepted by at least one predicate. An empty Or matches
// nothing.
func Or(ps ...Predicate) Predicate {
	return func(day time.Time) bool {
		for _, p := range ps {
			if p(day) {
				return true
			}
		}
		return false
	}
}

// Build turns a rule and the base dates of its event into a Predicate.
//
// Each frequency gets its own primitive; when the rule carries an INTERVAL
// the primitive is combined with a period filter anchored at start:
//
//	YEARLY   (month, day) within [start, end], wrapping over new year
//	MONTHLY  BYMONTHDAY..end.Day, else the first BYDAY entry,
//	         else start.Day..end.Day
//	WEEKLY   weekday in BYDAY (start's weekday when BYDAY is empty)
//	DAILY    every day
func Build(r Rule, start, end time.Time) (Predicate, error) {
	start = model.Day(start)
	end = model.Day(end)

	var (
		primitive Predicate
		every     Predicate
	)
	interval, hasInterval := r.Interval.Get()

	switch r.Frequency {
	case Yearly:
		primitive = yearRange(start.Month(), start.Day(), end.Month(), end.Day())
		every = everyYears(start, end, interval)

	case Monthly:
		switch {
		case r.ByMonthDay.IsPresent():
			primitive = monthDayRange(r.ByMonthDay.MustGet(), end.Day())
		case len(r.ByDay) > 0:
			// Only the first entry is honored for MONTHLY rules.
			first := r.ByDay[0]
			ordinal, ok := first.Ordinal.Get()
			if ok && ordinal < 0 {
				return nil, &MalformedRuleError{Field: "BYDAY", Value: first.Weekday.String()}
			}
			primitive = nthWeekdayOfMonth(ordinal, first.Weekday)
		default:
			primitive = monthDayRange(start.Day(), end.Day())
		}
		every = everyMonths(start, interval)

	case Weekly:
		days := r.ByDay
		if len(days) == 0 {
			days = []ByDay{{Weekday: start.Weekday()}}
		}
		alts := make([]Predicate, 0, len(days))
		for _, d := range days {
			alts = append(alts, onWeekday(d.Weekday))
		}
		primitive = Or(alts...)
		every = everyWeeks(start, interval)

	case Daily:
		primitive = And()
		every = everyDays(start, interval)

	default:
		return nil, &UnsupportedFrequencyError{Frequency: r.Frequency}
	}

	if !hasInterval {
		return primitive, nil
	}
	return And(primitive, every), nil
}

// yearRange matches days whose (month, day) lies in the inclusive range
// [(sm, sd), (em, ed)]. A range whose end precedes its start wraps around
// the turn of the year.
func yearRange(sm time.Month, sd int, em time.Month, ed int) Predicate {
	from := int(sm)*100 + sd
	to := int(em)*100 + ed
	return func(day time.Time) bool {
		k := int(day.Month())*100 + day.Day()
		if from <= to {
			return from <= k && k <= to
		}
		return k >= from || k <= to
	}
}

// monthDayRange matches days of month in [lo, hi]. When hi < lo the range
// collapses to lo alone.
func monthDayRange(lo, hi int) Predicate {
	if hi < lo {
		hi = lo
	}
	return func(day time.Time) bool {
		d := day.Day()
		return lo <= d && d <= hi
	}
}

// nthWeekdayOfMonth matches the n-th wd of a month, or every wd of the
// month when n is zero.
func nthWeekdayOfMonth(n int, wd time.Weekday) Predicate {
	return func(day time.Time) bool {
		if day.Weekday() != wd {
			return false
		}
		if n == 0 {
			return true
		}
		return (day.Day()-1)/7+1 == n
	}
}

func onWeekday(wd time.Weekday) Predicate {
	return func(day time.Time) bool {
		return day.Weekday() == wd
	}
}

// everyYears counts years from start. When the yearly range wraps over new
// year, days in its tail (up to end's month and day) belong to the span that
// began in the previous year.
func everyYears(start, end time.Time, n int) Predicate {
	from := int(start.Month())*100 + start.Day()
	to := int(end.Month())*100 + end.Day()
	wraps := to < from
	return func(day time.Time) bool {
		year := day.Year()
		if k := int(day.Month())*100 + day.Day(); wraps && k <= to {
			year--
		}
		return multipleOf(year-start.Year(), n)
	}
}

func everyMonths(start time.Time, n int) Predicate {
	return func(day time.Time) bool {
		months := (day.Year()-start.Year())*12 + int(day.Month()) - int(start.Month())
		return multipleOf(months, n)
	}
}

func everyWeeks(start time.Time, n int) Predicate {
	anchor := weekStart(start)
	return func(day time.Time) bool {
		return multipleOf(model.DaysBetween(anchor, weekStart(day))/7, n)
	}
}

func everyDays(start time.Time, n int) Predicate {
	return func(day time.Time) bool {
		return multipleOf(model.DaysBetween(start, day), n)
	}
}

// multipleOf reports whether k is a non-negative multiple of n. Periods
// before the anchor never match.
func multipleOf(k, n int) bool {
	return k >= 0 && k%n == 0
}

// weekStart returns the Monday on or before day.
func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return model.Day(day).AddDate(0, 0, -offset)
}
