package recur

import (
	"time"

	"gcalfeed/internal/model"
)

// DefaultHorizonDays is the default length of the occurrence search window.
const DefaultHorizonDays = 365

// Resolve scans the inclusive day range [from, to] in ascending order and
// returns at most limit days accepted by p. An empty result means the
// recurrence has no occurrence in the window.
func Resolve(p Predicate, from, to time.Time, limit int) []time.Time {
	if limit <= 0 {
		return nil
	}

	from = model.Day(from)
	to = model.Day(to)

	var out []time.Time
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if !p(day) {
			continue
		}
		out = append(out, day)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Next returns the first day accepted by p within horizonDays of from
// (DefaultHorizonDays when horizonDays <= 0).
func Next(p Predicate, from time.Time, horizonDays int) (time.Time, bool) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	days := Resolve(p, from, model.Day(from).AddDate(0, 0, horizonDays), 1)
	if len(days) == 0 {
		return time.Time{}, false
	}
	return days[0], true
}
