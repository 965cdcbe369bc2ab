package recur

import (
	"time"

	"gcalfeed/internal/model"
)

// Project returns a copy of ev moved to the occurrence day, keeping the
// original span between StartDate and EndDate. ev itself is not modified.
func Project(ev model.Event, day time.Time) model.Event {
	span := model.DaysBetween(ev.StartDate, ev.EndDate)

	out := ev
	out.StartDate = model.Day(day)
	out.EndDate = out.StartDate.AddDate(0, 0, span)
	return out
}
