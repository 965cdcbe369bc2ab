package recur

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gcalfeed/internal/model"
)

func TestProject(t *testing.T) {
	startTime := time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC)
	ev := model.Event{
		UID:       "abc",
		Summary:   "Stammtisch",
		Location:  "Krone",
		StartDate: day(2026, 3, 10),
		EndDate:   day(2026, 3, 13),
		StartTime: startTime,
		Rule:      model.RuleFields{"FREQ": "MONTHLY"},
	}

	got := Project(ev, day(2026, 11, 10))

	assert.Equal(t, day(2026, 11, 10), got.StartDate)
	assert.Equal(t, day(2026, 11, 13), got.EndDate)
	assert.Equal(t, model.DaysBetween(ev.StartDate, ev.EndDate), model.DaysBetween(got.StartDate, got.EndDate))
	assert.Equal(t, "Stammtisch", got.Summary)
	assert.Equal(t, "Krone", got.Location)
	assert.Equal(t, startTime, got.StartTime)

	// The input is untouched.
	assert.Equal(t, day(2026, 3, 10), ev.StartDate)
	assert.Equal(t, day(2026, 3, 13), ev.EndDate)
}

func TestProject_ZeroSpan(t *testing.T) {
	ev := model.Event{StartDate: day(2026, 1, 5), EndDate: day(2026, 1, 5)}

	got := Project(ev, day(2026, 12, 28))
	assert.Equal(t, got.StartDate, got.EndDate)
}

func TestProject_SpanAcrossMonthEnd(t *testing.T) {
	ev := model.Event{StartDate: day(2026, 1, 30), EndDate: day(2026, 2, 2)}

	got := Project(ev, day(2026, 2, 27))
	assert.Equal(t, day(2026, 3, 2), got.EndDate)
}
