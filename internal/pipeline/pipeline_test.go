package pipeline

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gcalfeed/internal/config"
	"gcalfeed/internal/metrics"
	"gcalfeed/internal/model"
)

// 2026-10-19 is a Monday.
var now = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func event(uid string, start, end time.Time, rule model.RuleFields) model.Event {
	return model.Event{
		UID:       uid,
		Summary:   "event " + uid,
		StartDate: start,
		EndDate:   end,
		StartTime: start.Add(19 * time.Hour),
		Rule:      rule,
	}
}

func upcoming(items int) Options {
	return Options{
		Mode:     config.ModeUpcoming,
		Items:    items,
		Now:      now,
		Location: time.UTC,
	}
}

func uids(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.UID)
	}
	return out
}

func TestRun_SingleEventsSortedAndFiltered(t *testing.T) {
	events := []model.Event{
		event("late", day(2026, 12, 1), day(2026, 12, 1), nil),
		event("expired", day(2026, 10, 10), day(2026, 10, 18), nil),
		event("today", day(2026, 10, 19), day(2026, 10, 19), nil),
		event("running", day(2026, 10, 15), day(2026, 10, 20), nil),
		event("soon", day(2026, 10, 25), day(2026, 10, 26), nil),
	}

	got := Run(events, upcoming(10))
	assert.Equal(t, []string{"running", "today", "soon", "late"}, uids(got))

	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].StartDate.Before(got[i-1].StartDate))
	}
}

func TestRun_TruncatesToEarliest(t *testing.T) {
	events := []model.Event{
		event("e5", day(2026, 11, 5), day(2026, 11, 5), nil),
		event("e1", day(2026, 11, 1), day(2026, 11, 1), nil),
		event("e4", day(2026, 11, 4), day(2026, 11, 4), nil),
		event("e2", day(2026, 11, 2), day(2026, 11, 2), nil),
		event("e3", day(2026, 11, 3), day(2026, 11, 3), nil),
	}

	got := Run(events, upcoming(3))
	assert.Equal(t, []string{"e1", "e2", "e3"}, uids(got))

	assert.Len(t, Run(events, upcoming(10)), 5)
	assert.Empty(t, Run(events, upcoming(0)))
}

func TestRun_StableForEqualStartDates(t *testing.T) {
	events := []model.Event{
		event("a", day(2026, 11, 1), day(2026, 11, 1), nil),
		event("b", day(2026, 11, 1), day(2026, 11, 2), nil),
		event("c", day(2026, 11, 1), day(2026, 11, 1), nil),
	}

	got := Run(events, upcoming(3))
	assert.Equal(t, []string{"a", "b", "c"}, uids(got))
}

func TestRun_RecurringFutureStartIsKept(t *testing.T) {
	ev := event("future", day(2026, 11, 3), day(2026, 11, 4), model.RuleFields{"FREQ": "WEEKLY", "BYDAY": "TU"})

	got := Run([]model.Event{ev}, upcoming(5))
	require.Len(t, got, 1)
	assert.Equal(t, ev.StartDate, got[0].StartDate)
	assert.Equal(t, ev.EndDate, got[0].EndDate)
}

func TestRun_RecurringResolvedToNextOccurrence(t *testing.T) {
	weekly := event("weekly", day(2026, 9, 2), day(2026, 9, 3), model.RuleFields{"FREQ": "WEEKLY", "BYDAY": "WE"})
	monthly := event("monthly", day(2026, 1, 15), day(2026, 1, 16), model.RuleFields{"FREQ": "MONTHLY", "BYMONTHDAY": "15"})
	single := event("single", day(2026, 10, 20), day(2026, 10, 20), nil)

	got := Run([]model.Event{weekly, monthly, single}, upcoming(5))
	require.Equal(t, []string{"single", "weekly", "monthly"}, uids(got))

	assert.Equal(t, day(2026, 10, 21), got[1].StartDate)
	assert.Equal(t, day(2026, 10, 22), got[1].EndDate)
	assert.Equal(t, day(2026, 11, 15), got[2].StartDate)
	assert.Equal(t, day(2026, 11, 16), got[2].EndDate)

	// The caller's events keep their original dates.
	assert.Equal(t, day(2026, 9, 2), weekly.StartDate)
}

func TestRun_RecurringWithUntilIsDroppedByDefault(t *testing.T) {
	before := testutil.ToFloat64(metrics.Recurrence.WithLabelValues(metrics.OutcomeUntilSkip))

	ev := event("bounded", day(2026, 1, 5), day(2026, 1, 5), model.RuleFields{
		"FREQ":  "DAILY",
		"UNTIL": "20271231",
	})

	got := Run([]model.Event{ev}, upcoming(5))
	assert.Empty(t, got)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Recurrence.WithLabelValues(metrics.OutcomeUntilSkip)))
}

func TestRun_UntilPolicyResolve(t *testing.T) {
	opts := upcoming(5)
	opts.UntilPolicy = config.UntilPolicyResolve

	t.Run("next occurrence before until", func(t *testing.T) {
		ev := event("bounded", day(2026, 1, 5), day(2026, 1, 5), model.RuleFields{
			"FREQ":  "WEEKLY",
			"BYDAY": "FR",
			"UNTIL": "20261231",
		})
		got := Run([]model.Event{ev}, opts)
		require.Len(t, got, 1)
		assert.Equal(t, day(2026, 10, 23), got[0].StartDate)
	})

	t.Run("until already passed", func(t *testing.T) {
		before := testutil.ToFloat64(metrics.Recurrence.WithLabelValues(metrics.OutcomeExhausted))

		ev := event("ended", day(2025, 1, 6), day(2025, 1, 6), model.RuleFields{
			"FREQ":  "WEEKLY",
			"BYDAY": "MO",
			"UNTIL": "20260601",
		})
		got := Run([]model.Event{ev}, opts)
		assert.Empty(t, got)
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.Recurrence.WithLabelValues(metrics.OutcomeExhausted)))
	})

	t.Run("until falls between today and the next occurrence", func(t *testing.T) {
		ev := event("short", day(2026, 1, 15), day(2026, 1, 15), model.RuleFields{
			"FREQ":       "MONTHLY",
			"BYMONTHDAY": "15",
			"UNTIL":      "20261101",
		})
		assert.Empty(t, Run([]model.Event{ev}, opts))
	})

	t.Run("future start is searched from its own start", func(t *testing.T) {
		ev := event("later", day(2026, 11, 4), day(2026, 11, 4), model.RuleFields{
			"FREQ":  "WEEKLY",
			"BYDAY": "MO",
			"UNTIL": "20261231",
		})
		got := Run([]model.Event{ev}, opts)
		require.Len(t, got, 1)
		assert.Equal(t, day(2026, 11, 9), got[0].StartDate)
	})
}

func TestRun_NoOccurrenceWithinHorizon(t *testing.T) {
	// Every fourth year on Feb 29th from 2024: next is 2028.
	ev := event("leap", day(2024, 2, 29), day(2024, 2, 29), model.RuleFields{"FREQ": "YEARLY", "INTERVAL": "4"})

	assert.Empty(t, Run([]model.Event{ev}, upcoming(5)))

	opts := upcoming(5)
	opts.HorizonDays = 3 * 365
	got := Run([]model.Event{ev}, opts)
	require.Len(t, got, 1)
	assert.Equal(t, day(2028, 2, 29), got[0].StartDate)
}

func TestRun_BrokenRulesDegradeToSingleEvents(t *testing.T) {
	events := []model.Event{
		event("malformed-past", day(2026, 1, 5), day(2026, 1, 5), model.RuleFields{"FREQ": "DAILY", "INTERVAL": "abc"}),
		event("malformed-current", day(2026, 10, 19), day(2026, 10, 19), model.RuleFields{"FREQ": "WEEKLY", "BYDAY": "XX"}),
		event("hourly-current", day(2026, 10, 18), day(2026, 10, 20), model.RuleFields{"FREQ": "HOURLY"}),
		event("fine", day(2026, 1, 1), day(2026, 1, 1), model.RuleFields{"FREQ": "DAILY"}),
	}

	got := Run(events, upcoming(10))
	assert.Equal(t, []string{"hourly-current", "malformed-current", "fine"}, uids(got))
	assert.Equal(t, day(2026, 10, 19), got[2].StartDate)
}

func TestRun_RuleWithoutFreqIsSingle(t *testing.T) {
	ev := event("odd", day(2026, 10, 30), day(2026, 10, 30), model.RuleFields{"INTERVAL": "2"})

	got := Run([]model.Event{ev}, upcoming(5))
	require.Len(t, got, 1)
	assert.Equal(t, day(2026, 10, 30), got[0].StartDate)
}

func TestRun_OtherModesOnlySortAndTruncate(t *testing.T) {
	events := []model.Event{
		event("recurring", day(2026, 1, 5), day(2026, 1, 5), model.RuleFields{"FREQ": "DAILY"}),
		event("expired", day(2025, 3, 1), day(2025, 3, 2), nil),
		event("future", day(2026, 12, 1), day(2026, 12, 1), nil),
	}

	opts := upcoming(2)
	opts.Mode = "all"

	got := Run(events, opts)
	assert.Equal(t, []string{"expired", "recurring"}, uids(got))
	assert.Equal(t, day(2026, 1, 5), got[1].StartDate)
}

func TestRun_AlignsStartTimeToLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	ev := event("tz", day(2026, 10, 30), day(2026, 10, 30), nil)
	ev.StartTime = time.Date(2026, 10, 30, 18, 0, 0, 0, time.UTC)

	opts := upcoming(5)
	opts.Location = tokyo

	got := Run([]model.Event{ev}, opts)
	require.Len(t, got, 1)
	assert.Equal(t, tokyo, got[0].StartTime.Location())
	assert.Equal(t, 3, got[0].StartTime.Hour())
	assert.True(t, got[0].StartTime.Equal(ev.StartTime))

	assert.Equal(t, time.UTC, ev.StartTime.Location())
}

func TestRun_TodayFollowsLocation(t *testing.T) {
	// 2026-10-19 23:30 UTC is already 2026-10-20 in JST.
	late := time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC)
	ev := event("yesterday-in-tokyo", day(2026, 10, 19), day(2026, 10, 19), nil)

	opts := upcoming(5)
	opts.Now = late

	assert.Len(t, Run([]model.Event{ev}, opts), 1)

	opts.Location = time.FixedZone("JST", 9*60*60)
	assert.Empty(t, Run([]model.Event{ev}, opts))
}

func TestRun_ProjectionPreservesDuration(t *testing.T) {
	ev := event("multi", day(2026, 3, 10), day(2026, 3, 13), model.RuleFields{"FREQ": "MONTHLY"})

	got := Run([]model.Event{ev}, upcoming(5))
	require.Len(t, got, 1)
	assert.Equal(t, day(2026, 11, 10), got[0].StartDate)
	assert.Equal(t, model.DaysBetween(ev.StartDate, ev.EndDate), model.DaysBetween(got[0].StartDate, got[0].EndDate))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Items = 7
	cfg.UntilPolicy = config.UntilPolicyResolve

	opts := OptionsFromConfig(cfg, time.UTC)
	assert.Equal(t, config.ModeUpcoming, opts.Mode)
	assert.Equal(t, 7, opts.Items)
	assert.Equal(t, 365, opts.HorizonDays)
	assert.Equal(t, config.UntilPolicyResolve, opts.UntilPolicy)
	assert.Equal(t, time.UTC, opts.Location)
	assert.True(t, opts.Now.IsZero())
}
