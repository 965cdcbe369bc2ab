// Package pipeline turns the raw event list of a feed into the list shown to
// readers: it aligns start times, resolves recurring events to their next
// occurrence, drops expired entries, sorts and truncates.
//
// Run is synchronous and keeps no state between calls, so concurrent calls
// on distinct inputs are safe.
package pipeline

import (
	"errors"
	"sort"
	"time"

	"gcalfeed/internal/config"
	appLog "gcalfeed/internal/log"
	"gcalfeed/internal/metrics"
	"gcalfeed/internal/model"
	"gcalfeed/internal/recur"
)

// Options controls a single pipeline run.
type Options struct {
	// Mode selects the list semantics. Only config.ModeUpcoming filters;
	// any other mode just sorts and truncates.
	Mode string

	// Items caps the number of returned events.
	Items int

	// Now is the reference instant; "today" is its date in Location.
	// Zero means time.Now().
	Now time.Time

	// Location is the display timezone. Nil means time.Local.
	Location *time.Location

	// HorizonDays bounds the occurrence search (recur.DefaultHorizonDays
	// when <= 0).
	HorizonDays int

	// UntilPolicy is config.UntilPolicyDrop (default) or
	// config.UntilPolicyResolve.
	UntilPolicy string
}

// OptionsFromConfig derives run options from the application config.
func OptionsFromConfig(cfg *config.Config, loc *time.Location) Options {
	return Options{
		Mode:        cfg.Mode,
		Items:       cfg.Items,
		Location:    loc,
		HorizonDays: cfg.HorizonDays,
		UntilPolicy: cfg.UntilPolicy,
	}
}

// Run produces the final event list. The input slice and its events are not
// modified.
func Run(events []model.Event, opts Options) []model.Event {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := model.Day(now.In(loc))

	metrics.PipelineRuns.WithLabelValues(opts.Mode).Inc()

	list := alignStartTimes(events, loc)

	if opts.Mode == config.ModeUpcoming {
		var recurring []model.Event
		list, recurring = partition(list)

		r := resolver{today: today, loc: loc, horizon: opts.HorizonDays, untilPolicy: opts.UntilPolicy}
		for _, ev := range recurring {
			if out, ok := r.resolve(ev); ok {
				list = append(list, out)
			}
		}

		list = dropExpired(list, today)
	}

	return sortAndTruncate(list, opts.Items)
}

// alignStartTimes copies events with StartTime converted to loc.
func alignStartTimes(events []model.Event, loc *time.Location) []model.Event {
	out := make([]model.Event, len(events))
	for i, ev := range events {
		ev.StartTime = ev.StartTime.In(loc)
		out[i] = ev
	}
	return out
}

// partition splits events into single and recurring ones, preserving order.
func partition(events []model.Event) (single, recurring []model.Event) {
	single = make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Rule.IsRecurring() {
			recurring = append(recurring, ev)
			continue
		}
		single = append(single, ev)
	}
	return single, recurring
}

func dropExpired(events []model.Event, today time.Time) []model.Event {
	out := events[:0]
	for _, ev := range events {
		if ev.EndDate.Before(today) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func sortAndTruncate(events []model.Event, items int) []model.Event {
	if items <= 0 {
		return []model.Event{}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartDate.Before(events[j].StartDate)
	})
	if len(events) > items {
		events = events[:items]
	}
	return events
}

type resolver struct {
	today       time.Time
	loc         *time.Location
	horizon     int
	untilPolicy string
}

// resolve returns the event to list for a recurring event, or false when it
// has to be left out.
func (r resolver) resolve(ev model.Event) (model.Event, bool) {
	hasUntil := ev.Rule.Has("UNTIL")

	if hasUntil && r.untilPolicy != config.UntilPolicyResolve {
		appLog.Debug("recurring event with UNTIL skipped", "uid", ev.UID, "until", ev.Rule.Get("UNTIL"))
		metrics.Recurrence.WithLabelValues(metrics.OutcomeUntilSkip).Inc()
		return model.Event{}, false
	}

	if !hasUntil && ev.StartDate.After(r.today) {
		metrics.Recurrence.WithLabelValues(metrics.OutcomeKept).Inc()
		return ev, true
	}

	rule, err := recur.Parse(ev.Rule, r.loc)
	if err != nil {
		return r.degrade(ev, err)
	}
	pred, err := recur.Build(rule, ev.StartDate, ev.EndDate)
	if err != nil {
		return r.degrade(ev, err)
	}

	from := r.today
	to := r.today.AddDate(0, 0, r.horizonDays())
	if until, ok := rule.Until.Get(); ok {
		if ev.StartDate.After(from) {
			from = ev.StartDate
		}
		if until.Before(to) {
			to = until
		}
	}

	days := recur.Resolve(pred, from, to, 1)
	if len(days) == 0 {
		appLog.Debug("recurring event has no further occurrence", "uid", ev.UID, "summary", ev.Summary)
		metrics.Recurrence.WithLabelValues(metrics.OutcomeExhausted).Inc()
		return model.Event{}, false
	}

	metrics.Recurrence.WithLabelValues(metrics.OutcomeProjected).Inc()
	return recur.Project(ev, days[0]), true
}

// degrade keeps an event whose rule cannot be evaluated as a single event.
// It then only survives the expiry filter if its own dates are still current.
func (r resolver) degrade(ev model.Event, err error) (model.Event, bool) {
	outcome := metrics.OutcomeMalformed
	var uerr *recur.UnsupportedFrequencyError
	if errors.As(err, &uerr) {
		outcome = metrics.OutcomeUnsupported
	}
	metrics.Recurrence.WithLabelValues(outcome).Inc()

	appLog.Warn("recurrence rule ignored; treating event as single", "uid", ev.UID, "summary", ev.Summary, "err", err)
	return ev, true
}

func (r resolver) horizonDays() int {
	if r.horizon <= 0 {
		return recur.DefaultHorizonDays
	}
	return r.horizon
}
