// Package scheduler runs the periodic feed refresh on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "gcalfeed/internal/log"
)

// Scheduler wraps a cron instance with a single job.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	loc      *time.Location
}

// New validates spec (standard 5-field cron syntax or a descriptor such as
// "@hourly" / "@every 10m") and returns a Scheduler evaluating it in loc.
func New(spec string, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{spec: spec, schedule: schedule, loc: loc}, nil
}

// Next reports the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Run executes job on every activation until ctx is canceled, then waits
// for a running job to finish. Overlapping activations are skipped and a
// panicking job is logged instead of crashing the process.
func (s *Scheduler) Run(ctx context.Context, job func(ctx context.Context)) {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		// Recover sits inside SkipIfStillRunning so a panic still releases the
		// running slot.
		cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { job(ctx) }))

	appLog.Info("scheduler started", "schedule", s.spec, "next", s.Next(time.Now()).Format(time.RFC3339))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("scheduler stopped", "schedule", s.spec)
}

// cronLogger forwards cron's internal logging to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
