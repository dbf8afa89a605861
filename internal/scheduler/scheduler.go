// Package scheduler triggers pipeline runs on a cron schedule and maps each
// tick to the logical partition it should process.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/vmanchik/sparkify-pipeline/pkg/models"
)

// maxLookback bounds the search for previous ticks; cron itself gives up on
// schedules that do not fire within five years.
const maxLookback = 8 * 366 * 24 * time.Hour

// Job processes one logical partition.
type Job func(ctx context.Context, logicalDate time.Time) error

type Scheduler struct {
	spec     string
	schedule cron.Schedule
	job      Job
	log      *log.Helper
}

// New parses spec (standard five-field cron or a descriptor such as @hourly).
// All times are UTC.
func New(spec string, job Job, logger log.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{
		spec:     spec,
		schedule: schedule,
		job:      job,
		log:      log.NewHelper(logger),
	}, nil
}

// LogicalDate returns the partition a tick at t processes: the schedule tick
// before the last tick at or before t. A late firing still maps to the tick
// it belongs to, and uneven schedules map to their own previous tick.
func (s *Scheduler) LogicalDate(t time.Time) time.Time {
	t = t.UTC()
	for window := time.Hour; window <= maxLookback; window *= 2 {
		var prev, last time.Time
		for tick := s.schedule.Next(t.Add(-window)); !tick.IsZero() && !tick.After(t); tick = s.schedule.Next(tick) {
			prev, last = last, tick
		}
		if !prev.IsZero() {
			return prev
		}
	}
	return t.Truncate(time.Second)
}

// LogicalDate parses spec and returns the partition a tick at t processes.
// An empty spec means models.DefaultSchedule.
func LogicalDate(spec string, t time.Time) (time.Time, error) {
	if spec == "" {
		spec = models.DefaultSchedule
	}
	s, err := New(spec, nil, log.DefaultLogger)
	if err != nil {
		return time.Time{}, err
	}
	return s.LogicalDate(t), nil
}

// Partitions lists the schedule ticks in [from, to).
func (s *Scheduler) Partitions(from, to time.Time) []time.Time {
	var out []time.Time
	for t := s.schedule.Next(from.UTC().Add(-time.Second)); t.Before(to); t = s.schedule.Next(t) {
		out = append(out, t)
	}
	return out
}

// Tick runs the job for the partition owned by a tick at t.
func (s *Scheduler) Tick(ctx context.Context, t time.Time) error {
	logical := s.LogicalDate(t)
	s.log.Infof("Tick at %s: processing partition %s", t.UTC().Format(time.RFC3339), logical.Format(time.RFC3339))
	return s.job(ctx, logical)
}

// Backfill runs the job for every partition in [from, to) in order, stopping
// at the first failure.
func (s *Scheduler) Backfill(ctx context.Context, from, to time.Time) error {
	for _, p := range s.Partitions(from, to) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.job(ctx, p); err != nil {
			return fmt.Errorf("partition %s: %w", p.Format(time.RFC3339), err)
		}
	}
	return nil
}

// Start runs the job on every tick until ctx is done. A tick that fires while
// the previous run is still going is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if err := s.Tick(ctx, time.Now()); err != nil {
			s.log.Errorf("Scheduled run failed: %v", err)
		}
	}))

	c.Start()
	s.log.Infof("Scheduler started (%s), next tick at %s", s.spec, s.schedule.Next(time.Now().UTC()).Format(time.RFC3339))

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	s.log.Info("Scheduler stopped")
	return nil
}

// cronLogger adapts the process logger to cron's logging interface.
type cronLogger struct {
	log *log.Helper
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(append([]interface{}{"msg", msg}, keysAndValues...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(append([]interface{}{"msg", msg, "error", err}, keysAndValues...)...)
}
