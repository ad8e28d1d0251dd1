package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/illmade-knight/go-quake/pkg/types"
	"github.com/illmade-knight/go-quake/pkg/workflow"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Runner is anything that performs one pipeline run.
type Runner interface {
	Run(ctx context.Context) types.RunReport
}

// Scheduler triggers a Runner on the workflow's schedule. Missed triggers are
// never replayed: the next trigger is always computed from the current clock.
type Scheduler struct {
	runner   Runner
	name     string
	schedule workflow.Schedule
	start    time.Time
	loc      *time.Location
	clock    clockwork.Clock
	logger   zerolog.Logger
}

// NewScheduler builds a scheduler for def. loc is the calendar the schedule is
// evaluated in and defaults to UTC.
func NewScheduler(runner Runner, def *workflow.Definition, loc *time.Location, clock clockwork.Clock, logger zerolog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if def == nil {
		return nil, errors.New("workflow definition cannot be nil")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	schedule, err := workflow.ParseSchedule(def.Schedule)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		runner:   runner,
		name:     def.Name,
		schedule: schedule,
		start:    def.Start(loc),
		loc:      loc,
		clock:    clock,
		logger:   logger.With().Str("component", "Scheduler").Str("workflow", def.Name).Str("schedule", def.Schedule).Logger(),
	}, nil
}

// NextTrigger returns the first trigger after now, never before the start date.
func (s *Scheduler) NextTrigger(now time.Time) time.Time {
	next := s.schedule.Next(now.In(s.loc))
	if !s.start.IsZero() && next.Before(s.start) {
		return s.start
	}
	return next
}

// Run blocks, executing runs inline on each trigger, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Msg("Scheduler started")
	for {
		now := s.clock.Now()
		next := s.NextTrigger(now)
		s.logger.Info().Time("next_run", next).Msg("Waiting for next trigger")

		timer := s.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("Scheduler stopped")
			return nil
		case <-timer.Chan():
		}

		report := s.runner.Run(ctx)
		s.logger.Info().Str("run_id", report.RunID).Str("state", string(report.State)).Msg("Scheduled run completed")
	}
}
