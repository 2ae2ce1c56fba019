// Package scheduler fires tasks at fixed times of day.
//
// Every task loops through waiting for its next fire time, running, and
// waiting again. Waits are cancellable through the context given to Start.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrAlreadyStarted is returned when Start is called on a running scheduler
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrDuplicateTask is returned when two tasks share a name
	ErrDuplicateTask = errors.New("task already registered")
)

// ComputeWait returns how long to wait from now until the next hour:minute.
// If now is at or past today's target, the target is tomorrow.
func ComputeWait(hour, minute int, now time.Time) time.Duration {
	return NextRun(hour, minute, now).Sub(now)
}

// NextRun returns the next occurrence of hour:minute strictly after now,
// in now's location
func NextRun(hour, minute int, now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Task is a job fired once a day at Hour:Minute
type Task struct {
	Name   string
	Hour   int
	Minute int
	Run    func(ctx context.Context, now time.Time)
}

// Clock abstracts time for the scheduler loops
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLocation sets the timezone fire times are expressed in
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// Scheduler runs daily tasks
type Scheduler struct {
	mu      sync.Mutex
	tasks   []Task
	clock   Clock
	loc     *time.Location
	logger  zerolog.Logger
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an idle scheduler
func New(logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  realClock{},
		loc:    time.Local,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a task. Tasks cannot be added once the scheduler runs.
func (s *Scheduler) Add(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if task.Hour < 0 || task.Hour > 23 || task.Minute < 0 || task.Minute > 59 {
		return fmt.Errorf("task %s: invalid time %02d:%02d", task.Name, task.Hour, task.Minute)
	}
	for _, t := range s.tasks {
		if t.Name == task.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.Name)
		}
	}
	s.tasks = append(s.tasks, task)
	return nil
}

// Start launches one loop per task. A second call returns ErrAlreadyStarted
// and leaves the running loops alone.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, task)
	}
	s.logger.Info().Int("tasks", len(s.tasks)).Str("timezone", s.loc.String()).Msg("scheduler started")
	return nil
}

// Stop cancels every wait and blocks until running tasks return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	defer s.wg.Done()
	log := s.logger.With().Str("task", task.Name).Logger()

	var last time.Time
	for {
		now := s.clock.Now().In(s.loc)
		if now.Before(last) {
			// the timer fired ahead of the wall clock; never fire the same target twice
			now = last
		}
		next := NextRun(task.Hour, task.Minute, now)
		wait := next.Sub(s.clock.Now())
		log.Debug().Dur("wait", wait).Time("next_run", next).Msg("waiting")

		select {
		case <-ctx.Done():
			log.Debug().Msg("task stopped")
			return
		case <-s.clock.After(wait):
		}

		last = next
		s.fire(ctx, task, log)
	}
}

func (s *Scheduler) fire(ctx context.Context, task Task, log zerolog.Logger) {
	log = log.With().Str("run", uuid.NewString()).Logger()
	started := s.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("task panicked")
		}
	}()

	log.Info().Msg("task firing")
	task.Run(log.WithContext(ctx), started.In(s.loc))
	log.Info().Dur("took", s.clock.Now().Sub(started)).Msg("task done")
}
