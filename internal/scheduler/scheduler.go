// Package scheduler fires named periodic and one-shot jobs on a single
// executor goroutine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"article_sync/internal/domain"
)

const queueSize = 32

var ErrUnknownSchedule = errors.New("unknown schedule")

var schedules = map[string]time.Duration{
	"hourly":          time.Hour,
	"every_six_hours": 6 * time.Hour,
	"twice_daily":     12 * time.Hour,
	"daily":           24 * time.Hour,
	"weekly":          7 * 24 * time.Hour,
}

// ParseSchedule maps a named schedule to its interval.
func ParseSchedule(name string) (time.Duration, error) {
	d, ok := schedules[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSchedule, name)
	}
	return d, nil
}

// Job is the work behind an event.
type Job func(ctx context.Context) error

// Event is a named job. Events with an Interval repeat; events with only At
// fire once and are then forgotten.
type Event struct {
	Name     string
	Schedule string
	Interval time.Duration
	At       time.Time
	// RunNow fires a repeating event immediately instead of after the
	// first interval.
	RunNow bool
	Args   []string
	Run    Job
}

type entry struct {
	event  Event
	next   time.Time
	timer  *time.Timer
	queued bool
}

type Scheduler struct {
	runTimeout time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	queue   chan string
	stopped bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runTimeout: runTimeout,
		now:        time.Now,
		logger:     logger.With("component", "scheduler"),
		entries:    make(map[string]*entry),
		queue:      make(chan string, queueSize),
	}
}

// Arm schedules ev unless an event with the same name is already
// scheduled. It reports whether ev was armed.
func (s *Scheduler) Arm(ev Event) (bool, error) {
	if ev.Name == "" || ev.Run == nil {
		return false, errors.New("event needs a name and a job")
	}
	if ev.Interval <= 0 && ev.At.IsZero() {
		return false, fmt.Errorf("event %s has neither interval nor time", ev.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false, errors.New("scheduler stopped")
	}
	if _, ok := s.entries[ev.Name]; ok {
		return false, nil
	}

	now := s.now()
	var next time.Time
	switch {
	case ev.Interval > 0 && ev.RunNow:
		next = now
	case ev.Interval > 0 && ev.At.IsZero():
		next = now.Add(ev.Interval)
	default:
		next = ev.At
	}

	e := &entry{event: ev, next: next}
	e.timer = time.AfterFunc(max(next.Sub(now), 0), func() { s.fire(ev.Name) })
	s.entries[ev.Name] = e

	s.logger.Info("event armed", "event", ev.Name, "next_run", next)
	return true, nil
}

// SourceEventPrefix prefixes the names of one-shot per-source events.
const SourceEventPrefix = "sync_source:"

// ScheduleSource arms a one-shot sync of url at the given time. Events are
// keyed on the normalized URL so that spellings of one source share a slot.
func (s *Scheduler) ScheduleSource(url string, at time.Time, run func(ctx context.Context, url string) error) (bool, error) {
	return s.Arm(Event{
		Name: SourceEventPrefix + domain.NormalizeURL(url),
		At:   at,
		Args: []string{url},
		Run: func(ctx context.Context) error {
			return run(ctx, url)
		},
	})
}

// CancelSource removes the pending one-shot sync of url, if any.
func (s *Scheduler) CancelSource(url string) bool {
	return s.Cancel(SourceEventPrefix + domain.NormalizeURL(url))
}

// Cancel removes a scheduled event.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, name)
	return true
}

// NextRun returns when the named event fires next.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

// Events lists scheduled events ordered by next run.
func (s *Scheduler) Events() []domain.ScheduledEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ScheduledEvent, 0, len(s.entries))
	for _, e := range s.entries {
		schedule := e.event.Schedule
		if schedule == "" && e.event.Interval == 0 {
			schedule = "once"
		}
		out = append(out, domain.ScheduledEvent{
			Name:     e.event.Name,
			NextRun:  e.next,
			Schedule: schedule,
			Interval: e.event.Interval,
			Args:     e.event.Args,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].Name < out[j].Name
		}
		return out[i].NextRun.Before(out[j].NextRun)
	})
	return out
}

// Start runs the executor until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("scheduler started")

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopped")
				return
			case name := <-s.queue:
				s.execute(ctx, name)
			}
		}
	}()
}

// Stop cancels every event, including one-shot ones, and waits for the
// executor to finish the job it is running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for name, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, name)
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Scheduler) fire(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return
	}

	if e.event.Interval > 0 {
		e.next = e.next.Add(e.event.Interval)
		if now := s.now(); e.next.Before(now) {
			e.next = now.Add(e.event.Interval)
		}
		e.timer.Reset(max(e.next.Sub(s.now()), 0))
	}

	if e.queued {
		s.logger.Warn("event still queued, skipping occurrence", "event", name)
		return
	}

	select {
	case s.queue <- name:
		e.queued = true
	default:
		s.logger.Warn("scheduler queue full, skipping occurrence", "event", name)
		if e.event.Interval <= 0 {
			delete(s.entries, name)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, name string) {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.queued = false
	job := e.event.Run
	if e.event.Interval <= 0 {
		delete(s.entries, name)
	}
	s.mu.Unlock()

	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	started := s.now()
	logger := s.logger.With("event", name)
	logger.Info("running event")

	if err := s.safeRun(runCtx, job); err != nil {
		logger.Error("event failed", "error", err, "duration", s.now().Sub(started))
		return
	}
	logger.Info("event finished", "duration", s.now().Sub(started))
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job(ctx)
}
