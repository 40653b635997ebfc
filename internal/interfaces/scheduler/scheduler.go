package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ScheduleTime is a time of day at which the scheduler fires.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// Config holds configuration for the scheduler.
type Config struct {
	ScheduleTimes []string
	RunOnStartup  bool
	JobProvider   func(context.Context) ([]Job, error)
}

// Scheduler submits the provider's jobs to a worker pool at fixed times of day.
type Scheduler struct {
	pool          *WorkerPool
	scheduleTimes []ScheduleTime
	runOnStartup  bool
	jobProvider   func(context.Context) ([]Job, error)
	log           zerolog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastRunDate string
	mu          sync.Mutex
}

// New creates a scheduler that feeds pool. The pool's lifecycle stays with
// the caller.
func New(cfg Config, pool *WorkerPool, log zerolog.Logger) (*Scheduler, error) {
	scheduleTimes := make([]ScheduleTime, 0, len(cfg.ScheduleTimes))
	for _, timeStr := range cfg.ScheduleTimes {
		st, err := ParseScheduleTime(timeStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", timeStr, err)
		}
		scheduleTimes = append(scheduleTimes, st)
	}

	if len(scheduleTimes) == 0 {
		return nil, errors.New("at least one schedule time is required")
	}
	if pool == nil {
		return nil, errors.New("worker pool is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		pool:          pool,
		scheduleTimes: scheduleTimes,
		runOnStartup:  cfg.RunOnStartup,
		jobProvider:   cfg.JobProvider,
		log:           log.With().Str("component", "scheduler").Logger(),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start launches the scheduling loop.
func (s *Scheduler) Start() {
	s.log.Info().Strs("times", s.scheduleStrings()).Bool("run_on_startup", s.runOnStartup).Msg("Starting scheduler")

	if s.runOnStartup {
		s.TriggerNow()
	}

	s.wg.Add(1)
	go s.scheduleLoop()
}

func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case now := <-ticker.C:
			if s.shouldRun(now) {
				s.log.Info().Str("at", now.Format("15:04")).Msg("Scheduler triggered")
				s.runJobs()
			}
		}
	}
}

// shouldRun reports whether now matches a schedule time that has not yet
// fired this minute.
func (s *Scheduler) shouldRun(now time.Time) bool {
	currentKey := now.Format("2006-01-02-15:04")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRunDate == currentKey {
		return false
	}

	for _, st := range s.scheduleTimes {
		if now.Hour() == st.Hour && now.Minute() == st.Minute {
			s.lastRunDate = currentKey
			return true
		}
	}

	return false
}

// runJobs asks the provider for jobs and submits them to the pool.
func (s *Scheduler) runJobs() int {
	if s.jobProvider == nil {
		s.log.Warn().Msg("No job provider configured")
		return 0
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	jobs, err := s.jobProvider(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to fetch jobs")
		return 0
	}

	if len(jobs) == 0 {
		s.log.Info().Msg("No jobs to process")
		return 0
	}

	return s.pool.SubmitBatch(jobs)
}

// TriggerNow runs the provider immediately in the background.
func (s *Scheduler) TriggerNow() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJobs()
	}()
}

// Shutdown stops the scheduling loop. It does not stop the worker pool.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("Scheduler stopped")
	case <-time.After(timeout):
		s.log.Warn().Dur("timeout", timeout).Msg("Timeout waiting for scheduler loop to stop")
	}
}

// NextRun returns the first scheduled time strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	var next time.Time
	for _, st := range s.scheduleTimes {
		t := time.Date(now.Year(), now.Month(), now.Day(), st.Hour, st.Minute, 0, 0, now.Location())
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}

func (s *Scheduler) scheduleStrings() []string {
	out := make([]string, len(s.scheduleTimes))
	for i, st := range s.scheduleTimes {
		out[i] = st.String()
	}
	return out
}
