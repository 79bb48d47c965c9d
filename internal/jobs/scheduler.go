// Package jobs runs the engine's periodic background tasks.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TaskFunc is one run of a periodic task.
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
}

// Scheduler runs each task on its own interval. Tasks never overlap with
// themselves but run independently of each other.
type Scheduler struct {
	tasks  []task
	log    zerolog.Logger
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewScheduler creates an empty scheduler.
func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{log: log.With().Str("component", "Scheduler").Logger()}
}

// Every registers fn to run immediately on Start and then every
// interval. Tasks with a non-positive interval are ignored.
func (s *Scheduler) Every(name string, interval time.Duration, fn TaskFunc) {
	if interval <= 0 || fn == nil {
		return
	}
	s.tasks = append(s.tasks, task{name: name, interval: interval, fn: fn})
}

// Start launches every registered task.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
	s.log.Info().Int("tasks", len(s.tasks)).Msg("Scheduler started")
}

// Stop cancels the tasks and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t task) {
	defer s.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	s.run(ctx, t)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, t)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, t task) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error().Str("task", t.name).Interface("panic", rec).Msg("Task panicked")
		}
	}()
	start := time.Now()
	if err := t.fn(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn().Err(err).Str("task", t.name).Msg("Task failed")
		return
	}
	s.log.Debug().Str("task", t.name).Dur("took", time.Since(start)).Msg("Task finished")
}
