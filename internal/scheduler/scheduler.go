// Package scheduler runs the background tasks of the trading server on
// fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"virtual-trader/internal/logging"
	"virtual-trader/pkg/utils"
)

// Gate decides whether a task should run at t.
type Gate func(t time.Time) bool

// MarketHours runs only while the NSE cash session is open.
func MarketHours(t time.Time) bool {
	return utils.IsMarketOpenAt(t)
}

// TradingDays runs only on weekdays.
func TradingDays(t time.Time) bool {
	return utils.IsTradingDay(t)
}

// Task is a named periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Gate     Gate
	Run      func(ctx context.Context) error
}

// TaskInfo describes a registered task.
type TaskInfo struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Active    bool          `json:"active"`
	Runs      int           `json:"runs"`
	Skipped   int           `json:"skipped"`
	LastRun   time.Time     `json:"lastRun,omitempty"`
	LastError string        `json:"lastError,omitempty"`
}

type entry struct {
	task    Task
	id      cron.EntryID
	active  bool
	cancel  context.CancelFunc
	runs    int
	skipped int
	lastRun time.Time
	lastErr string
}

// Scheduler owns one cron entry per task. Each task gets its own context,
// cancelled when the task is stopped.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	running bool
}

// New creates a scheduler.
func New(logger zerolog.Logger) *Scheduler {
	logger = logging.WithComponent(logger, "scheduler")
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(logging.CronLogger{Logger: logger})),
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Add registers a task. Tasks added after Start are started immediately.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("task requires a name and a run function")
	}
	if t.Interval < time.Second {
		return fmt.Errorf("task %s: interval must be at least 1s", t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[t.Name]; ok {
		return fmt.Errorf("task %s already registered", t.Name)
	}
	s.entries[t.Name] = &entry{task: t}
	s.order = append(s.order, t.Name)
	if s.running {
		s.startLocked(s.entries[t.Name])
	}
	return nil
}

// Start starts the cron loop and every registered task.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	for _, name := range s.order {
		s.startLocked(s.entries[name])
	}
	s.cron.Start()
	s.logger.Info().Int("tasks", len(s.order)).Msg("Scheduler started")
}

// StartTask resumes a stopped task.
func (s *Scheduler) StartTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("unknown task: %s", name)
	}
	s.startLocked(e)
	return nil
}

// StopTask removes a task's cron entry and cancels its context. A run in
// progress sees the cancellation.
func (s *Scheduler) StopTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("unknown task: %s", name)
	}
	s.stopLocked(e)
	return nil
}

// Stop cancels every task and waits for running jobs to return or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, name := range s.order {
		s.stopLocked(s.entries[name])
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tasks returns the registered tasks in registration order.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.order))
	for _, name := range s.order {
		e := s.entries[name]
		out = append(out, TaskInfo{
			Name:      name,
			Interval:  e.task.Interval,
			Active:    e.active,
			Runs:      e.runs,
			Skipped:   e.skipped,
			LastRun:   e.lastRun,
			LastError: e.lastErr,
		})
	}
	return out
}

func (s *Scheduler) startLocked(e *entry) {
	if e.active || !s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	cl := logging.CronLogger{Logger: s.logger}
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(func() { s.run(ctx, e) }))

	e.id = s.cron.Schedule(cron.Every(e.task.Interval), job)
	e.cancel = cancel
	e.active = true
	s.logger.Debug().Str("task", e.task.Name).Dur("interval", e.task.Interval).Msg("Task started")
}

func (s *Scheduler) stopLocked(e *entry) {
	if !e.active {
		return
	}
	s.cron.Remove(e.id)
	e.cancel()
	e.active = false
	s.logger.Debug().Str("task", e.task.Name).Msg("Task stopped")
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	if ctx.Err() != nil {
		return
	}
	now := s.now()
	if e.task.Gate != nil && !e.task.Gate(now) {
		s.mu.Lock()
		e.skipped++
		s.mu.Unlock()
		return
	}

	start := time.Now()
	err := e.task.Run(ctx)

	s.mu.Lock()
	e.runs++
	e.lastRun = now
	e.lastErr = ""
	if err != nil {
		e.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("task", e.task.Name).Dur("duration", time.Since(start)).Msg("Task failed")
		return
	}
	s.logger.Debug().Str("task", e.task.Name).Dur("duration", time.Since(start)).Msg("Task finished")
}
