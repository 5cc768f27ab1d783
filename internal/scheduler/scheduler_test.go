package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func info(s *Scheduler, name string) TaskInfo {
	for _, ti := range s.Tasks() {
		if ti.Name == name {
			return ti
		}
	}
	return TaskInfo{}
}

func TestAddValidates(t *testing.T) {
	s := New(zerolog.Nop())
	noop := func(context.Context) error { return nil }

	if err := s.Add(Task{Name: "", Interval: time.Second, Run: noop}); err == nil {
		t.Error("unnamed task should be rejected")
	}
	if err := s.Add(Task{Name: "fast", Interval: 10 * time.Millisecond, Run: noop}); err == nil {
		t.Error("sub-second interval should be rejected")
	}
	if err := s.Add(Task{Name: "tick", Interval: time.Second, Run: noop}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(Task{Name: "tick", Interval: time.Second, Run: noop}); err == nil {
		t.Error("duplicate task should be rejected")
	}
	if err := s.StartTask("missing"); err == nil {
		t.Error("unknown task should be an error")
	}
	if got := s.Tasks(); len(got) != 1 || got[0].Active {
		t.Errorf("tasks before start = %+v", got)
	}
}

func TestTasksRunAndStopIndependently(t *testing.T) {
	s := New(zerolog.Nop())
	var a, b atomic.Int64
	s.Add(Task{Name: "a", Interval: time.Second, Run: func(context.Context) error { a.Add(1); return nil }})
	s.Add(Task{Name: "b", Interval: time.Second, Run: func(context.Context) error {
		b.Add(1)
		return errors.New("quote feed down")
	}})
	s.Start()
	defer s.Stop(context.Background())

	waitFor(t, 3*time.Second, func() bool { return a.Load() > 0 && b.Load() > 0 })

	if err := s.StopTask("a"); err != nil {
		t.Fatal(err)
	}
	if info(s, "a").Active {
		t.Error("a should be inactive")
	}
	stoppedAt := a.Load()
	waitFor(t, 3*time.Second, func() bool { return b.Load() >= 3 })
	if a.Load() != stoppedAt {
		t.Errorf("a kept running after StopTask: %d -> %d", stoppedAt, a.Load())
	}
	if ti := info(s, "b"); ti.LastError != "quote feed down" || ti.Runs < 1 {
		t.Errorf("b info = %+v", ti)
	}

	if err := s.StartTask("a"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 3*time.Second, func() bool { return a.Load() > stoppedAt })
}

func TestGateSkipsRuns(t *testing.T) {
	s := New(zerolog.Nop())
	var runs atomic.Int64
	s.Add(Task{
		Name:     "closed",
		Interval: time.Second,
		Gate:     func(time.Time) bool { return false },
		Run:      func(context.Context) error { runs.Add(1); return nil },
	})
	s.Start()
	defer s.Stop(context.Background())

	waitFor(t, 3*time.Second, func() bool { return info(s, "closed").Skipped > 0 })
	if runs.Load() != 0 {
		t.Errorf("gated task ran %d times", runs.Load())
	}
}

func TestStopCancelsRunningTask(t *testing.T) {
	s := New(zerolog.Nop())
	entered := make(chan struct{}, 1)
	var sawCancel atomic.Bool
	s.Add(Task{Name: "slow", Interval: time.Second, Run: func(ctx context.Context) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	}})
	s.Start()

	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("task never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !sawCancel.Load() {
		t.Error("running task should observe cancellation")
	}
}

func TestGates(t *testing.T) {
	// Wednesday 10:00 IST and Sunday 10:00 IST.
	wed := time.Date(2026, 10, 14, 4, 30, 0, 0, time.UTC)
	sun := time.Date(2026, 10, 18, 4, 30, 0, 0, time.UTC)

	if !MarketHours(wed) || MarketHours(sun) {
		t.Error("MarketHours gate mismatch")
	}
	if !TradingDays(wed) || TradingDays(sun) {
		t.Error("TradingDays gate mismatch")
	}
	if MarketHours(wed.Add(8 * time.Hour)) {
		t.Error("market should be closed in the evening")
	}
}
