package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"streamkeep/internal/logging"
	"streamkeep/internal/merger"
)

type countingJob struct {
	calls chan struct{}
	err   error
}

func (j *countingJob) ProcessQueue(context.Context) (merger.Result, error) {
	if j.calls != nil {
		select {
		case j.calls <- struct{}{}:
		default:
		}
	}
	return merger.Result{Processed: 1}, j.err
}

func TestSpec(t *testing.T) {
	tests := []struct {
		clock string
		want  string
	}{
		{"03:00", "0 3 * * *"},
		{"23:45", "45 23 * * *"},
		{"00:05", "5 0 * * *"},
	}
	for _, tt := range tests {
		got, err := Spec(tt.clock)
		if err != nil {
			t.Fatalf("Spec(%q): %v", tt.clock, err)
		}
		if got != tt.want {
			t.Fatalf("Spec(%q) = %q, want %q", tt.clock, got, tt.want)
		}
	}
	if _, err := Spec("25:99"); err == nil {
		t.Fatal("expected error for invalid clock")
	}
}

func TestDailyNext(t *testing.T) {
	s, err := Daily("03:00", &countingJob{}, logging.NewNop())
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 5, 1, 4, 0, 0, 0, time.Local) }

	next := s.Next()
	want := time.Date(2026, 5, 2, 3, 0, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}
}

func TestDailyEmptyDisables(t *testing.T) {
	s, err := Daily("", &countingJob{}, logging.NewNop())
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if s.Enabled() {
		t.Fatal("empty clock should disable the scheduler")
	}
	s.Start()
	defer s.Stop()
	if !s.Next().IsZero() {
		t.Fatal("disabled scheduler should report zero next time")
	}
}

func TestDailyRejectsMalformedClock(t *testing.T) {
	if _, err := Daily("3am", &countingJob{}, logging.NewNop()); err == nil {
		t.Fatal("expected error for malformed clock")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s, err := Daily("03:00", &countingJob{}, logging.NewNop())
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

func TestRescheduleKeepsPreviousOnError(t *testing.T) {
	s, err := Daily("03:00", &countingJob{}, logging.NewNop())
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	s.Start()
	defer s.Stop()

	if err := s.Reschedule("nope"); err == nil {
		t.Fatal("expected reschedule error")
	}
	if s.Clock() != "03:00" {
		t.Fatalf("clock = %q, want 03:00", s.Clock())
	}
	if err := s.Reschedule("04:30"); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if s.Clock() != "04:30" {
		t.Fatalf("clock = %q, want 04:30", s.Clock())
	}
	if err := s.Reschedule(""); err != nil {
		t.Fatalf("Reschedule disable: %v", err)
	}
	if s.Enabled() {
		t.Fatal("expected scheduler disabled")
	}
}

func TestRunInvokesJob(t *testing.T) {
	job := &countingJob{calls: make(chan struct{}, 2)}
	s, err := Daily("03:00", job, logging.NewNop())
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	s.run()
	job.err = errors.New("queue unavailable")
	s.run()
	if len(job.calls) != 2 {
		t.Fatalf("job called %d times, want 2", len(job.calls))
	}
}
