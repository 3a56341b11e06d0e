package recorder

import (
	"context"
	"sync"
	"time"

	"streamkeep/internal/queue"
)

// Mode selects how a session writes its output.
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeLowPower Mode = "low_power"
)

// State is a session lifecycle state.
type State string

const (
	StateStarting  State = "starting"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Outcome classifies how a session ended.
type Outcome string

const (
	// OutcomeCompleted means the capture tool exited zero on its own.
	OutcomeCompleted Outcome = "completed"
	// OutcomeStopped means the session ended after a stop request.
	OutcomeStopped Outcome = "stopped"
	// OutcomeFailed means the capture tool exited abnormally.
	OutcomeFailed Outcome = "failed"
)

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Address     string    `json:"address"`
	Mode        Mode      `json:"mode"`
	State       State     `json:"state"`
	StartTime   time.Time `json:"start_time"`
	Output      string    `json:"output"`
	SegmentsDir string    `json:"segments_dir,omitempty"`
	PID         int       `json:"pid,omitempty"`
}

// Session is one capture in flight. Its fields are private to the
// controller; callers observe it through Info.
type Session struct {
	mu            sync.Mutex
	info          SessionInfo
	batch         *queue.Batch
	cancel        context.CancelFunc
	stopRequested bool
}

func newSession(info SessionInfo, batch *queue.Batch, cancel context.CancelFunc) *Session {
	info.State = StateStarting
	return &Session{info: info, batch: batch, cancel: cancel}
}

// Info returns a copy of the session's current view.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Name returns the source name the session belongs to.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Source
}

func (s *Session) markRecording(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info.State == StateStarting {
		s.info.State = StateRecording
	}
	s.info.PID = pid
}

// requestStop moves the session to stopping and cancels its context. It
// reports false when a stop was already requested.
func (s *Session) requestStop() bool {
	s.mu.Lock()
	if s.stopRequested {
		s.mu.Unlock()
		return false
	}
	s.stopRequested = true
	s.info.State = StateStopping
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

// finish records the terminal state and returns the matching outcome.
func (s *Session) finish(waitErr error) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stopRequested:
		s.info.State = StateCompleted
		return OutcomeStopped
	case waitErr != nil:
		s.info.State = StateFailed
		return OutcomeFailed
	default:
		s.info.State = StateCompleted
		return OutcomeCompleted
	}
}
