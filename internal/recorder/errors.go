package recorder

import "errors"

var (
	// ErrAlreadyRecording rejects a start for a source that has a session.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording rejects a stop for a source without a session.
	ErrNotRecording = errors.New("not recording")
	// ErrAtCapacity rejects a start when the concurrent session bound is reached.
	ErrAtCapacity = errors.New("maximum concurrent recordings reached")
	// ErrDraining rejects a start while the controller is shutting sessions down.
	ErrDraining = errors.New("recorder is shutting down")
)
