package encode

import (
	"errors"
	"fmt"
)

// Static errors returned by the coordinator and its sessions.
var (
	// ErrNoRuntime is returned when the coordinator has no worker runtime.
	ErrNoRuntime = errors.New("encode: no worker runtime configured")
	// ErrOutOfOrder is returned when a frame does not carry the next index.
	ErrOutOfOrder = errors.New("encode: frame out of order")
	// ErrTooManyFrames is returned when more frames are added than announced.
	ErrTooManyFrames = errors.New("encode: more frames than announced")
	// ErrIncomplete is returned by Finish when frames are missing.
	ErrIncomplete = errors.New("encode: session finished before all frames were added")
	// ErrSessionClosed is returned when a frame is added after Finish or Abort.
	ErrSessionClosed = errors.New("encode: session closed")
	// ErrAborted is the cause recorded when Abort is called without one.
	ErrAborted = errors.New("encode: session aborted")
)

// InitError reports that the worker runtime could not be started. No
// frame was processed.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("encode: worker runtime initialization failed: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// EncodeError reports a worker failure on frame Index.
type EncodeError struct {
	Index int
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode: frame %d: %v", e.Index, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
