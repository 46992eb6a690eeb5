package capture

import (
	"errors"
	"fmt"
)

// Configuration failures, reported inside a *ConfigError.
var (
	// ErrInvalidRange is returned when the trimmed end is not after the start.
	ErrInvalidRange = errors.New("end time must be after start time")
	// ErrNoFrames is returned when the range and rate yield no frames.
	ErrNoFrames = errors.New("range and frame rate produce no frames")
	// ErrUnsupportedWidth is returned for a width outside SupportedWidths.
	ErrUnsupportedWidth = errors.New("unsupported output width")
	// ErrUnsupportedFPS is returned for a rate outside SupportedFPS.
	ErrUnsupportedFPS = errors.New("unsupported frame rate")
	// ErrUnknownDimensions is returned when the media reports no size.
	ErrUnknownDimensions = errors.New("media dimensions unknown")
)

// Capture failures, reported inside a *CaptureError.
var (
	// ErrSeekTimeout is returned when a seek does not complete in time.
	ErrSeekTimeout = errors.New("seek timed out")
	// ErrNoFrame is returned when the media has no decoded frame after a seek.
	ErrNoFrame = errors.New("no decoded frame available")
)

// ConfigError reports invalid capture parameters. It is returned before
// any seek is issued.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("capture config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(err error, format string, args ...any) *ConfigError {
	if format == "" {
		return &ConfigError{Err: err}
	}
	return &ConfigError{Err: fmt.Errorf("%w: "+format, append([]any{err}, args...)...)}
}

// CaptureError reports a failure while sampling the frame at Timestamp.
type CaptureError struct {
	Timestamp float64
	Err       error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture: frame at %.2fs: %v", e.Timestamp, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
