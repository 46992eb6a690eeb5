// Package job provides the Job aggregate for video-to-GIF conversions.
// It includes the Job entity with its state machine, the repository port
// for persistence and the ConvertService use case.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/gifkit/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job was accepted and has not started.
	StatusInQueue Status = "IN_QUEUE"
	// StatusCapturing indicates frames are being sampled from the video.
	StatusCapturing Status = "CAPTURING"
	// StatusEncoding indicates capture is done and the encoder is draining.
	StatusEncoding Status = "ENCODING"
	// StatusCompleted indicates the GIF was produced.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the conversion stopped with an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled by the caller.
	StatusCancelled Status = "CANCELLED"
)

// ErrorKind classifies why a job failed.
type ErrorKind string

const (
	// KindConfig is an invalid parameter, rejected before any seek.
	KindConfig ErrorKind = "config"
	// KindCapture is a seek timeout or frame decode failure.
	KindCapture ErrorKind = "capture"
	// KindEnvironment is a missing decoder binary or a worker that could not start.
	KindEnvironment ErrorKind = "environment"
	// KindEncode is a failure inside the encoder pool.
	KindEncode ErrorKind = "encode"
	// KindFetch is a failed download of the source video.
	KindFetch ErrorKind = "fetch"
	// KindStorage is a failure saving or publishing the artifact.
	KindStorage ErrorKind = "storage"
	// KindInternal is anything else.
	KindInternal ErrorKind = "internal"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("job: invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusCapturing, StatusFailed, StatusCancelled},
	StatusCapturing: {StatusEncoding, StatusFailed, StatusCancelled},
	StatusEncoding:  {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// Params are the conversion parameters of a job.
type Params struct {
	Start float64
	End   float64
	FPS   int
	Width int
	// Quality is the quantizer sampling factor.
	Quality int
	// Repeat is the loop count: -1 plays once, 0 loops forever.
	Repeat int
	// Transparent is a CSS color string, empty for none.
	Transparent string
}

// Job represents a video-to-GIF conversion.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Source is the URL or file name the video came from.
	Source string
	// Params are the requested conversion parameters.
	Params Params
	// PushToS3 indicates whether to publish the result to S3.
	PushToS3 bool

	// InputPath is the local copy of the source video.
	InputPath string
	// TempInput marks InputPath as a temp file removed when the job ends.
	TempInput bool
	// Width and Height are the output dimensions once planned.
	Width  int
	Height int
	// Frames is the planned frame count.
	Frames int

	// CaptureDone counts frames sampled so far.
	CaptureDone int
	// EncodeProgress is the fraction of frames encoded, 0..1.
	EncodeProgress float64

	// Error contains any error message if the job failed.
	Error string
	// ErrorKind classifies Error.
	ErrorKind ErrorKind

	// ArtifactPath is the local path of the GIF.
	ArtifactPath string
	// ArtifactURL is the S3 URL if PushToS3 was true.
	ArtifactURL string
	// ArtifactSize is the GIF size in bytes.
	ArtifactSize int

	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when capture started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusCapturing:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from IN_QUEUE to CAPTURING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusCapturing)
}

// BeginEncoding transitions the job from CAPTURING to ENCODING.
func (j *Job) BeginEncoding() error {
	return j.TransitionTo(StatusEncoding)
}

// Complete transitions the job to COMPLETED and fills both progress
// counters.
func (j *Job) Complete() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.CaptureDone = j.Frames
	j.EncodeProgress = 1
	return nil
}

// Fail transitions the job to FAILED with a classified error message.
func (j *Job) Fail(kind ErrorKind, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	j.ErrorKind = kind
	return nil
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetPlan records the planned output size and frame count.
func (j *Job) SetPlan(width, height, frames int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Width = width
	j.Height = height
	j.Frames = frames
	j.UpdatedAt = time.Now()
}

// UpdateCapture records the number of sampled frames. The count never
// decreases.
func (j *Job) UpdateCapture(done int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if done > j.Frames {
		done = j.Frames
	}
	if done > j.CaptureDone {
		j.CaptureDone = done
		j.UpdatedAt = time.Now()
	}
}

// UpdateEncode records the encoded fraction, clamped to 0..1. The value
// never decreases.
func (j *Job) UpdateEncode(fraction float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fraction = min(max(fraction, 0), 1)
	if fraction > j.EncodeProgress {
		j.EncodeProgress = fraction
		j.UpdatedAt = time.Now()
	}
}

// SetInput sets the local path of the source video. A temp input is
// removed when the job ends.
func (j *Job) SetInput(path string, temp bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.InputPath = path
	j.TempInput = temp
	j.UpdatedAt = time.Now()
}

// SetArtifact sets the output GIF path, size and optional S3 URL.
func (j *Job) SetArtifact(path, url string, size int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ArtifactPath = path
	j.ArtifactURL = url
	j.ArtifactSize = size
	j.UpdatedAt = time.Now()
}

// Snapshot is a consistent copy of the progress fields.
type Snapshot struct {
	Status         Status
	CaptureDone    int
	CaptureTotal   int
	EncodeProgress float64
}

// Progress returns the current progress fields.
func (j *Job) Progress() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Snapshot{
		Status:         j.Status,
		CaptureDone:    j.CaptureDone,
		CaptureTotal:   j.Frames,
		EncodeProgress: j.EncodeProgress,
	}
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:             j.ID,
		Status:         j.Status,
		Source:         j.Source,
		Params:         j.Params,
		PushToS3:       j.PushToS3,
		InputPath:      j.InputPath,
		TempInput:      j.TempInput,
		Width:          j.Width,
		Height:         j.Height,
		Frames:         j.Frames,
		CaptureDone:    j.CaptureDone,
		EncodeProgress: j.EncodeProgress,
		Error:          j.Error,
		ErrorKind:      j.ErrorKind,
		ArtifactPath:   j.ArtifactPath,
		ArtifactURL:    j.ArtifactURL,
		ArtifactSize:   j.ArtifactSize,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}
