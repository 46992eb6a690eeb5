package job

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job: not found")

// Repository stores job snapshots. Implementations must be safe for
// concurrent use and must not share *Job values with callers.
type Repository interface {
	// Save persists a job, replacing any stored version with the same ID.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns all jobs, newest first.
	List(ctx context.Context) ([]*Job, error)

	// Delete returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error

	// DeleteTerminal removes every terminal job that completed before
	// cutoff and returns the removed jobs.
	DeleteTerminal(ctx context.Context, cutoff time.Time) ([]*Job, error)
}
